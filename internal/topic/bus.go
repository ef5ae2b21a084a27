// Package topic provides the publish/subscribe plumbing used by topic
// operations: a Bus abstraction with in-memory and Redis implementations,
// and sink/source pairs that feed correlation forwarders.
package topic

import (
	"context"
)

// Handler receives a message published on a subscribed topic. Handlers
// for one subscription are invoked sequentially in publish order.
type Handler func(payload string)

// Bus is a topic publish/subscribe transport.
type Bus interface {
	// Publish sends payload to topic and reports whether any subscriber
	// was there to receive it.
	Publish(ctx context.Context, topic, payload string) (delivered bool, err error)

	// Subscribe registers h for messages on topic until the returned
	// function is called.
	Subscribe(topic string, h Handler) (unsubscribe func(), err error)

	// Close stops every subscription held by the bus.
	Close() error
}
