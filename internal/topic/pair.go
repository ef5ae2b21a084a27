package topic

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/tombee/remediator/internal/coder"
	"github.com/tombee/remediator/internal/forwarder"
	"github.com/tombee/remediator/internal/jq"
	"github.com/tombee/remediator/internal/log"
)

// Pair is a request (sink) topic and its response (source) topic. While
// started it decodes every source message and offers it to each of its
// forwarders.
type Pair struct {
	bus    Bus
	sink   string
	source string
	coder  coder.Coder
	jq     *jq.Executor
	logger *slog.Logger

	mu          sync.Mutex
	forwarders  map[string]*forwarder.Forwarder
	unsubscribe func()
}

func newPair(bus Bus, sink, source string, c coder.Coder, e *jq.Executor, logger *slog.Logger) *Pair {
	return &Pair{
		bus:        bus,
		sink:       sink,
		source:     source,
		coder:      c,
		jq:         e,
		logger:     logger.With("sink", sink, "source", source),
		forwarders: make(map[string]*forwarder.Forwarder),
	}
}

// Sink returns the request topic.
func (p *Pair) Sink() string { return p.sink }

// Source returns the response topic.
func (p *Pair) Source() string { return p.source }

// Publish sends payload on the sink topic and reports whether anyone
// received it.
func (p *Pair) Publish(ctx context.Context, payload string) (bool, error) {
	return p.bus.Publish(ctx, p.sink, payload)
}

// Forwarder returns the forwarder for a selector set, creating it on
// first use. Operators using the same selectors share one forwarder.
func (p *Pair) Forwarder(selectors ...string) (*forwarder.Forwarder, error) {
	key := strings.Join(selectors, "\x00")

	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.forwarders[key]; ok {
		return f, nil
	}
	f, err := forwarder.New(selectors, forwarder.WithExecutor(p.jq), forwarder.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}
	p.forwarders[key] = f
	return f, nil
}

// Start subscribes to the source topic. It is a no-op when already
// started.
func (p *Pair) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unsubscribe != nil {
		return nil
	}
	unsub, err := p.bus.Subscribe(p.source, p.onMessage)
	if err != nil {
		return err
	}
	p.unsubscribe = unsub
	p.logger.Debug("topic pair started")
	return nil
}

// Stop unsubscribes from the source topic. Pending registrations remain
// and will be matched again after a restart.
func (p *Pair) Stop() {
	p.mu.Lock()
	unsub := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if unsub != nil {
		unsub()
		p.logger.Debug("topic pair stopped")
	}
}

// IsAlive reports whether the pair is subscribed.
func (p *Pair) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unsubscribe != nil
}

func (p *Pair) onMessage(payload string) {
	var msg any
	if err := p.coder.Decode(payload, &msg); err != nil {
		p.logger.Warn("dropping undecodable message", log.Error(err))
		return
	}

	p.mu.Lock()
	forwarders := make([]*forwarder.Forwarder, 0, len(p.forwarders))
	for _, f := range p.forwarders {
		forwarders = append(forwarders, f)
	}
	p.mu.Unlock()

	for _, f := range forwarders {
		f.OnMessage(payload, msg)
	}
}
