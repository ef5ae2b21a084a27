package topic

import (
	"context"
	"sync"

	"github.com/tombee/remediator/pkg/errors"
)

const memoryQueueSize = 256

// MemoryBus is an in-process Bus. Each subscription has its own queue
// and delivery goroutine.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed bool
}

type memorySub struct {
	queue chan string
	done  chan struct{}
	once  sync.Once
}

func (s *memorySub) close() {
	s.once.Do(func() { close(s.done) })
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySub)}
}

// Publish implements Bus. It blocks while a subscriber queue is full.
func (b *MemoryBus) Publish(ctx context.Context, topic, payload string) (bool, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return false, &errors.StateError{Component: "memory bus", Action: "publish", State: "closed"}
	}
	subs := append([]*memorySub(nil), b.subs[topic]...)
	b.mu.RUnlock()

	delivered := false
	for _, s := range subs {
		select {
		case s.queue <- payload:
			delivered = true
		case <-s.done:
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
	return delivered, nil
}

// Subscribe implements Bus.
func (b *MemoryBus) Subscribe(topic string, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, &errors.StateError{Component: "memory bus", Action: "subscribe", State: "closed"}
	}

	s := &memorySub{
		queue: make(chan string, memoryQueueSize),
		done:  make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], s)

	go func() {
		for {
			select {
			case payload := <-s.queue:
				h(payload)
			case <-s.done:
				return
			}
		}
	}()

	return func() { b.unsubscribe(topic, s) }, nil
}

func (b *MemoryBus) unsubscribe(topic string, s *memorySub) {
	b.mu.Lock()
	subs := b.subs[topic]
	for i, cur := range subs {
		if cur == s {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
	b.mu.Unlock()
	s.close()
}

// Close implements Bus.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string][]*memorySub)
	b.closed = true
	b.mu.Unlock()

	for _, list := range subs {
		for _, s := range list {
			s.close()
		}
	}
	return nil
}
