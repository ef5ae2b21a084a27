package topic

import (
	"log/slog"
	"sync"

	"github.com/tombee/remediator/internal/coder"
	"github.com/tombee/remediator/internal/jq"
	"github.com/tombee/remediator/internal/log"
)

// Manager hands out shared Pairs over one Bus.
type Manager struct {
	bus    Bus
	coder  coder.Coder
	jq     *jq.Executor
	logger *slog.Logger

	mu    sync.Mutex
	pairs map[pairKey]*Pair
}

type pairKey struct {
	sink, source string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCoder sets the coder used to decode source messages.
func WithCoder(c coder.Coder) ManagerOption {
	return func(m *Manager) { m.coder = c }
}

// WithExecutor sets the jq executor shared by the pairs' forwarders.
func WithExecutor(e *jq.Executor) ManagerOption {
	return func(m *Manager) { m.jq = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager over bus.
func NewManager(bus Bus, opts ...ManagerOption) *Manager {
	m := &Manager{
		bus:   bus,
		coder: coder.JSON,
		pairs: make(map[pairKey]*Pair),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.jq == nil {
		m.jq = jq.Default()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = log.WithComponent(m.logger, "topic")
	return m
}

// Bus returns the underlying bus.
func (m *Manager) Bus() Bus {
	return m.bus
}

// GetPair returns the pair for sink and source, creating it on first use.
func (m *Manager) GetPair(sink, source string) *Pair {
	key := pairKey{sink, source}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pairs[key]; ok {
		return p
	}
	p := newPair(m.bus, sink, source, m.coder, m.jq, m.logger)
	m.pairs[key] = p
	return p
}

// Stop stops every pair.
func (m *Manager) Stop() {
	m.mu.Lock()
	pairs := make([]*Pair, 0, len(m.pairs))
	for _, p := range m.pairs {
		pairs = append(pairs, p)
	}
	m.mu.Unlock()

	for _, p := range pairs {
		p.Stop()
	}
}

// Close stops every pair and closes the bus.
func (m *Manager) Close() error {
	m.Stop()
	return m.bus.Close()
}
