package local

import (
	"sync"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"portbus/pkg/observability"
)

// Manager pairs local senders with receivers in one process. Every carrier
// instance created from the same prototype shares it; a receiver that reads
// another manager's id knows the sender lives in a different process.
type Manager struct {
	id      xid.ID
	log     *zap.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	pending map[string]*link // rendezvous token -> unclaimed sender
}

type ManagerOption func(*Manager)

func WithLogger(l *zap.Logger) ManagerOption { return func(m *Manager) { m.log = l } }

func WithMetrics(mt *observability.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		id:      xid.New(),
		log:     zap.NewNop(),
		pending: make(map[string]*link),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) ID() xid.ID { return m.id }

// offer registers a sender's link under a fresh token.
func (m *Manager) offer(l *link) string {
	token := xid.New().String()
	m.mu.Lock()
	m.pending[token] = l
	m.mu.Unlock()
	return token
}

// claim hands the sender registered under token to a receiver. A token can
// be claimed once.
func (m *Manager) claim(token string) (*link, bool) {
	m.mu.Lock()
	l, ok := m.pending[token]
	delete(m.pending, token)
	m.mu.Unlock()
	if ok {
		l.markClaimed()
	}
	return l, ok
}

// Revoke drops an unclaimed sender and poisons it. It reports whether the
// token was still pending.
func (m *Manager) Revoke(token string) bool {
	m.mu.Lock()
	l, ok := m.pending[token]
	delete(m.pending, token)
	m.mu.Unlock()
	if ok {
		l.poison()
		m.log.Debug("revoked unclaimed local sender", zap.String("token", token), zap.String("from", l.from))
	}
	return ok
}

// Pending is the number of senders waiting to be claimed.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
