package socket

import (
	"context"
	"sync"
)

// Manager owns at most one connection per agent. A closed connection is
// replaced on the next Connect call, never reused.
type Manager struct {
	opts Options

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewManager creates a connection manager with the given dial options.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:  opts,
		conns: make(map[string]*Conn),
	}
}

// Get returns the agent's connection if one exists and is not closed.
func (m *Manager) Get(agentID string) (*Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[agentID]
	if !ok || conn.State() == StateClosed {
		return nil, false
	}
	return conn, true
}

// Connect dials a new connection for the agent and records it, replacing
// any previous (closed) connection. Callers check Get first; Connect does
// not queue or coalesce concurrent attempts for the same agent.
func (m *Manager) Connect(ctx context.Context, agentID, url string, handlers Handlers) *Conn {
	conn := Dial(ctx, url, handlers, m.opts)

	m.mu.Lock()
	if prev, ok := m.conns[agentID]; ok && prev.State() != StateClosed {
		// Shouldn't happen when callers check Get first; close the old one
		// rather than leaking its read goroutine.
		prev.Close()
	}
	m.conns[agentID] = conn
	m.mu.Unlock()

	return conn
}

// CloseAll closes every connection. Used at teardown so no read goroutines
// or handlers leak.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]*Conn)
	m.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
