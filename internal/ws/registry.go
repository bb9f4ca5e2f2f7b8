package ws

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrDuplicateSession = errors.New("session already registered")
	ErrRegistryClosed   = errors.New("registry closed")
)

// Registry maps session ids to their live login sockets.
type Registry struct {
	conns  map[string]*Conn
	closed bool
	mu     sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

func (r *Registry) Register(sessionID string, conn *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, exists := r.conns[sessionID]; exists {
		return ErrDuplicateSession
	}
	r.conns[sessionID] = conn

	log.Debug().
		Int("liveSessions", len(r.conns)).
		Msg("login session registered")

	return nil
}

// Unregister removes the session and returns the connection it held, or nil.
// It does not close the connection.
func (r *Registry) Unregister(sessionID string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[sessionID]
	if !ok {
		return nil
	}
	delete(r.conns, sessionID)

	log.Debug().
		Int("liveSessions", len(r.conns)).
		Msg("login session unregistered")

	return conn
}

func (r *Registry) Lookup(sessionID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[sessionID]
	return conn, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Each calls fn for a snapshot of the live connections. fn runs without the
// registry lock held, so it may call back into the registry.
func (r *Registry) Each(fn func(*Conn)) {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		fn(c)
	}
}

// Close closes every live connection and rejects later registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Conn)
	r.closed = true
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}

	log.Info().Int("closed", len(conns)).Msg("login session registry closed")
}
