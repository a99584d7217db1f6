package realtime

import (
	"sync"

	"github.com/spec-kit/case-service/internal/domain"
)

// Registry tracks live connections keyed by identity. It is the injectable
// replacement for ambient connection state: handlers register on upgrade,
// unregister on disconnect, and the notification dispatcher pushes through
// it without knowing about channels.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[string]Connection)}
}

func subjectKey(subject domain.SubjectType, id string) string {
	return string(subject) + ":" + id
}

// Register adds a live connection for its identity.
func (g *Registry) Register(conn Connection) {
	id := conn.Identity()
	key := subjectKey(id.Subject, id.SubjectID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conns[key] == nil {
		g.conns[key] = make(map[string]Connection)
	}
	g.conns[key][conn.ID()] = conn
}

// Unregister removes a connection; idempotent.
func (g *Registry) Unregister(conn Connection) {
	id := conn.Identity()
	key := subjectKey(id.Subject, id.SubjectID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if set, ok := g.conns[key]; ok {
		delete(set, conn.ID())
		if len(set) == 0 {
			delete(g.conns, key)
		}
	}
}

// Connected reports whether the identity has at least one live connection.
func (g *Registry) Connected(subject domain.SubjectType, id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns[subjectKey(subject, id)]) > 0
}

// Push delivers the envelope to every live connection of the identity and
// returns how many sends succeeded. Failed sends are dropped; the durable
// ledger is the fallback for missed traffic.
func (g *Registry) Push(subject domain.SubjectType, id string, env Envelope) int {
	g.mu.RLock()
	targets := make([]Connection, 0, 2)
	for _, conn := range g.conns[subjectKey(subject, id)] {
		targets = append(targets, conn)
	}
	g.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(env); err == nil {
			delivered++
		}
	}
	return delivered
}
