package chathub

import (
	"sync"

	"consultgo/backend/internal/models"
)

// Registry is the in-memory map of participants to their live connections.
// A participant may hold several simultaneous connections (multiple tabs),
// so entries are connection sets, not single slots. The registry holds no
// durable state and starts empty on every process start.
type Registry struct {
	mu    sync.RWMutex
	conns map[string][]Client
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string][]Client)}
}

// Add binds a connection. Returns the number of live connections the
// participant now holds.
func (r *Registry) Add(c Client) int {
	key := c.GetParticipant().Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[key] = append(r.conns[key], c)
	return len(r.conns[key])
}

// Remove unbinds a connection. Returns the number of connections the
// participant still holds; zero means this was the last one.
func (r *Registry) Remove(c Client) int {
	key := c.GetParticipant().Key()
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := r.conns[key]
	for i, existing := range clients {
		if existing == c {
			r.conns[key] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	remaining := len(r.conns[key])
	if remaining == 0 {
		delete(r.conns, key)
	}
	return remaining
}

// Connections returns a snapshot of a participant's live connections.
func (r *Registry) Connections(p models.Participant) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := r.conns[p.Key()]
	out := make([]Client, len(clients))
	copy(out, clients)
	return out
}

// HasConnections reports whether the participant is reachable right now.
func (r *Registry) HasConnections(p models.Participant) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[p.Key()]) > 0
}

// Viewing reports whether any of the participant's connections currently
// has the given conversation open.
func (r *Registry) Viewing(p models.Participant, conversationID string) bool {
	if conversationID == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns[p.Key()] {
		if c.GetConversationID() == conversationID {
			return true
		}
	}
	return false
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Client
	for _, clients := range r.conns {
		out = append(out, clients...)
	}
	return out
}
