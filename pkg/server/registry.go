package server

import (
	"sync"
)

// ConnRegistry is the per-process table of live connections. It keeps two
// indices — connection id to connection, and user id to the set of that
// user's connection ids — and updates both atomically under one mutex so
// neither can hold an orphan.
//
// Reads return snapshots: callers iterating a result to send are never
// affected by concurrent removal, they just find the connection already
// closed when they reach it.
type ConnRegistry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	byUser map[string]map[string]struct{}

	totalAdded   uint64
	totalRemoved uint64
	peak         int
}

// RegistryStats is a point-in-time snapshot of registry counters.
type RegistryStats struct {
	Active       int
	Peak         int
	TotalAdded   uint64
	TotalRemoved uint64
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{
		conns:  make(map[string]*Conn),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Add inserts a connection into both indices. Fails with ErrConnExists if
// the id is already present.
func (r *ConnRegistry) Add(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[c.ID()]; exists {
		return ErrConnExists
	}

	r.conns[c.ID()] = c
	set := r.byUser[c.UserID()]
	if set == nil {
		set = make(map[string]struct{})
		r.byUser[c.UserID()] = set
	}
	set[c.ID()] = struct{}{}

	r.totalAdded++
	if len(r.conns) > r.peak {
		r.peak = len(r.conns)
	}
	return nil
}

// Remove deletes a connection from both indices. Removing an absent id is
// a no-op, which absorbs the race between timeout-driven and client-driven
// close. The removed connection is returned, or nil.
func (r *ConnRegistry) Remove(id string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.conns[id]
	if !exists {
		return nil
	}
	delete(r.conns, id)
	if set, ok := r.byUser[c.UserID()]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byUser, c.UserID())
		}
	}
	r.totalRemoved++
	return c
}

// Get returns the live connection for an id.
func (r *ConnRegistry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// ConnectionsForUser returns a snapshot of the user's connection ids. A
// user with no connections yields an empty slice, not an error.
func (r *ConnRegistry) ConnectionsForUser(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// AllConnections returns a snapshot of every live connection id.
func (r *ConnRegistry) AllConnections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live connections.
func (r *ConnRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Stats returns registry counters.
func (r *ConnRegistry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RegistryStats{
		Active:       len(r.conns),
		Peak:         r.peak,
		TotalAdded:   r.totalAdded,
		TotalRemoved: r.totalRemoved,
	}
}

// CloseAll closes every live connection. Used during shutdown; each close
// removes its own entry.
func (r *ConnRegistry) CloseAll() {
	for _, id := range r.AllConnections() {
		if c, ok := r.Get(id); ok {
			c.Close()
		}
	}
}
