package signal

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry is the process-wide signal catalog. Registration happens at
// startup and is serialized; lookups run on every emission and inbound
// decode and read an immutable snapshot without locking.
type Registry struct {
	mu   sync.Mutex // serializes registration
	defs atomic.Pointer[map[string]Definition]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := make(map[string]Definition)
	r.defs.Store(&empty)
	return r
}

// Register adds a definition to the catalog. Registering an id twice fails
// with ErrDuplicateSignal and leaves the registry unchanged. Signals are
// never unregistered.
func (r *Registry) Register(def Definition) error {
	id := def.ID()
	if id == "" {
		return ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.defs.Load()
	if _, exists := current[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateSignal, id)
	}

	// Copy-on-write keeps Get lock-free for readers.
	next := make(map[string]Definition, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[id] = def
	r.defs.Store(&next)
	return nil
}

// MustRegister registers definitions and panics on failure. Intended for
// startup wiring where a duplicate id is a programming error.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Get returns the definition for an id.
func (r *Registry) Get(id string) (Definition, bool) {
	def, ok := (*r.defs.Load())[id]
	return def, ok
}

// Lookup returns the definition for an id or ErrUnknownSignal.
func (r *Registry) Lookup(id string) (Definition, error) {
	def, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, id)
	}
	return def, nil
}

// Len returns the number of registered signals.
func (r *Registry) Len() int {
	return len(*r.defs.Load())
}

// IDs returns the registered signal ids in sorted order.
func (r *Registry) IDs() []string {
	current := *r.defs.Load()
	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
