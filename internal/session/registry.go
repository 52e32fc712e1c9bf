package session

import "sync"

// Registry is the single source of truth for which sessions are live
// in this process. The registry lock covers only the map itself; each
// Session carries its own lock for state, so operations on different
// sessions don't serialize.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]*Session{}}
}

// Register inserts s under its name. It fails with ErrAlreadyExists if
// the name is taken, which is what makes "at most one live handle per
// name" hold process-wide.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[s.name]; ok {
		return ErrAlreadyExists
	}
	r.entries[s.name] = s
	return nil
}

// Lookup never blocks on session state; it only touches the map.
func (r *Registry) Lookup(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.entries[name]
	return s, ok
}

// Remove is idempotent; removing an absent name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	delete(r.entries, name)
	r.mu.Unlock()
}

// Names returns a point-in-time snapshot, in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	return out
}
