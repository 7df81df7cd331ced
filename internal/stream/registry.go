package stream

import "sync"

// Registry is the single shared mutable table of live sessions, keyed by
// ContentID. Every exists-or-create decision goes through the one mutex so
// two racing requests for the same content can never spawn two transcoders.
// No other component mutates the map.
type Registry struct {
	mu       sync.Mutex
	sessions map[ContentID]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[ContentID]*Session)}
}

// GetOrCreate returns the live session for id, invoking factory to create one
// if absent. created reports whether factory ran; under concurrent calls for
// the same id exactly one caller observes created == true and all callers
// receive the same session.
func (r *Registry) GetOrCreate(id ContentID, factory func() *Session) (s *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, false
	}

	s = factory()
	r.sessions[id] = s
	return s, true
}

// Get returns the live session for id, if any.
func (r *Registry) Get(id ContentID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Remove clears the entry for id, but only while it still points at s.
// The pointer check keeps a slow teardown from evicting the next generation's
// session for the same content.
func (r *Registry) Remove(id ContentID, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[id]; ok && cur == s {
		delete(r.sessions, id)
	}
}

// Len returns the number of registered sessions. Used for metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Snapshot returns the current sessions. The slice is a copy; the sessions
// themselves are shared.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
