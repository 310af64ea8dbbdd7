package relay

import "sync"

// RosterEntry is one logged-in user as seen by the registry.
type RosterEntry struct {
	Name string
	Uid  string
}

// Registry is the shared set of live sessions, in connection order.
// It is safe for concurrent use from the acceptor and every lane.
type Registry struct {
	mu       sync.RWMutex
	sessions []*Session
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a session. Called by the acceptor when a connection is
// established, before any record for it is routed.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions = append(r.sessions, s)
	r.mu.Unlock()
}

// Remove deletes a session, reporting whether it was present. Removing
// an absent session is a no-op.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, have := range r.sessions {
		if have == s {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the live session count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns a copy of the current session list. Callers inspect
// session state only after the registry lock is released, so session
// field locks never nest inside it.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// FindByUid returns the first session whose uid matches, or nil.
func (r *Registry) FindByUid(uid string) *Session {
	if uid == "" {
		return nil
	}
	for _, s := range r.Snapshot() {
		if s.Uid() == uid {
			return s
		}
	}
	return nil
}

// Roster lists every logged-in user except the excluded session.
func (r *Registry) Roster(exclude *Session) []RosterEntry {
	snapshot := r.Snapshot()
	out := make([]RosterEntry, 0, len(snapshot))
	for _, s := range snapshot {
		if s == exclude {
			continue
		}
		name := s.Name()
		if name == "" {
			continue
		}
		out = append(out, RosterEntry{Name: name, Uid: s.Uid()})
	}
	return out
}
