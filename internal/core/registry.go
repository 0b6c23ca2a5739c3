package core

import "sync"

// Registry maps a channel ID to the set of currently subscribed
// sessions. It holds weak, id-keyed references only: session lifetime is
// owned by the connection worker, and entries are pruned the moment a
// session leaves. Groups with zero subscribers are not materialized.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]map[string]*Session
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[string]map[string]*Session),
	}
}

// Join adds a session to a channel's subscriber set. Returns false if
// the session was already subscribed.
func (r *Registry) Join(channelID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[channelID]
	if !ok {
		group = make(map[string]*Session)
		r.groups[channelID] = group
	}
	if _, exists := group[s.ID]; exists {
		return false
	}
	group[s.ID] = s
	return true
}

// Leave removes a session from a channel's subscriber set. Idempotent:
// leaving a channel the session never joined is a no-op. Empty groups
// are deleted so churn does not grow the map.
func (r *Registry) Leave(channelID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[channelID]
	if !ok {
		return false
	}
	if _, exists := group[s.ID]; !exists {
		return false
	}
	delete(group, s.ID)
	if len(group) == 0 {
		delete(r.groups, channelID)
	}
	return true
}

// Snapshot returns a point-in-time copy of a channel's subscribers.
// Sessions joining or leaving during an in-flight broadcast may or may
// not be observed.
func (r *Registry) Snapshot(channelID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group, ok := r.groups[channelID]
	if !ok {
		return nil
	}
	sessions := make([]*Session, 0, len(group))
	for _, s := range group {
		sessions = append(sessions, s)
	}
	return sessions
}

// Contains reports whether the session is subscribed to the channel.
func (r *Registry) Contains(channelID string, s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group, ok := r.groups[channelID]
	if !ok {
		return false
	}
	_, exists := group[s.ID]
	return exists
}

// Groups reports the number of materialized groups.
func (r *Registry) Groups() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}
