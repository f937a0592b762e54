package session

import (
	"sync"
	"time"

	"github.com/m3rciful/botcore/core/telegram/api"
)

// Registry maps chat ids to live sessions. All mutation goes through its
// atomic operations; at most one session exists per chat at any time.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  Factory
	idle     time.Duration
}

// NewRegistry builds a registry creating sessions via factory. idle > 0
// enables per-session inactivity expiry.
func NewRegistry(factory Factory, idle time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		idle:     idle,
	}
}

// GetOrCreate returns the session for chatID, creating it when first seen.
// Exactly one concurrent caller observes created == true.
func (r *Registry) GetOrCreate(chatID api.ChatID) (*Session, bool) {
	key := chatID.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		return s, false
	}
	s := newSession(chatID, r.factory, r.idle, r.detach)
	r.sessions[key] = s
	return s, true
}

// Get returns the live session for chatID if present.
func (r *Registry) Get(chatID api.ChatID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[chatID.Key()]
	return s, ok
}

// Remove detaches and returns the session for chatID, or nil. The caller is
// responsible for ending the returned session.
func (r *Registry) Remove(chatID api.ChatID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := chatID.Key()
	s, ok := r.sessions[key]
	if !ok {
		return nil
	}
	delete(r.sessions, key)
	return s
}

// Snapshot returns the live sessions; it includes every session whose
// GetOrCreate completed before the call.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Clear empties the registry without ending sessions; shutdown ends them
// from its snapshot first.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*Session)
}

// detach removes s from the map if it is still the registered session for
// its chat; a newer session under the same key is left alone.
func (r *Registry) detach(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := s.chatID.Key()
	if cur, ok := r.sessions[key]; ok && cur == s {
		delete(r.sessions, key)
	}
}
