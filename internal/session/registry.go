// Package session keeps the live edit sessions of a server process. Each
// session wraps one editor.Controller and is closed after it sits idle.
// Nothing is persisted; a restart drops every session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/muted-image-editor/internal/editor"
	"github.com/fpang/muted-image-editor/internal/metrics"
)

// DefaultIdleTTL is how long an untouched session survives.
const DefaultIdleTTL = 30 * time.Minute

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// Factory builds the controller for a new session.
type Factory func(id string) *editor.Controller

// Session is one live edit session.
type Session struct {
	ID         string
	Controller *editor.Controller
	CreatedAt  time.Time

	mu       sync.Mutex
	lastUsed time.Time
	watchers int
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) watched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watchers > 0
}

// LastUsed returns when the session was last looked up.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Registry maps session IDs to sessions. It is safe for concurrent use.
type Registry struct {
	factory Factory
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Registry{
		factory:  factory,
		idleTTL:  idleTTL,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session.
func (r *Registry) Create() *Session {
	id := uuid.NewString()
	now := r.now()
	s := &Session{
		ID:         id,
		Controller: r.factory(id),
		CreatedAt:  now,
		lastUsed:   now,
	}

	r.mu.Lock()
	r.sessions[id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SetActiveSessions(n)
	log.Info().Str("session", id).Int("active", n).Msg("Session created")
	return s
}

// Get returns a session and marks it used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Watch marks the session as observed by a live client until the returned
// func is called. Sweep never closes a watched session; the idle clock
// restarts when the last watcher leaves.
func (r *Registry) Watch(s *Session) func() {
	s.mu.Lock()
	s.watchers++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.watchers--
			s.lastUsed = r.now()
			s.mu.Unlock()
		})
	}
}

// Delete closes and removes a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	metrics.SetActiveSessions(n)
	log.Info().Str("session", id).Int("active", n).Msg("Session closed")
	return s.Controller.Close()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes every unwatched session idle for longer than the TTL and
// returns how many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if !s.watched() && s.LastUsed().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range expired {
		log.Info().Str("session", s.ID).Time("last_used", s.LastUsed()).Msg("Closing idle session")
		_ = s.Controller.Close()
	}
	if len(expired) > 0 {
		metrics.SetActiveSessions(n)
	}
	return len(expired)
}

// Run sweeps idle sessions every interval until ctx is done, then closes
// all remaining sessions.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				log.Debug().Int("expired", n).Msg("Idle session sweep")
			}
		}
	}
}

// CloseAll closes and removes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Controller.Close()
	}
	metrics.SetActiveSessions(0)
}
