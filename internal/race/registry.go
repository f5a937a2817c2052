package race

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry owns every live session, keyed by session code.
//
// Lock order is registry then session. Sessions never call back into the
// registry.
type Registry struct {
	opts     Options
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry. Sessions it creates share opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// Options returns the options applied to new sessions.
func (r *Registry) Options() Options { return r.opts }

// GetOrCreate returns the session for code, creating it in the lobby when
// none exists. created reports whether a new session was made.
func (r *Registry) GetOrCreate(code string) (s *Session, created bool) {
	r.mu.RLock()
	s, ok := r.sessions[code]
	r.mu.RUnlock()
	if ok {
		return s, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have created it between the locks.
	if s, ok := r.sessions[code]; ok {
		return s, false
	}
	s = NewSession(code, r.opts)
	r.sessions[code] = s
	return s, true
}

// Lookup returns the session for code or ErrSessionNotFound.
func (r *Registry) Lookup(code string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, code)
	}
	return s, nil
}

// RemoveIfEmpty discards the session for code when nobody is seated in it
// and reports whether it did.
func (r *Registry) RemoveIfEmpty(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok || s.Len() > 0 {
		return false
	}
	s.Close()
	delete(r.sessions, code)
	log.Info().Str("session", code).Int("sessions", len(r.sessions)).Msg("session discarded")
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats summarises every session, ordered by code.
func (r *Registry) Stats() []SessionStats {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	stats := make([]SessionStats, 0, len(sessions))
	for _, s := range sessions {
		stats = append(stats, s.Stats())
	}
	slices.SortFunc(stats, func(a, b SessionStats) int { return strings.Compare(a.Code, b.Code) })
	return stats
}

// Shutdown cancels every pending countdown. Sessions stay registered.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		s.Close()
	}
	log.Info().Int("sessions", len(r.sessions)).Msg("race registry shut down")
}
