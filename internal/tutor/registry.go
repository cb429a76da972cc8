package tutor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type registryEntry struct {
	session  *Session
	lastUsed time.Time
}

// Registry holds in-memory tutor sessions keyed by learner and tab session.
// Nothing is persisted; sessions vanish on restart or after idling.
type Registry struct {
	mu     sync.Mutex
	active map[string]map[string]*registryEntry
	now    func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]*registryEntry),
		now:    time.Now,
	}
}

// GetOrCreate returns the session for userID/sessionID, creating it with
// create when absent.
func (r *Registry) GetOrCreate(userID, sessionID string, create func() *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.active[userID]
	if !ok {
		sessions = make(map[string]*registryEntry)
		r.active[userID] = sessions
	}
	if entry, exists := sessions[sessionID]; exists {
		entry.lastUsed = r.now()
		return entry.session
	}

	s := create()
	sessions[sessionID] = &registryEntry{session: s, lastUsed: r.now()}
	slog.Info("Tutor session created", "user_id", userID, "session_id", sessionID, "topic", s.Topic().ID())
	return s
}

// Get returns the session for userID/sessionID, or nil.
func (r *Registry) Get(userID, sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sessions, ok := r.active[userID]; ok {
		if entry, exists := sessions[sessionID]; exists {
			entry.lastUsed = r.now()
			return entry.session
		}
	}
	return nil
}

// Remove discards the session for userID/sessionID. A turn still in flight
// completes against the detached session.
func (r *Registry) Remove(userID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessions, ok := r.active[userID]; ok {
		if _, exists := sessions[sessionID]; exists {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(r.active, userID)
			}
			slog.Info("Tutor session removed", "user_id", userID, "session_id", sessionID)
		}
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, sessions := range r.active {
		n += len(sessions)
	}
	return n
}

// Sweep removes sessions idle for longer than maxIdle. Sessions with a pending
// turn are kept.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for userID, sessions := range r.active {
		for sessionID, entry := range sessions {
			if entry.lastUsed.After(cutoff) || entry.session.Pending() {
				continue
			}
			delete(sessions, sessionID)
			removed++
		}
		if len(sessions) == 0 {
			delete(r.active, userID)
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(maxIdle); n > 0 {
					slog.Info("Idle tutor sessions evicted", "count", n)
				}
			}
		}
	}()
}
