package hint

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type owned struct {
	owner    string
	engine   *Engine
	lastUsed time.Time
}

// ObserverFactory builds the usage observer for a newly assigned event ID.
type ObserverFactory func(id string) UsageObserver

// Registry tracks live feedback events by ID for their owning learner.
type Registry struct {
	mu     sync.Mutex
	events map[string]*owned
	now    func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{events: make(map[string]*owned), now: time.Now}
}

// Create registers a new engine for owner and returns its ID. newObserver may
// be nil.
func (r *Registry) Create(owner string, fb Feedback, newObserver ObserverFactory) (string, *Engine) {
	id := uuid.NewString()
	var observer UsageObserver
	if newObserver != nil {
		observer = newObserver(id)
	}
	e := New(fb, observer)

	r.mu.Lock()
	r.events[id] = &owned{owner: owner, engine: e, lastUsed: r.now()}
	r.mu.Unlock()
	return id, e
}

// Get returns the engine with id if owner created it.
func (r *Registry) Get(owner, id string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.events[id]
	if !ok || o.owner != owner {
		return nil, false
	}
	o.lastUsed = r.now()
	return o.engine, true
}

// Dismiss dismisses and forgets the engine. It reports whether it existed.
func (r *Registry) Dismiss(owner, id string) bool {
	r.mu.Lock()
	o, ok := r.events[id]
	if !ok || o.owner != owner {
		r.mu.Unlock()
		return false
	}
	delete(r.events, id)
	r.mu.Unlock()

	o.engine.Dismiss()
	return true
}

// Len returns the number of live events.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Sweep dismisses events untouched for longer than maxIdle and returns how
// many were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	var expired []*Engine
	r.mu.Lock()
	for id, o := range r.events {
		if o.lastUsed.Before(cutoff) {
			expired = append(expired, o.engine)
			delete(r.events, id)
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		e.Dismiss()
	}
	return len(expired)
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
					slog.Info("Expired feedback events removed", "count", n)
				}
			}
		}
	}()
}
