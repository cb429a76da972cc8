// Package store persists the learner directory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
)

// ErrLearnerNotFound is returned when an update targets an unknown learner.
var ErrLearnerNotFound = errors.New("learner not found")

// Repository defines the interface for persisting learner profiles.
type Repository interface {
	// GetLearner retrieves a learner by user ID. It returns nil, nil when
	// the learner does not exist.
	GetLearner(ctx context.Context, userID string) (*domain.Learner, error)

	// UpsertLearner creates a learner or refreshes its last-seen time.
	UpsertLearner(ctx context.Context, learner *domain.Learner) error

	// UpdateProfile sets the learner's display name and preferred topic.
	UpdateProfile(ctx context.Context, userID, name, topic string) error

	// UpdateLastSeen updates the last_seen_at timestamp for a learner.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
