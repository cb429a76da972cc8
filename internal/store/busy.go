package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	busyMaxAttempts = 3
	busyBaseDelay   = 100 * time.Millisecond
)

// isConflict reports SQLITE_BUSY and "database is locked" errors.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs op, retrying lock conflicts with exponential backoff
// (100ms, 200ms).
func withBusyRetry(ctx context.Context, what string, op func() error) error {
	var err error
	for attempt := 0; attempt < busyMaxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !isConflict(err) || attempt == busyMaxAttempts-1 {
			break
		}
		delay := busyBaseDelay * time.Duration(1<<attempt)
		slog.Debug("SQLite busy, retrying", "op", what, "attempt", attempt+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
