package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets the identity middleware read while profiles are written.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS learners (
		user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		topic TEXT NOT NULL DEFAULT '',
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_learners_last_seen ON learners(last_seen_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetLearner retrieves a learner by user ID.
func (s *SQLiteStore) GetLearner(ctx context.Context, userID string) (*domain.Learner, error) {
	query := `
		SELECT user_id, display_name, topic, last_seen_at, created_at, updated_at
		FROM learners WHERE user_id = ?`

	var l domain.Learner
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&l.UserID, &l.DisplayName, &l.Topic, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan learner row: %w", err)
	}

	l.LastSeenAt = time.Unix(lastSeen, 0)
	l.CreatedAt = time.Unix(createdAt, 0)
	l.UpdatedAt = time.Unix(updatedAt, 0)
	return &l, nil
}

// UpsertLearner inserts a learner. An existing row keeps its profile and only
// has its timestamps refreshed.
func (s *SQLiteStore) UpsertLearner(ctx context.Context, l *domain.Learner) error {
	query := `
	INSERT INTO learners (user_id, display_name, topic, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return withBusyRetry(ctx, "upsert learner", func() error {
		_, err := s.db.ExecContext(ctx, query,
			l.UserID, l.DisplayName, l.Topic,
			l.LastSeenAt.Unix(), l.CreatedAt.Unix(), l.UpdatedAt.Unix(),
		)
		return err
	})
}

// UpdateProfile sets the learner's display name and topic.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, userID, name, topic string) error {
	query := `UPDATE learners SET display_name = ?, topic = ?, updated_at = ? WHERE user_id = ?`

	var rows int64
	err := withBusyRetry(ctx, "update learner profile", func() error {
		res, err := s.db.ExecContext(ctx, query, name, topic, time.Now().Unix(), userID)
		if err != nil {
			return err
		}
		rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLearnerNotFound
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a learner.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE learners SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	return withBusyRetry(ctx, "update last_seen", func() error {
		_, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
		return err
	})
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
