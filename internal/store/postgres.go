// Package store provides session persistence backends for excursbot.
//
// This file implements a PostgreSQL-backed store for sessions, user
// tracking and stats.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/ingria/excursbot/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions and user tracking in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// GetSession fetches and decodes the session row at key.
func (s *PostgresStore) GetSession(ctx context.Context, key string) (*models.Session, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE key = $1`, key).Scan(&data)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to get session %s: %w", key, err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		slog.Error("PostgresStore GetSession: corrupt session row", "error", err, "key", key)
		return nil, fmt.Errorf("corrupt session row at %s: %w", key, err)
	}
	return &session, nil
}

// SaveSession upserts the session row at key; an empty session deletes
// the row instead.
func (s *PostgresStore) SaveSession(ctx context.Context, key string, session *models.Session) error {
	if session.IsEmpty() {
		return s.DeleteSession(ctx, key)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (key, data, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		key, data, time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "key", key)
		return fmt.Errorf("failed to save session %s: %w", key, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "key", key, "stage", session.Stage)
	return nil
}

// DeleteSession removes the session row at key. A missing row is not an
// error.
func (s *PostgresStore) DeleteSession(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = $1`, key); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete session %s: %w", key, err)
	}
	return nil
}

// TrackStarted upserts the user row, keeping the first started_at.
func (s *PostgresStore) TrackStarted(ctx context.Context, u TrackedUser) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, is_bot, first_name, last_name, username, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			username = EXCLUDED.username,
			started_at = COALESCE(users.started_at, EXCLUDED.started_at)`,
		u.ID, u.IsBot, nilIfEmpty(u.FirstName), nilIfEmpty(u.LastName), nilIfEmpty(u.Username), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to track started user %d: %w", u.ID, err)
	}
	return nil
}

// TrackFinished records completion, keeping the first finished_at.
func (s *PostgresStore) TrackFinished(ctx context.Context, u TrackedUser) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, is_bot, first_name, last_name, username, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = COALESCE(users.finished_at, EXCLUDED.finished_at)`,
		u.ID, u.IsBot, nilIfEmpty(u.FirstName), nilIfEmpty(u.LastName), nilIfEmpty(u.Username), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to track finished user %d: %w", u.ID, err)
	}
	return nil
}

// ArchiveFeedback stores one verbatim feedback message per row.
func (s *PostgresStore) ArchiveFeedback(ctx context.Context, userID, messageID int64, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (user_id, message_id, text, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, message_id) DO NOTHING`,
		userID, messageID, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to archive feedback for user %d: %w", userID, err)
	}
	return nil
}

// Stats reports started/finished totals and finishes per day over the
// stats window.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE started_at IS NOT NULL`).Scan(&stats.TotalStarted); err != nil {
		return nil, fmt.Errorf("failed to count started users: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE finished_at IS NOT NULL`).Scan(&stats.TotalFinished); err != nil {
		return nil, fmt.Errorf("failed to count finished users: %w", err)
	}
	since := time.Now().UTC().Add(-statsWindow)
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(finished_at, 'YYYY-MM-DD'), COUNT(*) FROM users
		WHERE finished_at >= $1
		GROUP BY to_char(finished_at, 'YYYY-MM-DD')
		ORDER BY to_char(finished_at, 'YYYY-MM-DD') DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats row: %w", err)
		}
		stats.FinishedPerDay = append(stats.FinishedPerDay, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read daily stats rows: %w", err)
	}
	return &stats, nil
}
