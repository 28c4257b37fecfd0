// Package store provides session persistence backends for excursbot.
//
// This file implements an SQLite-backed store for sessions, user tracking
// and stats, intended for self-hosted single-node deployments.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ingria/excursbot/internal/models"
)

// DefaultDirPermissions defines the default permissions for database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions and user tracking in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given options. The
// DSN is a file path to the database; its directory is created if needed.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetSession fetches and decodes the session row at key.
func (s *SQLiteStore) GetSession(ctx context.Context, key string) (*models.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to get session %s: %w", key, err)
	}
	var session models.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		slog.Error("SQLiteStore GetSession: corrupt session row", "error", err, "key", key)
		return nil, fmt.Errorf("corrupt session row at %s: %w", key, err)
	}
	return &session, nil
}

// SaveSession upserts the session row at key; an empty session deletes
// the row instead.
func (s *SQLiteStore) SaveSession(ctx context.Context, key string, session *models.Session) error {
	if session.IsEmpty() {
		return s.DeleteSession(ctx, key)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "key", key)
		return fmt.Errorf("failed to save session %s: %w", key, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "key", key, "stage", session.Stage)
	return nil
}

// DeleteSession removes the session row at key. A missing row is not an
// error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, key); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete session %s: %w", key, err)
	}
	return nil
}

// TrackStarted upserts the user row, keeping the first started_at.
func (s *SQLiteStore) TrackStarted(ctx context.Context, u TrackedUser) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, is_bot, first_name, last_name, username, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			username = excluded.username,
			started_at = COALESCE(users.started_at, excluded.started_at)`,
		u.ID, u.IsBot, nilIfEmpty(u.FirstName), nilIfEmpty(u.LastName), nilIfEmpty(u.Username), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to track started user %d: %w", u.ID, err)
	}
	return nil
}

// TrackFinished records completion, keeping the first finished_at.
func (s *SQLiteStore) TrackFinished(ctx context.Context, u TrackedUser) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, is_bot, first_name, last_name, username, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = COALESCE(users.finished_at, excluded.finished_at)`,
		u.ID, u.IsBot, nilIfEmpty(u.FirstName), nilIfEmpty(u.LastName), nilIfEmpty(u.Username), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to track finished user %d: %w", u.ID, err)
	}
	return nil
}

// ArchiveFeedback stores one verbatim feedback message per row.
func (s *SQLiteStore) ArchiveFeedback(ctx context.Context, userID, messageID int64, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (user_id, message_id, text, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, message_id) DO NOTHING`,
		userID, messageID, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to archive feedback for user %d: %w", userID, err)
	}
	return nil
}

// Stats reports started/finished totals and finishes per day over the
// stats window.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE started_at IS NOT NULL`).Scan(&stats.TotalStarted); err != nil {
		return nil, fmt.Errorf("failed to count started users: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE finished_at IS NOT NULL`).Scan(&stats.TotalFinished); err != nil {
		return nil, fmt.Errorf("failed to count finished users: %w", err)
	}
	since := time.Now().UTC().Add(-statsWindow)
	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', finished_at), COUNT(*) FROM users
		WHERE finished_at >= ?
		GROUP BY strftime('%Y-%m-%d', finished_at)
		ORDER BY strftime('%Y-%m-%d', finished_at) DESC`, since)
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
