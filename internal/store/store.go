// Package store provides session persistence backends for excursbot.
//
// The durable record is one JSON document per conversation key. Backends
// include the S3-compatible object store used in production, Postgres and
// SQLite for self-hosted deployments, and an in-memory store for tests.
package store

import (
	"context"
	"time"

	"github.com/ingria/excursbot/internal/models"
)

// Store is durable key-value persistence of per-conversation sessions.
//
// GetSession distinguishes the three retrieval outcomes explicitly:
// a found session, not-found (nil, nil — the caller applies its initial
// value factory), and a transient error, which is propagated so the
// caller can decline to process rather than silently resetting progress.
type Store interface {
	// GetSession fetches the stored session at key. A missing record
	// returns (nil, nil).
	GetSession(ctx context.Context, key string) (*models.Session, error)

	// SaveSession overwrites the record at key. An empty session deletes
	// the stored record instead of writing an empty blob.
	SaveSession(ctx context.Context, key string, session *models.Session) error

	// DeleteSession removes the record at key. Absence is not an error.
	DeleteSession(ctx context.Context, key string) error
}

// TrackedUser is the participant snapshot recorded when a user starts or
// finishes the excursion.
type TrackedUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// UserTracker is an optional store capability: backends that implement it
// record first contact and completion per user. Both calls are
// create-only; repeated starts or finishes keep the first timestamp.
type UserTracker interface {
	TrackStarted(ctx context.Context, u TrackedUser) error
	TrackFinished(ctx context.Context, u TrackedUser) error
}

// FeedbackArchiver is an optional store capability: backends that
// implement it keep a verbatim archive of captured feedback messages.
type FeedbackArchiver interface {
	ArchiveFeedback(ctx context.Context, userID, messageID int64, text string) error
}

// DayCount is one day's completion count for the stats report.
type DayCount struct {
	Day   string
	Count int
}

// Stats summarizes excursion progress across all users.
type Stats struct {
	TotalStarted  int
	TotalFinished int
	// FinishedPerDay covers the last seven days, most recent first.
	FinishedPerDay []DayCount
}

// StatsProvider is an optional store capability backing the /stats
// command. The object-store backend does not implement it.
type StatsProvider interface {
	Stats(ctx context.Context) (*Stats, error)
}

// statsWindow bounds the per-day breakdown in Stats.
const statsWindow = 7 * 24 * time.Hour

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string for SQL backends.
	DSN string
	// Bucket is the object-store bucket for the S3 backend.
	Bucket string
	// Endpoint is the S3-compatible endpoint host.
	Endpoint string
	// AccessKey and SecretKey are the S3 credentials.
	AccessKey string
	SecretKey string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithBucket sets the object-store bucket name.
func WithBucket(bucket string) Option {
	return func(o *Opts) {
		o.Bucket = bucket
	}
}

// WithEndpoint sets the S3-compatible endpoint host.
func WithEndpoint(endpoint string) Option {
	return func(o *Opts) {
		o.Endpoint = endpoint
	}
}

// WithCredentials sets the S3 access credentials.
func WithCredentials(accessKey, secretKey string) Option {
	return func(o *Opts) {
		o.AccessKey = accessKey
		o.SecretKey = secretKey
	}
}
