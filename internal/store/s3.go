// Package store provides session persistence backends for excursbot.
//
// This file implements the S3-compatible object store backend used in
// production (Yandex Object Storage). One conversation maps to one JSON
// object; absence of the object is semantically "fresh session".
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ingria/excursbot/internal/models"
)

// DefaultS3Endpoint is the Yandex Object Storage endpoint the original
// deployment targets.
const DefaultS3Endpoint = "storage.yandexcloud.net"

// noSuchKeyCode is the S3 error code for a missing object.
const noSuchKeyCode = "NoSuchKey"

// S3Store persists sessions as JSON objects in an S3-compatible bucket.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store creates an object-store backend based on provided options.
// The bucket name is required; credentials fall back to the standard AWS
// environment variables when not set explicitly.
func NewS3Store(opts ...Option) (*S3Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("S3Store.NewS3Store: creating object store", "bucket_set", cfg.Bucket != "", "endpoint", cfg.Endpoint)

	if cfg.Bucket == "" {
		slog.Error("S3Store bucket not set")
		return nil, fmt.Errorf("session bucket not set")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultS3Endpoint
	}

	var creds *credentials.Credentials
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewEnvAWS()
	}

	client, err := minio.New(endpoint, &minio.Options{Creds: creds, Secure: true})
	if err != nil {
		slog.Error("S3Store failed to create client", "error", err, "endpoint", endpoint)
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// GetSession fetches and decodes the session object at key.
func (s *S3Store) GetSession(ctx context.Context, key string) (*models.Session, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.classifyGetError(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.classifyGetError(key, err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		slog.Error("S3Store GetSession: corrupt session object", "error", err, "key", key)
		return nil, fmt.Errorf("corrupt session object at %s: %w", key, err)
	}
	slog.Debug("S3Store GetSession found", "key", key, "stage", session.Stage)
	return &session, nil
}

// classifyGetError maps a missing object to not-found and everything else
// to a transient retrieval error.
func (s *S3Store) classifyGetError(key string, err error) error {
	if resp := minio.ToErrorResponse(err); resp.Code == noSuchKeyCode {
		slog.Debug("S3Store GetSession not found", "key", key)
		return nil
	}
	slog.Error("S3Store GetSession failed", "error", err, "key", key)
	return fmt.Errorf("failed to get session %s: %w", key, err)
}

// SaveSession serializes and overwrites the session object at key. An
// empty session deletes the stored record instead, so empty records never
// accumulate in the bucket.
func (s *S3Store) SaveSession(ctx context.Context, key string, session *models.Session) error {
	if session.IsEmpty() {
		slog.Debug("S3Store SaveSession: empty session, clearing", "key", key)
		return s.DeleteSession(ctx, key)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", key, err)
	}
	if err := s.put(ctx, key, data); err != nil {
		slog.Error("S3Store SaveSession failed", "error", err, "key", key)
		return fmt.Errorf("failed to save session %s: %w", key, err)
	}
	slog.Debug("S3Store SaveSession succeeded", "key", key, "stage", session.Stage)
	return nil
}

// DeleteSession removes the session object at key. A missing object is
// not an error.
func (s *S3Store) DeleteSession(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != noSuchKeyCode {
		slog.Error("S3Store DeleteSession failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete session %s: %w", key, err)
	}
	return nil
}

// TrackStarted records the user profile at users/started/{id}.json,
// create-only: a repeat /start keeps the original snapshot.
func (s *S3Store) TrackStarted(ctx context.Context, u TrackedUser) error {
	return s.putUserSnapshot(ctx, fmt.Sprintf("users/started/%d.json", u.ID), u)
}

// TrackFinished records the user profile at users/finished/{id}.json,
// create-only: only the first completion counts.
func (s *S3Store) TrackFinished(ctx context.Context, u TrackedUser) error {
	return s.putUserSnapshot(ctx, fmt.Sprintf("users/finished/%d.json", u.ID), u)
}

// ArchiveFeedback stores one verbatim feedback message per object.
func (s *S3Store) ArchiveFeedback(ctx context.Context, userID, messageID int64, text string) error {
	key := fmt.Sprintf("users/feedback/%d/%d.json", userID, messageID)
	data, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}
	if err := s.put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to archive feedback %s: %w", key, err)
	}
	slog.Debug("S3Store ArchiveFeedback succeeded", "key", key)
	return nil
}

func (s *S3Store) putUserSnapshot(ctx context.Context, key string, u TrackedUser) error {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		slog.Debug("S3Store user snapshot already exists", "key", key)
		return nil
	}
	if minio.ToErrorResponse(err).Code != noSuchKeyCode {
		return fmt.Errorf("failed to check user snapshot %s: %w", key, err)
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode user snapshot: %w", err)
	}
	if err := s.put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write user snapshot %s: %w", key, err)
	}
	slog.Info("S3Store user snapshot created", "key", key)
	return nil
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}
