// Package store provides session persistence backends for excursbot.
//
// This file implements a simple in-memory store used by tests and the
// memory driver.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ingria/excursbot/internal/models"
)

// InMemoryStore keeps sessions and tracking data in process memory.
// Sessions round-trip through JSON so the memory backend observes the
// same serialization behavior as the durable ones.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	started  map[int64]time.Time
	finished map[int64]time.Time
	feedback map[string]string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string][]byte),
		started:  make(map[int64]time.Time),
		finished: make(map[int64]time.Time),
		feedback: make(map[string]string),
	}
}

// GetSession fetches and decodes the stored session at key.
func (s *InMemoryStore) GetSession(ctx context.Context, key string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("corrupt session at %s: %w", key, err)
	}
	return &session, nil
}

// SaveSession stores the session at key; an empty session deletes the
// record instead.
func (s *InMemoryStore) SaveSession(ctx context.Context, key string, session *models.Session) error {
	if session.IsEmpty() {
		return s.DeleteSession(ctx, key)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = data
	return nil
}

// DeleteSession removes the record at key. Absence is not an error.
func (s *InMemoryStore) DeleteSession(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

// Has reports whether a record exists at key. Test helper.
func (s *InMemoryStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[key]
	return ok
}

// TrackStarted records first contact, keeping the first timestamp.
func (s *InMemoryStore) TrackStarted(ctx context.Context, u TrackedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.started[u.ID]; !ok {
		s.started[u.ID] = time.Now().UTC()
	}
	return nil
}

// TrackFinished records completion, keeping the first timestamp.
func (s *InMemoryStore) TrackFinished(ctx context.Context, u TrackedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.finished[u.ID]; !ok {
		s.finished[u.ID] = time.Now().UTC()
	}
	return nil
}

// ArchiveFeedback keeps one verbatim feedback message per (user, message).
func (s *InMemoryStore) ArchiveFeedback(ctx context.Context, userID, messageID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback[fmt.Sprintf("%d/%d", userID, messageID)] = text
	return nil
}

// Stats reports started/finished totals and finishes per day over the
// stats window.
func (s *InMemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &Stats{TotalStarted: len(s.started), TotalFinished: len(s.finished)}
	since := time.Now().UTC().Add(-statsWindow)
	perDay := make(map[string]int)
	for _, at := range s.finished {
		if at.Before(since) {
			continue
		}
		perDay[at.Format("2006-01-02")]++
	}
	for day, count := range perDay {
		stats.FinishedPerDay = append(stats.FinishedPerDay, DayCount{Day: day, Count: count})
	}
	return stats, nil
}
