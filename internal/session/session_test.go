package session

import (
	"context"
	"errors"
	"testing"

	"github.com/ingria/excursbot/internal/models"
	"github.com/ingria/excursbot/internal/store"
	"github.com/ingria/excursbot/internal/telegram"
)

func testUpdate(userID, chatID int64) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		MessageID: 1,
		Text:      "привет",
		Chat:      &telegram.Chat{ID: chatID},
		From:      &telegram.User{ID: userID},
	}}
}

func TestKey(t *testing.T) {
	if got := Key(7, 5); got != "session/7:5" {
		t.Errorf("unexpected key: %q", got)
	}
	if Key(7, 5) == Key(5, 7) {
		t.Error("distinct conversations must not collide")
	}
}

func TestKeyFor_MissingIdentity(t *testing.T) {
	cases := []struct {
		name string
		upd  telegram.Update
	}{
		{"no message", telegram.Update{}},
		{"no sender", telegram.Update{Message: &telegram.Message{Chat: &telegram.Chat{ID: 1}}}},
		{"no chat", telegram.Update{Message: &telegram.Message{From: &telegram.User{ID: 1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KeyFor(tc.upd); got != "" {
				t.Errorf("expected empty key, got %q", got)
			}
		})
	}
}

func TestMiddleware_FreshSessionFromFactory(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewMiddleware(st, func() *models.Session {
		return &models.Session{StartedAt: "2026-08-28T00:00:00Z"}
	})

	var seen *models.Session
	err := m.Handle(context.Background(), testUpdate(7, 5), func(ctx context.Context, sess *models.Session, upd telegram.Update) error {
		seen = sess
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == nil || seen.StartedAt != "2026-08-28T00:00:00Z" {
		t.Errorf("handler did not receive the factory session: %+v", seen)
	}
}

func TestMiddleware_PersistsMutation(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewMiddleware(st, nil)
	key := Key(7, 5)

	err := m.Handle(context.Background(), testUpdate(7, 5), func(ctx context.Context, sess *models.Session, upd telegram.Update) error {
		sess.Stage = 3
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.Has(key) {
		t.Fatal("mutated session was not persisted")
	}

	// The next cycle observes the persisted value.
	err = m.Handle(context.Background(), testUpdate(7, 5), func(ctx context.Context, sess *models.Session, upd telegram.Update) error {
		if sess.Stage != 3 {
			t.Errorf("expected stage 3 from storage, got %d", sess.Stage)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMiddleware_ZeroedSessionDeletesRecord(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewMiddleware(st, nil)
	key := Key(7, 5)
	if err := st.SaveSession(context.Background(), key, &models.Session{Stage: 2}); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}

	err := m.Handle(context.Background(), testUpdate(7, 5), func(ctx context.Context, sess *models.Session, upd telegram.Update) error {
		*sess = models.Session{}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Has(key) {
		t.Error("zeroed session must clear the stored record")
	}
}

func TestMiddleware_NoIdentitySkipsPersistence(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewMiddleware(st, nil)

	var seen *models.Session = &models.Session{}
	err := m.Handle(context.Background(), telegram.Update{}, func(ctx context.Context, sess *models.Session, upd telegram.Update) error {
		seen = sess
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != nil {
		t.Errorf("expected nil session for identity-less update, got %+v", seen)
	}
	if st.Has(Key(0, 0)) {
		t.Error("nothing must be persisted without a conversation identity")
	}
}

// failingStore simulates a storage outage.
type failingStore struct {
	getErr  error
	saveErr error
	inner   *store.InMemoryStore
}

func (f *failingStore) GetSession(ctx context.Context, key string) (*models.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.inner.GetSession(ctx, key)
}

func (f *failingStore) SaveSession(ctx context.Context, key string, sess *models.Session) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.inner.SaveSession(ctx, key, sess)
}

func (f *failingStore) DeleteSession(ctx context.Context, key string) error {
	return f.inner.DeleteSession(ctx, key)
}

func TestMiddleware_LoadFailureDeclinesToProcess(t *testing.T) {
	st := &failingStore{getErr: errors.New("connection refused"), inner: store.NewInMemoryStore()}
	m := NewMiddleware(st, nil)

	called := false
	err := m.Handle(context.Background(), testUpdate(7, 5), func(ctx context.Context, sess *models.Session, upd telegram.Update) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected load failure to surface")
	}
	if called {
		t.Error("handler must not run when the session cannot be loaded")
	}
}

func TestMiddleware_SaveFailureIsSwallowed(t *testing.T) {
	st := &failingStore{saveErr: errors.New("connection refused"), inner: store.NewInMemoryStore()}
	m := NewMiddleware(st, nil)

	err := m.Handle(context.Background(), testUpdate(7, 5), func(ctx context.Context, sess *models.Session, upd telegram.Update) error {
		sess.Stage = 1
		return nil
	})
	if err != nil {
		t.Errorf("save failures must not surface: %v", err)
	}
}

func TestMiddleware_HandlerErrorStillPersists(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewMiddleware(st, nil)
	key := Key(7, 5)
	handlerErr := errors.New("downstream failure")

	err := m.Handle(context.Background(), testUpdate(7, 5), func(ctx context.Context, sess *models.Session, upd telegram.Update) error {
		sess.Stage = 2
		return handlerErr
	})
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error to surface, got %v", err)
	}
	if !st.Has(key) {
		t.Error("session must be persisted even when the handler fails")
	}
}
