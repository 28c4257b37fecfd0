// Package session wraps one request handling cycle with session
// load/persist semantics, making the otherwise-stateless update handler
// behave like a durable per-user state machine.
//
// The middleware owns the single in-memory working copy for the duration
// of one request and is the only writer back to durable storage. There is
// no locking or versioning across concurrent updates for the same key:
// the later save wins.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ingria/excursbot/internal/models"
	"github.com/ingria/excursbot/internal/store"
	"github.com/ingria/excursbot/internal/telegram"
)

// Key derives the deterministic conversation key for a (user, chat) pair.
// Two updates in the same conversation observe the same record; different
// conversations never collide.
func Key(userID, chatID int64) string {
	return fmt.Sprintf("session/%d:%d", userID, chatID)
}

// KeyFor derives the conversation key from an update, or "" when the
// conversation identity cannot be established.
func KeyFor(upd telegram.Update) string {
	if upd.Message == nil || upd.Message.From == nil || upd.Message.Chat == nil {
		return ""
	}
	return Key(upd.Message.From.ID, upd.Message.Chat.ID)
}

// Handler processes one update with its session. The session is nil when
// the update carries no conversation identity.
type Handler func(ctx context.Context, sess *models.Session, upd telegram.Update) error

// Middleware is the load → mutate → persist-or-clear pipeline around a
// handler.
type Middleware struct {
	store   store.Store
	initial func() *models.Session
}

// NewMiddleware creates a middleware over the given store with the given
// initial-value factory for first contact.
func NewMiddleware(st store.Store, initial func() *models.Session) *Middleware {
	if initial == nil {
		initial = models.NewSession
	}
	return &Middleware{store: st, initial: initial}
}

// Handle runs one request cycle. If the conversation identity cannot be
// derived, it short-circuits straight to the handler with no session and
// performs no persistence. A transient load failure declines to process
// the update rather than resetting the user's progress. The persistence
// attempt after the handler is fire-and-forget: failures are logged, not
// retried, and not surfaced.
func (m *Middleware) Handle(ctx context.Context, upd telegram.Update, h Handler) error {
	key := KeyFor(upd)
	if key == "" {
		slog.Debug("session.Middleware: no conversation identity, skipping session")
		return h(ctx, nil, upd)
	}

	sess, err := m.store.GetSession(ctx, key)
	if err != nil {
		slog.Error("session.Middleware: session load failed, declining to process", "error", err, "key", key)
		return fmt.Errorf("failed to load session %s: %w", key, err)
	}
	if sess == nil {
		slog.Debug("session.Middleware: fresh session", "key", key)
		sess = m.initial()
	}

	herr := h(ctx, sess, upd)

	// Persist on every exit path, including handler failure; an empty
	// session clears the stored record instead.
	if err := m.store.SaveSession(ctx, key, sess); err != nil {
		slog.Error("session.Middleware: session save failed", "error", err, "key", key)
	}
	return herr
}
