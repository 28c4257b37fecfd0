// Package engine implements the conversation state machine: given the
// current session and an inbound reply it decides the validation outcome,
// side effects, outbound messages and the next stage index.
//
// The engine only ever sees the in-memory session handed to it by the
// session middleware; it never talks to session storage for the working
// copy. The optional store capabilities (user tracking, feedback archive,
// stats) are best-effort side channels.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ingria/excursbot/internal/models"
	"github.com/ingria/excursbot/internal/store"
	"github.com/ingria/excursbot/internal/telegram"
	"github.com/ingria/excursbot/internal/util"
	"github.com/ingria/excursbot/internal/validate"
)

// SkipMax bounds total skips across the whole conversation. It is never
// reset.
const SkipMax = 5

// skipKeyword is the literal reply that spends a skip token on a gated
// stage, matched case-insensitively as a substring.
const skipKeyword = "пропустить"

// skipButtonLabel is the one-shot reply-keyboard button offered with the
// try-again prompt.
const skipButtonLabel = "Пропустить"

// feedbackContinue is the implicit continuation condition on the feedback
// stage: replies matching it are flow control, not feedback.
var feedbackContinue = models.Condition{
	Type:   models.ConditionContainsAny,
	Values: []string{"идем", "дальше"},
}

// Engine drives the scripted stage progression for one conversation at a
// time.
type Engine struct {
	content  *models.Content
	renderer *telegram.Renderer
	store    store.Store

	// randIndex picks the congratulation variant; injectable for tests.
	randIndex func(n int) int
}

// New creates a stage engine over an immutable content script.
func New(c *models.Content, r *telegram.Renderer, st store.Store) *Engine {
	return &Engine{content: c, renderer: r, store: st, randIndex: util.RandomIndex}
}

// Handle routes one inbound update. Updates without a session or without
// a usable text payload (missing, empty or whitespace-only) are a no-op:
// no send, no mutation.
func (e *Engine) Handle(ctx context.Context, sess *models.Session, upd telegram.Update) error {
	if sess == nil || upd.Message == nil {
		slog.Debug("Engine.Handle: nothing to process")
		return nil
	}
	text := upd.Message.Text

	fields := strings.Fields(text)
	if len(fields) == 0 {
		slog.Debug("Engine.Handle: no usable text payload")
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "/start":
		return e.Start(ctx, sess, upd)
	case "stage", "/stage":
		return e.handleStageCommand(ctx, sess, upd, fields[1:])
	case "/stats":
		return e.handleStatsCommand(ctx, upd)
	}
	return e.Step(ctx, sess, upd)
}

// Start handles first contact: stage 0's payload is delivered immediately
// and the session advances to its successor. Stage 0 carries no gate by
// convention of the content; the engine does not re-validate it on entry.
func (e *Engine) Start(ctx context.Context, sess *models.Session, upd telegram.Update) error {
	msg := upd.Message
	stage := e.content.Stages[0]
	slog.Info("Engine.Start: first contact", "user_id", msg.From.ID, "username", msg.From.Username)

	e.renderer.Send(ctx, msg.Chat.ID, stage.Messages, stage.Markup)
	sess.Stage = e.content.ClampStage(1)

	e.trackStarted(ctx, msg.From)
	return nil
}

// Step processes a free-text reply while the session awaits its current
// stage.
func (e *Engine) Step(ctx context.Context, sess *models.Session, upd telegram.Update) error {
	msg := upd.Message
	text := msg.Text

	// Defensive: a stored index past the end of the script is treated as
	// the terminal stage rather than crashing.
	idx := e.content.ClampStage(sess.Stage)
	stage := e.content.Stages[idx]
	slog.Info("Engine.Step: processing reply",
		"user_id", msg.From.ID, "username", msg.From.Username, "stage", stage.Name, "message", text)

	if stage.Condition != nil {
		sess.TryCounter++
		accepted, err := validate.Validate(text, *stage.Condition)
		if err != nil {
			// Contract violation in the content script; count the reply
			// as rejected instead of silently letting it pass.
			slog.Error("Engine.Step: condition validation failed", "error", err, "stage", stage.Name)
			accepted = false
		}
		skipRequested := strings.Contains(strings.ToLower(text), skipKeyword)
		livesLeft := SkipMax - sess.SkipCounter

		switch {
		case accepted:
			e.renderer.SendText(ctx, msg.Chat.ID, e.randomCongrats(), nil)
		case skipRequested && livesLeft > 0:
			// Skipping passes the gate but consumes one skip token.
			sess.SkipCounter++
			e.renderer.SendText(ctx, msg.Chat.ID, e.randomCongrats(), nil)
		case livesLeft > 0:
			e.renderer.SendText(ctx, msg.Chat.ID,
				fmt.Sprintf("%s%d", e.content.TryAgainText, livesLeft), []string{skipButtonLabel})
			return nil
		default:
			// Skip budget exhausted: the user is left stalled here.
			e.renderer.SendText(ctx, msg.Chat.ID, e.content.WrongAnswerText, nil)
			return nil
		}
	}

	// The gate belongs to the current stage; its payload is delivered
	// once the gate is passed.
	e.renderer.Send(ctx, msg.Chat.ID, stage.Messages, stage.Markup)
	sess.Stage = e.content.ClampStage(idx + 1)

	if idx == e.content.LastStage() {
		e.trackFinished(ctx, msg.From)
	}

	if stage.Kind == models.StageKindFeedback {
		e.captureFeedback(ctx, sess, msg)
	}
	return nil
}

// captureFeedback appends the raw reply to the session's feedback list
// unless it matches the implicit continuation condition.
func (e *Engine) captureFeedback(ctx context.Context, sess *models.Session, msg *telegram.Message) {
	matches, err := validate.Validate(msg.Text, feedbackContinue)
	if err != nil || matches {
		return
	}
	sess.AddFeedback(msg.Text)
	if archiver, ok := e.store.(store.FeedbackArchiver); ok {
		if err := archiver.ArchiveFeedback(ctx, msg.From.ID, msg.MessageID, msg.Text); err != nil {
			slog.Error("Engine.captureFeedback: archive failed", "error", err, "user_id", msg.From.ID)
		}
	}
	slog.Info("Engine.captureFeedback: feedback captured", "user_id", msg.From.ID)
}

// handleStageCommand is the administrative override: it reports the
// current stage, or sets it directly, bypassing all gates. The stored
// index is still clamped into the script's range.
func (e *Engine) handleStageCommand(ctx context.Context, sess *models.Session, upd telegram.Update, args []string) error {
	msg := upd.Message
	if len(args) == 0 {
		idx := e.content.ClampStage(sess.Stage)
		e.renderer.SendText(ctx, msg.Chat.ID,
			fmt.Sprintf("stage %d (%s)", sess.Stage, e.content.Stages[idx].Name), nil)
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		e.renderer.SendText(ctx, msg.Chat.ID, "usage: stage <n>", nil)
		return nil
	}
	sess.Stage = e.content.ClampStage(n)
	slog.Info("Engine.handleStageCommand: stage override",
		"user_id", msg.From.ID, "requested", n, "stage", sess.Stage)
	e.renderer.SendText(ctx, msg.Chat.ID,
		fmt.Sprintf("stage set to %d (%s)", sess.Stage, e.content.Stages[sess.Stage].Name), nil)
	return nil
}

// handleStatsCommand answers with excursion progress totals when the
// configured store backend supports stats queries.
func (e *Engine) handleStatsCommand(ctx context.Context, upd telegram.Update) error {
	msg := upd.Message
	provider, ok := e.store.(store.StatsProvider)
	if !ok {
		e.renderer.SendText(ctx, msg.Chat.ID, "stats are not available for this storage backend", nil)
		return nil
	}
	stats, err := provider.Stats(ctx)
	if err != nil {
		slog.Error("Engine.handleStatsCommand: stats query failed", "error", err)
		e.renderer.SendText(ctx, msg.Chat.ID, "stats are temporarily unavailable", nil)
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Пользователей всего: %d\n", stats.TotalStarted)
	fmt.Fprintf(&b, "Пользователей закончили квест: %d\n", stats.TotalFinished)
	b.WriteString("За последние 7 дней:\n")
	for _, dc := range stats.FinishedPerDay {
		fmt.Fprintf(&b, "%s %d\n", dc.Day, dc.Count)
	}
	e.renderer.SendText(ctx, msg.Chat.ID, b.String(), nil)
	return nil
}

// randomCongrats picks one congratulation string uniformly at random.
func (e *Engine) randomCongrats() string {
	return e.content.Success[e.randIndex(len(e.content.Success))]
}

func (e *Engine) trackStarted(ctx context.Context, from *telegram.User) {
	tracker, ok := e.store.(store.UserTracker)
	if !ok {
		return
	}
	if err := tracker.TrackStarted(ctx, trackedUser(from)); err != nil {
		slog.Error("Engine.trackStarted: tracking failed", "error", err, "user_id", from.ID)
	}
}

func (e *Engine) trackFinished(ctx context.Context, from *telegram.User) {
	tracker, ok := e.store.(store.UserTracker)
	if !ok {
		return
	}
	if err := tracker.TrackFinished(ctx, trackedUser(from)); err != nil {
		slog.Error("Engine.trackFinished: tracking failed", "error", err, "user_id", from.ID)
	}
	slog.Info("Engine.trackFinished: user reached terminal stage", "user_id", from.ID)
}

func trackedUser(from *telegram.User) store.TrackedUser {
	return store.TrackedUser{
		ID:        from.ID,
		IsBot:     from.IsBot,
		FirstName: from.FirstName,
		LastName:  from.LastName,
		Username:  from.Username,
	}
}
