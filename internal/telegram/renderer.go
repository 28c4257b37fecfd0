package telegram

import (
	"context"
	"log/slog"

	"github.com/ingria/excursbot/internal/models"
)

// Sender is the transport surface the renderer needs. *Client implements
// it; tests substitute a recording fake.
type Sender interface {
	SendMessage(ctx context.Context, p SendMessageParams) error
	SendPhoto(ctx context.Context, p SendPhotoParams) error
	SendLocation(ctx context.Context, p SendLocationParams) error
	SendDocument(ctx context.Context, p SendDocumentParams) error
}

// Renderer turns abstract message descriptors into transport send calls.
// Sends are strictly sequential, each awaited before the next, so the user
// always observes script order. Send failures are logged and the remaining
// messages are still sent, to avoid leaving a stage half-delivered
// silently.
type Renderer struct {
	sender Sender
}

// NewRenderer creates a renderer over the given sender.
func NewRenderer(sender Sender) *Renderer {
	return &Renderer{sender: sender}
}

// Send renders an ordered list of message descriptors to one chat.
// stageMarkup supplies reply-keyboard labels for descriptors that carry
// none of their own; an empty markup clears any existing keyboard.
// Unknown descriptor types are logged and skipped, not fatal.
func (r *Renderer) Send(ctx context.Context, chatID int64, messages []models.Message, stageMarkup []string) {
	for _, msg := range messages {
		markup := msg.Markup
		if len(markup) == 0 {
			markup = stageMarkup
		}
		var err error
		switch models.MessageKind(msg.Kind) {
		case models.MessageText:
			err = r.sender.SendMessage(ctx, SendMessageParams{
				ChatID:              chatID,
				Text:                EscapeMarkdownV2(msg.Text),
				ParseMode:           "MarkdownV2",
				DisableNotification: true,
				ReplyMarkup:         Keyboard(markup),
			})
		case models.MessagePhoto:
			err = r.sender.SendPhoto(ctx, SendPhotoParams{
				ChatID:              chatID,
				Photo:               msg.FileID,
				Caption:             msg.Caption,
				DisableNotification: true,
				ReplyMarkup:         Keyboard(markup),
			})
		case models.MessageLocation:
			err = r.sender.SendLocation(ctx, SendLocationParams{
				ChatID:              chatID,
				Latitude:            msg.Lat,
				Longitude:           msg.Lng,
				DisableNotification: true,
				ReplyMarkup:         Keyboard(markup),
			})
		case models.MessageDocument:
			err = r.sender.SendDocument(ctx, SendDocumentParams{
				ChatID:      chatID,
				Document:    msg.FileID,
				Caption:     msg.Caption,
				ReplyMarkup: Keyboard(markup),
			})
		default:
			slog.Error("Renderer.Send: unknown message type, skipping", "type", msg.Kind, "chat_id", chatID)
			continue
		}
		if err != nil {
			slog.Error("Renderer.Send: transport send failed", "type", msg.Kind, "chat_id", chatID, "error", err)
		}
	}
}

// SendText renders a single plain-text message with optional keyboard
// labels. Used by the engine for prompts that are not part of a stage's
// message list (congratulations, try-again, admin replies).
func (r *Renderer) SendText(ctx context.Context, chatID int64, text string, markup []string) {
	msg := models.PlainText(text)
	msg.Markup = markup
	r.Send(ctx, chatID, []models.Message{msg}, nil)
}
