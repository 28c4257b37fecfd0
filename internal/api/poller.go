package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/ingria/excursbot/internal/telegram"
)

// Polling configuration constants
const (
	// DefaultPollTimeout is the getUpdates long-poll timeout.
	DefaultPollTimeout = 30 * time.Second
	// pollRetryDelay is how long to back off after a failed poll.
	pollRetryDelay = time.Second
)

// Poller runs the same update pipeline as the webhook, driven by
// getUpdates long polling. Used for local runs and deployments without a
// public HTTPS endpoint.
type Poller struct {
	client  *telegram.Client
	server  *Server
	timeout time.Duration
}

// NewPoller creates a long-polling runner over the given client and
// dispatch pipeline.
func NewPoller(client *telegram.Client, server *Server) *Poller {
	return &Poller{client: client, server: server, timeout: DefaultPollTimeout}
}

// Run polls for updates until ctx is cancelled. Poll failures are logged
// and retried after a short delay; updates within one poll batch are
// processed strictly in order.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("starting long-polling runner", "timeout", p.timeout)
	var offset int64
	for {
		if ctx.Err() != nil {
			slog.Info("long-polling runner stopped")
			return nil
		}
		updates, next, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("getUpdates failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		offset = next
		for _, upd := range updates {
			if err := p.server.Dispatch(ctx, upd); err != nil {
				slog.Error("poller: update processing failed", "error", err, "update_id", upd.UpdateID)
			}
		}
	}
}
