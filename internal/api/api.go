// Package api provides the HTTP entry point for excursbot.
//
// It exposes the Telegram webhook endpoint and a health check. The webhook
// always answers 200 with an empty body regardless of internal outcome:
// the transport's own delivery retries are the only error-recovery channel
// at this boundary.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ingria/excursbot/internal/engine"
	"github.com/ingria/excursbot/internal/session"
	"github.com/ingria/excursbot/internal/telegram"
	"github.com/ingria/excursbot/internal/util"
)

// DefaultAddr is the default listen address for the webhook server.
const DefaultAddr = ":8080"

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server dispatches inbound Telegram updates through the session
// middleware into the stage engine.
type Server struct {
	addr       string
	router     chi.Router
	middleware *session.Middleware
	engine     *engine.Engine
}

// NewServer wires the webhook routes over the given middleware and engine.
func NewServer(mw *session.Middleware, eng *engine.Engine, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{addr: cfg.Addr, middleware: mw, engine: eng}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Post("/webhook", s.handleWebhook)
	r.Get("/health", s.handleHealth)
	s.router = r
	return s
}

// Router exposes the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves the webhook endpoint until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handleWebhook decodes one Telegram update and runs the pipeline. The
// response is always 200/empty: the user is never shown internal error
// text, and a failed turn at worst appears to have no effect.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	reqID := util.GenerateRequestID()
	defer w.WriteHeader(http.StatusOK)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("webhook: failed to read request body", "error", err, "request_id", reqID)
		return
	}
	var upd telegram.Update
	if err := json.Unmarshal(body, &upd); err != nil {
		slog.Error("webhook: failed to decode update", "error", err, "request_id", reqID)
		return
	}
	slog.Debug("webhook: update received", "update_id", upd.UpdateID, "request_id", reqID)

	if err := s.Dispatch(r.Context(), upd); err != nil {
		slog.Error("webhook: update processing failed", "error", err, "update_id", upd.UpdateID, "request_id", reqID)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Dispatch runs one update through the session middleware and the engine.
func (s *Server) Dispatch(ctx context.Context, upd telegram.Update) error {
	return s.middleware.Handle(ctx, upd, s.engine.Handle)
}
