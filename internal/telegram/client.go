// Package telegram implements the Telegram Bot API binding for excursbot.
//
// The Bot API surface this bot needs is small, so the client speaks HTTP
// and JSON directly instead of pulling in a bot framework.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the production Telegram Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Opts holds configuration options for the Telegram client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Option defines a configuration option for the Telegram client.
type Option func(*Opts)

// WithBaseURL overrides the Bot API endpoint (used by tests and proxies).
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithHTTPClient overrides the HTTP client used for Bot API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// Client is a minimal Telegram Bot API client.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient creates a Telegram client for the given bot token, applying
// any provided options for customization.
func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not set")
	}
	cfg := Opts{BaseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		http:    cfg.HTTPClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   token,
	}, nil
}

// call POSTs a JSON payload to a Bot API method and decodes the response
// into out (which may be nil when only the ok flag matters).
func (c *Client) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		out = &okResponse{}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if ok, hasOK := okFlag(out); hasOK && !ok {
		return fmt.Errorf("telegram %s: ok=false", method)
	}
	return nil
}

// okFlag extracts the ok field from decoded Bot API responses.
func okFlag(out interface{}) (bool, bool) {
	switch v := out.(type) {
	case *okResponse:
		return v.OK, true
	case *getMeResponse:
		return v.OK, true
	case *getUpdatesResponse:
		return v.OK, true
	default:
		return false, false
	}
}

// GetMe fetches the bot's own account, used as a startup credential check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out getMeResponse
	if err := c.call(ctx, "getMe", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// GetUpdates long-polls for updates past the given offset and returns the
// updates together with the next offset to poll from.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	payload := struct {
		Offset  int64 `json:"offset,omitempty"`
		Timeout int   `json:"timeout"`
	}{Offset: offset, Timeout: secs}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var out getUpdatesResponse
	if err := c.call(reqCtx, "getUpdates", payload, &out); err != nil {
		return nil, offset, err
	}
	next := offset
	for _, u := range out.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out.Result, next, nil
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) error {
	return c.call(ctx, "sendMessage", p, nil)
}

// SendPhoto sends a photo by file id.
func (c *Client) SendPhoto(ctx context.Context, p SendPhotoParams) error {
	return c.call(ctx, "sendPhoto", p, nil)
}

// SendLocation sends a map location.
func (c *Client) SendLocation(ctx context.Context, p SendLocationParams) error {
	return c.call(ctx, "sendLocation", p, nil)
}

// SendDocument sends a document by file id.
func (c *Client) SendDocument(ctx context.Context, p SendDocumentParams) error {
	return c.call(ctx, "sendDocument", p, nil)
}
