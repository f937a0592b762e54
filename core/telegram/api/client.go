package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/botcore/core/logger"
	"log/slog"
)

const defaultBaseURL = "https://api.telegram.org"

// Client executes typed requests against the Bot API. It is safe for
// concurrent use. Retry policy belongs to the caller; the client performs
// exactly one call per Do invocation (transient transport retries live in
// the shared http.Client transport).
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// Option adjusts client construction.
type Option func(*Client)

// WithBaseURL points the client at a non-default API host.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if strings.TrimSpace(base) != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient builds a client for the given bot token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 90 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// response is the wire envelope of every API call.
type response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Parameters  *struct {
		RetryAfter      int   `json:"retry_after,omitempty"`
		MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	} `json:"parameters,omitempty"`
}

// Do executes the request and decodes the successful result into out.
// Pass nil out to discard the result. Errors are *TransportError,
// *ProtocolError, or the context's error on cancellation.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	method := req.Method()

	payload, err := json.Marshal(req)
	if err != nil {
		return &TransportError{Method: method, Err: fmt.Errorf("encode request: %w", err)}
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Method: method, Err: fmt.Errorf("read body: %w", err)}
	}

	var envelope response
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &TransportError{Method: method, StatusCode: resp.StatusCode}
		}
		return &ProtocolError{
			Method:      method,
			Code:        ErrCodeDecode,
			Description: "malformed response body",
		}
	}

	if !envelope.OK {
		pe := &ProtocolError{
			Method:      method,
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		}
		if envelope.Parameters != nil {
			pe.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
			pe.MigrateToChatID = envelope.Parameters.MigrateToChatID
		}
		logger.TG.Debug("api call failed",
			slog.String("event", "api.call"),
			slog.String("method", method),
			slog.String("status", "fail"),
			slog.Int("err_code", pe.Code),
			slog.Duration("duration", logger.Took(start)),
		)
		return pe
	}

	if envelope.Result == nil {
		return &ProtocolError{
			Method:      method,
			Code:        ErrCodeDecode,
			Description: "ok response without result",
		}
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return &ProtocolError{
				Method:      method,
				Code:        ErrCodeDecode,
				Description: fmt.Sprintf("decode result: %v", err),
			}
		}
	}

	if logger.ShouldSampleDebug() {
		logger.TG.Debug("api call",
			slog.String("event", "api.call"),
			slog.String("method", method),
			slog.String("status", "ok"),
			slog.Duration("duration", logger.Took(start)),
		)
	}
	return nil
}

// Invoke executes req and returns the decoded result value.
func Invoke[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var out T
	err := c.Do(ctx, req, &out)
	return out, err
}

// GetUpdates long-polls for pending updates.
func (c *Client) GetUpdates(ctx context.Context, req GetUpdates) ([]Update, error) {
	return Invoke[[]Update](ctx, c, req)
}

// SendMessage posts a message and returns the created message.
func (c *Client) SendMessage(ctx context.Context, req SendMessage) (*Message, error) {
	return Invoke[*Message](ctx, c, req)
}

// AnswerCallbackQuery acknowledges a callback query.
func (c *Client) AnswerCallbackQuery(ctx context.Context, req AnswerCallbackQuery) error {
	return c.Do(ctx, req, nil)
}

// SetMyCommands publishes the command menu.
func (c *Client) SetMyCommands(ctx context.Context, req SetMyCommands) error {
	return c.Do(ctx, req, nil)
}

// DeleteWebhook clears a webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context, req DeleteWebhook) error {
	return c.Do(ctx, req, nil)
}

// GetMe returns the bot account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return Invoke[*User](ctx, c, GetMe{})
}
