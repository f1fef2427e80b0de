// ABOUTME: HTTP client for dispatching chat input to the external workflow engine.
// ABOUTME: Fire-and-forget: the call only confirms the engine accepted the request.

package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DispatchRequest is the payload sent to the workflow engine's webhook.
type DispatchRequest struct {
	ChatInput string `json:"chatInput"`
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Client dispatches chat input to the external workflow engine over HTTP.
// The engine answers out of band via the receive webhook, so Dispatch never
// waits for the AI reply; its deadline covers acceptance only.
type Client struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a workflow client for the given webhook URL.
// timeout bounds how long a dispatch may take to be acknowledged.
func NewClient(webhookURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "workflow"),
	}
}

// Dispatch sends the chat input to the workflow engine. A nil return means
// the engine accepted the request, nothing more; the eventual answer arrives
// on a separate inbound call. Any transport or non-2xx failure is returned
// to the caller so the pending correlation can be rolled back.
func (c *Client) Dispatch(ctx context.Context, req *DispatchRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding dispatch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating dispatch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("dispatching to workflow engine: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused; the body content is irrelevant
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("workflow engine returned status %d", resp.StatusCode)
	}

	c.logger.Debug("dispatch accepted",
		"session_id", req.SessionID,
		"user_id", req.UserID,
	)
	return nil
}
