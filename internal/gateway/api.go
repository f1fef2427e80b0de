// ABOUTME: HTTP API handlers for the ask, receive, history, and push-channel endpoints.
// ABOUTME: Bridges synchronous requests to the asynchronous workflow engine round trip.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/wisplabs/wisp-gateway/internal/connection"
	"github.com/wisplabs/wisp-gateway/internal/store"
	"github.com/wisplabs/wisp-gateway/internal/workflow"
)

// maxHistoryLimit caps the page size a history query may request.
const maxHistoryLimit = 100

// AskRequest is the JSON request body for POST /ask.
type AskRequest struct {
	ChatInput string `json:"chatInput"`
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// ReceiveRequest is the JSON request body for POST /receive, the callback
// the workflow engine delivers when an answer is ready. The engine defines
// this shape; only the fields below are required.
type ReceiveRequest struct {
	WebhookBody WebhookBody     `json:"webhookBody"`
	AgentOutput AgentOutput     `json:"agentOutput"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// WebhookBody carries the recipient identity the engine echoes back.
type WebhookBody struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
}

// AgentOutput carries the generated answer and optional tool-call details.
type AgentOutput struct {
	Output     string `json:"output"`
	ToolName   string `json:"toolName,omitempty"`
	ToolArgs   string `json:"toolArgs,omitempty"`
	ToolOutput string `json:"toolOutput,omitempty"`
}

// PushMessage is the payload delivered over a user's live connection. It
// carries the session identity so the client can append the text to the
// correct local conversation thread.
type PushMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Output    string `json:"output"`
}

// MessageResponse is the JSON shape of one message in history output.
type MessageResponse struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolName   string `json:"toolName,omitempty"`
	ToolArgs   string `json:"toolArgs,omitempty"`
	ToolOutput string `json:"toolOutput,omitempty"`
	Metadata   string `json:"metadata,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// SessionResponse is the JSON shape of one session in history output.
type SessionResponse struct {
	SessionID string            `json:"sessionId"`
	UserID    string            `json:"userId,omitempty"`
	CreatedAt string            `json:"createdAt"`
	UpdatedAt string            `json:"updatedAt"`
	Messages  []MessageResponse `json:"messages"`
}

// PaginationResponse describes the page window of a history response.
type PaginationResponse struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// HistoryResponse is the JSON response for GET /chat/history.
type HistoryResponse struct {
	Success    bool               `json:"success"`
	Data       []SessionResponse  `json:"data"`
	Pagination PaginationResponse `json:"pagination"`
}

// handleAsk handles POST /ask requests.
//
// Responsibilities:
//  1. Parse and validate the JSON body - chatInput is required
//  2. Generate a session ID when the caller did not supply one
//  3. Persist the human turn (best-effort - a lost write is less harmful
//     than blocking the conversation)
//  4. Register a pending correlation keyed by user, or session when anonymous
//  5. Dispatch to the workflow engine and return immediately - the AI reply
//     arrives later on /receive, so request latency never depends on
//     workflow latency
func (g *Gateway) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		g.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.ChatInput) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "chatInput is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = store.NewSessionID()
	}

	// Best-effort: losing the human turn must not block dispatch
	humanTurn := &store.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      store.RoleHuman,
		Content:   req.ChatInput,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.store.AppendMessage(r.Context(), humanTurn, req.UserID); err != nil {
		g.logger.Error("failed to persist human turn",
			"error", err,
			"session_id", sessionID,
		)
	}

	// The correlation key is the only thread tying the eventual callback
	// back to a recipient.
	key := req.UserID
	if key == "" {
		key = sessionID
	}
	g.tracker.Track(key, g.config.Correlation.TTL)

	dispatchCtx, cancel := context.WithTimeout(r.Context(), g.config.Workflow.DispatchTimeout)
	defer cancel()

	err := g.workflow.Dispatch(dispatchCtx, &workflow.DispatchRequest{
		ChatInput: req.ChatInput,
		UserID:    req.UserID,
		SessionID: sessionID,
	})
	if err != nil {
		// Roll back so no phantom pending entry outlives the failure
		g.tracker.Cancel(key)
		g.logger.Error("workflow dispatch failed",
			"error", err,
			"session_id", sessionID,
		)
		g.sendJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	g.logger.Debug("dispatch accepted",
		"session_id", sessionID,
		"correlation_key", key,
	)
	g.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleReceive handles POST /receive, the workflow engine's asynchronous
// callback. The recipient is resolved from the callback payload, never from
// any original request context.
//
// The engine delivers at-least-once, so a duplicate or late callback is an
// expected outcome: the tracker absorbs it and the response is still a
// success. Delivery is attempted by user identity regardless of correlation
// state; the correlation only gates internal bookkeeping.
func (g *Gateway) handleReceive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ReceiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "userId is required")
		return
	}

	userID := req.WebhookBody.UserID
	if userID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if strings.TrimSpace(req.AgentOutput.Output) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "output is required")
		return
	}

	matched := g.tracker.Resolve(userID)
	if !matched {
		if g.delivered.Peek(userID) {
			// Retry of a callback whose answer was already persisted and
			// pushed; absorb it quietly
			g.logger.Debug("duplicate callback absorbed", "user_id", userID)
			g.writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
		g.logger.Debug("callback without pending correlation",
			"user_id", userID,
		)
	}

	sessionID := req.WebhookBody.SessionID
	if sessionID == "" {
		// Engines that echo only the recipient key get a conversation
		// keyed by that identity.
		sessionID = userID
	}
	owner := ""
	if store.IsUserKey(userID) {
		owner = userID
	}

	// The AI turn is the system of record for what the workflow produced;
	// it is persisted even when the requester is long gone.
	aiTurn := &store.ChatMessage{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Role:       store.RoleAI,
		Content:    req.AgentOutput.Output,
		ToolName:   req.AgentOutput.ToolName,
		ToolArgs:   req.AgentOutput.ToolArgs,
		ToolOutput: req.AgentOutput.ToolOutput,
		Metadata:   string(req.Metadata),
		CreatedAt:  time.Now().UTC(),
	}
	if err := g.store.AppendMessage(r.Context(), aiTurn, owner); err != nil {
		if matched {
			// Put the correlation back so the engine's retry of this
			// failed callback is not absorbed as a duplicate
			g.tracker.Track(userID, g.config.Correlation.TTL)
		}
		g.logger.Error("failed to persist AI turn",
			"error", err,
			"session_id", sessionID,
		)
		g.sendJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Only a fully persisted answer counts as handled; a retry after a
	// storage failure must run the whole path again
	if matched {
		g.delivered.Track(userID, g.config.Correlation.TTL)
	}

	payload, err := json.Marshal(PushMessage{
		Type:      "ai-response",
		SessionID: sessionID,
		Output:    req.AgentOutput.Output,
	})
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// A disconnected recipient is an expected, non-exceptional outcome
	if g.registry.Send(r.Context(), userID, payload) == connection.NotConnected {
		g.writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "User not connected",
		})
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleChatHistory handles GET /chat/history requests with pagination.
func (g *Gateway) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ownerKey := r.URL.Query().Get("userId")
	if ownerKey == "" {
		g.sendJSONError(w, http.StatusBadRequest, "userId is required")
		return
	}

	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	limit := parsePositiveInt(r.URL.Query().Get("limit"), 20)
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	result, err := g.store.QuerySessions(r.Context(), ownerKey, page, limit)
	if err != nil {
		g.logger.Error("history query failed", "error", err, "owner_key", ownerKey)
		g.sendJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	data := make([]SessionResponse, 0, len(result.Sessions))
	for _, sess := range result.Sessions {
		messages := make([]MessageResponse, 0, len(sess.Messages))
		for _, msg := range sess.Messages {
			messages = append(messages, MessageResponse{
				ID:         msg.ID,
				Role:       msg.Role,
				Content:    msg.Content,
				ToolName:   msg.ToolName,
				ToolArgs:   msg.ToolArgs,
				ToolOutput: msg.ToolOutput,
				Metadata:   msg.Metadata,
				CreatedAt:  msg.CreatedAt.Format(time.RFC3339),
			})
		}
		data = append(data, SessionResponse{
			SessionID: sess.ID,
			UserID:    sess.UserID,
			CreatedAt: sess.CreatedAt.Format(time.RFC3339),
			UpdatedAt: sess.UpdatedAt.Format(time.RFC3339),
			Messages:  messages,
		})
	}

	g.writeJSON(w, http.StatusOK, HistoryResponse{
		Success: true,
		Data:    data,
		Pagination: PaginationResponse{
			Total: result.Total,
			Page:  result.Page,
			Limit: result.PageSize,
			Pages: result.Pages,
		},
	})
}

// handleConnect handles GET /ws, upgrading to a WebSocket push channel and
// registering it for the user. The connection is held open until the client
// goes away; inbound frames are discarded since the channel is push-only.
func (g *Gateway) handleConnect(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "userId is required")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.logger.Error("failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}

	ch := connection.NewWSChannel(conn)
	defer ch.Close()

	g.registry.Register(userID, ch)
	defer g.registry.Unregister(userID, ch)

	// Block until the peer disconnects or the server shuts down
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

// parsePositiveInt parses s as a positive integer, falling back to def when
// s is absent, non-numeric, or not positive.
func parsePositiveInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// writeJSON writes v as a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error envelope with the given status.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
