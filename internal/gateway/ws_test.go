// ABOUTME: End-to-end WebSocket push test through a live HTTP server.
// ABOUTME: Connects a real client, fires the engine callback, and reads the pushed frame.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocket_PushRoundTrip(t *testing.T) {
	h := newTestHarness(t)
	userID := uuid.New().String()

	srv := httptest.NewServer(h.gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=" + userID
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the server side to register the channel
	require.Eventually(t, func() bool {
		_, ok := h.registry.Lookup(userID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	body := fmt.Sprintf(`{"webhookBody":{"userId":%q,"sessionId":"sess-ws"},"agentOutput":{"output":"pushed answer"}}`, userID)
	resp, err := http.Post(srv.URL+"/receive", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msgType, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, msgType)

	var push PushMessage
	require.NoError(t, json.Unmarshal(data, &push))
	assert.Equal(t, "ai-response", push.Type)
	assert.Equal(t, "sess-ws", push.SessionID)
	assert.Equal(t, "pushed answer", push.Output)
}

func TestWebSocket_ReconnectReplacesChannel(t *testing.T) {
	h := newTestHarness(t)
	userID := uuid.New().String()

	srv := httptest.NewServer(h.gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=" + userID

	first, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer first.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		_, ok := h.registry.Lookup(userID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	firstHandle, _ := h.registry.Lookup(userID)

	second, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer second.Close(websocket.StatusNormalClosure, "")

	// The second connection displaces the first
	require.Eventually(t, func() bool {
		cur, ok := h.registry.Lookup(userID)
		return ok && cur != firstHandle
	}, 2*time.Second, 10*time.Millisecond)

	// The displaced client sees its connection closed by the server
	_, _, err = first.Read(ctx)
	require.Error(t, err)

	body := fmt.Sprintf(`{"webhookBody":{"userId":%q,"sessionId":"sess-r"},"agentOutput":{"output":"to the new one"}}`, userID)
	resp, err := http.Post(srv.URL+"/receive", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, data, err := second.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to the new one")
}
