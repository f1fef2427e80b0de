// ABOUTME: Store interface and data types for wisp-gateway persistence
// ABOUTME: Defines ChatSession, ChatMessage structs and the Store interface for history operations

package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidPageSize is returned when a query is made with a non-positive page size
var ErrInvalidPageSize = errors.New("page size must be positive")

// Role constants for message authorship
const (
	RoleHuman = "human" // Message written by the user
	RoleAI    = "ai"    // Message produced by the workflow engine
)

// ChatSession represents one ordered conversational context.
// UserID is empty for anonymous sessions, which are keyed solely by ID
// and are never merged with other anonymous sessions.
type ChatSession struct {
	ID        string
	UserID    string // empty for anonymous sessions
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []*ChatMessage
}

// ChatMessage is a single turn in a session's append-only log.
// Messages are immutable once written and keep arrival order within a session.
type ChatMessage struct {
	ID         string
	SessionID  string
	Role       string // "human" or "ai"
	Content    string
	ToolName   string // For tool invocations: name of the tool called
	ToolArgs   string // For tool invocations: JSON-encoded arguments
	ToolOutput string // For tool invocations: tool result text
	Metadata   string // Optional free-form provider metadata, raw JSON
	CreatedAt  time.Time
}

// HistoryPage is the result of a paginated session query.
type HistoryPage struct {
	Sessions []*ChatSession
	Total    int
	Page     int
	PageSize int
	Pages    int
}

// Store defines the interface for conversational history persistence
type Store interface {
	// AppendMessage atomically adds a message to the tail of its session's log,
	// creating the session on first write. userID may be empty (anonymous session).
	// Prior entries are never reordered or rewritten.
	AppendMessage(ctx context.Context, msg *ChatMessage, userID string) error

	// QuerySessions returns the most recent pageSize sessions for the owner key,
	// newest first, each with its ordered message list, plus the total session
	// count. Pages are 1-indexed. A key matches the sessions it owns by user
	// ID, or an anonymous session whose own ID equals the key; owned sessions
	// are never reachable through their session ID alone.
	QuerySessions(ctx context.Context, ownerKey string, page, pageSize int) (*HistoryPage, error)

	// Ping verifies the underlying storage is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// IsUserKey reports whether key names a user rather than a session. Callers
// may supply any identifier as a user ID, so every non-empty key counts
// except generated session IDs, which carry the "sess-" prefix.
func IsUserKey(key string) bool {
	return key != "" && !strings.HasPrefix(key, "sess-")
}

// NewSessionID generates a fresh session identifier. The prefix distinguishes
// session keys from user identifiers (see IsUserKey).
func NewSessionID() string {
	return "sess-" + uuid.New().String()
}
