// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user_updated
			ON chat_sessions(user_id, updated_at);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_name TEXT,
			tool_args TEXT,
			tool_output TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES chat_sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session
			ON chat_messages(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// AppendMessage adds a message to the tail of its session's log inside a
// single transaction. The session row is created on first write; on later
// writes only updated_at is bumped, the owner is never rewritten.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *ChatMessage, userID string) error {
	if msg.SessionID == "" {
		return fmt.Errorf("message has no session ID")
	}

	now := time.Now().UTC()
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	owner := sql.NullString{String: userID, Valid: userID != ""}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
	`, msg.SessionID, owner, createdAt, createdAt)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, tool_name, tool_args, tool_output, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		nullable(msg.ToolName),
		nullable(msg.ToolArgs),
		nullable(msg.ToolOutput),
		nullable(msg.Metadata),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// QuerySessions returns a page of sessions for the owner key, newest first.
// A key matches the sessions it owns, plus an anonymous session whose own ID
// equals the key. An owned session is never reachable through its session ID,
// so anonymous history cannot leak into a user's query or vice versa.
func (s *SQLiteStore) QuerySessions(ctx context.Context, ownerKey string, page, pageSize int) (*HistoryPage, error) {
	if pageSize <= 0 {
		return nil, ErrInvalidPageSize
	}
	if page < 1 {
		page = 1
	}

	const where = "(user_id = ? OR (id = ? AND user_id IS NULL))"

	var total int
	countQuery := "SELECT COUNT(*) FROM chat_sessions WHERE " + where
	if err := s.db.QueryRowContext(ctx, countQuery, ownerKey, ownerKey).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, user_id, created_at, updated_at
		FROM chat_sessions
		WHERE ` + where + `
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, ownerKey, ownerKey, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*ChatSession, 0, pageSize)
	for rows.Next() {
		var sess ChatSession
		var owner sql.NullString
		if err := rows.Scan(&sess.ID, &owner, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.UserID = owner.String
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	for _, sess := range sessions {
		msgs, err := s.sessionMessages(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		sess.Messages = msgs
	}

	return &HistoryPage{
		Sessions: sessions,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    (total + pageSize - 1) / pageSize,
	}, nil
}

// sessionMessages loads a session's messages in arrival order.
// Ordering uses rowid rather than created_at so concurrent writers that land
// in the same clock tick keep their insert order.
func (s *SQLiteStore) sessionMessages(ctx context.Context, sessionID string) ([]*ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, tool_name, tool_args, tool_output, metadata, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY rowid ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*ChatMessage
	for rows.Next() {
		var msg ChatMessage
		var toolName, toolArgs, toolOutput, metadata sql.NullString
		err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.Role,
			&msg.Content,
			&toolName,
			&toolArgs,
			&toolOutput,
			&metadata,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.ToolName = toolName.String
		msg.ToolArgs = toolArgs.String
		msg.ToolOutput = toolOutput.String
		msg.Metadata = metadata.String
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullable converts an empty string to a NULL column value.
func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
