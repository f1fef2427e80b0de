// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]*ChatSession   // keyed by session ID
	messages map[string][]*ChatMessage // keyed by session ID, arrival order
	failWith error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*ChatSession),
		messages: make(map[string][]*ChatMessage),
	}
}

// FailWith makes every subsequent operation return err.
// Pass nil to restore normal behavior.
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// AppendMessage stores a message at the tail of its session's log.
func (m *MockStore) AppendMessage(ctx context.Context, msg *ChatMessage, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}

	now := time.Now().UTC()
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	sess, ok := m.sessions[msg.SessionID]
	if !ok {
		sess = &ChatSession{
			ID:        msg.SessionID,
			UserID:    userID,
			CreatedAt: createdAt,
		}
		m.sessions[msg.SessionID] = sess
	}
	sess.UpdatedAt = createdAt

	// Copy to avoid external modification
	c := *msg
	c.CreatedAt = createdAt
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &c)
	return nil
}

// QuerySessions returns a page of sessions for the owner key, newest first.
func (m *MockStore) QuerySessions(ctx context.Context, ownerKey string, page, pageSize int) (*HistoryPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failWith != nil {
		return nil, m.failWith
	}
	if pageSize <= 0 {
		return nil, ErrInvalidPageSize
	}
	if page < 1 {
		page = 1
	}

	var matched []*ChatSession
	for _, sess := range m.sessions {
		owned := sess.UserID != "" && sess.UserID == ownerKey
		anonymous := sess.ID == ownerKey && sess.UserID == ""
		if owned || anonymous {
			matched = append(matched, sess)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	sessions := make([]*ChatSession, 0, end-start)
	for _, sess := range matched[start:end] {
		c := *sess
		c.Messages = append([]*ChatMessage(nil), m.messages[sess.ID]...)
		sessions = append(sessions, &c)
	}

	return &HistoryPage{
		Sessions: sessions,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    (total + pageSize - 1) / pageSize,
	}, nil
}

// Ping reports the injected failure, if any.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failWith
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}
