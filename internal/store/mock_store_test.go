// ABOUTME: Tests for the in-memory mock store
// ABOUTME: Verifies it matches the SQLite store's owner resolution and pagination behavior

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMockStore_AppendAndQuery(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	userID := uuid.New().String()
	sessionID := NewSessionID()

	if err := m.AppendMessage(ctx, &ChatMessage{ID: uuid.New().String(), SessionID: sessionID, Role: RoleHuman, Content: "hi"}, userID); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if err := m.AppendMessage(ctx, &ChatMessage{ID: uuid.New().String(), SessionID: sessionID, Role: RoleAI, Content: "hello"}, userID); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	page, err := m.QuerySessions(ctx, userID, 1, 20)
	if err != nil {
		t.Fatalf("QuerySessions failed: %v", err)
	}
	if page.Total != 1 || len(page.Sessions) != 1 {
		t.Fatalf("expected one session, got total=%d", page.Total)
	}
	msgs := page.Sessions[0].Messages
	if len(msgs) != 2 || msgs[0].Role != RoleHuman || msgs[1].Role != RoleAI {
		t.Errorf("unexpected message order: %+v", msgs)
	}
}

func TestMockStore_Pagination(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	userID := uuid.New().String()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		msg := &ChatMessage{
			ID:        uuid.New().String(),
			SessionID: NewSessionID(),
			Role:      RoleHuman,
			Content:   "m",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := m.AppendMessage(ctx, msg, userID); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	page, err := m.QuerySessions(ctx, userID, 2, 10)
	if err != nil {
		t.Fatalf("QuerySessions failed: %v", err)
	}
	if len(page.Sessions) != 10 || page.Total != 25 || page.Pages != 3 {
		t.Errorf("page 2: len=%d total=%d pages=%d", len(page.Sessions), page.Total, page.Pages)
	}

	last, err := m.QuerySessions(ctx, userID, 3, 10)
	if err != nil {
		t.Fatalf("QuerySessions failed: %v", err)
	}
	if len(last.Sessions) != 5 {
		t.Errorf("last page: len=%d, want 5", len(last.Sessions))
	}
}

func TestMockStore_FailWith(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	boom := errors.New("storage down")

	m.FailWith(boom)
	if err := m.AppendMessage(ctx, &ChatMessage{ID: "m1", SessionID: "s1", Role: RoleHuman, Content: "x"}, ""); !errors.Is(err, boom) {
		t.Errorf("AppendMessage error = %v, want %v", err, boom)
	}
	if _, err := m.QuerySessions(ctx, "s1", 1, 20); !errors.Is(err, boom) {
		t.Errorf("QuerySessions error = %v, want %v", err, boom)
	}

	m.FailWith(nil)
	if err := m.AppendMessage(ctx, &ChatMessage{ID: "m2", SessionID: "s1", Role: RoleHuman, Content: "x"}, ""); err != nil {
		t.Errorf("AppendMessage after reset failed: %v", err)
	}
}
