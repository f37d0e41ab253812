package chat

import (
	"testing"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
)

func TestSessionsAppendAndLimit(t *testing.T) {
	s := NewSessions(3)
	for _, content := range []string{"a", "b", "c", "d"} {
		s.Append("x", chat.HistoryEntry{Role: chat.RoleUser, Content: content})
	}

	h := s.History("x")
	if len(h) != 3 || h[0].Content != "b" || h[2].Content != "d" {
		t.Fatalf("expected last 3 entries, got %+v", h)
	}

	session, err := s.Get("x")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.MessageCount != 4 {
		t.Fatalf("expected message count 4, got %d", session.MessageCount)
	}
}

func TestSessionsUnknown(t *testing.T) {
	s := NewSessions(0)
	if h := s.History("missing"); h != nil {
		t.Fatalf("expected nil history, got %+v", h)
	}
	if _, err := s.Get("missing"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionsHistoryIsCopy(t *testing.T) {
	s := NewSessions(5)
	s.Append("x", chat.HistoryEntry{Content: "a"})
	h := s.History("x")
	h[0].Content = "mutated"
	if s.History("x")[0].Content != "a" {
		t.Fatalf("history should be returned as a copy")
	}
}
