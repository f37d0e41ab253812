package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

// Sessions keeps recent per-session history in memory for clients that do
// not send their own conversationHistory.
type Sessions struct {
	mu       sync.RWMutex
	limit    int
	sessions map[string]chat.Session
	history  map[string][]chat.HistoryEntry
}

// NewSessions keeps at most limit entries per session.
func NewSessions(limit int) *Sessions {
	if limit <= 0 {
		limit = 50
	}
	return &Sessions{
		limit:    limit,
		sessions: make(map[string]chat.Session),
		history:  make(map[string][]chat.HistoryEntry),
	}
}

// Append adds entries to the session, creating it on first use.
func (s *Sessions) Append(sessionID string, entries ...chat.HistoryEntry) {
	if sessionID == "" || len(entries) == 0 {
		return
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		session = chat.Session{ID: sessionID, StartedAt: now}
	}
	session.LastActiveAt = now
	session.MessageCount += len(entries)
	s.sessions[sessionID] = session

	h := append(s.history[sessionID], entries...)
	if len(h) > s.limit {
		h = append([]chat.HistoryEntry(nil), h[len(h)-s.limit:]...)
	}
	s.history[sessionID] = h
}

// History returns a copy of the stored entries; unknown sessions yield nil.
func (s *Sessions) History(sessionID string) []chat.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.history[sessionID]
	if !ok {
		return nil
	}
	copied := make([]chat.HistoryEntry, len(h))
	copy(copied, h)
	return copied
}

// Get retrieves session bookkeeping by identifier.
func (s *Sessions) Get(sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}
