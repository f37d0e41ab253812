package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
)

// MemoryStore keeps rows in process memory. Used in tests and when no
// database is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	messages  []chat.Message
	analytics []chat.AnalyticsMetric
	handoffs  []chat.Handoff
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertMessage(_ context.Context, msg chat.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) InsertAnalytics(_ context.Context, rows []chat.AnalyticsMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		s.analytics = append(s.analytics, row)
	}
	return nil
}

func (s *MemoryStore) InsertHandoff(_ context.Context, h chat.Handoff) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.handoffs = append(s.handoffs, h)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, q MessageQuery) ([]chat.Message, error) {
	s.mu.RLock()
	out := make([]chat.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if q.SessionID != "" && msg.SessionID != q.SessionID {
			continue
		}
		out = append(out, msg)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if q.NewestFirst {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListAnalytics(_ context.Context, metricName string) ([]chat.AnalyticsMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.AnalyticsMetric, 0)
	for _, row := range s.analytics {
		if metricName != "" && row.MetricName != metricName {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *MemoryStore) CountHandoffs(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.handoffs)), nil
}

// Handoffs returns a copy of the stored handoff rows.
func (s *MemoryStore) Handoffs() []chat.Handoff {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Handoff(nil), s.handoffs...)
}
