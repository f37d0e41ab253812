package store

import (
	"context"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
)

// Store is the persistence boundary for conversation rows. Writes are plain
// inserts; there is no update path.
type Store interface {
	InsertMessage(ctx context.Context, msg chat.Message) error
	InsertAnalytics(ctx context.Context, rows []chat.AnalyticsMetric) error
	InsertHandoff(ctx context.Context, h chat.Handoff) error

	ListMessages(ctx context.Context, q MessageQuery) ([]chat.Message, error)
	ListAnalytics(ctx context.Context, metricName string) ([]chat.AnalyticsMetric, error)
	CountHandoffs(ctx context.Context) (int64, error)
}

// MessageQuery filters ListMessages. Zero values mean no filter; results are
// ordered by timestamp ascending unless NewestFirst is set.
type MessageQuery struct {
	SessionID   string
	Limit       int
	NewestFirst bool
}
