package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/echo-voice/backend/internal/analysis/intent"
	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/store"
)

// TurnRecord carries everything persisted for one turn.
type TurnRecord struct {
	SessionID     string
	UserMessage   string
	Analysis      intent.Analysis
	Reply         intent.Reply
	HandoffNeeded bool
	Latency       time.Duration
}

// Recorder performs best-effort, at-most-once writes. Each write runs in its
// own goroutine, detached from the caller's context and bounded by timeout.
// Failures are logged once and never retried.
type Recorder struct {
	store   store.Store
	log     *logrus.Logger
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder writing to s.
func NewRecorder(s store.Store, log *logrus.Logger, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Recorder{store: s, log: log, timeout: timeout, now: time.Now}
}

// Record issues the message, analytics and (conditionally) handoff writes
// and returns immediately.
func (r *Recorder) Record(ctx context.Context, rec TurnRecord) {
	ts := r.now().UTC()
	a := rec.Analysis

	userMsg := chat.Message{
		ID:         uuid.NewString(),
		SessionID:  rec.SessionID,
		Role:       chat.RoleUser,
		Content:    rec.UserMessage,
		Intent:     string(a.Intent),
		Confidence: chat.Float(a.Confidence),
		Sentiment:  chat.Float(a.Sentiment),
		Timestamp:  ts,
	}
	assistantMsg := chat.Message{
		ID:         uuid.NewString(),
		SessionID:  rec.SessionID,
		Role:       chat.RoleAssistant,
		Content:    rec.Reply.Content,
		Intent:     chat.ResponseIntent,
		Confidence: chat.Float(1.0),
		Sentiment:  chat.Float(0.5),
		// keeps timestamp ordering stable within the session
		Timestamp: ts.Add(time.Millisecond),
	}

	metrics := []chat.AnalyticsMetric{
		chat.NumericMetric(rec.SessionID, chat.MetricResponseTime, float64(rec.Latency.Milliseconds())),
		chat.LabelMetric(rec.SessionID, chat.MetricIntentDetected, string(a.Intent)),
		chat.NumericMetric(rec.SessionID, chat.MetricConfidenceScore, a.Confidence),
		chat.NumericMetric(rec.SessionID, chat.MetricSentimentScore, a.Sentiment),
	}
	for i := range metrics {
		metrics[i].ID = uuid.NewString()
		metrics[i].CreatedAt = ts
	}

	r.spawn(ctx, rec.SessionID, "messages", func(ctx context.Context) error {
		return r.store.InsertMessage(ctx, userMsg)
	})
	r.spawn(ctx, rec.SessionID, "messages", func(ctx context.Context) error {
		return r.store.InsertMessage(ctx, assistantMsg)
	})
	r.spawn(ctx, rec.SessionID, "analytics", func(ctx context.Context) error {
		return r.store.InsertAnalytics(ctx, metrics)
	})

	if !rec.HandoffNeeded {
		return
	}
	handoff := chat.Handoff{
		ID:             uuid.NewString(),
		SessionID:      rec.SessionID,
		Reason:         intent.HandoffRecordReason(a),
		ContextSummary: rec.Reply.ContextSummary,
		SentimentScore: a.Sentiment,
		CreatedAt:      ts,
	}
	r.spawn(ctx, rec.SessionID, "handoffs", func(ctx context.Context) error {
		return r.store.InsertHandoff(ctx, handoff)
	})
}

// RecordMetrics writes extra analytics rows under the same contract.
func (r *Recorder) RecordMetrics(ctx context.Context, sessionID string, rows ...chat.AnalyticsMetric) {
	if len(rows) == 0 {
		return
	}
	ts := r.now().UTC()
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = ts
		}
	}
	r.spawn(ctx, sessionID, "analytics", func(ctx context.Context) error {
		return r.store.InsertAnalytics(ctx, rows)
	})
}

// Wait blocks until every in-flight write has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) spawn(parent context.Context, sessionID, table string, write func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.timeout)
		defer cancel()

		if err := write(ctx); err != nil {
			r.log.WithFields(logrus.Fields{
				"session_id": sessionID,
				"table":      table,
			}).WithError(err).Error("persist failed")
		}
	}()
}
