package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/zhouzirui/echo-voice/backend/internal/cache"
	"github.com/zhouzirui/echo-voice/backend/internal/logger"
	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/store"
)

func msg(session, intent string, conf, sent float64, ts time.Time) chat.Message {
	return chat.Message{
		SessionID:  session,
		Role:       chat.RoleUser,
		Content:    intent,
		Intent:     intent,
		Confidence: chat.Float(conf),
		Sentiment:  chat.Float(sent),
		Timestamp:  ts,
	}
}

func TestAggregate(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	messages := []chat.Message{
		msg("a", "greeting", 0.85, 0.5, base),
		msg("a", "response", 1.0, 0.5, base.Add(time.Second)),
		msg("b", "refund", 0.85, 0.2, base.Add(2*time.Second)),
		msg("b", "response", 1.0, 0.5, base.Add(3*time.Second)),
		msg("b", "general_inquiry", 0.5, 0.8, base.Add(4*time.Second)),
	}
	responseTimes := []chat.AnalyticsMetric{
		chat.NumericMetric("a", chat.MetricResponseTime, 10),
		chat.NumericMetric("b", chat.MetricResponseTime, 15),
	}

	s := Aggregate(messages, responseTimes, 1)

	if s.TotalConversations != 2 || s.TotalMessages != 5 {
		t.Fatalf("unexpected totals %+v", s)
	}
	// (0.85+1+0.85+1+0.5)/5 = 0.84
	if s.AvgConfidence != 0.84 {
		t.Fatalf("expected avg confidence 0.84, got %v", s.AvgConfidence)
	}
	// (0.5+0.5+0.2+0.5+0.8)/5 = 0.5
	if s.AvgSentiment != 0.5 {
		t.Fatalf("expected avg sentiment 0.5, got %v", s.AvgSentiment)
	}
	if s.HandoffRate != 0.5 {
		t.Fatalf("expected handoff rate 0.5, got %v", s.HandoffRate)
	}
	// 12.5 rounds half away from zero
	if s.ResponseTime != 13 {
		t.Fatalf("expected response time 13, got %v", s.ResponseTime)
	}
	if s.Sentiment != (SentimentBreakdown{Positive: 1, Neutral: 3, Negative: 1}) {
		t.Fatalf("unexpected sentiment buckets %+v", s.Sentiment)
	}
	if len(s.Intents) != 4 || s.Intents[0].Intent != "response" || s.Intents[0].Count != 2 {
		t.Fatalf("unexpected intent distribution %+v", s.Intents)
	}
	if len(s.RecentActivity) != 5 || s.RecentActivity[0].Intent != "general_inquiry" {
		t.Fatalf("recent activity should be newest first: %+v", s.RecentActivity)
	}
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(nil, nil, 0)
	if s.TotalConversations != 0 || s.HandoffRate != 0 || s.AvgConfidence != 0 || s.ResponseTime != 0 {
		t.Fatalf("expected zero summary, got %+v", s)
	}
}

func TestIntentLabel(t *testing.T) {
	if got := intentLabel("general_inquiry"); got != "General inquiry" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := intentLabel("refund"); got != "Refund" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestRecentLimit(t *testing.T) {
	base := time.Now()
	var messages []chat.Message
	for i := 0; i < 15; i++ {
		messages = append(messages, msg("s", "help", 0.85, 0.5, base.Add(time.Duration(i)*time.Second)))
	}
	if got := len(Aggregate(messages, nil, 0).RecentActivity); got != 10 {
		t.Fatalf("expected 10 recent messages, got %d", got)
	}
}

func TestSummaryUsesCache(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := NewService(mem, cache.NewMemoryCache(), time.Minute, logger.Discard())
	ctx := context.Background()

	_ = mem.InsertMessage(ctx, msg("a", "greeting", 0.85, 0.5, time.Now()))
	first, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if first.TotalMessages != 1 {
		t.Fatalf("expected 1 message, got %d", first.TotalMessages)
	}

	_ = mem.InsertMessage(ctx, msg("b", "help", 0.85, 0.5, time.Now()))
	second, _ := svc.Summary(ctx)
	if second.TotalMessages != 1 {
		t.Fatalf("expected cached summary, got %d messages", second.TotalMessages)
	}

	uncached := NewService(mem, nil, 0, logger.Discard())
	fresh, _ := uncached.Summary(ctx)
	if fresh.TotalMessages != 2 {
		t.Fatalf("expected fresh summary, got %d messages", fresh.TotalMessages)
	}
}
