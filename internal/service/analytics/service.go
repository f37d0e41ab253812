package analytics

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/echo-voice/backend/internal/cache"
	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/store"
	"github.com/zhouzirui/echo-voice/backend/pkg/utils"
)

const (
	summaryCacheKey = "analytics:summary"
	recentLimit     = 10

	positiveAbove = 0.6
	negativeBelow = 0.4
)

// IntentCount is one bar of the intent distribution.
type IntentCount struct {
	Intent string `json:"intent"`
	Label  string `json:"label"`
	Count  int    `json:"count"`
}

// SentimentBreakdown buckets message sentiment: positive > 0.6, negative < 0.4.
type SentimentBreakdown struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// Summary is the dashboard payload.
type Summary struct {
	TotalConversations int                `json:"totalConversations"`
	TotalMessages      int                `json:"totalMessages"`
	AvgConfidence      float64            `json:"avgConfidence"`
	AvgSentiment       float64            `json:"avgSentiment"`
	HandoffRate        float64            `json:"handoffRate"`
	ResponseTime       float64            `json:"responseTime"`
	Intents            []IntentCount      `json:"intentDistribution"`
	Sentiment          SentimentBreakdown `json:"sentimentDistribution"`
	RecentActivity     []chat.Message     `json:"recentActivity"`
	GeneratedAt        time.Time          `json:"generatedAt"`
}

// Service aggregates stored rows into a Summary.
type Service struct {
	store store.Store
	cache cache.Cache
	ttl   time.Duration
	log   *logrus.Logger
	now   func() time.Time
}

func NewService(s store.Store, c cache.Cache, ttl time.Duration, log *logrus.Logger) *Service {
	return &Service{store: s, cache: c, ttl: ttl, log: log, now: time.Now}
}

// Summary returns the cached summary when fresh, otherwise recomputes it.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	const op = "analytics.Service.Summary"

	if s.cache != nil && s.ttl > 0 {
		var cached Summary
		hit, err := s.cache.GetJSON(ctx, summaryCacheKey, &cached)
		if err != nil {
			s.log.WithError(err).Warn("analytics cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	messages, err := s.store.ListMessages(ctx, store.MessageQuery{})
	if err != nil {
		return Summary{}, utils.E(utils.CodeUnavailable, op, "failed to load messages", err)
	}
	responseTimes, err := s.store.ListAnalytics(ctx, chat.MetricResponseTime)
	if err != nil {
		return Summary{}, utils.E(utils.CodeUnavailable, op, "failed to load analytics", err)
	}
	handoffs, err := s.store.CountHandoffs(ctx)
	if err != nil {
		return Summary{}, utils.E(utils.CodeUnavailable, op, "failed to count handoffs", err)
	}

	summary := Aggregate(messages, responseTimes, handoffs)
	summary.GeneratedAt = s.now().UTC()

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.SetJSON(ctx, summaryCacheKey, summary, s.ttl); err != nil {
			s.log.WithError(err).Warn("analytics cache write failed")
		}
	}
	return summary, nil
}

// Aggregate computes a Summary from raw rows. messages may be in any order.
func Aggregate(messages []chat.Message, responseTimes []chat.AnalyticsMetric, handoffs int64) Summary {
	sessions := make(map[string]struct{})
	intentCounts := make(map[string]int)
	var sentiment SentimentBreakdown

	confSum, sentSum := decimal.Zero, decimal.Zero
	scored := 0

	for _, m := range messages {
		if m.SessionID != "" {
			sessions[m.SessionID] = struct{}{}
		}
		if m.Intent != "" {
			intentCounts[m.Intent]++
		}
		if m.Sentiment != nil {
			switch v := *m.Sentiment; {
			case v > positiveAbove:
				sentiment.Positive++
			case v < negativeBelow:
				sentiment.Negative++
			default:
				sentiment.Neutral++
			}
		}
		if m.Confidence != nil && m.Sentiment != nil {
			confSum = confSum.Add(decimal.NewFromFloat(*m.Confidence))
			sentSum = sentSum.Add(decimal.NewFromFloat(*m.Sentiment))
			scored++
		}
	}

	summary := Summary{
		TotalConversations: len(sessions),
		TotalMessages:      len(messages),
		AvgConfidence:      average(confSum, scored, 2),
		AvgSentiment:       average(sentSum, scored, 2),
		Intents:            intentDistribution(intentCounts),
		Sentiment:          sentiment,
		RecentActivity:     recent(messages, recentLimit),
	}

	if len(sessions) > 0 {
		rate, _ := decimal.NewFromInt(handoffs).
			Div(decimal.NewFromInt(int64(len(sessions)))).
			Round(2).
			Float64()
		summary.HandoffRate = rate
	}

	rtSum := decimal.Zero
	for _, m := range responseTimes {
		rtSum = rtSum.Add(decimal.NewFromFloat(m.MetricValue))
	}
	summary.ResponseTime = average(rtSum, len(responseTimes), 0)

	return summary
}

func average(sum decimal.Decimal, n int, places int32) float64 {
	if n == 0 {
		return 0
	}
	v, _ := sum.Div(decimal.NewFromInt(int64(n))).Round(places).Float64()
	return v
}

func intentDistribution(counts map[string]int) []IntentCount {
	out := make([]IntentCount, 0, len(counts))
	for intent, n := range counts {
		out = append(out, IntentCount{Intent: intent, Label: intentLabel(intent), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Intent < out[j].Intent
	})
	return out
}

// intentLabel turns "general_inquiry" into "General inquiry".
func intentLabel(intent string) string {
	if intent == "" {
		return ""
	}
	return strings.ToUpper(intent[:1]) + strings.ReplaceAll(intent[1:], "_", " ")
}

func recent(messages []chat.Message, n int) []chat.Message {
	sorted := append([]chat.Message(nil), messages...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
