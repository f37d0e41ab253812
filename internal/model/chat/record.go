package chat

import (
	"encoding/json"
	"time"
)

// Metric names written per turn.
const (
	MetricResponseTime    = "response_time"
	MetricIntentDetected  = "intent_detected"
	MetricConfidenceScore = "confidence_score"
	MetricSentimentScore  = "sentiment_score"
	MetricAudioGenerated  = "audio_generated"
)

// Handoff flags a session for human follow-up.
type Handoff struct {
	ID             string    `json:"id,omitempty"`
	SessionID      string    `json:"session_id"`
	Reason         string    `json:"reason"`
	ContextSummary string    `json:"context_summary"`
	SentimentScore float64   `json:"sentiment_score"`
	CreatedAt      time.Time `json:"created_at"`
}

// AnalyticsMetric is one numeric or labelled observation about a session.
type AnalyticsMetric struct {
	ID          string          `json:"id,omitempty"`
	SessionID   string          `json:"session_id"`
	MetricName  string          `json:"metric_name"`
	MetricValue float64         `json:"metric_value"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NumericMetric builds a metric with empty metadata.
func NumericMetric(sessionID, name string, value float64) AnalyticsMetric {
	return AnalyticsMetric{
		SessionID:   sessionID,
		MetricName:  name,
		MetricValue: value,
		Metadata:    json.RawMessage(`{}`),
	}
}

// LabelMetric builds a metric whose value is carried as {"value": label}.
func LabelMetric(sessionID, name, label string) AnalyticsMetric {
	meta, _ := json.Marshal(map[string]string{"value": label})
	return AnalyticsMetric{
		SessionID:   sessionID,
		MetricName:  name,
		MetricValue: 0,
		Metadata:    meta,
	}
}
