package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
)

type messageRow struct {
	ID         string    `gorm:"column:id;type:uuid;primaryKey"`
	SessionID  string    `gorm:"column:session_id;type:text;index"`
	Role       string    `gorm:"column:role;type:text"`
	Content    string    `gorm:"column:content;type:text"`
	Intent     *string   `gorm:"column:intent;type:text"`
	Confidence *float64  `gorm:"column:confidence"`
	Sentiment  *float64  `gorm:"column:sentiment"`
	Timestamp  time.Time `gorm:"column:timestamp;type:timestamptz;index"`
}

func (messageRow) TableName() string { return "messages" }

type analyticsRow struct {
	ID          string         `gorm:"column:id;type:uuid;primaryKey"`
	SessionID   string         `gorm:"column:session_id;type:text;index"`
	MetricName  string         `gorm:"column:metric_name;type:text;index"`
	MetricValue float64        `gorm:"column:metric_value"`
	Metadata    datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time      `gorm:"column:created_at;type:timestamptz"`
}

func (analyticsRow) TableName() string { return "analytics" }

type handoffRow struct {
	ID             string    `gorm:"column:id;type:uuid;primaryKey"`
	SessionID      string    `gorm:"column:session_id;type:text;index"`
	Reason         string    `gorm:"column:reason;type:text"`
	ContextSummary string    `gorm:"column:context_summary;type:text"`
	SentimentScore float64   `gorm:"column:sentiment_score"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz"`
}

func (handoffRow) TableName() string { return "handoffs" }

func toMessageRow(m chat.Message) messageRow {
	row := messageRow{
		ID:         m.ID,
		SessionID:  m.SessionID,
		Role:       string(m.Role),
		Content:    m.Content,
		Confidence: m.Confidence,
		Sentiment:  m.Sentiment,
		Timestamp:  m.Timestamp,
	}
	if m.Intent != "" {
		intent := m.Intent
		row.Intent = &intent
	}
	return row
}

func (r messageRow) toModel() chat.Message {
	m := chat.Message{
		ID:         r.ID,
		SessionID:  r.SessionID,
		Role:       chat.Role(r.Role),
		Content:    r.Content,
		Confidence: r.Confidence,
		Sentiment:  r.Sentiment,
		Timestamp:  r.Timestamp,
	}
	if r.Intent != nil {
		m.Intent = *r.Intent
	}
	return m
}

func toAnalyticsRow(a chat.AnalyticsMetric) analyticsRow {
	meta := datatypes.JSON(a.Metadata)
	if len(meta) == 0 {
		meta = datatypes.JSON(`{}`)
	}
	return analyticsRow{
		ID:          a.ID,
		SessionID:   a.SessionID,
		MetricName:  a.MetricName,
		MetricValue: a.MetricValue,
		Metadata:    meta,
		CreatedAt:   a.CreatedAt,
	}
}

func (r analyticsRow) toModel() chat.AnalyticsMetric {
	return chat.AnalyticsMetric{
		ID:          r.ID,
		SessionID:   r.SessionID,
		MetricName:  r.MetricName,
		MetricValue: r.MetricValue,
		Metadata:    json.RawMessage(r.Metadata),
		CreatedAt:   r.CreatedAt,
	}
}

func toHandoffRow(h chat.Handoff) handoffRow {
	return handoffRow{
		ID:             h.ID,
		SessionID:      h.SessionID,
		Reason:         h.Reason,
		ContextSummary: h.ContextSummary,
		SentimentScore: h.SentimentScore,
		CreatedAt:      h.CreatedAt,
	}
}
