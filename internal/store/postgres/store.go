// Package postgres stores conversation rows directly in Postgres via gorm.
package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/store"
)

// Open connects to Postgres and applies pool settings.
func Open(uri string) (*gorm.DB, error) {
	db, err := gorm.Open(pgdriver.Open(uri), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// Store implements store.Store on a gorm handle.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

func (s *Store) InsertMessage(ctx context.Context, msg chat.Message) error {
	row := toMessageRow(msg)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) InsertAnalytics(ctx context.Context, rows []chat.AnalyticsMetric) error {
	if len(rows) == 0 {
		return nil
	}
	out := make([]analyticsRow, 0, len(rows))
	for _, r := range rows {
		row := toAnalyticsRow(r)
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		out = append(out, row)
	}
	return s.db.WithContext(ctx).Create(&out).Error
}

func (s *Store) InsertHandoff(ctx context.Context, h chat.Handoff) error {
	row := toHandoffRow(h)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) ListMessages(ctx context.Context, q store.MessageQuery) ([]chat.Message, error) {
	tx := s.db.WithContext(ctx)
	if q.SessionID != "" {
		tx = tx.Where("session_id = ?", q.SessionID)
	}
	if q.NewestFirst {
		tx = tx.Order("timestamp DESC")
	} else {
		tx = tx.Order("timestamp ASC")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []messageRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) ListAnalytics(ctx context.Context, metricName string) ([]chat.AnalyticsMetric, error) {
	tx := s.db.WithContext(ctx)
	if metricName != "" {
		tx = tx.Where("metric_name = ?", metricName)
	}

	var rows []analyticsRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]chat.AnalyticsMetric, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) CountHandoffs(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&handoffRow{}).Count(&n).Error
	return n, err
}
