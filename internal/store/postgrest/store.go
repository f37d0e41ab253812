// Package postgrest stores conversation rows through a Supabase PostgREST endpoint.
package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/store"
)

const (
	tableMessages  = "messages"
	tableAnalytics = "analytics"
	tableHandoffs  = "handoffs"
)

// Store talks to {SUPABASE_URL}/rest/v1 with the service role key.
type Store struct {
	client *resty.Client
}

// New creates a PostgREST-backed store.
func New(baseURL, serviceKey string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/") + "/rest/v1")
	client.SetTimeout(timeout)
	client.SetHeaders(map[string]string{
		"Authorization": "Bearer " + serviceKey,
		"apikey":        serviceKey,
		"Content-Type":  "application/json",
	})

	return &Store{client: client}
}

var _ store.Store = (*Store)(nil)

func (s *Store) InsertMessage(ctx context.Context, msg chat.Message) error {
	return s.insert(ctx, tableMessages, msg)
}

func (s *Store) InsertAnalytics(ctx context.Context, rows []chat.AnalyticsMetric) error {
	if len(rows) == 0 {
		return nil
	}
	return s.insert(ctx, tableAnalytics, rows)
}

func (s *Store) InsertHandoff(ctx context.Context, h chat.Handoff) error {
	return s.insert(ctx, tableHandoffs, h)
}

func (s *Store) insert(ctx context.Context, table string, body any) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(body).
		Post("/" + table)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	if resp.IsError() {
		return fmt.Errorf("insert %s: status %d: %s", table, resp.StatusCode(), resp.String())
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, q store.MessageQuery) ([]chat.Message, error) {
	params := map[string]string{
		"select": "*",
		"order":  "timestamp.asc",
	}
	if q.NewestFirst {
		params["order"] = "timestamp.desc"
	}
	if q.SessionID != "" {
		params["session_id"] = "eq." + q.SessionID
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}

	var rows []chat.Message
	if err := s.get(ctx, tableMessages, params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) ListAnalytics(ctx context.Context, metricName string) ([]chat.AnalyticsMetric, error) {
	params := map[string]string{"select": "*"}
	if metricName != "" {
		params["metric_name"] = "eq." + metricName
	}

	var rows []chat.AnalyticsMetric
	if err := s.get(ctx, tableAnalytics, params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// CountHandoffs reads the exact count from the Content-Range header.
func (s *Store) CountHandoffs(ctx context.Context) (int64, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "count=exact").
		SetQueryParams(map[string]string{"select": "id", "limit": "1"}).
		Get("/" + tableHandoffs)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", tableHandoffs, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("count %s: status %d: %s", tableHandoffs, resp.StatusCode(), resp.String())
	}
	return parseContentRangeTotal(resp.Header().Get("Content-Range"))
}

func (s *Store) get(ctx context.Context, table string, params map[string]string, dst any) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/" + table)
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	if resp.IsError() {
		return fmt.Errorf("select %s: status %d: %s", table, resp.StatusCode(), resp.String())
	}
	if err := json.Unmarshal(resp.Body(), dst); err != nil {
		return fmt.Errorf("decode %s: %w", table, err)
	}
	return nil
}

// parseContentRangeTotal parses "0-0/42" or "*/0".
func parseContentRangeTotal(header string) (int64, error) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return 0, fmt.Errorf("missing count in Content-Range %q", header)
	}
	total := header[idx+1:]
	if total == "*" {
		return 0, fmt.Errorf("count not returned in Content-Range %q", header)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Range %q: %w", header, err)
	}
	return n, nil
}
