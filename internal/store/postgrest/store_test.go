package postgrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/store"
)

// fakePostgREST stores posted JSON per table and serves it back on GET.
type fakePostgREST struct {
	mu     sync.Mutex
	tables map[string][]json.RawMessage
	fail   bool
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	if r.Header.Get("apikey") != "service-key" || r.Header.Get("Authorization") != "Bearer service-key" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if f.fail {
		http.Error(w, `{"message":"relation does not exist"}`, http.StatusNotFound)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		if r.Header.Get("Prefer") != "return=minimal" {
			http.Error(w, "missing prefer", http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
			var rows []json.RawMessage
			_ = json.Unmarshal(body, &rows)
			f.tables[table] = append(f.tables[table], rows...)
		} else {
			f.tables[table] = append(f.tables[table], body)
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		rows := f.tables[table]
		if r.Header.Get("Prefer") == "count=exact" {
			w.Header().Set("Content-Range", "0-0/"+itoa(len(rows)))
		}
		sessionFilter := strings.TrimPrefix(r.URL.Query().Get("session_id"), "eq.")
		out := make([]json.RawMessage, 0, len(rows))
		for _, row := range rows {
			if sessionFilter != "" && !strings.Contains(string(row), `"session_id":"`+sessionFilter+`"`) {
				continue
			}
			out = append(out, row)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newTestStore(t *testing.T) (*Store, *fakePostgREST) {
	t.Helper()
	fake := &fakePostgREST{tables: make(map[string][]json.RawMessage)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(srv.URL, "service-key", time.Second), fake
}

func TestInsertAndListMessagesRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	msg := chat.Message{
		SessionID:  "session-42",
		Role:       chat.RoleUser,
		Content:    "my bill is wrong",
		Intent:     "billing",
		Confidence: chat.Float(0.85),
		Sentiment:  chat.Float(0.5),
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.InsertMessage(ctx, chat.Message{SessionID: "other", Role: chat.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rows, err := s.ListMessages(ctx, store.MessageQuery{SessionID: "session-42"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.Content != msg.Content || got.Intent != msg.Intent {
		t.Fatalf("round trip changed message: %+v", got)
	}
	if got.Confidence == nil || *got.Confidence != 0.85 || got.Sentiment == nil || *got.Sentiment != 0.5 {
		t.Fatalf("round trip changed scores: %+v", got)
	}
	if !got.Timestamp.Equal(msg.Timestamp) {
		t.Fatalf("timestamp changed: %s", got.Timestamp)
	}
}

func TestInsertAnalyticsBatch(t *testing.T) {
	s, fake := newTestStore(t)
	rows := []chat.AnalyticsMetric{
		chat.NumericMetric("s", chat.MetricConfidenceScore, 0.85),
		chat.LabelMetric("s", chat.MetricIntentDetected, "refund"),
	}
	if err := s.InsertAnalytics(context.Background(), rows); err != nil {
		t.Fatalf("insert analytics failed: %v", err)
	}
	if got := len(fake.tables["analytics"]); got != 2 {
		t.Fatalf("expected 2 analytics rows, got %d", got)
	}
	if !strings.Contains(string(fake.tables["analytics"][1]), `"metadata":{"value":"refund"}`) {
		t.Fatalf("unexpected metadata payload: %s", fake.tables["analytics"][1])
	}
}

func TestCountHandoffs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.InsertHandoff(ctx, chat.Handoff{SessionID: "s", Reason: "User requested human agent"}); err != nil {
			t.Fatalf("insert handoff failed: %v", err)
		}
	}
	n, err := s.CountHandoffs(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 handoffs, got %d", n)
	}
}

func TestInsertSurfacesHTTPErrors(t *testing.T) {
	s, fake := newTestStore(t)
	fake.fail = true
	err := s.InsertMessage(context.Background(), chat.Message{SessionID: "s"})
	if err == nil {
		t.Fatalf("expected error on non-2xx response")
	}
	if !strings.Contains(err.Error(), "messages") || !strings.Contains(err.Error(), "404") {
		t.Fatalf("error should name table and status, got %v", err)
	}
}

func TestParseContentRangeTotal(t *testing.T) {
	if n, err := parseContentRangeTotal("*/0"); err != nil || n != 0 {
		t.Fatalf("expected 0, got %d %v", n, err)
	}
	if n, err := parseContentRangeTotal("0-9/120"); err != nil || n != 120 {
		t.Fatalf("expected 120, got %d %v", n, err)
	}
	if _, err := parseContentRangeTotal("0-9/*"); err == nil {
		t.Fatalf("expected error for unknown total")
	}
	if _, err := parseContentRangeTotal(""); err == nil {
		t.Fatalf("expected error for empty header")
	}
}
