package analytics

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/echo-voice/backend/internal/logger"
	analyticsService "github.com/zhouzirui/echo-voice/backend/internal/service/analytics"
	"github.com/zhouzirui/echo-voice/backend/pkg/utils"
)

type fakeSummary struct {
	summary analyticsService.Summary
	err     error
}

func (f *fakeSummary) Summary(context.Context) (analyticsService.Summary, error) {
	return f.summary, f.err
}

func setupRouter(svc SummaryService, interval time.Duration) *chi.Mux {
	r := chi.NewRouter()
	New(svc, interval, logger.Discard()).RegisterRoutes(r)
	return r
}

func TestSummaryEndpoint(t *testing.T) {
	r := setupRouter(&fakeSummary{summary: analyticsService.Summary{TotalConversations: 3, TotalMessages: 12, HandoffRate: 0.33}}, 0)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/analytics/summary", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Data analyticsService.Summary `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.TotalConversations != 3 || body.Data.TotalMessages != 12 || body.Data.HandoffRate != 0.33 {
		t.Fatalf("unexpected summary %+v", body.Data)
	}
}

func TestSummaryEndpointError(t *testing.T) {
	err := utils.E(utils.CodeUnavailable, "test", "failed to load messages", errors.New("db down"))
	r := setupRouter(&fakeSummary{err: err}, 0)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/analytics/summary", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "failed to load messages") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestStreamPushesSummaries(t *testing.T) {
	srv := httptest.NewServer(setupRouter(&fakeSummary{summary: analyticsService.Summary{TotalMessages: 7}}, 10*time.Millisecond))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/analytics/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %s", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	events := 0
	sawStatus := false
	for scanner.Scan() && events < 2 {
		line := scanner.Text()
		switch {
		case line == "event: status":
			sawStatus = true
		case line == "event: summary":
			events++
		case strings.HasPrefix(line, "data: ") && events > 0:
			var s analyticsService.Summary
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &s); err != nil {
				t.Fatalf("decode summary event: %v", err)
			}
			if s.TotalMessages != 7 {
				t.Fatalf("unexpected summary %+v", s)
			}
		}
	}
	if !sawStatus || events < 2 {
		t.Fatalf("expected status and two summary events, got status=%v summaries=%d", sawStatus, events)
	}
}
