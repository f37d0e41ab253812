package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/echo-voice/backend/internal/cache"
	"github.com/zhouzirui/echo-voice/backend/internal/config"
	"github.com/zhouzirui/echo-voice/backend/internal/logger"
	analyticsService "github.com/zhouzirui/echo-voice/backend/internal/service/analytics"
	chatService "github.com/zhouzirui/echo-voice/backend/internal/service/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/store"
)

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	log := logger.Discard()
	mem := store.NewMemoryStore()
	chatSvc, err := chatService.NewService(context.Background(), chatService.NewRecorder(mem, log, 0), nil, log)
	if err != nil {
		t.Fatalf("new chat service: %v", err)
	}
	return NewRouter(Deps{
		Log:          log,
		Config:       cfg,
		Store:        mem,
		ChatSvc:      chatSvc,
		AnalyticsSvc: analyticsService.NewService(mem, cache.NewMemoryCache(), 0, log),
	})
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, &config.Config{})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestPreflightBypassesAuth(t *testing.T) {
	cfg := &config.Config{}
	cfg.Supabase.JWTSecret = "secret"
	r := newTestRouter(t, cfg)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/chat-response", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestAPIRequiresTokenWhenSecretSet(t *testing.T) {
	cfg := &config.Config{}
	cfg.Supabase.JWTSecret = "secret"
	r := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/chat-response", bytes.NewReader([]byte(`{"message":"hi","sessionId":"s"}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz should stay public, got %d", rr.Code)
	}
}

func TestAPIOpenWithoutSecret(t *testing.T) {
	r := newTestRouter(t, &config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/chat-response", bytes.NewReader([]byte(`{"message":"hi","sessionId":"s"}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/analytics/summary", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected analytics summary, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/speech/voices", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("speech routes should be absent without a speech service, got %d", rr.Code)
	}
}
