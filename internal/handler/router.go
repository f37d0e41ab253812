package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/echo-voice/backend/internal/config"
	analyticsHandler "github.com/zhouzirui/echo-voice/backend/internal/handler/analytics"
	"github.com/zhouzirui/echo-voice/backend/internal/handler/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/handler/speech"
	middlewarePkg "github.com/zhouzirui/echo-voice/backend/internal/middleware"
	analyticsService "github.com/zhouzirui/echo-voice/backend/internal/service/analytics"
	chatService "github.com/zhouzirui/echo-voice/backend/internal/service/chat"
	speechService "github.com/zhouzirui/echo-voice/backend/internal/service/speech"
	"github.com/zhouzirui/echo-voice/backend/internal/store"
	"github.com/zhouzirui/echo-voice/backend/pkg/utils"
)

// Deps 路由依赖的服务，SpeechSvc 与 AnalyticsSvc 可以为 nil。
type Deps struct {
	Log          *logrus.Logger
	Config       *config.Config
	Store        store.Store
	ChatSvc      *chatService.Service
	SpeechSvc    *speechService.Service
	AnalyticsSvc *analyticsService.Service
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(deps.Log))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	cfg := deps.Config

	r.Route("/api", func(api chi.Router) {
		if cfg.Supabase.JWTSecret != "" {
			api.Use(middlewarePkg.JWTAuth(middlewarePkg.JWTConfig{
				Secret:   cfg.Supabase.JWTSecret,
				Issuer:   cfg.Supabase.JWTIssuer,
				Audience: cfg.Supabase.JWTAudience,
			}))
		}

		chat.New(deps.ChatSvc, deps.Store).RegisterRoutes(api)

		if deps.SpeechSvc != nil {
			speech.New(deps.SpeechSvc, deps.ChatSvc, speech.Options{
				RequireSecure: cfg.Server.RequireSecureVoice,
			}, deps.Log).RegisterRoutes(api)
		}

		if deps.AnalyticsSvc != nil {
			analyticsHandler.New(deps.AnalyticsSvc, cfg.Analytics.StreamInterval, deps.Log).RegisterRoutes(api)
		}
	})

	return r
}
