package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/echo-voice/backend/internal/cache"
	"github.com/zhouzirui/echo-voice/backend/internal/config"
	"github.com/zhouzirui/echo-voice/backend/internal/handler"
	"github.com/zhouzirui/echo-voice/backend/internal/logger"
	"github.com/zhouzirui/echo-voice/backend/internal/service/analytics"
	"github.com/zhouzirui/echo-voice/backend/internal/service/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/service/speech"
	"github.com/zhouzirui/echo-voice/backend/internal/storage"
	"github.com/zhouzirui/echo-voice/backend/internal/store"
	"github.com/zhouzirui/echo-voice/backend/internal/store/postgres"
	"github.com/zhouzirui/echo-voice/backend/internal/store/postgrest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Warn("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	st := openStore(cfg, log)
	c := openCache(ctx, cfg, log)

	uploader, closeUploader := openUploader(ctx, cfg, log)
	defer closeUploader()

	recorder := chat.NewRecorder(st, log, cfg.Turn.PersistTimeout)
	chatService, err := chat.NewService(ctx, recorder, chat.NewSessions(cfg.Turn.HistoryLimit), log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize chat service")
	}

	speechConfig := cfg.SpeechConfig()
	speechOpts := speech.Options{Uploader: uploader, Metrics: recorder}
	if cfg.Deepgram.Enabled() {
		speechOpts.Issuer = speech.NewCredentialIssuer(speechConfig, c, log)
	} else {
		log.Warn("DEEPGRAM_API_KEY not set, speech recognition disabled")
	}
	if cfg.TTS.Enabled() {
		speechOpts.Synthesizer = speech.NewAzureTTSClient(speechConfig)
	} else {
		log.Warn("Azure TTS key not set, replies fall back to client-side synthesis")
	}
	speechService := speech.NewService(speechConfig, speechOpts, log)
	defer speechService.Cleanup()

	analyticsService := analytics.NewService(st, c, cfg.Analytics.CacheTTL, log)

	router := handler.NewRouter(handler.Deps{
		Log:          log,
		Config:       cfg,
		Store:        st,
		ChatSvc:      chatService,
		SpeechSvc:    speechService,
		AnalyticsSvc: analyticsService,
	})

	startServer(ctx, cfg.Server, router, log)

	// 等待尚未完成的持久化写入
	recorder.Wait()
}

// openStore 选择持久化后端：直连 Postgres > Supabase REST > 内存。
func openStore(cfg *config.Config, log *logrus.Logger) store.Store {
	if cfg.Database.URL != "" {
		db, err := postgres.Open(cfg.Database.URL)
		if err == nil {
			log.Info("using postgres store")
			return postgres.New(db)
		}
		log.WithError(err).Warn("postgres unavailable, trying other stores")
	}

	if cfg.Supabase.Enabled() {
		log.Info("using supabase rest store")
		return postgrest.New(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, cfg.Turn.PersistTimeout)
	}

	log.Warn("no database configured, conversation history is kept in memory only")
	return store.NewMemoryStore()
}

func openCache(ctx context.Context, cfg *config.Config, log *logrus.Logger) cache.Cache {
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryCache()
	}

	rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Addr)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, using in-memory cache")
		return cache.NewMemoryCache()
	}
	log.Info("using redis cache")
	return cache.NewRedisCache(rdb, "echo:")
}

func openUploader(ctx context.Context, cfg *config.Config, log *logrus.Logger) (storage.Uploader, func()) {
	noop := func() {}

	switch cfg.Storage.Backend {
	case config.StorageSupabase:
		if !cfg.Supabase.Enabled() {
			log.Warn("supabase storage selected but SUPABASE_URL or key missing, audio will not be stored")
			return nil, noop
		}
		return storage.NewSupabaseUploader(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, cfg.Storage.Bucket), noop
	case config.StorageGCS:
		u, err := storage.NewGCSUploader(ctx, cfg.Storage.GCSBucket)
		if err != nil {
			log.WithError(err).Warn("gcs uploader unavailable, audio will not be stored")
			return nil, noop
		}
		return u, func() {
			if err := u.Close(); err != nil {
				log.WithError(err).Warn("close gcs client")
			}
		}
	default:
		return nil, noop
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *logrus.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.WithField("addr", addr).Info("Echo backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
