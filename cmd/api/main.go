package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bookline-ai/bookline/internal/api/router"
	appconfig "github.com/bookline-ai/bookline/internal/config"
	"github.com/bookline-ai/bookline/internal/conversation"
	"github.com/bookline-ai/bookline/internal/directory"
	"github.com/bookline-ai/bookline/internal/draft"
	"github.com/bookline-ai/bookline/internal/nlu"
	"github.com/bookline-ai/bookline/internal/notify"
	"github.com/bookline-ai/bookline/internal/observability/metrics"
	"github.com/bookline-ai/bookline/internal/realtime"
	"github.com/bookline-ai/bookline/internal/reconcile"
	"github.com/bookline-ai/bookline/internal/scheduling"
	"github.com/bookline-ai/bookline/pkg/logging"
)

func main() {
	// Local development convenience; in deployed environments the env is
	// injected directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting bookline API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "error", err)
		os.Exit(1)
	}

	// NLU engine: Gemini when configured, the deterministic stub otherwise.
	var engine nlu.Engine
	if cfg.GeminiAPIKey != "" {
		gemini, err := nlu.NewGeminiEngine(ctx, nlu.GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			ModelID:     cfg.GeminiModelID,
			Timeout:     cfg.NLUTimeout,
			MaxTokens:   cfg.NLUMaxTokens,
			Temperature: cfg.NLUTemperature,
		}, logger)
		if err != nil {
			logger.Error("failed to create gemini engine", "error", err)
			os.Exit(1)
		}
		defer gemini.Close()
		engine = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, using stub NLU engine")
		engine = nlu.NewStubEngine()
	}

	schedulingClient := scheduling.NewClient(cfg.SchedulingBaseURL, cfg.SchedulingAPIKey, logger,
		scheduling.WithHTTPClient(&http.Client{Timeout: cfg.SchedulingTimeout}),
		scheduling.WithRetries(cfg.SchedulingMaxRetries, cfg.SchedulingRetryDelay),
	)
	directoryClient := directory.NewClient(cfg.DirectoryBaseURL, cfg.DirectoryAPIKey,
		cfg.DirectoryTimeout, cfg.DirectoryCacheTTL, logger)

	convStore := conversation.NewStore(pool)
	ledger := conversation.NewLedger(pool)
	draftManager := draft.NewManager(draft.NewStore(pool), schedulingClient, logger)
	locker := conversation.NewRedisLocker(rdb, cfg.ConversationLockTTL, cfg.ConversationLockRetry)

	hub := realtime.NewHub(logger)
	publisher := realtime.NewRedisPublisher(rdb, cfg.RealtimePublishTimeout, logger)
	bridge := realtime.NewBridge(rdb, hub, logger)
	go bridge.Run(ctx)

	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	} else {
		emailSender = notify.NewStubEmailSender(logger)
	}
	notifier := notify.NewService(emailSender, directoryClient, logger)

	m := metrics.NewConversationMetrics(nil)

	orchestrator := conversation.NewOrchestrator(conversation.OrchestratorDeps{
		Convos:    convStore,
		Ledger:    ledger,
		Drafts:    draftManager,
		Engine:    engine,
		Directory: directoryClient,
		Locker:    locker,
		Publisher: publisher,
		Notifier:  notifier,
		Metrics:   m,
		Logger:    logger,
	})

	reconciler := reconcile.NewReconciler(draftManager, convStore, ledger, locker, publisher,
		reconcile.NewProcessedStore(pool), m, logger)

	conversationHandler := conversation.NewHandler(orchestrator, draftManager, locker, hub, cfg.CORSAllowedOrigins, logger)
	webhookHandler := reconcile.NewHandler(reconciler, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversationHandler,
		WebhookHandler:      webhookHandler,
		MetricsHandler:      promhttp.Handler(),
		AuthSecret:          cfg.AuthJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		DB:                  pool,
		Redis: router.PingerFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	hub.Close()

	logger.Info("server stopped")
}
