package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/smartportal/smartportal/internal/activity"
	"github.com/smartportal/smartportal/internal/app"
	"github.com/smartportal/smartportal/internal/auth"
	"github.com/smartportal/smartportal/internal/capture"
	"github.com/smartportal/smartportal/internal/dashboard"
	"github.com/smartportal/smartportal/internal/observability"
	"github.com/smartportal/smartportal/internal/platform/cache"
	"github.com/smartportal/smartportal/internal/platform/db"
	"github.com/smartportal/smartportal/internal/shared"
	"github.com/smartportal/smartportal/internal/view"
	"github.com/smartportal/smartportal/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "portal_session", cfg.SessionTTL, cfg.SessionTokenBytes, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	fileSink, err := activity.NewFileSink(cfg.ActivityLogDir)
	if err != nil {
		logger.Error("init activity log dir", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := fileSink.Close(); err != nil {
			logger.Warn("activity log close", slog.Any("error", err))
		}
	}()
	recorder := activity.NewRecorder(activity.MultiSink{activity.NewPGSink(dbpool), fileSink}, logger, 256)
	defer recorder.Close()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, recorder)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)
	gate := auth.Gate{Logger: logger}

	activityService := activity.NewService(activity.NewPGSink(dbpool))
	dashboardService := dashboard.NewService(dashboard.NewRepository(dbpool))
	dashboardHandler := dashboard.NewHandler(logger, dashboardService, activityService, templates, csrfManager, cfg.UploadDir)

	captureStore, err := capture.NewStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		logger.Error("init capture store", slog.Any("error", err))
		os.Exit(1)
	}
	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	captureHandler := capture.NewHandler(logger, captureStore, recorder, capture.StubVerifier{}, jobClient)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Gate:             gate,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		CaptureHandler:   captureHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
