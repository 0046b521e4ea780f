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

	"github.com/odyssey-erp/odyssey-invoicing/internal/app"
	"github.com/odyssey-erp/odyssey-invoicing/internal/documents"
	"github.com/odyssey-erp/odyssey-invoicing/internal/fx"
	"github.com/odyssey-erp/odyssey-invoicing/internal/masterdata"
	"github.com/odyssey-erp/odyssey-invoicing/internal/observability"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-invoicing/jobs"
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

	dbpool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	provider := fx.NewECBProvider(cfg.FXProviderURL, cfg.FXHistoryURL, &http.Client{Timeout: cfg.FXLookupTimeout})
	resolver := fx.NewResolver(provider, fx.NewPGRepository(dbpool), fx.NewCache(redisClient, cfg.FXCacheTTL), logger, fx.ResolverConfig{
		Timeout:    cfg.FXLookupTimeout,
		Registerer: metrics.Registerer(),
	})

	masterdataService := masterdata.NewService(masterdata.NewRepository(dbpool), logger)
	formatter := documents.NewFormatter(cfg.Locale())

	store := documents.NewStore(documents.StoreConfig{
		Resolver:      resolver,
		Formatter:     formatter,
		Logger:        logger,
		Metrics:       metrics,
		IdleTTL:       cfg.SessionIdleTTL,
		LookupTimeout: cfg.FXLookupTimeout,
	})
	go store.Run(ctx)

	documentService := documents.NewService(documents.ServiceConfig{
		Store:         store,
		MasterData:    masterdataService,
		Resolver:      resolver,
		Formatter:     formatter,
		Logger:        logger,
		Metrics:       metrics,
		LookupTimeout: cfg.FXLookupTimeout,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           metrics,
		DocumentsHandler:  documents.NewHandler(logger, documentService),
		MasterDataHandler: masterdata.NewHandler(logger, masterdataService),
		FXHandler:         fx.NewHandler(logger, resolver),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Readiness: map[string]app.ReadinessCheck{
			"postgres": func(ctx context.Context) error { return db.Ping(ctx, dbpool, time.Second) },
			"redis":    func(ctx context.Context) error { return cache.Ping(ctx, redisClient) },
		},
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
	store.Close()
}
