package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsight/internal/config"
	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/domain/similarity"
	logpkg "github.com/kailas-cloud/vecsight/internal/logger"
	"github.com/kailas-cloud/vecsight/internal/metrics"
	chiTransport "github.com/kailas-cloud/vecsight/internal/transport/chi"
	healthuc "github.com/kailas-cloud/vecsight/internal/usecase/health"
	searchuc "github.com/kailas-cloud/vecsight/internal/usecase/search"
	"github.com/kailas-cloud/vecsight/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, logpkg.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}

	logger.Info("Starting vecsight API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("extractor", cfg.Extractor.Provider),
		zap.Int("dimension", cfg.Extractor.Dimension),
	)

	// exit only after run's deferred cleanup (store close, snapshot)
	err = run(&cfg, logger)
	if err != nil {
		logger.Error("vecsight stopped with error", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Domain metrics are registered explicitly, before any decorator records.
	metrics.RegisterMetrics()

	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer backend.close()
	logger.Info("Vector store ready", zap.String("driver", cfg.Store.Driver))

	chain, err := buildExtractor(cfg, backend.cache, logger)
	if err != nil {
		return fmt.Errorf("build extractor: %w", err)
	}
	defer func() {
		if err := chain.lazy.Close(); err != nil {
			logger.Warn("Failed to release extractor", zap.Error(err))
		}
	}()
	if cfg.Extractor.Warmup {
		if err := chain.lazy.Load(ctx); err != nil {
			return fmt.Errorf("extractor warmup: %w", err)
		}
		logger.Info("Extractor warmed up", zap.String("provider", cfg.Extractor.Provider))
	}

	scorer, err := similarity.NewScorer(cfg.Search.BlendWeight, cfg.Search.HighConfidenceThreshold)
	if err != nil {
		return fmt.Errorf("scoring settings: %w", err)
	}
	categories, err := domain.NewCategorySet(cfg.Search.Categories)
	if err != nil {
		return fmt.Errorf("category set: %w", err)
	}

	retry := searchuc.DefaultRetryConfig()
	if cfg.Store.Retries > 0 {
		retry.Attempts = cfg.Store.Retries
	}
	if cfg.Store.TimeoutMS > 0 {
		retry.Timeout = time.Duration(cfg.Store.TimeoutMS) * time.Millisecond
	}

	searchSvc := searchuc.New(backend.store, chain.extractor, scorer, searchuc.Config{
		TopK:                cfg.Search.TopK,
		MaxTopK:             cfg.Search.MaxTopK,
		MinScore:            cfg.Search.MinScore,
		ExactMatchThreshold: cfg.Search.ExactMatchThreshold,
		Categories:          categories,
		Retry:               retry,
	})
	healthSvc := healthuc.New(backend.store, chain.extractor, chain.lazy).
		WithTimeout(time.Duration(cfg.HTTP.HealthTimeoutMS) * time.Millisecond)

	server := chiTransport.NewServer(searchSvc, healthSvc, logger).
		WithMaxUploadBytes(cfg.HTTP.MaxUploadBytes)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(chiTransport.RateLimitMiddleware(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
