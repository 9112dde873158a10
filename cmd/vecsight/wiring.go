package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsight/internal/config"
	"github.com/kailas-cloud/vecsight/internal/db"
	dbRedis "github.com/kailas-cloud/vecsight/internal/db/redis"
	dbValkey "github.com/kailas-cloud/vecsight/internal/db/valkey"
	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/metrics"
	"github.com/kailas-cloud/vecsight/internal/repository/featcache"
	imagerepo "github.com/kailas-cloud/vecsight/internal/repository/image"
	"github.com/kailas-cloud/vecsight/internal/repository/memory"
	"github.com/kailas-cloud/vecsight/internal/repository/pgvector"
	"github.com/kailas-cloud/vecsight/internal/transport/onnx"
	openaiExt "github.com/kailas-cloud/vecsight/internal/transport/openai"
	"github.com/kailas-cloud/vecsight/internal/transport/perceptual"
	"github.com/kailas-cloud/vecsight/internal/usecase/extraction"
	searchuc "github.com/kailas-cloud/vecsight/internal/usecase/search"
)

// vectorStore is what the search and health services need from a backend.
type vectorStore interface {
	searchuc.VectorStore
	Ping(ctx context.Context) error
}

// backend bundles the selected store with its shutdown hook.
type backend struct {
	store vectorStore
	cache db.KVStore // L2 feature cache; nil unless the store is Redis-compatible
	close func()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	dim := cfg.Extractor.Dimension
	sc := cfg.Store

	switch sc.Driver {
	case "valkey", "redis":
		var (
			store db.Store
			err   error
		)
		rcfg := dbRedis.Config{
			Addrs:        sc.Addrs,
			Username:     sc.Username,
			Password:     sc.Password,
			DB:           sc.DB,
			WriteTimeout: time.Duration(sc.WriteTimeoutMS) * time.Millisecond,
		}
		if sc.Driver == "valkey" {
			store, err = dbValkey.NewStore(rcfg)
		} else {
			store, err = dbRedis.NewStore(rcfg)
		}
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", sc.Driver, err)
		}
		if err := store.WaitForReady(ctx, time.Duration(sc.ReadinessTimeout)*time.Second); err != nil {
			store.Close()
			return nil, fmt.Errorf("%s not ready: %w", sc.Driver, err)
		}
		repo := imagerepo.New(store, sc.KeyPrefix, dim).WithHNSW(imagerepo.HNSWConfig{
			M:           sc.HNSWM,
			EFConstruct: sc.HNSWEFConstruct,
		})
		if err := repo.EnsureIndex(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("ensure index: %w", err)
		}
		return &backend{store: repo, cache: store, close: store.Close}, nil

	case "postgres":
		conn, err := pgvector.Open(ctx, sc.DSN, sc.Postgres.MaxOpenConns)
		if err != nil {
			return nil, err //nolint:wrapcheck // already wrapped by Open
		}
		repo := pgvector.New(conn, sc.Postgres.Table, dim)
		if sc.Postgres.AutoMigrate {
			err = repo.EnsureSchema(ctx)
		} else {
			err = repo.CheckDimension(ctx)
		}
		if err != nil {
			closeDB(conn, logger)
			return nil, fmt.Errorf("prepare schema: %w", err)
		}
		return &backend{store: repo, close: func() { closeDB(conn, logger) }}, nil

	case "memory":
		repo, err := memory.New(dim)
		if err != nil {
			return nil, fmt.Errorf("create memory store: %w", err)
		}
		path := sc.Memory.SnapshotPath
		if path == "" {
			return &backend{store: repo, close: func() {}}, nil
		}
		if err := repo.Load(path); err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		logger.Info("Snapshot loaded", zap.String("path", path), zap.Int("records", repo.Size()))
		return &backend{store: repo, close: func() {
			if err := repo.Save(path); err != nil {
				logger.Error("Failed to save snapshot", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("Snapshot saved", zap.String("path", path), zap.Int("records", repo.Size()))
		}}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

func closeDB(conn *sql.DB, logger *zap.Logger) {
	if err := conn.Close(); err != nil {
		logger.Warn("Failed to close postgres", zap.Error(err))
	}
}

// extractorChain is the composed extractor plus the lazy stage that owns the model.
type extractorChain struct {
	extractor *extraction.Instrumented
	lazy      *extraction.Lazy
}

// buildExtractor assembles the decorator chain:
// provider -> Lazy -> Pool -> FeatureCache -> Instrumented.
func buildExtractor(cfg *config.Config, cache db.KVStore, logger *zap.Logger) (*extractorChain, error) {
	ec := cfg.Extractor
	dim := ec.Dimension

	load := func(context.Context) (domain.Extractor, error) {
		switch ec.Provider {
		case "onnx":
			return onnx.NewExtractor(&onnx.Config{
				ModelPath:   ec.ONNX.ModelPath,
				LibraryPath: ec.ONNX.LibraryPath,
				InputName:   ec.ONNX.InputName,
				OutputName:  ec.ONNX.OutputName,
				Dimensions:  dim,
				Logger:      logger,
			})
		case "openai":
			return openaiExt.NewExtractor(&openaiExt.Config{
				APIKey:         ec.OpenAI.APIKey,
				BaseURL:        ec.OpenAI.BaseURL,
				VisionModel:    ec.OpenAI.VisionModel,
				EmbeddingModel: ec.OpenAI.EmbeddingModel,
				Dimensions:     dim,
				Logger:         logger,
			}), nil
		case "perceptual":
			return perceptual.NewExtractor(&perceptual.Config{
				Dimensions: dim,
				Seed:       perceptual.DefaultSeed,
				Logger:     logger,
			})
		default:
			return nil, fmt.Errorf("unknown extractor provider %q", ec.Provider)
		}
	}

	lazy := extraction.NewLazy(load, ec.Provider, dim, logger)

	pool, err := extraction.NewPool(lazy, ec.Workers, ec.MaxQueue)
	if err != nil {
		return nil, fmt.Errorf("create extraction pool: %w", err)
	}

	var ext domain.Extractor = pool
	if ec.Cache.Enabled {
		cached, err := featcache.New(pool, cache, featcache.Config{
			KeyPrefix: cfg.Store.KeyPrefix,
			L1Size:    ec.Cache.L1Size,
			TTL:       time.Duration(ec.Cache.TTLSec) * time.Second,
		}, metrics.FeatureCacheTotal, logger)
		if err != nil {
			return nil, fmt.Errorf("create feature cache: %w", err)
		}
		ext = cached
	}

	return &extractorChain{
		extractor: extraction.NewInstrumented(ext, ec.Provider, logger),
		lazy:      lazy,
	}, nil
}
