// Package search orchestrates image similarity queries:
// extract, query, score, optionally insert, respond.
package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/domain/record"
	"github.com/kailas-cloud/vecsight/internal/domain/similarity"
	"github.com/kailas-cloud/vecsight/internal/logger"
	"github.com/kailas-cloud/vecsight/internal/metrics"
)

// Search modes used as metric labels.
const (
	modeImage  = "image"
	modeStore  = "store"
	modeVector = "vector"
)

// Config holds ranking settings.
type Config struct {
	TopK                int
	MaxTopK             int
	MinScore            float64
	ExactMatchThreshold float64
	Categories          domain.CategorySet
	Retry               RetryConfig
}

// Service runs image similarity searches against a vector store.
type Service struct {
	store   VectorStore
	extract Extractor
	scorer  similarity.Scorer
	cfg     Config
	now     func() time.Time
}

// New creates a search service.
func New(store VectorStore, extract Extractor, scorer similarity.Scorer, cfg Config) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.MaxTopK < cfg.TopK {
		cfg.MaxTopK = cfg.TopK
	}
	return &Service{store: store, extract: extract, scorer: scorer, cfg: cfg, now: time.Now}
}

// Search finds the records most similar to an uploaded image.
func (s *Service) Search(ctx context.Context, image []byte, q Query) (Result, error) {
	res, err := s.search(ctx, image, q)
	s.observe(modeImage, res, err)
	return res, err
}

func (s *Service) search(ctx context.Context, image []byte, q Query) (Result, error) {
	category, err := s.filterCategory(q.Category)
	if err != nil {
		return Result{}, err
	}
	emb, err := s.extractFeatures(ctx, image)
	if err != nil {
		return Result{}, err
	}
	return s.rank(ctx, emb, s.resolveK(q.K), category)
}

// SearchAndStore searches with an uploaded image and then inserts it as a new
// record. A failed insert is reported in the result; the search part is kept.
func (s *Service) SearchAndStore(ctx context.Context, image []byte, req StoreRequest) (StoreResult, error) {
	res, err := s.searchAndStore(ctx, image, req)
	s.observe(modeStore, res.Result, err)
	return res, err
}

func (s *Service) searchAndStore(ctx context.Context, image []byte, req StoreRequest) (StoreResult, error) {
	log := logger.FromContext(ctx)

	category := normalizeCategory(req.Category)
	if category == "" {
		return StoreResult{}, fmt.Errorf("%w: category is required", domain.ErrInvalidCategory)
	}
	if err := s.cfg.Categories.Validate(category); err != nil {
		return StoreResult{}, err //nolint:wrapcheck // domain sentinel
	}
	id := req.ID
	if id == "" {
		id = record.NewID()
	} else if err := record.ValidateID(id); err != nil {
		return StoreResult{}, err //nolint:wrapcheck // domain sentinel
	}

	emb, err := s.extractFeatures(ctx, image)
	if err != nil {
		return StoreResult{}, err
	}
	res, err := s.rank(ctx, emb, s.resolveK(req.K), "")
	if err != nil {
		return StoreResult{}, err
	}

	log.Debug("search state", zap.String("state", "inserting"), zap.String("id", id))
	out := StoreResult{Result: res, ID: id}
	rec, err := record.New(id, category, req.ContentRef, emb, s.now())
	if err != nil {
		out.StoreErr = err
		return out, nil
	}
	attempts := 0
	_, err = withRetry(ctx, s.cfg.Retry, "insert", func(ctx context.Context) (struct{}, error) {
		attempts++
		return struct{}{}, s.store.Insert(ctx, rec)
	})
	// a duplicate after a failed attempt may be that attempt's own write
	if attempts > 1 && errors.Is(err, domain.ErrDuplicateID) && s.landed(ctx, rec) {
		log.Info("Image insert confirmed after lost reply", zap.String("id", id))
		err = nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return StoreResult{}, err
		}
		log.Warn("Image insert failed after search",
			zap.String("id", id),
			zap.String("category", category),
			zap.Error(err),
		)
		out.StoreErr = err
		return out, nil
	}
	out.Stored = true
	return out, nil
}

// landed reports whether the store already holds rec as written by this request.
func (s *Service) landed(ctx context.Context, rec record.Record) bool {
	got, err := withRetry(ctx, s.cfg.Retry, "get", func(ctx context.Context) (record.Record, error) {
		return s.store.Get(ctx, rec.ID())
	})
	if err != nil {
		return false
	}
	return got.Category() == rec.Category() &&
		got.ContentRef() == rec.ContentRef() &&
		slices.Equal(got.Embedding().Values(), rec.Embedding().Values())
}

// SearchVector finds the records most similar to a client-supplied vector.
func (s *Service) SearchVector(ctx context.Context, vector []float32, q Query) (Result, error) {
	res, err := s.searchVector(ctx, vector, q)
	s.observe(modeVector, res, err)
	return res, err
}

func (s *Service) searchVector(ctx context.Context, vector []float32, q Query) (Result, error) {
	if dim := s.extract.Dimensions(); len(vector) != dim {
		return Result{}, fmt.Errorf("%w: got %d values, want %d", domain.ErrInvalidVector, len(vector), dim)
	}
	category, err := s.filterCategory(q.Category)
	if err != nil {
		return Result{}, err
	}
	emb, err := domain.NewEmbedding(vector)
	if err != nil {
		return Result{}, err //nolint:wrapcheck // domain sentinel
	}
	return s.rank(ctx, emb, s.resolveK(q.K), category)
}

// GetImage returns a stored record by id.
func (s *Service) GetImage(ctx context.Context, id string) (record.Record, error) {
	if err := record.ValidateID(id); err != nil {
		return record.Record{}, domain.ErrNotFound
	}
	return withRetry(ctx, s.cfg.Retry, "get", func(ctx context.Context) (record.Record, error) {
		return s.store.Get(ctx, id)
	})
}

// Stats returns record counts and the effective scoring settings.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := withRetry(ctx, s.cfg.Retry, "stats", func(ctx context.Context) (record.Stats, error) {
		return s.store.Stats(ctx, s.cfg.Categories.Names())
	})
	if err != nil {
		return Stats{}, err
	}
	return Stats{Stats: st, Settings: s.Settings()}, nil
}

// Categories returns the configured category set in order.
func (s *Service) Categories() []string { return s.cfg.Categories.Names() }

// Settings returns the effective scoring configuration.
func (s *Service) Settings() Settings {
	return Settings{
		Dimension:               s.extract.Dimensions(),
		BlendWeight:             s.scorer.BlendWeight(),
		HighConfidenceThreshold: s.scorer.Threshold(),
		ExactMatchThreshold:     s.cfg.ExactMatchThreshold,
		MinScore:                s.cfg.MinScore,
		TopK:                    s.cfg.TopK,
		MaxTopK:                 s.cfg.MaxTopK,
	}
}

func (s *Service) extractFeatures(ctx context.Context, image []byte) (domain.Embedding, error) {
	logger.FromContext(ctx).Debug("search state",
		zap.String("state", "extracting"),
		zap.Int("image_bytes", len(image)),
	)
	emb, err := s.extract.Extract(ctx, image)
	if err != nil {
		return domain.Embedding{}, fmt.Errorf("extract features: %w", err)
	}
	return emb, nil
}

// rank runs Querying, Scoring and Responding for an extracted embedding.
func (s *Service) rank(ctx context.Context, emb domain.Embedding, k int, category string) (Result, error) {
	log := logger.FromContext(ctx)

	log.Debug("search state",
		zap.String("state", "querying"),
		zap.Int("k", k),
		zap.String("category", category),
	)
	candidates, err := withRetry(ctx, s.cfg.Retry, "query", func(ctx context.Context) ([]record.Candidate, error) {
		return s.store.Query(ctx, emb, k, category)
	})
	if err != nil {
		return Result{}, err
	}

	log.Debug("search state", zap.String("state", "scoring"), zap.Int("candidates", len(candidates)))
	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		sc := s.score(emb, c)
		if sc.Combined < s.cfg.MinScore {
			continue
		}
		hits = append(hits, Hit{
			ID:             c.ID,
			Category:       c.Category,
			ContentRef:     c.ContentRef,
			Score:          sc.Combined,
			QuantumScore:   sc.Quantum,
			RawScore:       sc.Raw,
			HighConfidence: sc.HighConfidence,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}

	res := s.respond(hits)
	log.Debug("search state",
		zap.String("state", "responding"),
		zap.String("status", string(res.Status)),
		zap.Int("results", len(res.Hits)),
	)
	return res, nil
}

// score prefers the stored vector; it falls back to the store's similarity.
func (s *Service) score(q domain.Embedding, c record.Candidate) similarity.Score {
	if !c.Embedding.IsZero() {
		if sc, err := s.scorer.Score(q, c.Embedding); err == nil {
			return sc
		}
	}
	return s.scorer.FromRaw(c.Score)
}

func (s *Service) respond(hits []Hit) Result {
	res := Result{Hits: hits, Status: StatusNotFound}
	if len(hits) == 0 {
		return res
	}
	for _, h := range hits {
		if h.HighConfidence {
			res.HighConfidenceCount++
		}
	}
	switch {
	case hits[0].Score >= s.cfg.ExactMatchThreshold:
		res.ExactMatch = hits[0].ID
		res.Status = StatusExactMatch
	case res.HighConfidenceCount > 0:
		res.Status = StatusHighConfidence
	default:
		res.Status = StatusLowConfidence
	}
	return res
}

func (s *Service) resolveK(k int) int {
	if k <= 0 {
		return s.cfg.TopK
	}
	return min(k, s.cfg.MaxTopK)
}

func (s *Service) filterCategory(category string) (string, error) {
	category = normalizeCategory(category)
	if category == "" {
		return "", nil
	}
	if err := s.cfg.Categories.Validate(category); err != nil {
		return "", err //nolint:wrapcheck // domain sentinel
	}
	return category, nil
}

func (s *Service) observe(mode string, res Result, err error) {
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(mode, "error").Inc()
		return
	}
	metrics.SearchRequestsTotal.WithLabelValues(mode, string(res.Status)).Inc()
	metrics.SearchResultsReturned.Observe(float64(len(res.Hits)))
}

func normalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
