// Package image stores image records as hashes indexed by an FT vector index
// (Redis Stack or valkey-search).
package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/vecsight/internal/db"
	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/domain/record"
)

// store is the consumer interface for image records (ISP).
//
//nolint:interfacebloat // insert path needs hash + counter + index + search operations
type store interface {
	Ping(ctx context.Context) error
	HSetIfAbsent(ctx context.Context, key string, fields map[string]string) (bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Incr(ctx context.Context, key string) (int64, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	IndexVectorDim(ctx context.Context, name, attribute string) (int, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements usecase/search.VectorStore on an FT index.
type Repo struct {
	store     store
	prefix    string
	dimension int
	hnsw      HNSWConfig
}

// New creates an image repository. prefix namespaces every key ("vecsight:").
func New(s store, prefix string, dimension int) *Repo {
	return &Repo{store: s, prefix: prefix, dimension: dimension, hnsw: HNSWConfig{M: 16, EFConstruct: 200}}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// Ping checks store connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Insert stores a new record. The hash is created in one atomic step, so a
// failed or timed-out insert never leaves a partial record behind. Sequence
// numbers burnt by failed inserts leave gaps, which ordering tolerates.
func (r *Repo) Insert(ctx context.Context, rec record.Record) error {
	if got := rec.Embedding().Dim(); got != r.dimension {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, got, r.dimension)
	}

	seq, err := r.store.Incr(ctx, r.seqKey())
	if err != nil {
		return fmt.Errorf("incr %s: %w", r.seqKey(), err)
	}

	key := r.imageKey(rec.ID())
	created, err := r.store.HSetIfAbsent(ctx, key, buildHashFields(rec.WithSeq(seq)))
	if err != nil {
		return fmt.Errorf("create %s: %w", key, err)
	}
	if !created {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateID, rec.ID())
	}
	return nil
}

// Query returns up to k nearest records, optionally restricted to one category.
func (r *Repo) Query(
	ctx context.Context, emb domain.Embedding, k int, category string,
) ([]record.Candidate, error) {
	if got := emb.Dim(); got != r.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, got, r.dimension)
	}

	q := &db.KNNQuery{
		IndexName:    r.indexName(),
		VectorField:  vectorAttr,
		Vector:       emb.Values(),
		K:            k,
		ReturnFields: returnFields,
	}
	if category != "" {
		q.Tags = []db.TagFilter{{Field: fieldCategory, Value: category}}
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}
	if sr == nil {
		return nil, nil
	}

	out := make([]record.Candidate, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		out = append(out, r.parseCandidate(e))
	}
	record.SortCandidates(out)
	return out, nil
}

// Get returns a stored record by id.
func (r *Repo) Get(ctx context.Context, id string) (record.Record, error) {
	key := r.imageKey(id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return record.Record{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(m) == 0 || m[fieldVector] == "" {
		return record.Record{}, domain.ErrNotFound
	}
	return parseHashFields(id, m), nil
}

// Stats counts all records and the records of each given category.
func (r *Repo) Stats(ctx context.Context, categories []string) (record.Stats, error) {
	idx := r.indexName()
	total, err := r.store.SearchCount(ctx, idx, "*")
	if err != nil {
		return record.Stats{}, fmt.Errorf("count %s: %w", idx, err)
	}

	stats := record.Stats{Total: total, Categories: make(map[string]int, len(categories))}
	for _, c := range categories {
		query := categoryQuery(c)
		n, err := r.store.SearchCount(ctx, idx, query)
		if err != nil {
			return record.Stats{}, fmt.Errorf("count %s %s: %w", idx, query, err)
		}
		stats.Categories[c] = n
	}
	return stats, nil
}

func (r *Repo) parseCandidate(e db.SearchEntry) record.Candidate {
	id := e.Fields[fieldID]
	if id == "" {
		id = strings.TrimPrefix(e.Key, r.keyPrefix())
	}
	c := record.Candidate{
		ID:         id,
		Category:   e.Fields[fieldCategory],
		ContentRef: e.Fields[fieldContentRef],
		Score:      e.Score,
		Seq:        parseSeq(e.Fields[fieldSeq]),
	}
	if raw, ok := e.Fields[fieldVector]; ok && len(raw) == r.dimension*4 {
		c.Embedding = domain.ReconstructEmbedding(bytesToVector(raw))
	}
	return c
}

func (r *Repo) keyPrefix() string { return r.prefix + "img:" }

func (r *Repo) imageKey(id string) string { return r.keyPrefix() + id }

func (r *Repo) indexName() string { return r.keyPrefix() + "idx" }

// seqKey lives outside the image prefix so SCAN-based counts never see it.
func (r *Repo) seqKey() string { return r.prefix + "meta:img_seq" }

func isIndexExists(err error) bool { return errors.Is(err, db.ErrIndexExists) }
