// Package memory is an in-process exact vector store using brute-force inner
// product search. Suitable for tests, local runs and small datasets.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/domain/record"
)

// Repo implements usecase/search.VectorStore in memory.
type Repo struct {
	dimension int

	mu      sync.RWMutex
	records []record.Record
	byID    map[string]int
	nextSeq int64
}

// New creates an empty in-memory store.
func New(dimension int) (*Repo, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}
	return &Repo{dimension: dimension, byID: make(map[string]int)}, nil
}

// Ping always succeeds.
func (r *Repo) Ping(context.Context) error { return nil }

// Insert stores a new record and assigns it the next insertion sequence.
func (r *Repo) Insert(ctx context.Context, rec record.Record) error {
	if got := rec.Embedding().Dim(); got != r.dimension {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, got, r.dimension)
	}
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context error is self-describing
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[rec.ID()]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateID, rec.ID())
	}
	r.nextSeq++
	r.byID[rec.ID()] = len(r.records)
	r.records = append(r.records, rec.WithSeq(r.nextSeq))
	return nil
}

// Query scores every record (optionally of one category) and returns the top k.
func (r *Repo) Query(
	ctx context.Context, emb domain.Embedding, k int, category string,
) ([]record.Candidate, error) {
	if got := emb.Dim(); got != r.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, got, r.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	r.mu.RLock()
	out := make([]record.Candidate, 0, len(r.records))
	for i := range r.records {
		rec := &r.records[i]
		if category != "" && rec.Category() != category {
			continue
		}
		score, err := emb.Dot(rec.Embedding())
		if err != nil {
			r.mu.RUnlock()
			return nil, fmt.Errorf("score %s: %w", rec.ID(), err)
		}
		out = append(out, record.Candidate{
			ID:         rec.ID(),
			Category:   rec.Category(),
			ContentRef: rec.ContentRef(),
			Score:      score,
			Embedding:  rec.Embedding(),
			Seq:        rec.Seq(),
		})
	}
	r.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // context error is self-describing
	}

	record.SortCandidates(out)
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

// Get returns a stored record by id.
func (r *Repo) Get(_ context.Context, id string) (record.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return record.Record{}, domain.ErrNotFound
	}
	return r.records[i], nil
}

// Stats counts all records and the records of each given category.
func (r *Repo) Stats(_ context.Context, categories []string) (record.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := record.Stats{Total: len(r.records), Categories: make(map[string]int, len(categories))}
	for _, c := range categories {
		stats.Categories[c] = 0
	}
	for i := range r.records {
		c := r.records[i].Category()
		if _, ok := stats.Categories[c]; ok {
			stats.Categories[c]++
		}
	}
	return stats, nil
}

// Size returns the number of stored records.
func (r *Repo) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
