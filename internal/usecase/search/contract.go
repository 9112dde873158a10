package search

import (
	"context"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/domain/record"
)

// VectorStore persists image records and answers nearest-neighbour queries.
type VectorStore interface {
	Insert(ctx context.Context, rec record.Record) error
	Query(ctx context.Context, emb domain.Embedding, k int, category string) ([]record.Candidate, error)
	Get(ctx context.Context, id string) (record.Record, error)
	Stats(ctx context.Context, categories []string) (record.Stats, error)
}

// Extractor vectorizes image bytes.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (domain.Embedding, error)
	Dimensions() int
}
