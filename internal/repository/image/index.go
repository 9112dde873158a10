package image

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/vecsight/internal/db"
	"github.com/kailas-cloud/vecsight/internal/domain"
)

// EnsureIndex creates the FT index if absent. An existing index declared with
// a different vector dimension is a deployment error.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	idx := r.indexName()
	exists, err := r.store.IndexExists(ctx, idx)
	if err != nil {
		return fmt.Errorf("check index %s: %w", idx, err)
	}
	if exists {
		return r.checkDim(ctx)
	}

	if err := r.store.CreateIndex(ctx, r.buildIndex()); err != nil {
		if isIndexExists(err) {
			// another replica created it first
			return r.checkDim(ctx)
		}
		return fmt.Errorf("create index %s: %w", idx, err)
	}
	return nil
}

func (r *Repo) checkDim(ctx context.Context) error {
	idx := r.indexName()
	dim, err := r.store.IndexVectorDim(ctx, idx, vectorAttr)
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("index %s disappeared: %w", idx, err)
		}
		return fmt.Errorf("inspect index %s: %w", idx, err)
	}
	if dim != r.dimension {
		return fmt.Errorf("%w: index %s has DIM %d, extractor produces %d",
			domain.ErrDimensionMismatch, idx, dim, r.dimension)
	}
	return nil
}

// buildIndex declares the HASH index over image records.
func (r *Repo) buildIndex() *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.keyPrefix()},
		Fields: []db.IndexField{
			{Name: fieldCategory, Type: db.IndexFieldTag},
			{Name: fieldSeq, Type: db.IndexFieldNumeric},
			{
				Name:  fieldVector,
				Alias: vectorAttr,
				Type:  db.IndexFieldVector,
				Vector: &db.VectorSpec{
					Algorithm:   db.VectorHNSW,
					Dim:         r.dimension,
					Distance:    db.DistanceCosine,
					M:           r.hnsw.M,
					EFConstruct: r.hnsw.EFConstruct,
				},
			},
		},
	}
}
