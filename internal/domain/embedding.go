package domain

import (
	"context"
	"fmt"
	"math"
)

// normEpsilon guards the division when normalizing near-zero vectors.
const normEpsilon = 1e-8

// Extractor is the shared image vectorization contract between layers.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (Embedding, error)
	Dimensions() int
}

// HealthChecker verifies extractor availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Embedding is an immutable L2-normalized feature vector.
type Embedding struct {
	values []float32
}

// NewEmbedding copies and L2-normalizes values.
// An all-zero or non-finite vector cannot be normalized and is rejected.
func NewEmbedding(values []float32) (Embedding, error) {
	if len(values) == 0 {
		return Embedding{}, fmt.Errorf("%w: empty vector", ErrInvalidVector)
	}
	var sum float64
	for i, v := range values {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Embedding{}, fmt.Errorf("%w: non-finite value at %d", ErrInvalidVector, i)
		}
		sum += f * f
	}
	norm := math.Sqrt(sum)
	if norm < normEpsilon {
		return Embedding{}, fmt.Errorf("%w: zero vector", ErrInvalidVector)
	}

	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(float64(v) / norm)
	}
	return Embedding{values: out}, nil
}

// ReconstructEmbedding wraps stored values without normalization (storage hydration).
func ReconstructEmbedding(values []float32) Embedding {
	return Embedding{values: values}
}

// Values returns a copy of the vector components.
func (e Embedding) Values() []float32 {
	out := make([]float32, len(e.values))
	copy(out, e.values)
	return out
}

// Dim returns the vector length.
func (e Embedding) Dim() int { return len(e.values) }

// IsZero reports whether the embedding carries no vector.
func (e Embedding) IsZero() bool { return len(e.values) == 0 }

// At returns component i.
func (e Embedding) At(i int) float32 { return e.values[i] }

// Norm returns the Euclidean norm.
func (e Embedding) Norm() float64 {
	var sum float64
	for _, v := range e.values {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Dot returns the inner product, accumulated in float64.
// Vectors of different length yield an error.
func (e Embedding) Dot(other Embedding) (float64, error) {
	if len(e.values) != len(other.values) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(e.values), len(other.values))
	}
	var sum float64
	for i, v := range e.values {
		sum += float64(v) * float64(other.values[i])
	}
	return sum, nil
}
