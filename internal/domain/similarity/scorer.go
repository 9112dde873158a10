// Package similarity re-scores nearest-neighbour candidates with a
// quantum-inspired overlap measure.
//
// Both embeddings are treated as amplitude vectors of unit norm. Their
// fidelity |<a|b>|^2 is blended with the plain cosine similarity:
//
//	c = clamp(dot(a, b), -1, 1)
//	q = max(c, 0)^2
//	s = alpha*q + (1-alpha)*max(c, 0)
//
// Both terms are non-decreasing in c, so re-scoring never reverses the order
// produced by the vector store. It only changes how confident a match looks.
package similarity

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/vecsight/internal/domain"
)

const (
	// DefaultBlendWeight is the default alpha.
	DefaultBlendWeight = 0.5
	// DefaultHighConfidence is the default high-confidence threshold.
	DefaultHighConfidence = 0.88
)

// Score is the scorer output for one candidate.
type Score struct {
	Raw            float64
	Quantum        float64
	Combined       float64
	HighConfidence bool
}

// Scorer is a pure, stateless similarity function. Safe for concurrent use.
type Scorer struct {
	alpha     float64
	threshold float64
}

// NewScorer validates alpha and threshold, both in [0, 1].
func NewScorer(alpha, threshold float64) (Scorer, error) {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return Scorer{}, fmt.Errorf("blend weight must be in [0, 1], got %v", alpha)
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return Scorer{}, fmt.Errorf("high confidence threshold must be in [0, 1], got %v", threshold)
	}
	return Scorer{alpha: alpha, threshold: threshold}, nil
}

// BlendWeight returns alpha.
func (s Scorer) BlendWeight() float64 { return s.alpha }

// Threshold returns the high-confidence threshold.
func (s Scorer) Threshold() float64 { return s.threshold }

// Score computes the similarity of two normalized embeddings.
func (s Scorer) Score(a, b domain.Embedding) (Score, error) {
	c, err := a.Dot(b)
	if err != nil {
		return Score{}, err
	}
	return s.FromRaw(c), nil
}

// FromRaw scores a cosine similarity supplied by the store.
func (s Scorer) FromRaw(c float64) Score {
	c = clamp(c, -1, 1)
	pos := math.Max(c, 0)
	q := pos * pos
	combined := s.alpha*q + (1-s.alpha)*pos
	return Score{
		Raw:            c,
		Quantum:        q,
		Combined:       combined,
		HighConfidence: combined >= s.threshold,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
