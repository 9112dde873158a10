// Package perceptual implements a deterministic pure-Go image descriptor.
//
// The image is downsampled to a coarse grid; per-cell colour and luminance
// contrast form a feature vector which a fixed-seed Gaussian random
// projection maps to the target dimension. Random projections approximately
// preserve angles, so visually similar images land close together.
package perceptual

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/imaging"
	"github.com/kailas-cloud/vecsight/internal/metrics"
)

const (
	providerName = "perceptual"

	colorGrid = 16
	lumaGrid  = 8
	// bias keeps the feature vector away from zero for flat mid-grey images.
	bias = 0.1

	featureLen = colorGrid*colorGrid*3 + lumaGrid*lumaGrid + 1
)

// DefaultSeed seeds the projection matrix. Changing it invalidates stored vectors.
const DefaultSeed uint64 = 0x7665637369676874

// Config holds perceptual extractor settings.
type Config struct {
	Dimensions int
	Seed       uint64
	Logger     *zap.Logger
}

// Extractor is safe for concurrent use: the projection is read-only after construction.
type Extractor struct {
	dim        int
	projection []float32 // dim rows of featureLen
	logger     *zap.Logger
}

// NewExtractor builds the projection matrix for cfg.Dimensions.
func NewExtractor(cfg *Config) (*Extractor, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	proj := make([]float32, cfg.Dimensions*featureLen)
	scale := 1 / math.Sqrt(float64(cfg.Dimensions))
	for i := range proj {
		proj[i] = float32(rng.NormFloat64() * scale)
	}

	return &Extractor{dim: cfg.Dimensions, projection: proj, logger: logger}, nil
}

// Extract decodes image bytes and projects their grid features.
func (e *Extractor) Extract(ctx context.Context, image []byte) (domain.Embedding, error) {
	features, err := Features(image)
	if err != nil {
		metrics.ExtractionErrorsTotal.WithLabelValues(providerName, "decode").Inc()
		return domain.Embedding{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Embedding{}, err
	}

	out := make([]float32, e.dim)
	for r := 0; r < e.dim; r++ {
		row := e.projection[r*featureLen : (r+1)*featureLen]
		var sum float64
		for i, f := range features {
			sum += float64(row[i]) * float64(f)
		}
		out[r] = float32(sum)
	}

	emb, err := domain.NewEmbedding(out)
	if err != nil {
		metrics.ExtractionErrorsTotal.WithLabelValues(providerName, "normalize").Inc()
		return domain.Embedding{}, fmt.Errorf("%w: %w", domain.ErrExtractionFailure, err)
	}
	return emb, nil
}

// Dimensions returns the projected vector size.
func (e *Extractor) Dimensions() int { return e.dim }

// HealthCheck always succeeds; the extractor has no external dependency.
func (e *Extractor) HealthCheck(context.Context) error { return nil }

// Features decodes data and returns the raw grid descriptor: centred per-cell
// RGB means, per-cell luminance relative to the image mean, and a bias term.
func Features(data []byte) ([]float32, error) {
	img, _, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}

	features := make([]float32, 0, featureLen)

	small := imaging.Resize(img, colorGrid, colorGrid)
	for y := 0; y < colorGrid; y++ {
		for x := 0; x < colorGrid; x++ {
			px := small.RGBAAt(x, y)
			features = append(features,
				float32(px.R)/255-0.5,
				float32(px.G)/255-0.5,
				float32(px.B)/255-0.5,
			)
		}
	}

	luma := make([]float32, 0, lumaGrid*lumaGrid)
	var mean float32
	tiny := imaging.Resize(img, lumaGrid, lumaGrid)
	for y := 0; y < lumaGrid; y++ {
		for x := 0; x < lumaGrid; x++ {
			px := tiny.RGBAAt(x, y)
			l := (0.299*float32(px.R) + 0.587*float32(px.G) + 0.114*float32(px.B)) / 255
			luma = append(luma, l)
			mean += l
		}
	}
	mean /= float32(len(luma))
	for _, l := range luma {
		features = append(features, l-mean)
	}

	return append(features, bias), nil
}
