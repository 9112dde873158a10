//go:build cgo

package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/metrics"
)

const providerName = "onnx"

// Config holds ONNX extractor settings.
type Config struct {
	ModelPath   string
	LibraryPath string // onnxruntime shared library; empty uses the platform default
	InputName   string
	OutputName  string
	Dimensions  int
	Logger      *zap.Logger
}

// Extractor runs image inference with a single pre-allocated session.
// Run is serialized because the session reuses its input and output tensors.
type Extractor struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	dim     int
	logger  *zap.Logger
	mu      sync.Mutex
}

var envOnce sync.Once
var envErr error

func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// NewExtractor loads the model and allocates the session tensors.
func NewExtractor(cfg *Config) (*Extractor, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: model path is required", domain.ErrExtractionFailure)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", domain.ErrExtractionFailure)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("%w: initialize onnx runtime: %w", domain.ErrExtractionFailure, err)
	}

	input, err := ort.NewTensor(ort.NewShape(inputShape()...), make([]float32, channels*cropSize*cropSize))
	if err != nil {
		return nil, fmt.Errorf("%w: create input tensor: %w", domain.ErrExtractionFailure, err)
	}
	output, err := ort.NewTensor(ort.NewShape(1, int64(cfg.Dimensions)), make([]float32, cfg.Dimensions))
	if err != nil {
		_ = input.Destroy()
		return nil, fmt.Errorf("%w: create output tensor: %w", domain.ErrExtractionFailure, err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		nil,
	)
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, fmt.Errorf("%w: load model %s: %w", domain.ErrExtractionFailure, cfg.ModelPath, err)
	}

	logger.Info("onnx model loaded",
		zap.String("model", cfg.ModelPath),
		zap.Int("dimensions", cfg.Dimensions),
	)
	return &Extractor{
		session: session,
		input:   input,
		output:  output,
		dim:     cfg.Dimensions,
		logger:  logger,
	}, nil
}

// Extract preprocesses image bytes and runs the model.
func (e *Extractor) Extract(ctx context.Context, image []byte) (domain.Embedding, error) {
	data, err := Preprocess(image)
	if err != nil {
		metrics.ExtractionErrorsTotal.WithLabelValues(providerName, "decode").Inc()
		return domain.Embedding{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Embedding{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return domain.Embedding{}, fmt.Errorf("%w: extractor closed", domain.ErrExtractionFailure)
	}

	copy(e.input.GetData(), data)
	if err := e.session.Run(); err != nil {
		metrics.ExtractionErrorsTotal.WithLabelValues(providerName, "inference").Inc()
		return domain.Embedding{}, fmt.Errorf("%w: inference: %w", domain.ErrExtractionFailure, err)
	}

	out := e.output.GetData()
	if len(out) != e.dim {
		metrics.ExtractionErrorsTotal.WithLabelValues(providerName, "output_size").Inc()
		return domain.Embedding{}, fmt.Errorf("%w: model returned %d values, want %d",
			domain.ErrExtractionFailure, len(out), e.dim)
	}

	emb, err := domain.NewEmbedding(out)
	if err != nil {
		metrics.ExtractionErrorsTotal.WithLabelValues(providerName, "normalize").Inc()
		return domain.Embedding{}, fmt.Errorf("%w: %w", domain.ErrExtractionFailure, err)
	}
	return emb, nil
}

// Dimensions returns the model output size.
func (e *Extractor) Dimensions() int { return e.dim }

// Close destroys the session and its tensors.
func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if e.session != nil {
		errs = append(errs, e.session.Destroy())
		e.session = nil
	}
	if e.input != nil {
		errs = append(errs, e.input.Destroy())
		e.input = nil
	}
	if e.output != nil {
		errs = append(errs, e.output.Destroy())
		e.output = nil
	}
	return errors.Join(errs...)
}
