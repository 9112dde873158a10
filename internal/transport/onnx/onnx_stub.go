//go:build !cgo

package onnx

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsight/internal/domain"
)

// Config holds ONNX extractor settings.
type Config struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
	Dimensions  int
	Logger      *zap.Logger
}

// Extractor is unavailable without cgo.
type Extractor struct{}

// NewExtractor always fails: ONNX Runtime requires cgo.
func NewExtractor(*Config) (*Extractor, error) {
	return nil, fmt.Errorf("%w: %w", domain.ErrExtractionFailure,
		errors.New("onnx provider requires a cgo build with onnxruntime"))
}

// Extract always fails.
func (e *Extractor) Extract(context.Context, []byte) (domain.Embedding, error) {
	return domain.Embedding{}, domain.ErrExtractionFailure
}

// Dimensions returns 0.
func (e *Extractor) Dimensions() int { return 0 }

// Close is a no-op.
func (e *Extractor) Close() error { return nil }
