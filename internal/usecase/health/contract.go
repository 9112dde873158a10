package health

import "context"

// StorePinger checks vector store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// ExtractorChecker checks feature extractor availability.
type ExtractorChecker interface {
	HealthCheck(ctx context.Context) error
}

// ModelState reports whether a lazily loaded model is ready.
type ModelState interface {
	Loaded() bool
}
