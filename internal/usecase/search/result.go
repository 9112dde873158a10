package search

import "github.com/kailas-cloud/vecsight/internal/domain/record"

// Status summarizes how well the best result matched.
type Status string

const (
	// StatusNotFound means no result passed the filters.
	StatusNotFound Status = "not_found"
	// StatusExactMatch means the top result reached the exact-match threshold.
	StatusExactMatch Status = "exact_match"
	// StatusHighConfidence means at least one result is high-confidence.
	StatusHighConfidence Status = "high_confidence"
	// StatusLowConfidence means results exist but none is high-confidence.
	StatusLowConfidence Status = "low_confidence"
)

// Query holds per-request search options. Zero values use the service defaults.
type Query struct {
	K        int
	Category string // optional filter
}

// StoreRequest describes the record to insert after a search.
type StoreRequest struct {
	ID         string // generated when empty
	Category   string
	ContentRef string
	K          int
}

// Hit is one scored search result.
type Hit struct {
	ID             string
	Category       string
	ContentRef     string
	Score          float64 // combined
	QuantumScore   float64
	RawScore       float64
	HighConfidence bool
}

// Result is the ranked outcome of a search.
type Result struct {
	Hits                []Hit
	ExactMatch          string // empty when no result is an exact match
	Status              Status
	HighConfidenceCount int
}

// StoreResult is a search result plus the outcome of the follow-up insert.
// The search part is valid even when Stored is false.
type StoreResult struct {
	Result
	ID       string
	Stored   bool
	StoreErr error
}

// Settings exposes the effective scoring configuration.
type Settings struct {
	Dimension               int
	BlendWeight             float64
	HighConfidenceThreshold float64
	ExactMatchThreshold     float64
	MinScore                float64
	TopK                    int
	MaxTopK                 int
}

// Stats is the store summary reported with the scoring settings.
type Stats struct {
	record.Stats
	Settings
}
