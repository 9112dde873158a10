package chi

import (
	"time"

	"github.com/kailas-cloud/vecsight/internal/domain/record"
	healthuc "github.com/kailas-cloud/vecsight/internal/usecase/health"
	searchuc "github.com/kailas-cloud/vecsight/internal/usecase/search"
)

// ErrorCode is the machine-readable error identifier in ErrorResponse.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeUnsupportedMedia ErrorCode = "unsupported_format"
	CodePayloadTooLarge  ErrorCode = "payload_too_large"
	CodeExtractionFailed ErrorCode = "extraction_failed"
	CodeInvalidCategory  ErrorCode = "invalid_category"
	CodeNotFound         ErrorCode = "not_found"
	CodeDuplicateID      ErrorCode = "duplicate_id"
	CodeExtractorBusy    ErrorCode = "extractor_busy"
	CodeStoreUnavailable ErrorCode = "store_unavailable"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ResultItem is one ranked match.
type ResultItem struct {
	ID             string  `json:"id"`
	Category       string  `json:"category"`
	ContentRef     string  `json:"contentRef"`
	Score          float64 `json:"score"`
	QuantumScore   float64 `json:"quantumScore"`
	RawScore       float64 `json:"rawScore"`
	HighConfidence bool    `json:"highConfidence"`
}

// SearchResponse is returned by the search endpoints.
type SearchResponse struct {
	Results             []ResultItem `json:"results"`
	ExactMatch          *string      `json:"exactMatch"`
	Status              string       `json:"status"`
	Total               int          `json:"total"`
	HighConfidenceCount int          `json:"highConfidenceCount"`
}

// StoreResponse is returned by POST /search-and-store.
type StoreResponse struct {
	SearchResponse
	Stored         bool       `json:"stored"`
	ID             string     `json:"id"`
	StoreError     *string    `json:"storeError,omitempty"`
	StoreErrorCode *ErrorCode `json:"storeErrorCode,omitempty"`
}

// VectorSearchRequest is the body of POST /search/vector.
type VectorSearchRequest struct {
	Vector   []float32 `json:"vector"`
	K        *int      `json:"k,omitempty"`
	Category *string   `json:"category,omitempty"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Total                   int            `json:"total"`
	Categories              map[string]int `json:"categories"`
	Dimension               int            `json:"dimension"`
	BlendWeight             float64        `json:"blendWeight"`
	HighConfidenceThreshold float64        `json:"highConfidenceThreshold"`
	ExactMatchThreshold     float64        `json:"exactMatchThreshold"`
	MinScore                float64        `json:"minScore"`
	TopK                    int            `json:"topK"`
	MaxTopK                 int            `json:"maxTopK"`
}

// ImageResponse is returned by GET /images/{id}.
type ImageResponse struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	ContentRef string    `json:"contentRef"`
	CreatedAt  time.Time `json:"createdAt"`
	Dimension  int       `json:"dimension"`
}

// CategoriesResponse is returned by GET /categories.
type CategoriesResponse struct {
	Categories []string `json:"categories"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func searchToResponse(res *searchuc.Result) SearchResponse {
	items := make([]ResultItem, len(res.Hits))
	for i, h := range res.Hits {
		items[i] = ResultItem{
			ID:             h.ID,
			Category:       h.Category,
			ContentRef:     h.ContentRef,
			Score:          h.Score,
			QuantumScore:   h.QuantumScore,
			RawScore:       h.RawScore,
			HighConfidence: h.HighConfidence,
		}
	}
	var exact *string
	if res.ExactMatch != "" {
		e := res.ExactMatch
		exact = &e
	}
	return SearchResponse{
		Results:             items,
		ExactMatch:          exact,
		Status:              string(res.Status),
		Total:               len(items),
		HighConfidenceCount: res.HighConfidenceCount,
	}
}

func statsToResponse(st *searchuc.Stats) StatsResponse {
	cats := st.Categories
	if cats == nil {
		cats = map[string]int{}
	}
	return StatsResponse{
		Total:                   st.Total,
		Categories:              cats,
		Dimension:               st.Dimension,
		BlendWeight:             st.BlendWeight,
		HighConfidenceThreshold: st.HighConfidenceThreshold,
		ExactMatchThreshold:     st.ExactMatchThreshold,
		MinScore:                st.MinScore,
		TopK:                    st.TopK,
		MaxTopK:                 st.MaxTopK,
	}
}

func imageToResponse(rec *record.Record) ImageResponse {
	return ImageResponse{
		ID:         rec.ID(),
		Category:   rec.Category(),
		ContentRef: rec.ContentRef(),
		CreatedAt:  rec.CreatedAt(),
		Dimension:  rec.Embedding().Dim(),
	}
}

func healthToResponse(r *healthuc.Report) HealthResponse {
	checks := make(map[string]string, len(r.Checks))
	for k, v := range r.Checks {
		checks[k] = string(v)
	}
	return HealthResponse{Status: string(r.Status), Checks: checks}
}
