package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	healthuc "github.com/kailas-cloud/vecsight/internal/usecase/health"
	searchuc "github.com/kailas-cloud/vecsight/internal/usecase/search"
)

const (
	// DefaultMaxUploadBytes bounds an uploaded image.
	DefaultMaxUploadBytes = 20 << 20
	maxVectorBodyBytes    = 4 << 20
	multipartMemory       = 8 << 20
)

// Server serves the image search HTTP API.
type Server struct {
	search         *searchuc.Service
	health         *healthuc.Service
	logger         *zap.Logger
	maxUploadBytes int64
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search *searchuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{
		search:         search,
		health:         health,
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
		errorHandlers:  defaultErrorHandlers(),
	}
}

// WithMaxUploadBytes overrides the upload size limit.
func (s *Server) WithMaxUploadBytes(n int64) *Server {
	if n > 0 {
		s.maxUploadBytes = n
	}
	return s
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.Post("/search", s.Search)
	r.Post("/search-and-store", s.SearchAndStore)
	r.Post("/search/vector", s.SearchVector)
	r.Get("/stats", s.Stats)
	r.Get("/images/{id}", s.GetImage)
	r.Get("/categories", s.Categories)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	image, ok := s.readImage(w, r)
	if !ok {
		return
	}
	var params struct {
		K        *int
		Category *string
	}
	if err := bindForm(r, "k", &params.K); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if err := bindForm(r, "category", &params.Category); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	res, err := s.search.Search(r.Context(), image, searchuc.Query{
		K:        derefInt(params.K),
		Category: derefString(params.Category),
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchToResponse(&res))
}

// SearchAndStore handles POST /search-and-store.
func (s *Server) SearchAndStore(w http.ResponseWriter, r *http.Request) {
	image, ok := s.readImage(w, r)
	if !ok {
		return
	}
	var (
		k                        *int
		category, id, contentRef *string
	)
	for _, p := range []struct {
		name string
		dest any
	}{{"k", &k}, {"category", &category}, {"id", &id}, {"contentRef", &contentRef}} {
		if err := bindForm(r, p.name, p.dest); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
	}

	res, err := s.search.SearchAndStore(r.Context(), image, searchuc.StoreRequest{
		ID:         derefString(id),
		Category:   derefString(category),
		ContentRef: derefString(contentRef),
		K:          derefInt(k),
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := StoreResponse{
		SearchResponse: searchToResponse(&res.Result),
		Stored:         res.Stored,
		ID:             res.ID,
	}
	if res.StoreErr != nil {
		msg := safeDomainMessage(res.StoreErr)
		code := errorCode(res.StoreErr)
		resp.StoreError = &msg
		resp.StoreErrorCode = &code
	}
	writeJSON(w, http.StatusOK, resp)
}

// SearchVector handles POST /search/vector.
func (s *Server) SearchVector(w http.ResponseWriter, r *http.Request) {
	var req VectorSearchRequest
	body := http.MaxBytesReader(w, r.Body, maxVectorBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Vector) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "vector is required")
		return
	}

	res, err := s.search.SearchVector(r.Context(), req.Vector, searchuc.Query{
		K:        derefInt(req.K),
		Category: derefString(req.Category),
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchToResponse(&res))
}

// Stats handles GET /stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.search.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsToResponse(&st))
}

// GetImage handles GET /images/{id}.
func (s *Server) GetImage(w http.ResponseWriter, r *http.Request) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid format for parameter id: %s", err))
		return
	}

	rec, err := s.search.GetImage(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imageToResponse(&rec))
}

// Categories handles GET /categories.
func (s *Server) Categories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CategoriesResponse{Categories: s.search.Categories()})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthToResponse(&report))
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// readImage parses the multipart body and returns the "image" file bytes.
// It writes the error response itself and reports false on failure.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(min(s.maxUploadBytes, multipartMemory)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("image exceeds %d bytes", s.maxUploadBytes))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "multipart form with an image file is required")
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "image file is required")
		return nil, false
	}
	defer func() { _ = file.Close() }()

	if !isImageContentType(header.Header.Get("Content-Type")) {
		writeError(w, http.StatusUnsupportedMediaType, CodeUnsupportedMedia, "file must be an image")
		return nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "failed to read image")
		return nil, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusUnsupportedMediaType, CodeUnsupportedMedia, "image is empty")
		return nil, false
	}
	return data, true
}

// isImageContentType accepts image/* and the generic types clients send
// when they do not know better; decoding decides for the latter.
func isImageContentType(ct string) bool {
	if ct == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") || mediaType == "application/octet-stream"
}

// bindForm binds an optional form or query value (both land in r.Form).
func bindForm(r *http.Request, name string, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, r.Form, dest); err != nil {
		return fmt.Errorf("invalid format for parameter %s: %w", name, err)
	}
	return nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
