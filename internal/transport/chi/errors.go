package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/logger"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// clientSentinels are safe to echo back to the client.
var clientSentinels = []error{
	domain.ErrUnsupportedFormat,
	domain.ErrExtractionFailure,
	domain.ErrExtractorBusy,
	domain.ErrInvalidCategory,
	domain.ErrInvalidVector,
	domain.ErrInvalidRecord,
	domain.ErrDuplicateID,
	domain.ErrNotFound,
	domain.ErrStoreUnavailable,
	domain.ErrRateLimited,
}

type errorMapping struct {
	sentinel error
	status   int
	code     ErrorCode
}

// errorMappings is ordered: ErrExtractorBusy is checked before the generic extraction failure.
var errorMappings = []errorMapping{
	{domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, CodeUnsupportedMedia},
	{domain.ErrExtractorBusy, http.StatusServiceUnavailable, CodeExtractorBusy},
	{domain.ErrExtractionFailure, http.StatusUnprocessableEntity, CodeExtractionFailed},
	{domain.ErrInvalidCategory, http.StatusBadRequest, CodeInvalidCategory},
	{domain.ErrInvalidVector, http.StatusBadRequest, CodeBadRequest},
	{domain.ErrInvalidRecord, http.StatusBadRequest, CodeValidationFailed},
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrDuplicateID, http.StatusConflict, CodeDuplicateID},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable},
	{domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited},
}

func defaultErrorHandlers() []errorHandler {
	handlers := make([]errorHandler, len(errorMappings))
	for i, m := range errorMappings {
		handlers[i] = sentinelHandler(m.sentinel, m.status, m.code)
	}
	return handlers
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	for _, s := range clientSentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// errorCode returns the code err maps to, or internal_error.
func errorCode(err error) ErrorCode {
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			return m.code
		}
	}
	return CodeInternalError
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
