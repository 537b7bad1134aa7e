package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"

	"go.uber.org/zap"
)

const maxJSONBody = 1 << 20

// errorResponse is the body of every non-2xx JSON answer.
type errorResponse struct {
	Error string      `json:"error"`
	Code  domain.Code `json:"code"`
	Field string      `json:"field,omitempty"`
}

var statusByCode = map[domain.Code]int{
	domain.CodeNotAuthenticated: http.StatusUnauthorized,
	domain.CodeValidation:       http.StatusBadRequest,
	domain.CodeNotFound:         http.StatusNotFound,
	domain.CodeCircuitOpen:      http.StatusServiceUnavailable,
	domain.CodeRemote:           http.StatusBadGateway,
	domain.CodeInternal:         http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code domain.Code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// handleServiceError writes err as a JSON error body. Backend and internal
// failures are logged with detail and answered with a generic message.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	code := domain.ErrorCode(err)
	resp := errorResponse{Error: err.Error(), Code: code}

	switch code {
	case domain.CodeValidation:
		var v *domain.ErrValidation
		if errors.As(err, &v) {
			resp.Field = v.Field
		}
		logger.Debug("request rejected", zap.String("field", resp.Field), zap.Error(err))
	case domain.CodeNotAuthenticated:
		logger.Warn("not authenticated", zap.Error(err))
	case domain.CodeNotFound:
		logger.Debug("not found", zap.Error(err))
	case domain.CodeCircuitOpen:
		logger.Error("circuit breaker open", zap.Error(err))
	case domain.CodeRemote:
		logger.Error("backend error", zap.Error(err))
		resp.Error = "backend unavailable"
	default:
		logger.Error("unhandled error", zap.Error(err))
		resp.Error = "internal server error"
	}

	writeJSON(w, statusByCode[code], resp)
}

// decodeJSON decodes a bounded request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "malformed JSON"}
	}
	return nil
}

// parseDate accepts RFC 3339 timestamps and YYYY-MM-DD dates. An empty
// value yields the zero time.
func parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &domain.ErrValidation{Field: field, Message: "must be RFC 3339 or YYYY-MM-DD"}
}

// parseLimit reads ?limit=. Missing or non-positive values mean no limit.
func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
