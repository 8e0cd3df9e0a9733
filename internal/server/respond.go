package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/voyagen/streamshelf/internal/fetcher"
	"github.com/voyagen/streamshelf/internal/service"
	"github.com/voyagen/streamshelf/internal/store"
	"github.com/voyagen/streamshelf/internal/xtream"
)

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	var ve *service.ValidationError
	var fe *fetcher.FetchError
	switch {
	case errors.As(err, &ve), errors.Is(err, service.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrIngestInProgress), errors.Is(err, service.ErrRefreshUnsupported):
		return http.StatusConflict
	case errors.Is(err, service.ErrAuthFailed),
		errors.Is(err, store.ErrInvalidParent),
		errors.Is(err, store.ErrInvalidProgram):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fe), errors.Is(err, xtream.ErrDecode):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writeJSON", zap.Error(err))
	}
}

func (s *Server) writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	})
}

// fail writes err with the status statusFor picks.
func (s *Server) fail(w http.ResponseWriter, err error) {
	s.writeErr(w, statusFor(err), err)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return false
	}
	return true
}

// maxBodyBytes bounds request bodies; pasted M3U text is the largest.
const maxBodyBytes = 64 << 20

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
