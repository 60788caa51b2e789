package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-api-connect/internal/domain"
	"github.com/go-api-connect/internal/pkg/validate"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SuccessEnvelope acknowledges operations that return no data.
type SuccessEnvelope struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// decode reads a JSON body into dst and validates it, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// statusOf maps a domain error to an HTTP status. ErrUpstream is checked
// first because upstream errors may also wrap a gateway's ErrNotFound.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// httpError writes err with its mapped status. Server errors are logged and
// reported without infrastructure detail.
func httpError(w http.ResponseWriter, err error) {
	writeStatusError(w, statusOf(err), err)
}

// httpErrorNotFoundAsBadRequest is httpError for endpoints that report a
// missing OTP or code as a client error.
func httpErrorNotFoundAsBadRequest(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusNotFound {
		status = http.StatusBadRequest
	}
	writeStatusError(w, status, err)
}

func writeStatusError(w http.ResponseWriter, status int, err error) {
	if status < http.StatusInternalServerError {
		writeError(w, status, err.Error())
		return
	}
	slog.Error("request failed", "err", err)
	msg := "internal server error"
	if errors.Is(err, domain.ErrMailDeliveryFailed) {
		msg = "failed to send OTP email"
	}
	writeError(w, status, msg)
}
