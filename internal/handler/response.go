package handler

// Every error response has the same shape:
//
//	{"error": "Repository is already being tracked", "details": "Alice/Demo"}
//
// error is the human-readable summary; details carries the upstream or
// diagnostic context when there is any that is safe to show.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/forkwatch/internal/apperror"
)

// ErrorResponse is the error body of every API endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sends data as JSON with the given status. Headers must be set
// before WriteHeader; nothing can be changed once the body starts.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an error to its HTTP status.
//
// The wrapping kinds (webhook setup, upstream, delete, store) are checked
// first: they join a cause that may itself match one of the plain kinds.
// An already-tracked conflict is reported as 400 like other input errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrWebhookSetup):
		return http.StatusInternalServerError
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, apperror.ErrDelete), errors.Is(err, apperror.ErrStore):
		return http.StatusInternalServerError
	case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error to a status and an ErrorResponse.
//
// Store failures never expose their cause: it may contain SQL or paths.
// Unknown errors get a generic 500.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	resp := ErrorResponse{Error: appErr.Message, Field: appErr.Field}
	switch {
	case errors.Is(err, apperror.ErrWebhookSetup):
		resp.Details = appErr.Detail
		if appErr.Status != 0 {
			resp.Details = fmt.Sprintf("GitHub responded %d: %s", appErr.Status, appErr.Detail)
		}
	case errors.Is(err, apperror.ErrStore), errors.Is(err, apperror.ErrDelete):
		// cause stays in the logs
	case errors.Is(err, apperror.ErrConflict):
		// the conflicting name is already in the message context
	default:
		resp.Details = appErr.Detail
	}
	writeJSON(w, statusFor(err), resp)
}

// decodeJSON reads a JSON request body into dst, bounded to maxBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
	return nil
}
