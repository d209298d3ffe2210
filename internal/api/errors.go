// Package api provides the HTTP surface of the audit service: push endpoints
// for document and storage triggers, health checks and error envelopes.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/docaudit/internal/middleware"
)

// Error codes carried in the error envelope and logged as error_code.
const (
	// ErrCodeValidation marks an event that parsed but cannot be recorded as
	// sent: an empty change, a collection mismatch or a missing snapshot.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed marks a push without a valid bearer token.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound marks a path outside the event endpoints.
	ErrCodeNotFound = "not_found"

	// ErrCodeBadRequest marks a body that is not a trigger payload.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeUnknownRoute marks an event for a collection or operation that
	// is not audited.
	ErrCodeUnknownRoute = "unknown_route"

	// ErrCodeRecordFailed marks an event whose audit record could not be
	// built or emitted. The platform redelivers it.
	ErrCodeRecordFailed = "record_failed"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
// It writes the appropriate HTTP status code and returns a JSON error body.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code will be automatically logged by the logging middleware
// for all 4xx and 5xx responses if you call SetErrorCode on the context
// and pass the updated context to WriteError.
//
// Example:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeUnknownRoute)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeUnknownRoute, "No handler for Scenes")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the status sent with code. Unknown codes map
// to 500 so the platform retries.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound, ErrCodeUnknownRoute:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
