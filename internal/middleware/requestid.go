package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

const (
	// RequestIDHeader carries the request ID in both directions.
	RequestIDHeader = "X-Request-ID"

	// EventIDHeader is the CloudEvents ID set by the event platform on a
	// pushed trigger. Redeliveries of one event share it.
	EventIDHeader = "Ce-Id"

	maxRequestIDLen = 128
)

// RequestID tags each request with an ID, stores it in the context and
// echoes it in the X-Request-ID response header.
//
// The ID is taken from X-Request-ID, then from the pushed event's Ce-Id, and
// generated as a UUID otherwise. Values that are too long or contain
// non-printable characters are replaced so they cannot forge log lines.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := incomingID(r)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID)))
	})
}

func incomingID(r *http.Request) string {
	for _, h := range []string{RequestIDHeader, EventIDHeader} {
		if id := r.Header.Get(h); validRequestID(id) {
			return id
		}
	}
	return ""
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetRequestID returns the request ID, or "" outside RequestID.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
