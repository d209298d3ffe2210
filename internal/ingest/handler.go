package ingest

import (
	"crypto/subtle"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InternalTokenHeader carries the shared token for internal endpoints.
const InternalTokenHeader = "X-Internal-Token"

// MetricsHandler serves the metrics gathered by reg.
func MetricsHandler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// InternalAuthMiddleware requires the X-Internal-Token header to equal token.
// An empty token disables the check.
func InternalAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get(InternalTokenHeader)
			if subtle.ConstantTimeCompare([]byte(headerToken), []byte(token)) != 1 {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
