package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// normalizePath maps request paths to route patterns so labels stay bounded.
// Collection names are bounded by the route table, but anything can be sent,
// so the collection segment is collapsed too.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/events/firestore/"):
		return "/events/firestore/{collection}"
	case path == "/events/storage/finalize", path == "/events/storage/delete":
		return path
	case strings.HasPrefix(path, "/events/storage/"):
		return "/events/storage/{operation}"
	case path == "/health", path == "/ready", path == "/internal/metrics":
		return path
	default:
		return "other"
	}
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// HTTPMetrics records request duration, sizes and counts.
// /health and /ready are excluded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
