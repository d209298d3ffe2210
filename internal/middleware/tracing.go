package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// untracedPaths are polled by the platform and would drown the event traces.
var untracedPaths = map[string]bool{
	"/health":           true,
	"/ready":            true,
	"/internal/metrics": true,
}

// Tracing starts a server span named "METHOD path" for each pushed event.
// Incoming traceparent/tracestate headers continue the caller's trace, so a
// push from the event platform and the dispatch span below it share one
// trace. Health, readiness and metrics requests are not traced.
//
// Place it after RequestID in the chain; the request ID is set on the span.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		tagged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := GetRequestID(r.Context()); id != "" {
				trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("request.id", id))
			}
			next.ServeHTTP(w, r)
		})
		return otelhttp.NewHandler(tagged, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return !untracedPaths[strings.TrimSuffix(r.URL.Path, "/")]
			}),
		)
	}
}

// GetTraceID returns the hex trace ID of the active span, or "".
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// GetSpanID returns the hex span ID of the active span, or "".
func GetSpanID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}
