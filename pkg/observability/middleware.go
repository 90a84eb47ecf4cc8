package observability

import (
	"net/http"
	"strconv"
	"time"
)

// MetricsMiddleware records conduit_requests_total and
// conduit_request_duration_seconds for every request, and holds
// conduit_streaming_connections_active up while an SSE response is open.
// Status codes are collapsed to their class ("2xx", "4xx") to keep label
// cardinality flat.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Streaming intent comes from the Accept header; the gauge covers
		// the full lifetime of the response, not just the handler call.
		if r.Header.Get("Accept") == "text/event-stream" {
			StreamingConnections.Inc()
			defer StreamingConnections.Dec()
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		// The model label stays "unknown" here. Reading it would mean
		// parsing request bodies at the transport layer; handlers that
		// know the model record the provider metrics themselves.
		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(r.Method, class, "unknown").Inc()
		RequestDuration.WithLabelValues(r.Method, "unknown").Observe(time.Since(start).Seconds())
	})
}

// statusWriter remembers the first status code written. A later
// WriteHeader cannot change it, matching net/http semantics.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Flush passes through so SSE deltas leave the process promptly.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
