package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TraceIDHeader carries the caller's trace ID; one is generated when absent.
const TraceIDHeader = "X-Trace-Id"

type contextKey string

const traceIDKey contextKey = "trace_id"

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// traceIDFromRequest returns the caller's trace ID, or a new UUID if the
// header is missing.
func traceIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(TraceIDHeader)); id != "" {
		return id
	}
	return uuid.New().String()
}

func traceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// route registers h under pattern wrapped with trace IDs, rate limiting,
// request logging and metrics.
func (s *Server) route(mux *http.ServeMux, pattern, operation string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := traceIDFromRequest(r)
		w.Header().Set(TraceIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), traceIDKey, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if s.limiter != nil && !s.limiter.allow(clientKey(r)) {
			s.metrics.rateLimited.Inc()
			s.writeError(rec, r, http.StatusTooManyRequests, codeRateLimited, errRateLimited)
		} else {
			h(rec, r)
		}

		elapsed := time.Since(start)
		s.metrics.requestsTotal.WithLabelValues(operation, strconv.Itoa(rec.status)).Inc()
		s.metrics.requestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())

		s.logger.Info().
			Str("trace_id", id).
			Str("operation", operation).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("request handled")
	})
}
