// Package trace tags each request with an ID and logs its completion.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "moodtracker/internal/log"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

type contextKey struct{}

// Middleware handles request tracing and logging
type Middleware struct {
	logger    *applog.Logger
	extractIP func(*http.Request) string
	total     atomic.Int64
}

// NewMiddleware creates a new trace middleware. Handlers find a request-scoped
// logger derived from logger through applog.FromContext.
func NewMiddleware(logger *applog.Logger, extractIP func(*http.Request) string) *Middleware {
	return &Middleware{logger: logger, extractIP: extractIP}
}

// Middleware assigns a request ID, echoes it in the response and logs the request
// once it completes. An incoming X-Request-ID that parses as a UUID is reused.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	withLogger := applog.Middleware(m.logger, RequestID)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.total.Add(1)

		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		r = r.WithContext(context.WithValue(r.Context(), contextKey{}, requestID))

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		withLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			clientIP := ""
			if m.extractIP != nil {
				clientIP = m.extractIP(r)
			}
			applog.LogHTTPEnd(r.Context(), r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
		})).ServeHTTP(rw, r)
	})
}

// Total is the number of requests seen so far.
func (m *Middleware) Total() int64 {
	return m.total.Load()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.written = true
	return rw.ResponseWriter.Write(b)
}

// RequestID extracts the request ID from r's context.
func RequestID(r *http.Request) string {
	return FromContext(r.Context())
}

// FromContext returns the request ID stored by Middleware, or "".
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}
