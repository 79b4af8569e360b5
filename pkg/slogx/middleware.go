package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/todo/pkg/idx"
)

// HTTPMiddleware logs requests and attaches a contextual logger into request context.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			// A caller's id is kept only if it is a well-formed ULID.
			reqID := idx.New().String()
			if id, err := idx.Parse(r.Header.Get("X-Request-ID")); err == nil {
				reqID = id.String()
			}

			logger := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			r = r.WithContext(WithRequestID(WithContext(r.Context(), logger), reqID))

			next.ServeHTTP(rw, r)

			logger.Debug("http_request",
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter

	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Transport is the client side of HTTPMiddleware. It logs each outgoing
// request through the context logger at debug level.
type Transport struct {
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	start := time.Now()
	logger := FromContext(r.Context()).With("method", r.Method, "path", r.URL.Path)

	resp, err := base.RoundTrip(r)
	if err != nil {
		logger.Debug("http_call_failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	logger.Debug("http_call",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}
