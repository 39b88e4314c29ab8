package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/paperstack/paperstack/pkg/observability"
)

// sensitivePrefixes are route prefixes that get audited even for reads.
// Key verification and admin surfaces always leave a trail.
var sensitivePrefixes = []string{"/auth", "/admin", "/audit", "/apikeys"}

// Middleware records HTTP requests in the audit log. With logAllRequests
// off, only mutations, failures, and sensitive reads are recorded.
type Middleware struct {
	logger         Logger
	logAllRequests bool
}

// NewMiddleware creates a new audit middleware
func NewMiddleware(logger Logger, logAllRequests bool) *Middleware {
	return &Middleware{logger: logger, logAllRequests: logAllRequests}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Handler wraps an HTTP handler with audit logging
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := WithLogger(r.Context(), m.logger)
		ctx = WithRequestStartTime(ctx, start)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		if !m.logAllRequests && !m.shouldLogRequest(r, wrapped.statusCode) {
			return
		}

		// Audit failures must not fail the request.
		if err := m.logger.LogHTTPRequest(ctx, r, wrapped.statusCode, time.Since(start), nil); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("audit log write failed")
		}
	})
}

// shouldLogRequest reports whether this request belongs in the audit log:
// any mutation, any error response, or a read of a sensitive endpoint.
func (m *Middleware) shouldLogRequest(r *http.Request, statusCode int) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return true
	}
	if statusCode >= 400 {
		return true
	}
	return isSensitiveEndpoint(r.URL.Path)
}

func isSensitiveEndpoint(path string) bool {
	for _, prefix := range sensitivePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// WithAPIKeyID records the verified API key ID on the context so event
// builders can attribute requests to a specific key.
func WithAPIKeyID(ctx context.Context, keyID int64) context.Context {
	return context.WithValue(ctx, contextKey("audit_api_key_id"), keyID)
}

// GetAPIKeyID retrieves the API key ID from the request context, if any.
func GetAPIKeyID(ctx context.Context) *int64 {
	if id, ok := ctx.Value(contextKey("audit_api_key_id")).(int64); ok {
		return &id
	}
	return nil
}
