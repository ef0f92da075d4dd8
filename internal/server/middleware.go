package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	cachegate "github.com/eugener/cachegate/internal"
)

// requestIDHeader is in canonical form so map access skips canonicalization.
const requestIDHeader = "X-Request-Id"

// maxRequestIDLen bounds client-supplied request IDs echoed into logs.
const maxRequestIDLen = 128

var internalErrorBody = []byte("internal server error")

// recovery turns a handler panic into a 500 for that request only.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func (s *server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.LogAttrs(r.Context(), slog.LevelError, "panic recovered",
				slog.Any("error", rec),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			writeText(w, http.StatusInternalServerError, internalErrorBody)
		}()
		next.ServeHTTP(w, r)
	})
}

// requestID tags the request context with an ID for log correlation,
// reusing a well-formed inbound X-Request-Id or minting a UUIDv7. Request
// and response headers are left untouched.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if vals := r.Header[requestIDHeader]; len(vals) == 1 && isValidToken(vals[0], maxRequestIDLen) {
			id = vals[0]
		} else {
			id = uuid.Must(uuid.NewV7()).String()
		}
		next.ServeHTTP(w, r.WithContext(cachegate.ContextWithRequestID(r.Context(), id)))
	})
}

// isValidToken accepts 1..maxLen bytes of [a-zA-Z0-9._-].
func isValidToken(s string, maxLen int) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

// observe writes the access log line and, when metrics are enabled, the
// request metrics. Both read the cache outcome the proxy handler recorded
// on the request context.
func (s *server) observe(next http.Handler) http.Handler {
	m := s.deps.Metrics
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m != nil {
			m.ActiveRequests.Inc()
			defer m.ActiveRequests.Dec()
		}
		start := time.Now()
		rw := acquireRecorder(w)
		defer releaseRecorder(rw)

		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		ctx := r.Context()
		outcome := cachegate.CacheStatusFromContext(ctx)
		slog.LogAttrs(ctx, slog.LevelInfo, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.String("cache", string(outcome)),
			slog.Int64("bytes", rw.written),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
			slog.String("request_id", cachegate.RequestIDFromContext(ctx)),
		)
		if m != nil {
			recordRequest(m, r, rw.status, outcome, elapsed)
		}
	})
}

// responseRecorder captures the status code and body size of a response.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

var recorderPool = sync.Pool{
	New: func() any { return new(responseRecorder) },
}

func acquireRecorder(w http.ResponseWriter) *responseRecorder {
	rw := recorderPool.Get().(*responseRecorder)
	*rw = responseRecorder{ResponseWriter: w, status: http.StatusOK}
	return rw
}

// releaseRecorder drops the ResponseWriter reference before pooling.
func releaseRecorder(rw *responseRecorder) {
	*rw = responseRecorder{}
	recorderPool.Put(rw)
}

// WriteHeader keeps the first status, as net/http does.
func (rw *responseRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
