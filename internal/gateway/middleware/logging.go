package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// UnmatchedRoute labels requests that no route matched.
const UnmatchedRoute = "unmatched"

// quietPaths are polled by monitors: not logged and not rate limited.
var quietPaths = map[string]bool{
	"/api/v1/health": true,
	"/metrics":       true,
}

// RequestObserver receives one observation per request.
type RequestObserver func(method, route string, status int)

// responseWriter wraps http.ResponseWriter to capture status code and the
// matched route template.
// It also implements http.Hijacker to support WebSocket upgrades,
// and http.Flusher to support streaming.
type responseWriter struct {
	http.ResponseWriter
	status int
	route  string
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker interface for WebSocket support.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Flush implements http.Flusher interface for streaming support.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Logging returns a middleware that logs HTTP requests and reports them to
// observe, which may be nil.
func Logging(logger zerolog.Logger, observe RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK, route: UnmatchedRoute}

			next.ServeHTTP(wrapped, r)

			if observe != nil {
				observe(r.Method, wrapped.route, wrapped.status)
			}

			// Skip logging for health check requests to reduce noise
			if quietPaths[r.URL.Path] {
				return
			}

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", wrapped.route).
				Int("status", wrapped.status).
				Dur("latency", time.Since(start)).
				Str("ip", getClientIP(r)).
				Msg("HTTP request")
		})
	}
}

// RouteLabel is a mux middleware that records the matched route template
// for Logging, keeping metric labels bounded.
func RouteLabel(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rw, ok := w.(*responseWriter); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					rw.route = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (for proxied requests)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr without the port
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
