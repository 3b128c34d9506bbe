package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/observability"
)

// HTTP metric names.
const (
	HTTPRequestsTotal  = "http_requests_total"
	HTTPRequestLatency = "http_request_duration_ms"
	HTTPRequestSize    = "http_request_size_bytes"
	HTTPResponseSize   = "http_response_size_bytes"
	HTTPErrorsTotal    = "http_errors_total"
)

const toolsPrefix = "/v1/tools/"

// statusRecorder keeps the status and body size written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

// getEndpointPattern returns a bounded label for the request route. The chi
// pattern wins when routing has matched; otherwise known paths are folded.
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "/*") {
			return pattern
		}
	}

	path := r.URL.Path
	switch {
	case path == "/" || path == "/version" || path == "/metrics":
		return path
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case path == "/v1/tools" || path == "/v1/limits":
		return path
	case strings.HasPrefix(path, toolsPrefix):
		return toolsPrefix + "{name}"
	case path == "/admin/signal":
		return path
	default:
		return "/unknown"
	}
}

// toolName extracts the tool from a /v1/tools/{name} request. Only call it for
// successful requests, where the name is known to the registry.
func toolName(r *http.Request) string {
	if name := chi.URLParam(r, "name"); name != "" {
		return name
	}
	if strings.HasPrefix(r.URL.Path, toolsPrefix) {
		return strings.TrimPrefix(r.URL.Path, toolsPrefix)
	}
	return ""
}

// RequestMetrics emits request count, latency and size metrics and logs one
// line per request. Tool calls carry the tool name when the call succeeded.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys := observability.TelemetrySystem
		if sys == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		var requestSize int64
		if v := r.Header.Get("Content-Length"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				requestSize = n
			}
		}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		endpoint := getEndpointPattern(r)
		status := strconv.Itoa(rec.status)

		labels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
			"status":   status,
		}
		if rec.status < 400 && endpoint == toolsPrefix+"{name}" {
			labels["tool"] = toolName(r)
		}
		_ = sys.Counter(HTTPRequestsTotal, 1, labels)
		_ = sys.Histogram(HTTPRequestLatency, elapsed, labels)

		sizeLabels := map[string]string{"method": r.Method, "endpoint": endpoint}
		_ = sys.Gauge(HTTPRequestSize, float64(requestSize), sizeLabels)
		_ = sys.Gauge(HTTPResponseSize, float64(rec.bytes), sizeLabels)

		if rec.status >= 400 {
			class := "client_error"
			if rec.status >= 500 {
				class = "server_error"
			}
			_ = sys.Counter(HTTPErrorsTotal, 1, map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"status":     status,
				"error_type": class,
			})
		}

		if logger := observability.ServerLogger; logger != nil {
			logger.Info("HTTP request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", endpoint),
				zap.Int("status", rec.status),
				zap.Duration("duration", elapsed),
				zap.Int64("request_size", requestSize),
				zap.Int64("response_size", rec.bytes),
				zap.String("requestID", GetRequestID(r.Context())),
			)
		}
	})
}
