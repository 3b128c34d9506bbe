package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/observability"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/tools"
)

// Application-level metrics following Prometheus conventions
const (
	ToolCallsTotal = "app_tool_calls_total"
	ThrottledTotal = "app_requests_throttled_total"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"

	ErrorResponsesTotal = "app_error_responses_total"
	PanicsTotal         = "app_panics_total"
)

// RecordToolCall counts a tool invocation by outcome.
func RecordToolCall(tool string, err error) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "success"
	var validation *tools.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &validation):
		status = "invalid"
	default:
		status = "failure"
	}

	_ = observability.TelemetrySystem.Counter(
		ToolCallsTotal,
		1,
		map[string]string{
			"tool":   tool,
			"status": status,
		},
	)
}

// RecordThrottled counts an inbound request rejected by the throttle.
func RecordThrottled(endpoint string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ThrottledTotal,
			1,
			map[string]string{"endpoint": endpoint},
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// RecordErrorResponse counts an error envelope written to a client. endpoint
// is the route pattern and may be empty outside the router.
func RecordErrorResponse(code string, status int, endpoint string) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	labels := map[string]string{
		"error_code":  code,
		"http_status": strconv.Itoa(status),
	}
	if endpoint != "" {
		labels["endpoint"] = endpoint
	}
	_ = sys.Counter(ErrorResponsesTotal, 1, labels)
}

// RecordPanic counts a handler panic caught by the recovery middleware.
func RecordPanic() {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(PanicsTotal, 1, nil)
	}
}
