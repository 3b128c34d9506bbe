package metrics

import (
	"strconv"
	"time"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/observability"
)

// Outbound Slack call metrics.
const (
	AdmissionsTotal    = "slack_scheduler_admissions_total"
	AdmissionWait      = "slack_scheduler_admission_wait_ms"
	RateLimitedTotal   = "slack_scheduler_rate_limited_total"
	RateLimitPause     = "slack_scheduler_rate_limit_pause_ms"
	QueueDelaysTotal   = "slack_scheduler_queue_delays_total"
	QueueDepth         = "slack_scheduler_queue_depth"
	TransportRetries   = "slack_transport_retries_total"
	TransportBackoff   = "slack_transport_backoff_ms"
	TransportExhausted = "slack_transport_exhausted_total"
)

// Scheduler reports admission decisions to telemetry. It satisfies
// engine.Recorder.
type Scheduler struct{}

// RecordAdmission counts an admitted call and how long it queued.
func (Scheduler) RecordAdmission(method string, queued time.Duration) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	labels := map[string]string{"method": method}
	_ = sys.Counter(AdmissionsTotal, 1, labels)
	_ = sys.Histogram(AdmissionWait, queued, labels)
}

// RecordRateLimited counts a rate limited response and the pause it caused.
func (Scheduler) RecordRateLimited(method string, delay time.Duration) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	labels := map[string]string{"method": method}
	_ = sys.Counter(RateLimitedTotal, 1, labels)
	_ = sys.Histogram(RateLimitPause, delay, labels)
}

// RecordQueueDelay counts a queue delay warning and the depth at the time.
func (Scheduler) RecordQueueDelay(method string, wait time.Duration, depth int) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	_ = sys.Counter(QueueDelaysTotal, 1, map[string]string{"method": method})
	_ = sys.Gauge(QueueDepth, float64(depth), nil)
}

// Transport reports retries to telemetry. It satisfies transport.Recorder.
type Transport struct{}

// RecordRetry counts a failed attempt that will be retried after delay.
func (Transport) RecordRetry(attempt int, delay time.Duration) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	labels := map[string]string{"attempt": strconv.Itoa(attempt)}
	_ = sys.Counter(TransportRetries, 1, labels)
	_ = sys.Histogram(TransportBackoff, delay, labels)
}

// RecordExhausted counts a request that failed every attempt.
func (Transport) RecordExhausted(attempts int) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(TransportExhausted, 1, map[string]string{"attempts": strconv.Itoa(attempts)})
	}
}
