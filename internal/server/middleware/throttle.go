package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"golang.org/x/time/rate"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/metrics"
)

// ClientKeyHeader lets callers behind a shared address identify themselves
// to the throttle.
const ClientKeyHeader = "X-Client-ID"

// KeyFunc derives the throttle bucket for a request.
type KeyFunc func(r *http.Request) string

// ClientKey uses ClientKeyHeader when present and the remote host otherwise.
// Run it after chi's RealIP so RemoteAddr reflects forwarding headers.
func ClientKey(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(ClientKeyHeader)); v != "" {
		return v
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// ThrottleEvent is one admit or reject decision.
type ThrottleEvent struct {
	Key     string
	Allowed bool
	Method  string
	Path    string
	At      time.Time
}

// ThrottleStats receives every decision. Record errors never fail the request.
type ThrottleStats interface {
	Record(ctx context.Context, ev ThrottleEvent) error
}

// Throttle applies a token bucket per client key to inbound requests.
type Throttle struct {
	limit rate.Limit
	burst int
	keyFn KeyFunc
	now   func() time.Time
	stats ThrottleStats

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewThrottle allows perSecond sustained requests per client with the given
// burst. keyFn defaults to ClientKey.
func NewThrottle(perSecond float64, burst int, keyFn KeyFunc) *Throttle {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = ClientKey
	}
	return &Throttle{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		keyFn:    keyFn,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// WithStats sends every decision to stats. A nil stats is ignored.
func (t *Throttle) WithStats(stats ThrottleStats) *Throttle {
	t.stats = stats
	return t
}

func (t *Throttle) limiter(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	lim, ok := t.limiters[key]
	if !ok {
		lim = rate.NewLimiter(t.limit, t.burst)
		t.limiters[key] = lim
	}
	return lim
}

// reserve takes a token for key, returning the wait before one would be
// available when the bucket is empty.
func (t *Throttle) reserve(key string) (time.Duration, bool) {
	now := t.now()
	res := t.limiter(key).ReserveN(now, 1)
	if !res.OK() {
		return time.Second, false
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay, false
	}
	return 0, true
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := t.keyFn(r)
		delay, ok := t.reserve(key)
		if t.stats != nil {
			_ = t.stats.Record(r.Context(), ThrottleEvent{
				Key:     key,
				Allowed: ok,
				Method:  r.Method,
				Path:    getEndpointPattern(r),
				At:      t.now(),
			})
		}
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		seconds := int(math.Ceil(delay.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		metrics.RecordThrottled(getEndpointPattern(r))

		envelope := errors.NewErrorEnvelope("RATE_LIMITED", "Too many requests").
			WithCorrelationID(GetRequestID(r.Context()))
		envelope = envelope.WithDetails(map[string]interface{}{
			"retry_after_seconds": seconds,
		})
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeErrorResponse(w, envelope, http.StatusTooManyRequests)
	})
}
