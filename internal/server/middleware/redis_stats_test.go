package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStats(t *testing.T) (*miniredis.Miniredis, *RedisThrottleStats) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisThrottleStats(rdb, "test:throttle:", time.Hour)
}

func TestRedisThrottleStatsRecord(t *testing.T) {
	mr, stats := newRedisStats(t)
	at := time.Date(2026, 5, 6, 7, 8, 30, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, stats.Record(ctx, ThrottleEvent{Key: "a", Allowed: true, Method: "POST", Path: "/v1/tools/{name}", At: at}))
	require.NoError(t, stats.Record(ctx, ThrottleEvent{Key: "a", Allowed: false, Method: "POST", Path: "/v1/tools/{name}", At: at}))
	require.NoError(t, stats.Record(ctx, ThrottleEvent{Key: "b", Allowed: true, Method: "GET", Path: "/v1/limits", At: at}))

	require.Equal(t, "test:throttle:total", stats.TotalKey())
	require.Equal(t, "2", mr.HGet("test:throttle:total", "allowed"))
	require.Equal(t, "1", mr.HGet("test:throttle:total", "denied"))

	bucket := "test:throttle:minute:202605060708"
	require.Equal(t, bucket, stats.MinuteKey(at))
	require.Equal(t, "2", mr.HGet(bucket, "allowed"))
	require.Equal(t, time.Hour, mr.TTL(bucket))

	require.Equal(t, "1", mr.HGet("test:throttle:route", "POST /v1/tools/{name}:denied"))
	require.Equal(t, "1", mr.HGet("test:throttle:route", "GET /v1/limits:allowed"))
}

func TestRedisThrottleStatsReportsUnavailable(t *testing.T) {
	mr, stats := newRedisStats(t)
	require.NoError(t, stats.Ping(context.Background()))

	mr.Close()
	require.Error(t, stats.Ping(context.Background()))
	require.Error(t, stats.Record(context.Background(), ThrottleEvent{Allowed: true}))
}

func TestOpenRedisThrottleStats(t *testing.T) {
	mr := miniredis.RunT(t)

	stats, err := OpenRedisThrottleStats(context.Background(), "redis://"+mr.Addr()+"/0", "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stats.Close() })
	require.Equal(t, DefaultStatsPrefix+":total", stats.TotalKey())

	_, err = OpenRedisThrottleStats(context.Background(), "not a url", "", 0)
	require.Error(t, err)
}

func TestThrottleReportsDecisionsToStats(t *testing.T) {
	mr, stats := newRedisStats(t)

	throttle := NewThrottle(0.001, 1, nil).WithStats(stats)
	h := throttle.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/limits", nil)
		req.RemoteAddr = "10.0.0.9:5000"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.Equal(t, "1", mr.HGet(stats.TotalKey(), "allowed"))
	require.Equal(t, "2", mr.HGet(stats.TotalKey(), "denied"))
	require.Equal(t, "2", mr.HGet("test:throttle:route", "GET /v1/limits:denied"))
}
