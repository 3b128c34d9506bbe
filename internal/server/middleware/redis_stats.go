package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStatsPrefix namespaces throttle counters in Redis.
const DefaultStatsPrefix = "slack_mcp:throttle"

// RedisThrottleStats aggregates throttle decisions in Redis so several
// server instances report one set of counters. Layout under prefix:
//
//	<prefix>:total                   hash allowed/denied, never expires
//	<prefix>:minute:<YYYYMMDDhhmm>   hash allowed/denied, expires after ttl
//	<prefix>:route                   hash "<METHOD> <route>:<allowed|denied>"
type RedisThrottleStats struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisThrottleStats records into rdb. An empty prefix uses
// DefaultStatsPrefix; ttl <= 0 keeps minute buckets forever.
func NewRedisThrottleStats(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisThrottleStats {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultStatsPrefix
	}
	return &RedisThrottleStats{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Record increments the total, minute, and route counters in one pipeline.
func (s *RedisThrottleStats) Record(ctx context.Context, ev ThrottleEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.TotalKey(), field, 1)

	bucket := s.MinuteKey(at)
	pipe.HIncrBy(ctx, bucket, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucket, s.ttl)
	}

	if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record throttle stats: %w", err)
	}
	return nil
}

// TotalKey is the hash holding lifetime counters.
func (s *RedisThrottleStats) TotalKey() string {
	return s.prefix + ":total"
}

// MinuteKey is the hash holding counters for the minute containing at.
func (s *RedisThrottleStats) MinuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

// Ping reports whether Redis is reachable.
func (s *RedisThrottleStats) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the Redis client.
func (s *RedisThrottleStats) Close() error {
	return s.rdb.Close()
}

// OpenRedisThrottleStats connects to url (redis://...) and verifies the
// connection.
func OpenRedisThrottleStats(ctx context.Context, url, prefix string, ttl time.Duration) (*RedisThrottleStats, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisThrottleStats(rdb, prefix, ttl), nil
}
