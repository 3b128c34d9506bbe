package engine

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryAfter is the pause applied when a rate-limit rejection carries
// no usable delay hint.
const DefaultRetryAfter = time.Second

// MaxRetryAfter is the longest pause a hint can request: the largest whole
// number of seconds a time.Duration holds.
const MaxRetryAfter = time.Duration(math.MaxInt64/int64(time.Second)) * time.Second

// ParseRetryAfter converts a retry delay hint in whole seconds. Missing,
// malformed, or non-positive hints yield DefaultRetryAfter; hints too large
// for a Duration are clamped to MaxRetryAfter.
func ParseRetryAfter(hint string) time.Duration {
	seconds, err := strconv.ParseInt(strings.TrimSpace(hint), 10, 64)
	if errors.Is(err, strconv.ErrRange) && seconds > 0 {
		return MaxRetryAfter
	}
	if err != nil || seconds <= 0 {
		return DefaultRetryAfter
	}
	if seconds > int64(MaxRetryAfter/time.Second) {
		return MaxRetryAfter
	}
	return time.Duration(seconds) * time.Second
}
