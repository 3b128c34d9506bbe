// Package transport sends prepared HTTP requests to the Slack Web API,
// retrying server errors and unreachable hosts with capped exponential
// backoff.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/clock"
)

const (
	// DefaultMaxAttempts is used when Perform is called with a non-positive
	// attempt count.
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultTimeout     = 30 * time.Second
)

// Request is a fully built HTTP request. Body is buffered so every attempt
// sends identical bytes.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the outcome of the last attempt. The body has been read and the
// connection released.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Recorder receives retry observations for metrics.
type Recorder interface {
	RecordRetry(attempt int, delay time.Duration)
	RecordExhausted(attempts int)
}

// ExhaustedError reports that every attempt hit a server error or failed to
// reach the host.
type ExhaustedError struct {
	Attempts   int
	LastStatus int
	LastErr    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("slack api unavailable after %d attempts: %s", e.Attempts, e.reason())
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

func (e *ExhaustedError) reason() string {
	if e.LastErr != nil {
		return e.LastErr.Error()
	}
	return fmt.Sprintf("slack api returned %d", e.LastStatus)
}

// Transport performs requests with retry. The zero value is usable; it holds
// no mutable state and is safe for concurrent use.
type Transport struct {
	Client    *http.Client
	Clock     clock.Clock
	Logger    core.Logger
	Recorder  Recorder
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Perform sends req up to maxAttempts times. Responses below 500 are returned
// as-is, including 4xx and 429. Server errors and transport failures are
// retried after Backoff(i); the final attempt is not followed by a sleep.
func (t *Transport) Perform(ctx context.Context, req Request, maxAttempts int) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(req.URL) == "" {
		return nil, errors.New("request url is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	logger := core.LoggerOrNop(t.Logger)
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := t.attempt(ctx, method, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var buildErr *requestError
			if errors.As(err, &buildErr) {
				return nil, buildErr.err
			}
			lastStatus, lastErr = 0, err
		} else {
			if resp.StatusCode < http.StatusInternalServerError {
				return resp, nil
			}
			lastStatus, lastErr = resp.StatusCode, nil
		}

		if attempt+1 >= maxAttempts {
			break
		}

		delay := t.Backoff(attempt)
		fields := []zap.Field{
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("delay", delay),
		}
		if lastErr != nil {
			logger.Warn("slack api unreachable", append(fields, zap.Error(lastErr))...)
		} else {
			logger.Warn("slack api error", append(fields, zap.Int("status", lastStatus))...)
		}
		if t.Recorder != nil {
			t.Recorder.RecordRetry(attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-clock.OrSystem(t.Clock).After(delay):
		}
	}

	if t.Recorder != nil {
		t.Recorder.RecordExhausted(maxAttempts)
	}
	return nil, &ExhaustedError{Attempts: maxAttempts, LastStatus: lastStatus, LastErr: lastErr}
}

// Backoff returns the wait after the zero-based attempt: BaseDelay doubled
// per attempt, capped at MaxDelay, without jitter.
func (t *Transport) Backoff(attempt int) time.Duration {
	base := t.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	limit := t.MaxDelay
	if limit <= 0 {
		limit = DefaultMaxDelay
	}

	delay := base
	for i := 0; i < attempt; i++ {
		if delay >= limit {
			return limit
		}
		delay *= 2
	}
	if delay > limit {
		return limit
	}
	return delay
}

type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (t *Transport) attempt(ctx context.Context, method string, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, &requestError{err: fmt.Errorf("build request: %w", err)}
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
