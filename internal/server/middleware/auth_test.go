package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestBearerAuth(t *testing.T) {
	handler := RequestID(BearerAuth("secret")(okHandler()))

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{name: "valid token", header: "Bearer secret", status: http.StatusNoContent},
		{name: "missing header", status: http.StatusUnauthorized, message: "Missing or invalid Authorization header"},
		{name: "wrong scheme", header: "Basic secret", status: http.StatusUnauthorized, message: "Missing or invalid Authorization header"},
		{name: "wrong token", header: "Bearer nope", status: http.StatusUnauthorized, message: "Invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.message == "" {
				return
			}
			body := decodeErrorCode(t, rec)
			require.Equal(t, "UNAUTHORIZED", body.Error.Code)
			require.Equal(t, tt.message, body.Error.Message)
			require.NotEmpty(t, body.Error.RequestID)
			require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestBearerAuthDisabledWithoutToken(t *testing.T) {
	handler := BearerAuth("")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestThrottleRejectsOverBurst(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	throttle := NewThrottle(1, 2, nil)
	throttle.now = func() time.Time { return now }
	handler := throttle.Middleware(okHandler())

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/tools/slack_post_message", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusNoContent, send("10.0.0.1:5000").Code)
	require.Equal(t, http.StatusNoContent, send("10.0.0.1:5001").Code)

	rec := send("10.0.0.1:5002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
	body := decodeErrorCode(t, rec)
	require.Equal(t, "RATE_LIMITED", body.Error.Code)
	require.EqualValues(t, 1, body.Error.Details["retry_after_seconds"])

	// Other clients have their own bucket.
	require.Equal(t, http.StatusNoContent, send("10.0.0.2:5000").Code)

	// A rejected request does not consume a token.
	now = now.Add(time.Second)
	require.Equal(t, http.StatusNoContent, send("10.0.0.1:5003").Code)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	require.Equal(t, "192.0.2.7", ClientKey(req))

	req.Header.Set(ClientKeyHeader, "agent-a")
	require.Equal(t, "agent-a", ClientKey(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "pipe"
	require.Equal(t, "pipe", ClientKey(req))
}
