package slack

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Response is a decoded Slack Web API envelope.
type Response struct {
	OK         bool
	Error      string
	StatusCode int
	RetryAfter string
	Raw        map[string]any
}

// RateLimited reports a "too many requests" rejection.
func (r *Response) RateLimited() bool {
	if r == nil {
		return false
	}
	return r.StatusCode == http.StatusTooManyRequests || r.Error == "ratelimited"
}

// RetryAfterHint returns the raw Retry-After header value.
func (r *Response) RetryAfterHint() string {
	if r == nil {
		return ""
	}
	return r.RetryAfter
}

// Err returns an *APIError when Slack reported ok=false.
func (r *Response) Err() error {
	if r == nil || r.OK {
		return nil
	}
	return &APIError{Code: r.Error, StatusCode: r.StatusCode}
}

// String returns the string field key of the payload, if present.
func (r *Response) String(key string) string {
	if r == nil {
		return ""
	}
	value, _ := r.Raw[key].(string)
	return value
}

// Object returns the nested object at key, if present.
func (r *Response) Object(key string) map[string]any {
	if r == nil {
		return nil
	}
	value, _ := r.Raw[key].(map[string]any)
	return value
}

// MarshalJSON writes the payload as Slack returned it.
func (r *Response) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	if r.Raw == nil {
		return json.Marshal(map[string]any{"ok": r.OK, "error": r.Error})
	}
	return json.Marshal(r.Raw)
}

// APIError is a Slack ok=false result.
type APIError struct {
	Code       string
	StatusCode int
}

func (e *APIError) Error() string {
	code := strings.TrimSpace(e.Code)
	if code == "" {
		code = "unknown_error"
	}
	return fmt.Sprintf("slack api error: %s", code)
}

func decodeResponse(status int, header http.Header, body []byte) (*Response, error) {
	resp := &Response{
		StatusCode: status,
		RetryAfter: strings.TrimSpace(header.Get("Retry-After")),
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		if status == http.StatusTooManyRequests {
			resp.Error = "ratelimited"
			resp.Raw = map[string]any{"ok": false, "error": "ratelimited"}
			return resp, nil
		}
		return nil, fmt.Errorf("empty response body (status %d)", status)
	}

	if err := json.Unmarshal(body, &resp.Raw); err != nil {
		if status == http.StatusTooManyRequests {
			resp.Error = "ratelimited"
			resp.Raw = map[string]any{"ok": false, "error": "ratelimited"}
			return resp, nil
		}
		return nil, fmt.Errorf("decode response (status %d): %w", status, err)
	}

	resp.OK, _ = resp.Raw["ok"].(bool)
	resp.Error, _ = resp.Raw["error"].(string)
	return resp, nil
}
