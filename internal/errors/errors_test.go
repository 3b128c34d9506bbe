package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/server/middleware"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) HTTPErrorDetail {
	t.Helper()
	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestRespondWithErrorUsesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/tools/slack_post_message", nil)
	req = req.WithContext(middleware.ContextWithRequestID(req.Context(), "req-1"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, WrapExternalService(req.Context(), fmt.Errorf("slack down"), "slack unavailable"))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeError(t, rec)
	require.Equal(t, CodeExternalService, body.Code)
	require.Equal(t, "req-1", body.RequestID)
	require.Equal(t, "slack down", body.Details["wrapped_error"])
}

func TestRespondWithEnvelopeWithoutRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithEnvelope(rec, nil, NewNotFoundError("unknown tool: slack_nope"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	require.NotEmpty(t, body.RequestID)
	require.Empty(t, body.Details)
}

func TestResponseDetailsPrefersDetails(t *testing.T) {
	env := NewInternalError("boom").WithDetails(map[string]interface{}{"wrapped_error": "from details"})
	env, err := env.WithContext(map[string]interface{}{"wrapped_error": "from context", "method": "chat.postMessage"})
	require.NoError(t, err)

	details := responseDetails(env)
	require.Equal(t, "from details", details["wrapped_error"])
	require.Equal(t, "chat.postMessage", details["method"])
	require.Nil(t, responseDetails(nil))
	require.Equal(t, http.StatusInternalServerError, httpStatusFromEnvelope(nil))
}
