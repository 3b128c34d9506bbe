package server

import (
	"context"
	"errors"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/engine"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/transport"
	apperrors "github.com/lvl0lvl/slack-mcp-identity-server/internal/errors"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/slack"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/tools"
)

// HandleError central handler for all errors
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithEnvelope(w, r, toEnvelope(r, err))
}

// toEnvelope maps tool, scheduler, and transport failures onto error
// envelopes. Envelopes pass through untouched.
func toEnvelope(r *http.Request, err error) *gferrors.ErrorEnvelope {
	var envelope *gferrors.ErrorEnvelope
	if errors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	ctx := context.Background()
	if r != nil {
		ctx = r.Context()
	}

	var validation *tools.ValidationError
	var exhausted *transport.ExhaustedError
	switch {
	case errors.As(err, &validation):
		envelope = apperrors.WrapValidationError(ctx, err, validation.Error())
		if validation.Field != "" {
			envelope = envelope.WithDetails(map[string]interface{}{"field": validation.Field})
		}
		return envelope
	case errors.Is(err, tools.ErrUnknownTool):
		return apperrors.WrapNotFound(ctx, err, err.Error())
	case errors.Is(err, slack.ErrUserTokenRequired):
		return apperrors.WrapConfigInvalid(ctx, err, err.Error())
	case errors.As(err, &exhausted):
		envelope = apperrors.WrapExternalService(ctx, err, exhausted.Error())
		details := map[string]interface{}{"attempts": exhausted.Attempts}
		if exhausted.LastStatus != 0 {
			details["last_status"] = exhausted.LastStatus
		}
		return envelope.WithDetails(details)
	case errors.Is(err, engine.ErrSchedulerClosed):
		return apperrors.WrapServiceUnavailable(ctx, err, "server is shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.WrapTimeout(ctx, err, "slack call timed out")
	default:
		return apperrors.EnsureEnvelope(err)
	}
}
