package handlers

import (
	"net/http"
	"sync/atomic"

	apperrors "github.com/lvl0lvl/slack-mcp-identity-server/internal/errors"
)

// ErrorResponder writes err to the client as an error envelope.
type ErrorResponder func(http.ResponseWriter, *http.Request, error)

var errorResponder atomic.Value // ErrorResponder

// UseErrorResponder routes handler failures through fn and returns a func
// that puts the previous responder back. A nil fn selects the plain envelope
// responder, which maps only generic errors.
func UseErrorResponder(fn ErrorResponder) (restore func()) {
	prev, _ := errorResponder.Load().(ErrorResponder)
	if fn == nil {
		fn = apperrors.RespondWithError
	}
	errorResponder.Store(fn)
	return func() {
		if prev == nil {
			prev = apperrors.RespondWithError
		}
		errorResponder.Store(prev)
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	if fn, ok := errorResponder.Load().(ErrorResponder); ok {
		fn(w, r, err)
		return
	}
	apperrors.RespondWithError(w, r, err)
}
