package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/fulmenhq/gofulmen/errors"
)

const bearerPrefix = "Bearer "

// BearerAuth rejects requests whose Authorization header does not carry
// token. An empty token disables the check.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		expected := []byte(token)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				writeUnauthorized(w, r, "Missing or invalid Authorization header")
				return
			}

			presented := []byte(strings.TrimPrefix(header, bearerPrefix))
			if subtle.ConstantTimeCompare(presented, expected) != 1 {
				writeUnauthorized(w, r, "Invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	envelope := errors.NewErrorEnvelope("UNAUTHORIZED", message).
		WithCorrelationID(GetRequestID(r.Context()))
	w.Header().Set("WWW-Authenticate", `Bearer realm="slack-mcp"`)
	writeErrorResponse(w, envelope, http.StatusUnauthorized)
}
