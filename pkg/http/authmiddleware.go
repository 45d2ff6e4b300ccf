// Package http provides HTTP middleware and response helpers for the
// gateway's front door.
package http

import (
	"net/http"
	"strings"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/auth"
)

// APIKeyHeader carries an API key when no Authorization header is sent.
const APIKeyHeader = "X-API-Key"

// tokenFromRequest returns the Bearer token, or the X-API-Key value.
func tokenFromRequest(r *http.Request) string {
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}

// AuthMiddleware authenticates every request with authenticator. Accepted
// requests carry the user in their context; rejected ones get a 401 with
// an AUTHENTICATION_ERROR body.
func AuthMiddleware(authenticator auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if token := tokenFromRequest(r); token != "" {
				ctx = auth.WithToken(ctx, token)
			}

			uc, err := authenticator.Authenticate(ctx)
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteError(w, apperror.Wrap(apperror.Authentication, "authentication failed", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUserContext(ctx, uc)))
		})
	}
}
