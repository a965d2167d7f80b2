package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/CallumWaite/gatehouse/pkg/httpx"
	"github.com/go-chi/chi/v5"
)

type contextKey string

const sessionKeyContextKey contextKey = "sessionKey"

// SessionKeyFromContext returns the key of the session token that
// authenticated the request, or nil outside a session-guarded route.
func SessionKeyFromContext(ctx context.Context) []byte {
	key, _ := ctx.Value(sessionKeyContextKey).([]byte)
	return key
}

// tokenFromRequest returns the raw credential from the Authorization
// header. Mobile clients send the token bare; a Bearer prefix is tolerated.
func tokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	return strings.TrimPrefix(header, "Bearer ")
}

// RequireSessionToken guards routes available to anonymous installations.
// The validated token's key is attached to the request context so handlers
// can correlate work with the anonymous session via SessionKeyFromContext.
func RequireSessionToken(sessions *SessionTokenService, ipConfig *httpx.IPConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				httpx.WriteUnauthorized(w, "missing authorization header")
				return
			}

			if !sessions.Validate(token, httpx.ExtractClientIP(r, ipConfig)) {
				httpx.WriteUnauthorized(w, "session token invalid")
				return
			}

			ctx := context.WithValue(r.Context(), sessionKeyContextKey, sessions.ExtractKey(token))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUserToken guards routes bound to an authenticated user. The user
// ID comes from the {userID} route parameter, matching the resource the
// token must be presented for.
func RequireUserToken(users *UserTokenService) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				httpx.WriteUnauthorized(w, "missing authorization header")
				return
			}

			userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
			if err != nil {
				httpx.WriteBadRequest(w, "invalid user id")
				return
			}

			valid, err := users.Validate(r.Context(), token, userID)
			if err != nil {
				httpx.WriteInternalError(w, "unable to verify token")
				return
			}
			if !valid {
				httpx.WriteUnauthorized(w, "user token invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
