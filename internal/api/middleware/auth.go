package middleware

import (
	"context"
	"net/http"
	"strings"

	"script_console/internal/common"
	"script_console/internal/common/security"

	"github.com/go-chi/jwtauth/v5"
)

type contextKey string

const (
	UserIDCtxKey  contextKey = "userID"
	SessionCtxKey contextKey = "session"
)

// Authenticator rejects requests without a verified token and attaches an
// authenticated session built from its claims.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())

		if err != nil {
			if strings.Contains(err.Error(), "token not found") || token == nil {
				common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
			} else {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token: "+err.Error())
			}
			return
		}

		if token == nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		identity, err := security.IdentityFromClaims(claims)
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
			return
		}

		sess := security.NewSession()
		if !sess.Authenticate(identity) {
			common.RespondWithError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
			return
		}

		ctx := context.WithValue(r.Context(), UserIDCtxKey, identity.UserID)
		ctx = context.WithValue(ctx, SessionCtxKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFromContext never returns nil; requests that did not pass
// Authenticator get an unauthenticated session.
func SessionFromContext(ctx context.Context) *security.Session {
	if sess, ok := ctx.Value(SessionCtxKey).(*security.Session); ok && sess != nil {
		return sess
	}
	return security.NewSession()
}

// Helper to get user ID from context
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDCtxKey).(string)
	return userID, ok
}
