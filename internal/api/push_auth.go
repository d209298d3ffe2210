package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/docaudit/internal/auth"
	"github.com/onnwee/docaudit/internal/middleware"
)

// TokenVerifier validates push tokens. *auth.PushTokenVerifier implements it.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// RequirePushToken rejects requests without a valid bearer push token and
// stores the token subject in the request context. A nil verifier disables
// the check.
func RequirePushToken(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
				WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing bearer token")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = "Token expired"
				}
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
				WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, msg)
				return
			}

			ctx := middleware.SetSubject(r.Context(), claims.Subject)
			middleware.UpdateResponseContext(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
