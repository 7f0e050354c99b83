package middleware

import (
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/logger"

	"go.uber.org/zap"
)

// Auth resolves the caller identity from the access token. Requests without
// a token pass through anonymously; a token that fails verification is
// rejected with 401.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := auth.ParseToken(tokenStr, secret)
			if err != nil {
				logger.FromCtx(r.Context()).Debug("rejected access token", zap.Error(err))
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			ctx := auth.WithIdentity(r.Context(), id)
			ctx = logger.WithFields(ctx, zap.String("caller_id", id.CallerID), zap.String("role", id.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
