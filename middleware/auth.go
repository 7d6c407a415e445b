package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/karmashop-resbrevis/karmapurgex/auth"

	"github.com/rs/zerolog/log"
)

type contextKey string

const usernameKey contextKey = "username"

// UserAuth validates owner session tokens.
type UserAuth struct {
	jwtManager *auth.JWTManager
}

func NewUserAuth(jwtManager *auth.JWTManager) *UserAuth {
	return &UserAuth{jwtManager: jwtManager}
}

// Protect rejects requests without a valid "Authorization: Bearer <token>".
func (ua *UserAuth) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Missing authorization token")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format. Use: Bearer <token>")
			return
		}

		claims, err := ua.jwtManager.ValidateToken(token)
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("Invalid token")
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUsername(r.Context(), claims.Username)))
	})
}

// WithUsername stores the authenticated owner in ctx.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// GetUsername returns the authenticated owner, or "" outside Protect.
func GetUsername(r *http.Request) string {
	username, _ := r.Context().Value(usernameKey).(string)
	return username
}
