package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"
)

// AdminAuth guards the subscription admin routes with a static key sent in
// X-Admin-Key.
type AdminAuth struct {
	apiKey  string
	enabled bool
}

func NewAdminAuth(apiKey string, enabled bool) *AdminAuth {
	if enabled && apiKey == "" {
		log.Warn().Msg("Admin routes enabled but no admin key configured; they will refuse every request")
	}
	return &AdminAuth{apiKey: apiKey, enabled: enabled}
}

func (a *AdminAuth) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		if a.apiKey == "" {
			writeError(w, http.StatusServiceUnavailable, "Admin authentication not configured")
			return
		}

		provided := r.Header.Get("X-Admin-Key")
		if provided == "" {
			log.Warn().Str("path", r.URL.Path).Str("ip", r.RemoteAddr).Msg("Admin route accessed without key")
			writeError(w, http.StatusUnauthorized, "Missing admin key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(a.apiKey)) != 1 {
			log.Warn().Str("path", r.URL.Path).Str("ip", r.RemoteAddr).Msg("Admin route accessed with invalid key")
			writeError(w, http.StatusForbidden, "Invalid admin key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
