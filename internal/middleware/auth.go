package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// TokenHeader carries the shared secret of the platform bridge that
	// forwards events and moderator actions.
	TokenHeader = "X-Hidewatch-Token"
	// ModeratorHeader names the moderator performing a /mod/ request.
	ModeratorHeader = "X-Hidewatch-Moderator"
)

type contextKey string

const moderatorKey contextKey = "moderator"

// ModeratorFromContext returns the moderator username attached by
// RequireToken, or "".
func ModeratorFromContext(ctx context.Context) string {
	name, _ := ctx.Value(moderatorKey).(string)
	return name
}

// WithModerator attaches a moderator username to ctx.
func WithModerator(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, moderatorKey, username)
}

// RequireToken rejects requests whose TokenHeader does not match token and
// attaches the ModeratorHeader value to the request context. An empty token
// disables the check; that is only meant for local development.
func RequireToken(token string) func(http.Handler) http.Handler {
	if token == "" {
		log.Warn().Msg("No shared token configured, requests are not authenticated")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := r.Header.Get(TokenHeader)
				if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					log.Warn().
						Str("path", r.URL.Path).
						Str("client_ip", GetClientIP(r)).
						Msg("Rejected request with invalid token")
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
			}

			if moderator := strings.TrimSpace(r.Header.Get(ModeratorHeader)); moderator != "" {
				r = r.WithContext(WithModerator(r.Context(), moderator))
			}
			next.ServeHTTP(w, r)
		})
	}
}
