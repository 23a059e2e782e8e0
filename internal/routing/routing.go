package routing

import (
	"net/http"

	"github.com/historyhiders/hidewatch/internal/handlers"
	"github.com/historyhiders/hidewatch/internal/middleware"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers *handlers.Handler
	Logger   zerolog.Logger

	// Token is the shared secret required on /events and /mod/ routes.
	Token string

	// RateLimits overrides the default limiters; tests use small ones.
	RateLimits *middleware.RateLimitConfig
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	requireToken := middleware.RequireToken(cfg.Token)
	protected := func(fn http.HandlerFunc) http.Handler {
		return requireToken(fn)
	}

	// Platform bridge
	mux.Handle("POST /events", protected(h.HandleEvent))

	// Moderator menu, forms and actions
	mux.Handle("GET /mod/menu", protected(h.HandleMenu))
	mux.Handle("GET /mod/forms/{name}", protected(h.HandleForm))
	mux.Handle("POST /mod/forms/{name}", protected(h.HandleFormSubmit))
	mux.Handle("POST /mod/actions/{name}", protected(h.HandleAction))
	mux.Handle("GET /mod/audit", protected(h.HandleAuditLog))
	mux.Handle("GET /mod/stats", protected(h.HandleStats))

	// Operations
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Apply middleware in order (outermost first, innermost last)
	var handler http.Handler = mux

	// 1. Limit request body size (innermost - runs first on request)
	handler = middleware.LimitBodyMiddleware(handler)

	// 2. Apply rate limiting
	rateLimitConfig := cfg.RateLimits
	if rateLimitConfig == nil {
		rateLimitConfig = middleware.NewDefaultRateLimitConfig()
	}
	handler = middleware.RateLimitMiddleware(rateLimitConfig)(handler)

	// 3. Apply security headers
	handler = middleware.SecurityHeadersMiddleware(handler)

	// 4. Apply logging middleware (outermost - wraps everything)
	handler = middleware.LoggingMiddleware(cfg.Logger)(handler)

	return handler
}
