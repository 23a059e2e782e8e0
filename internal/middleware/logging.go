package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/historyhiders/hidewatch/internal/metrics"

	"github.com/rs/zerolog"
)

// Route groups used in request logs.
const (
	RouteEvents = "events"
	RouteMod    = "mod"
	RouteOps    = "ops"
	RouteOther  = "other"
)

// RouteGroup maps a request path to the surface it belongs to.
func RouteGroup(path string) string {
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	switch first {
	case "events":
		return RouteEvents
	case "mod":
		return RouteMod
	case "healthz", "metrics":
		return RouteOps
	}
	return RouteOther
}

// GetClientIP extracts the real client IP address from the request,
// checking X-Forwarded-For and X-Real-IP headers for reverse proxy setups.
func GetClientIP(r *http.Request) string {
	// The first X-Forwarded-For entry is the original client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		client, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(client)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// requestNote carries what a handler learned about the request back to the
// access log.
type requestNote struct {
	eventType string
	author    string
}

type requestNoteKey struct{}

// NoteEvent records the decoded event type and author of a /events request
// so the access log line can show them.
func NoteEvent(ctx context.Context, eventType, author string) {
	if n, ok := ctx.Value(requestNoteKey{}).(*requestNote); ok {
		n.eventType = eventType
		n.author = author
	}
}

// LoggingMiddleware writes one structured line per request, tagged with its
// route group, and records the request metrics.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			note := &requestNote{}
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), requestNoteKey{}, note)))

			duration := time.Since(start)
			route := metrics.NormalizePath(r.URL.Path)
			group := RouteGroup(r.URL.Path)

			var event *zerolog.Event
			switch {
			case rw.statusCode >= 500:
				event = logger.Error()
			case rw.statusCode >= 400:
				event = logger.Warn()
			case group == RouteOps:
				// Health checks and scrapes would drown everything else.
				event = logger.Debug()
			default:
				event = logger.Info()
			}

			event.
				Str("group", group).
				Str("method", r.Method).
				Str("route", route).
				Int("status", rw.statusCode).
				Dur("duration", duration).
				Int64("bytes_written", rw.bytesWritten).
				Str("client_ip", GetClientIP(r))

			if route != r.URL.Path {
				event.Str("path", r.URL.Path)
			}
			if note.eventType != "" {
				event.Str("event_type", note.eventType)
			}
			if note.author != "" {
				event.Str("author", note.author)
			}
			if moderator := r.Header.Get(ModeratorHeader); moderator != "" {
				event.Str("moderator", moderator)
			}
			if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
				event.Str("request_id", reqID)
			}
			if logger.GetLevel() <= zerolog.DebugLevel {
				event.Str("user_agent", r.UserAgent()).Dict("headers", redactedHeaders(r.Header))
			}

			event.Msgf("%s %s %d", r.Method, route, rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
		})
	}
}

// redactedHeaders hides the bridge token and any credentials.
func redactedHeaders(h http.Header) *zerolog.Event {
	d := zerolog.Dict()
	for name, values := range h {
		if name == TokenHeader || name == "Authorization" || name == "Cookie" {
			d.Str(name, "[redacted]")
			continue
		}
		d.Str(name, strings.Join(values, ", "))
	}
	return d
}

// responseWriter captures the status code and body size for the access log.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
