package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/historyhiders/hidewatch/internal/middleware"
	"github.com/historyhiders/hidewatch/internal/moderation"
	"github.com/historyhiders/hidewatch/internal/watch"

	"github.com/rs/zerolog/log"
)

// Handler contains all HTTP handler methods and their dependencies.
type Handler struct {
	watcher *watch.Watcher

	// Moderation dependencies (optional)
	moderationService *moderation.Service
	moderationStore   moderation.Store
}

// NewHandler creates a new Handler serving the given watcher.
func NewHandler(w *watch.Watcher) *Handler {
	return &Handler{watcher: w}
}

// SetModeration configures the handler with moderation service and audit store
func (h *Handler) SetModeration(svc *moderation.Service, store moderation.Store) {
	h.moderationService = svc
	h.moderationStore = store
}

// HandleHealth handles GET /healthz
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, "health")
}

// isJSONRequest checks if the request Content-Type is JSON
func isJSONRequest(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	return strings.Contains(contentType, "application/json")
}

// decodeRequest decodes either JSON or form data into target based on
// Content-Type. parseForm is called when the request is form-encoded.
func decodeRequest(r *http.Request, target any, parseForm func() error) error {
	if isJSONRequest(r) {
		return json.NewDecoder(r.Body).Decode(target)
	}
	if err := r.ParseForm(); err != nil {
		return err
	}
	return parseForm()
}

// writeJSON encodes and writes a JSON response
func writeJSON(w http.ResponseWriter, v any, entityName string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode " + entityName + " response")
	}
}

// requirePermission resolves the acting moderator and checks perm. It writes
// the error response itself and returns "" when the request must stop.
func (h *Handler) requirePermission(w http.ResponseWriter, r *http.Request, perm moderation.Permission) string {
	moderator := middleware.ModeratorFromContext(r.Context())
	if moderator == "" {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return ""
	}
	if h.moderationService == nil || !h.moderationService.HasPermission(moderator, perm) {
		log.Warn().Str("moderator", moderator).Str("permission", string(perm)).Str("endpoint", r.URL.Path).Msg("Denied: insufficient permissions")
		http.Error(w, "Permission denied", http.StatusForbidden)
		return ""
	}
	return moderator
}

// uiRecorder collects what a watcher operation shows to the moderator so it
// can be returned as the response body.
type uiRecorder struct {
	Toasts []string `json:"toasts"`
	URL    string   `json:"navigateTo,omitempty"`
}

func newUIRecorder() *uiRecorder {
	return &uiRecorder{Toasts: []string{}}
}

func (u *uiRecorder) ShowToast(text string) {
	u.Toasts = append(u.Toasts, text)
}

func (u *uiRecorder) NavigateTo(url string) {
	u.URL = url
}

// writeUIResult writes the recorded UI effects. Rejected input and unknown
// accounts are normal outcomes shown as toasts; anything else is a server
// error.
func writeUIResult(w http.ResponseWriter, ui *uiRecorder, err error, op string) {
	status := http.StatusOK
	if err != nil && !watch.IsKind(err, watch.KindInvalidInput) && !watch.IsKind(err, watch.KindNotFound) {
		log.Error().Err(err).Str("op", op).Msg("Moderator action failed")
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(ui); encErr != nil {
		log.Error().Err(encErr).Msg("Failed to encode " + op + " response")
	}
}
