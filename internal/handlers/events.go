package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/historyhiders/hidewatch/internal/middleware"
	"github.com/historyhiders/hidewatch/internal/models"
	"github.com/historyhiders/hidewatch/internal/watch"

	"github.com/rs/zerolog/log"
)

type eventResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HandleEvent handles POST /events, the platform's post and comment
// notifications.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if !isJSONRequest(r) {
		http.Error(w, "Expected application/json", http.StatusUnsupportedMediaType)
		return
	}

	var ev models.ContributionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	middleware.NoteEvent(r.Context(), ev.Type, ev.AuthorID())

	err := h.watcher.HandleContribution(r.Context(), ev)
	switch {
	case err == nil:
		writeJSON(w, eventResponse{Status: "ok"}, "event")
	case watch.IsKind(err, watch.KindMissingField):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(eventResponse{Status: "dropped", Detail: err.Error()})
	case watch.IsKind(err, watch.KindNotFound):
		// The claim stays in place so the author is not re-snapshotted on
		// every contribution.
		log.Warn().Err(err).Str("author", ev.AuthorID()).Msg("Author could not be resolved")
		writeJSON(w, eventResponse{Status: "unresolved", Detail: err.Error()}, "event")
	default:
		log.Error().Err(err).Str("type", ev.Type).Str("author", ev.AuthorID()).Msg("Failed to handle contribution event")
		http.Error(w, "Failed to handle event", http.StatusInternalServerError)
	}
}
