package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/historyhiders/hidewatch/internal/metrics"
	"github.com/historyhiders/hidewatch/internal/middleware"
	"github.com/historyhiders/hidewatch/internal/moderation"
	"github.com/historyhiders/hidewatch/internal/watch"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// HandleMenu handles GET /mod/menu. Only items the moderator may use are
// listed.
func (h *Handler) HandleMenu(w http.ResponseWriter, r *http.Request) {
	moderator := middleware.ModeratorFromContext(r.Context())
	if moderator == "" {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	if h.moderationService == nil || !h.moderationService.IsModerator(moderator) {
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}

	items := []watch.MenuItem{}
	for _, item := range watch.Menu() {
		if h.moderationService.HasPermission(moderator, item.Permission) {
			items = append(items, item)
		}
	}
	writeJSON(w, items, "menu")
}

// HandleForm handles GET /mod/forms/{name}
func (h *Handler) HandleForm(w http.ResponseWriter, r *http.Request) {
	form, ok := watch.LookupForm(r.PathValue("name"))
	if !ok {
		http.Error(w, "Unknown form", http.StatusNotFound)
		return
	}
	if h.requirePermission(w, r, form.Permission) == "" {
		return
	}
	writeJSON(w, form, "form")
}

// formSubmission carries the values of every moderator form; each form reads
// the field it declares.
type formSubmission struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

// HandleFormSubmit handles POST /mod/forms/{name}
func (h *Handler) HandleFormSubmit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	form, ok := watch.LookupForm(name)
	if !ok {
		http.Error(w, "Unknown form", http.StatusNotFound)
		return
	}
	moderator := h.requirePermission(w, r, form.Permission)
	if moderator == "" {
		return
	}

	var req formSubmission
	if err := decodeRequest(r, &req, func() error {
		req.Username = r.FormValue("username")
		req.UserID = r.FormValue("userId")
		return nil
	}); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx := watch.WithActor(r.Context(), moderator)
	ui := newUIRecorder()

	var err error
	switch name {
	case watch.FormEvaluate:
		err = h.watcher.Evaluate(ctx, ui, req.Username)
	case watch.FormClear:
		err = h.watcher.Clear(ctx, ui, req.Username)
	case watch.FormGoto:
		err = h.watcher.Goto(ctx, ui, req.UserID)
	}

	log.Info().
		Str("form", name).
		Str("moderator", moderator).
		Bool("ok", err == nil).
		Msg("Moderator form submitted")

	writeUIResult(w, ui, err, name)
}

// HandleAction handles POST /mod/actions/{name}
func (h *Handler) HandleAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	perm, ok := watch.ActionPermission(name)
	if !ok {
		http.Error(w, "Unknown action", http.StatusNotFound)
		return
	}
	moderator := h.requirePermission(w, r, perm)
	if moderator == "" {
		return
	}

	ctx := watch.WithActor(r.Context(), moderator)
	ui := newUIRecorder()

	var run func(context.Context, watch.UI) error
	switch name {
	case watch.ActionPostNow:
		run = h.watcher.PostNow
	case watch.ActionFindNow:
		run = h.watcher.FindNow
	}
	err := run(ctx, ui)

	log.Info().
		Str("action", name).
		Str("moderator", moderator).
		Bool("ok", err == nil).
		Msg("Moderator action run")

	writeUIResult(w, ui, err, name)
}

// HandleAuditLog handles GET /mod/audit?limit=N
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, moderation.PermissionViewAuditLog) == "" {
		return
	}
	if h.moderationStore == nil {
		http.Error(w, "Audit log not configured", http.StatusServiceUnavailable)
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxAuditLimit)
	}

	entries, err := h.moderationStore.ListAuditLog(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list audit log")
		http.Error(w, "Failed to list audit log", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []moderation.AuditEntry{}
	}
	writeJSON(w, entries, "audit log")
}

// Stats is the body of GET /mod/stats.
type Stats struct {
	BucketEntries int    `json:"bucketEntries"`
	ScheduledJobs int    `json:"scheduledJobs"`
	Subreddit     string `json:"reportSubreddit"`
	Testing       bool   `json:"currentlyTesting"`
	AppVersion    string `json:"appVersion"`
}

// collectStats reads the collector gauges and the watcher configuration.
func (h *Handler) collectStats() Stats {
	cfg := h.watcher.Config()
	return Stats{
		BucketEntries: int(getGaugeValue(metrics.BucketEntries)),
		ScheduledJobs: int(getGaugeValue(metrics.ScheduledJobs)),
		Subreddit:     cfg.ReportSubreddit,
		Testing:       cfg.CurrentlyTesting,
		AppVersion:    cfg.AppVersion,
	}
}

// getGaugeValue reads the current value of a prometheus.Gauge.
func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil {
		return m.GetGauge().GetValue()
	}
	return 0
}

// HandleStats handles GET /mod/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	moderator := middleware.ModeratorFromContext(r.Context())
	if moderator == "" {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	if h.moderationService == nil || !h.moderationService.IsModerator(moderator) {
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}
	writeJSON(w, h.collectStats(), "stats")
}
