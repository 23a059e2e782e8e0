package watch

import (
	"context"
	"fmt"

	"github.com/historyhiders/hidewatch/internal/metrics"
	"github.com/historyhiders/hidewatch/internal/models"
	"github.com/historyhiders/hidewatch/internal/moderation"

	"github.com/rs/zerolog/log"
)

// HandleContribution processes a post or comment notification. Events
// missing their subreddit, author or contribution id are dropped with a
// KindMissingField failure before anything is read or written.
func (w *Watcher) HandleContribution(ctx context.Context, ev models.ContributionEvent) error {
	var missing string
	switch {
	case ev.SubredditName() == "":
		missing = "subreddit"
	case ev.AuthorID() == "":
		missing = "author"
	case ev.ContributionID() == "":
		missing = "contribution"
	}
	if missing != "" {
		metrics.EventsTotal.WithLabelValues(ev.Type, "dropped").Inc()
		log.Warn().
			Str("type", ev.Type).
			Str("missing", missing).
			Msg("Dropping contribution event")
		return fail(KindMissingField, "intake", "event has no %s", missing)
	}

	authorID := ev.AuthorID()
	contributionID := ev.ContributionID()

	decision, err := w.claimAuthor(ctx, authorID)
	if err != nil {
		return err
	}

	switch decision {
	case gateHiding:
		metrics.EventsTotal.WithLabelValues(ev.Type, "reported").Inc()
		return w.reportContribution(ctx, authorID, contributionID)
	case gateCalculating:
		metrics.EventsTotal.WithLabelValues(ev.Type, "in_progress").Inc()
		log.Debug().Str("author", authorID).Msg("Author is already being evaluated")
		return nil
	}

	metrics.EventsTotal.WithLabelValues(ev.Type, "claimed").Inc()
	return w.collectSnapshot(ctx, authorID, ev.AuthorName())
}

func (w *Watcher) reportContribution(ctx context.Context, authorID, contributionID string) error {
	if err := w.content.Report(ctx, contributionID, w.cfg.ReportReason); err != nil {
		return fmt.Errorf("failed to report %s: %w", contributionID, err)
	}
	metrics.ReportsTotal.Inc()
	log.Info().
		Str("author", authorID).
		Str("contribution", contributionID).
		Msg("Reported contribution of hiding author")
	w.record(ctx, moderation.AuditActionReportAccount, contributionID, w.cfg.ReportReason, map[string]string{"author": authorID})
	return nil
}
