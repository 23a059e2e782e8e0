package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/historyhiders/hidewatch/internal/metrics"
	"github.com/historyhiders/hidewatch/internal/models"
	"github.com/historyhiders/hidewatch/internal/moderation"

	"github.com/rs/zerolog/log"
)

// PublishResult describes one publisher run.
type PublishResult struct {
	Subreddit  string
	Page       string
	RevisionID string
	Entries    int
	Skipped    int
}

// Publish writes today's bucket as a ReportDocument to the report wiki at
// subreddits/<current subreddit>. Undecodable bucket entries are skipped.
func (w *Watcher) Publish(ctx context.Context) (*PublishResult, error) {
	current, err := w.content.CurrentSubreddit(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current subreddit: %w", err)
	}
	if current == "" {
		log.Error().Msg("Current subreddit is unknown, not publishing")
		return nil, fail(KindNotFound, "publish", "current subreddit is unknown")
	}

	now := w.cfg.now()
	key := BucketKey(now)
	fields, err := w.kv.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	result := &PublishResult{
		Subreddit: w.cfg.ReportSubreddit,
		Page:      w.cfg.ReportPagePrefix + current,
	}
	doc := models.ReportDocument{
		C:    make([]models.UserAccountSnapshot, 0, len(fields)),
		Date: now,
	}
	for _, field := range fields {
		var snapshot models.UserAccountSnapshot
		if err := json.Unmarshal(field.Value, &snapshot); err != nil {
			result.Skipped++
			metrics.PublishedEntriesTotal.WithLabelValues("skipped").Inc()
			log.Warn().Err(err).Str("bucket", key).Str("author", field.Field).Msg("Skipping malformed snapshot")
			continue
		}
		doc.C = append(doc.C, snapshot)
	}
	result.Entries = len(doc.C)

	content, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report document: %w", err)
	}

	result.RevisionID, err = w.docs.WritePage(ctx, models.WikiEdit{
		Subreddit: result.Subreddit,
		Page:      result.Page,
		Content:   string(content),
		Reason:    fmt.Sprintf("Update of r/%s at %s", current, now.Format(time.RFC1123)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", result.Page, err)
	}

	metrics.PublishedEntriesTotal.WithLabelValues("published").Add(float64(result.Entries))
	log.Info().
		Str("subreddit", result.Subreddit).
		Str("page", result.Page).
		Int("entries", result.Entries).
		Int("skipped", result.Skipped).
		Msg("Published snapshot bucket")
	w.record(ctx, moderation.AuditActionPublish, result.Subreddit+"/"+result.Page, "", map[string]string{
		"entries":  strconv.Itoa(result.Entries),
		"skipped":  strconv.Itoa(result.Skipped),
		"revision": result.RevisionID,
	})
	return result, nil
}
