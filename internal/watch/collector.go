package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/historyhiders/hidewatch/internal/metrics"
	"github.com/historyhiders/hidewatch/internal/models"

	"github.com/rs/zerolog/log"
)

// collectSnapshot records the author's visible history in today's bucket.
// A missing user stops collection and leaves the claim in place until it
// expires.
func (w *Watcher) collectSnapshot(ctx context.Context, authorID, authorName string) error {
	user, err := w.content.GetUserByID(ctx, authorID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && user == nil) {
		metrics.SnapshotsTotal.WithLabelValues("user_not_found").Inc()
		log.Info().Str("author", authorID).Msg("Author not found, skipping snapshot")
		return fail(KindNotFound, "collect", "author %s not found", authorID)
	}
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to fetch author %s: %w", authorID, err)
	}

	posts, err := w.content.RecentPosts(ctx, user, w.cfg.HistoryLimit)
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to fetch posts of %s: %w", authorID, err)
	}
	comments, err := w.content.RecentComments(ctx, user, w.cfg.HistoryLimit)
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to fetch comments of %s: %w", authorID, err)
	}

	if authorName == "" {
		authorName = user.Name
	}
	if authorName == "" {
		authorName = authorID
	}

	now := w.cfg.now()
	snapshot := models.UserAccountSnapshot{
		AccountID:        authorID,
		AccountName:      authorName,
		AppVersion:       w.cfg.AppVersion,
		CurrentlyTesting: w.cfg.CurrentlyTesting,
		History: models.History{
			Posts:    postRefs(posts, w.cfg.HistoryLimit),
			Comments: commentRefs(comments, w.cfg.HistoryLimit),
		},
		Date: now,
	}

	if err := w.writeSnapshot(ctx, snapshot); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.SnapshotsTotal.WithLabelValues("written").Inc()
	log.Info().
		Str("author", authorID).
		Int("posts", len(snapshot.History.Posts)).
		Int("comments", len(snapshot.History.Comments)).
		Msg("Snapshot written")
	return nil
}

func (w *Watcher) writeSnapshot(ctx context.Context, snapshot models.UserAccountSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := BucketKey(snapshot.Date)
	if err := w.kv.HSet(ctx, key, map[string][]byte{snapshot.AccountID: data}); err != nil {
		return fmt.Errorf("failed to write snapshot of %s: %w", snapshot.AccountID, err)
	}
	if err := w.kv.Expire(ctx, key, w.cfg.BucketTTL); err != nil {
		return fmt.Errorf("failed to refresh expiry of %s: %w", key, err)
	}
	return nil
}

// BucketSize returns the number of snapshots in today's bucket.
func (w *Watcher) BucketSize(ctx context.Context) (int, error) {
	fields, err := w.kv.HGetAll(ctx, BucketKey(w.cfg.now()))
	if err != nil {
		return 0, err
	}
	return len(fields), nil
}

func postRefs(posts []models.Post, limit int) []models.ContributionRef {
	refs := make([]models.ContributionRef, 0, len(posts))
	for _, p := range posts {
		refs = append(refs, models.ContributionRef{ID: p.ID, Date: p.CreatedAt})
	}
	return newestFirst(refs, limit)
}

func commentRefs(comments []models.Comment, limit int) []models.ContributionRef {
	refs := make([]models.ContributionRef, 0, len(comments))
	for _, c := range comments {
		refs = append(refs, models.ContributionRef{ID: c.ID, Date: c.CreatedAt})
	}
	return newestFirst(refs, limit)
}

func newestFirst(refs []models.ContributionRef, limit int) []models.ContributionRef {
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Date.After(refs[j].Date)
	})
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs
}
