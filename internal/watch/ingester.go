package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/historyhiders/hidewatch/internal/metrics"
	"github.com/historyhiders/hidewatch/internal/models"
	"github.com/historyhiders/hidewatch/internal/moderation"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// IngestResult describes one ingester run.
type IngestResult struct {
	// PostID is the verdict post that was applied.
	PostID     string
	Candidates int
	Applied    int
	Hiding     int
}

type verdictRef struct {
	date   time.Time
	postID string
}

// Ingest reads the verdict index page, fetches the verdict posts dated within
// the window and applies the earliest-dated one whose body parses to the
// author cache.
func (w *Watcher) Ingest(ctx context.Context) (*IngestResult, error) {
	raw, err := w.docs.ReadPage(ctx, w.cfg.VerdictSubreddit, w.cfg.VerdictPage)
	if errors.Is(err, models.ErrNotFound) {
		log.Error().Str("page", w.cfg.VerdictPage).Msg("Verdict index page not found")
		return nil, fail(KindNotFound, "ingest", "page %s of r/%s not found", w.cfg.VerdictPage, w.cfg.VerdictSubreddit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read verdict index: %w", err)
	}

	var index map[string]string
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		log.Error().Err(err).Str("page", w.cfg.VerdictPage).Msg("Verdict index is malformed")
		return nil, fail(KindMalformed, "ingest", "verdict index is not a date to post id map")
	}

	now := w.cfg.now()
	refs := verdictsInWindow(index, midnightUTC(now).Add(-w.cfg.VerdictWindow))
	result := &IngestResult{Candidates: len(refs)}

	posts := w.fetchVerdictPosts(ctx, refs)

	var verdicts []models.ResponseUser
	for i, post := range posts {
		if post == nil {
			continue
		}
		if err := json.Unmarshal([]byte(post.Body), &verdicts); err != nil {
			log.Warn().Err(err).Str("post", refs[i].postID).Msg("Verdict post body is malformed")
			verdicts = nil
			continue
		}
		result.PostID = refs[i].postID
		break
	}
	if result.PostID == "" {
		log.Error().Int("candidates", len(refs)).Msg("No verdict post available")
		return result, fail(KindNotFound, "ingest", "no verdict post available")
	}

	for _, v := range verdicts {
		if v.AID == "" {
			continue
		}
		entry := verdictEntry(v, now)
		if err := w.putAuthor(ctx, v.AID, entry); err != nil {
			return result, err
		}
		result.Applied++
		if entry.IsHiding {
			result.Hiding++
			metrics.VerdictsAppliedTotal.WithLabelValues("hiding").Inc()
		} else {
			metrics.VerdictsAppliedTotal.WithLabelValues("clean").Inc()
		}
	}

	log.Info().
		Str("post", result.PostID).
		Int("applied", result.Applied).
		Int("hiding", result.Hiding).
		Msg("Ingested verdicts")
	w.record(ctx, moderation.AuditActionIngest, result.PostID, "", map[string]string{
		"applied": strconv.Itoa(result.Applied),
		"hiding":  strconv.Itoa(result.Hiding),
	})
	return result, nil
}

// fetchVerdictPosts fetches every referenced post concurrently. Failed
// fetches leave a nil at their position.
func (w *Watcher) fetchVerdictPosts(ctx context.Context, refs []verdictRef) []*models.Post {
	posts := make([]*models.Post, len(refs))

	var g errgroup.Group
	if w.cfg.FetchConcurrency > 0 {
		g.SetLimit(w.cfg.FetchConcurrency)
	}
	for i, ref := range refs {
		g.Go(func() error {
			post, err := w.content.GetPostByID(ctx, ref.postID)
			if err != nil {
				log.Warn().Err(err).Str("post", ref.postID).Msg("Failed to fetch verdict post")
				return nil
			}
			posts[i] = post
			return nil
		})
	}
	_ = g.Wait()

	return posts
}

// verdictsInWindow keeps index entries dated at or after cutoff, oldest first.
func verdictsInWindow(index map[string]string, cutoff time.Time) []verdictRef {
	refs := make([]verdictRef, 0, len(index))
	for dateText, postID := range index {
		date, err := parseVerdictDate(dateText)
		if err != nil {
			log.Warn().Str("date", dateText).Str("post", postID).Msg("Skipping verdict with unparseable date")
			continue
		}
		if date.Before(cutoff) {
			continue
		}
		refs = append(refs, verdictRef{date: date, postID: postID})
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].date.Equal(refs[j].date) {
			return refs[i].postID < refs[j].postID
		}
		return refs[i].date.Before(refs[j].date)
	})
	return refs
}

var verdictDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly}

func parseVerdictDate(s string) (time.Time, error) {
	for _, layout := range verdictDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// verdictEntry turns an external equality verdict into a cache entry. The
// verdict says whether history stayed equal; the cache stores the negation.
// A null equality counts as false.
func verdictEntry(v models.ResponseUser, now time.Time) models.AuthorCacheEntry {
	equalPosts := v.H.EqualsInPosts != nil && *v.H.EqualsInPosts
	equalComments := v.H.EqualsInComments != nil && *v.H.EqualsInComments

	hidingPosts := !equalPosts
	hidingComments := !equalComments
	return models.AuthorCacheEntry{
		LastCheck:        now,
		IsHiding:         !equalComments || !equalPosts,
		IsCalculating:    false,
		EqualsInPosts:    &hidingPosts,
		EqualsInComments: &hidingComments,
	}
}
