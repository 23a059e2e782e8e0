package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/historyhiders/hidewatch/internal/database"
	"github.com/historyhiders/hidewatch/internal/models"

	"github.com/rs/zerolog/log"
)

// AuthorKey returns the cache key of an author.
func AuthorKey(authorID string) string {
	return "authorId-" + authorID
}

type gateDecision int

const (
	gateClaimed gateDecision = iota
	gateHiding
	gateCalculating
)

// claimAuthor reads the author's entry and, unless it marks the author as
// hiding or in progress, replaces it with a fresh in-progress claim. The read
// and the write happen in one store transaction; losing a race to another
// claim counts as the author being in progress.
func (w *Watcher) claimAuthor(ctx context.Context, authorID string) (gateDecision, error) {
	decision := gateClaimed
	now := w.cfg.now()

	_, err := w.kv.Update(ctx, AuthorKey(authorID), w.cfg.AuthorTTL, func(current []byte, found bool) ([]byte, bool) {
		if found {
			var entry models.AuthorCacheEntry
			if err := json.Unmarshal(current, &entry); err != nil {
				log.Warn().Err(err).Str("author", authorID).Msg("Replacing malformed author cache entry")
			} else if entry.IsHiding {
				decision = gateHiding
				return nil, false
			} else if entry.IsCalculating {
				decision = gateCalculating
				return nil, false
			}
		}

		decision = gateClaimed
		claim, err := json.Marshal(models.AuthorCacheEntry{
			LastCheck:     now,
			IsHiding:      false,
			IsCalculating: true,
		})
		if err != nil {
			return nil, false
		}
		return claim, true
	})
	if errors.Is(err, database.ErrConflict) {
		return gateCalculating, nil
	}
	if err != nil {
		return gateClaimed, fmt.Errorf("failed to claim author %s: %w", authorID, err)
	}
	return decision, nil
}

// GetAuthor returns the cached entry of an author, or nil if there is none.
func (w *Watcher) GetAuthor(ctx context.Context, authorID string) (*models.AuthorCacheEntry, error) {
	data, err := w.kv.Get(ctx, AuthorKey(authorID))
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read author %s: %w", authorID, err)
	}

	var entry models.AuthorCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fail(KindMalformed, "cache", "entry of %s is not valid JSON", authorID)
	}
	return &entry, nil
}

func (w *Watcher) putAuthor(ctx context.Context, authorID string, entry models.AuthorCacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal author entry: %w", err)
	}
	if err := w.kv.SetWithTTL(ctx, AuthorKey(authorID), data, w.cfg.AuthorTTL); err != nil {
		return fmt.Errorf("failed to write author %s: %w", authorID, err)
	}
	return nil
}

// ClearAuthor deletes an author's cache entry so the next contribution
// starts a new evaluation.
func (w *Watcher) ClearAuthor(ctx context.Context, authorID string) error {
	if err := w.kv.Del(ctx, AuthorKey(authorID)); err != nil {
		return fmt.Errorf("failed to clear author %s: %w", authorID, err)
	}
	return nil
}

// BucketKey returns the key of the snapshot bucket for the UTC day of t.
func BucketKey(t time.Time) string {
	return "hashKey:" + t.UTC().Format(time.DateOnly)
}
