package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/historyhiders/hidewatch/internal/models"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
)

// WikiPage is the metadata of the current revision of a page.
type WikiPage struct {
	Subreddit  string    `json:"subreddit"`
	Page       string    `json:"page"`
	RevisionID string    `json:"revision_id"`
	Reason     string    `json:"reason"`
	Size       int       `json:"size"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type pageRecord struct {
	WikiPage
	RevisionKey []byte `json:"revision_key"`
}

// WikiStore keeps wiki pages locally, mirroring the platform wiki API.
// Each write creates a new revision; page content is stored zstd-compressed.
type WikiStore struct {
	db *bolt.DB
}

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

func pageKey(subreddit, page string) []byte {
	return []byte(subreddit + "/" + page)
}

func revisionKey(subreddit, page string, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s/%s\x00%020d", subreddit, page, at.UnixNano()))
}

// WritePage stores a new revision of a page and returns its revision id.
func (s *WikiStore) WritePage(ctx context.Context, edit models.WikiEdit) (string, error) {
	now := time.Now().UTC()
	rec := pageRecord{
		WikiPage: WikiPage{
			Subreddit:  edit.Subreddit,
			Page:       edit.Page,
			RevisionID: uuid.NewString(),
			Reason:     edit.Reason,
			Size:       len(edit.Content),
			UpdatedAt:  now,
		},
		RevisionKey: revisionKey(edit.Subreddit, edit.Page, now),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal wiki page: %w", err)
	}
	compressed := encoder.EncodeAll([]byte(edit.Content), nil)

	err = s.db.Update(func(tx *bolt.Tx) error {
		pages := tx.Bucket(BucketWikiPages)
		revisions := tx.Bucket(BucketWikiRevisions)
		if pages == nil || revisions == nil {
			return fmt.Errorf("bucket not found: %s", BucketWikiPages)
		}

		if err := revisions.Put(rec.RevisionKey, compressed); err != nil {
			return err
		}
		return pages.Put(pageKey(edit.Subreddit, edit.Page), data)
	})
	if err != nil {
		return "", err
	}
	return rec.RevisionID, nil
}

// ReadPage returns the content of the current revision of a page.
// Returns models.ErrNotFound if the page has never been written.
func (s *WikiStore) ReadPage(ctx context.Context, subreddit, page string) (string, error) {
	var compressed []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		pages := tx.Bucket(BucketWikiPages)
		revisions := tx.Bucket(BucketWikiRevisions)
		if pages == nil || revisions == nil {
			return models.ErrNotFound
		}

		data := pages.Get(pageKey(subreddit, page))
		if data == nil {
			return models.ErrNotFound
		}

		var rec pageRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal wiki page: %w", err)
		}

		stored := revisions.Get(rec.RevisionKey)
		if stored == nil {
			return fmt.Errorf("revision %s of %s/%s is missing", rec.RevisionID, subreddit, page)
		}
		compressed = append([]byte{}, stored...)
		return nil
	})
	if err != nil {
		return "", err
	}

	content, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decompress wiki page: %w", err)
	}
	return string(content), nil
}
