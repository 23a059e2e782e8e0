package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/historyhiders/hidewatch/internal/models"
	"github.com/historyhiders/hidewatch/internal/tracing"

	"github.com/rs/zerolog/log"
)

type wikiEditParams struct {
	Page    string `url:"page"`
	Content string `url:"content"`
	Reason  string `url:"reason,omitempty"`
}

// ReadPage returns the markdown content of a wiki page.
func (c *Client) ReadPage(ctx context.Context, subreddit, page string) (content string, err error) {
	ctx, span := tracing.PlatformSpan(ctx, "ReadPage", subreddit+"/"+page)
	defer span.End()
	defer func() { tracing.EndWithError(span, err) }()

	data, err := c.readPage(ctx, subreddit, page)
	if err != nil {
		return "", err
	}
	return data.ContentMD, nil
}

func (c *Client) readPage(ctx context.Context, subreddit, page string) (*wikiPageData, error) {
	body, err := c.do(ctx, "wiki", http.MethodGet, "/r/{sub}/wiki/"+page, listingParams{RawJSON: 1}, nil,
		map[string]string{"sub": subreddit})
	if err != nil {
		return nil, err
	}

	var wp thing[wikiPageData]
	if err := json.Unmarshal(body, &wp); err != nil {
		return nil, fmt.Errorf("decode wiki page %s: %w", page, err)
	}
	return &wp.Data, nil
}

// WritePage replaces the content of a wiki page. The edit endpoint does not
// return the new revision, so it is read back afterwards; failing to read it
// back does not fail the write.
func (c *Client) WritePage(ctx context.Context, edit models.WikiEdit) (revisionID string, err error) {
	ctx, span := tracing.PlatformSpan(ctx, "WritePage", edit.Subreddit+"/"+edit.Page)
	defer span.End()
	defer func() { tracing.EndWithError(span, err) }()

	body, err := c.do(ctx, "wiki_edit", http.MethodPost, "/r/{sub}/api/wiki/edit", nil, wikiEditParams{
		Page:    edit.Page,
		Content: edit.Content,
		Reason:  edit.Reason,
	}, map[string]string{"sub": edit.Subreddit})
	if err != nil {
		return "", err
	}
	if err := jsonErrors(body, "wiki_edit"); err != nil {
		return "", err
	}

	data, err := c.readPage(ctx, edit.Subreddit, edit.Page)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Warn().Err(err).Str("page", edit.Page).Msg("Failed to read back wiki revision")
		}
		return "", nil
	}
	return data.RevisionID, nil
}
