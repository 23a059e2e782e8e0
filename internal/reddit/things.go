package reddit

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/historyhiders/hidewatch/internal/models"
)

type thing[T any] struct {
	Kind string `json:"kind"`
	Data T      `json:"data"`
}

type listing[T any] struct {
	Kind string `json:"kind"`
	Data struct {
		After    string     `json:"after"`
		Children []thing[T] `json:"children"`
	} `json:"data"`
}

type postData struct {
	Name           string  `json:"name"`
	AuthorFullname string  `json:"author_fullname"`
	Title          string  `json:"title"`
	Selftext       string  `json:"selftext"`
	CreatedUTC     float64 `json:"created_utc"`
}

func (d postData) post() *models.Post {
	return &models.Post{
		ID:        d.Name,
		AuthorID:  d.AuthorFullname,
		Title:     d.Title,
		Body:      d.Selftext,
		CreatedAt: unixTime(d.CreatedUTC),
	}
}

type commentData struct {
	Name       string  `json:"name"`
	CreatedUTC float64 `json:"created_utc"`
}

type accountData struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wikiPageData struct {
	ContentMD  string `json:"content_md"`
	RevisionID string `json:"revision_id"`
}

func unixTime(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// jsonErrors inspects an api_type=json response for reported errors.
func jsonErrors(body []byte, op string) error {
	if len(body) == 0 {
		return nil
	}
	var resp struct {
		JSON struct {
			Errors [][]any `json:"errors"`
		} `json:"json"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	if len(resp.JSON.Errors) == 0 {
		return nil
	}
	parts := make([]string, 0, len(resp.JSON.Errors))
	for _, e := range resp.JSON.Errors {
		parts = append(parts, fmt.Sprint(e...))
	}
	return fmt.Errorf("reddit %s: %s", op, strings.Join(parts, "; "))
}
