package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/historyhiders/hidewatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(context.Background(), Options{
		BaseURL:   srv.URL,
		WebURL:    "https://www.reddit.com",
		Subreddit: "mysub",
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestGetPostByID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/info", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "t3_abc" {
			writeJSON(t, w, map[string]any{"kind": "Listing", "data": map[string]any{"children": []any{}}})
			return
		}
		assert.Equal(t, "1", r.URL.Query().Get("raw_json"))
		writeJSON(t, w, map[string]any{
			"kind": "Listing",
			"data": map[string]any{
				"children": []any{map[string]any{
					"kind": "t3",
					"data": map[string]any{
						"name":            "t3_abc",
						"author_fullname": "t2_author",
						"title":           "verdicts",
						"selftext":        `[{"aId":"t2_x"}]`,
						"created_utc":     1760486400.5,
					},
				}},
			},
		})
	})
	c := newTestClient(t, mux)

	post, err := c.GetPostByID(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "t3_abc", post.ID)
	assert.Equal(t, "t2_author", post.AuthorID)
	assert.Equal(t, `[{"aId":"t2_x"}]`, post.Body)
	assert.Equal(t, time.Unix(1760486400, 5e8).UTC(), post.CreatedAt)

	_, err = c.GetPostByID(context.Background(), "t3_missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetUserByID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/user_data_by_account_ids", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") == "t2_known" {
			writeJSON(t, w, map[string]any{"t2_known": map[string]any{"name": "known_user"}})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestClient(t, mux)

	user, err := c.GetUserByID(context.Background(), "known")
	require.NoError(t, err)
	assert.Equal(t, &models.User{ID: "t2_known", Name: "known_user"}, user)

	_, err = c.GetUserByID(context.Background(), "t2_gone")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetUserByUsername(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/{name}/about", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") != "someuser" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(t, w, map[string]any{"kind": "t2", "data": map[string]any{"id": "abc", "name": "SomeUser"}})
	})
	c := newTestClient(t, mux)

	user, err := c.GetUserByUsername(context.Background(), "someuser")
	require.NoError(t, err)
	assert.Equal(t, "t2_abc", user.ID)
	assert.Equal(t, "SomeUser", user.Name)

	_, err = c.GetUserByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// listingHandler serves total items in pages keyed by numeric "after" cursors.
func listingHandler(t *testing.T, prefix string, total int, requests *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		q := r.URL.Query()
		assert.Equal(t, "new", q.Get("sort"))

		limit, err := strconv.Atoi(q.Get("limit"))
		require.NoError(t, err)
		assert.LessOrEqual(t, limit, 100)

		start := 0
		if after := q.Get("after"); after != "" {
			start, err = strconv.Atoi(after)
			require.NoError(t, err)
		}
		end := min(start+limit, total)

		children := []any{}
		for i := start; i < end; i++ {
			children = append(children, map[string]any{
				"kind": prefix[:2],
				"data": map[string]any{
					"name":        fmt.Sprintf("%s%d", prefix, i),
					"created_utc": float64(2_000_000_000 - i),
				},
			})
		}
		after := ""
		if end < total {
			after = strconv.Itoa(end)
		}
		writeJSON(t, w, map[string]any{"kind": "Listing", "data": map[string]any{"after": after, "children": children}})
	}
}

func TestRecentPosts_PagesUpToLimit(t *testing.T) {
	var requests int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/someuser/submitted", listingHandler(t, "t3_", 730, &requests))
	c := newTestClient(t, mux)

	posts, err := c.RecentPosts(context.Background(), &models.User{ID: "t2_x", Name: "someuser"}, 500)
	require.NoError(t, err)
	require.Len(t, posts, 500)
	assert.Equal(t, "t3_0", posts[0].ID)
	assert.Equal(t, "t3_499", posts[499].ID)
	assert.True(t, posts[0].CreatedAt.After(posts[1].CreatedAt))
	assert.Equal(t, int32(5), atomic.LoadInt32(&requests))
}

func TestRecentComments_StopsAtEnd(t *testing.T) {
	var requests int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/someuser/comments", listingHandler(t, "t1_", 120, &requests))
	c := newTestClient(t, mux)

	comments, err := c.RecentComments(context.Background(), &models.User{Name: "someuser"}, 500)
	require.NoError(t, err)
	assert.Len(t, comments, 120)
	assert.Equal(t, "t1_119", comments[119].ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestReport(t *testing.T) {
	var got map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/report", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = map[string]string{
			"thing_id": r.PostForm.Get("thing_id"),
			"reason":   r.PostForm.Get("reason"),
			"api_type": r.PostForm.Get("api_type"),
		}
		if r.PostForm.Get("thing_id") == "t3_locked" {
			writeJSON(t, w, map[string]any{"json": map[string]any{"errors": [][]any{{"THREAD_LOCKED", "that thread is locked", "thing_id"}}}})
			return
		}
		writeJSON(t, w, map[string]any{"json": map[string]any{"errors": []any{}}})
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.Report(context.Background(), "t3_abc", "from my memory (cache) this user is hiding his history"))
	assert.Equal(t, map[string]string{
		"thing_id": "t3_abc",
		"reason":   "from my memory (cache) this user is hiding his history",
		"api_type": "json",
	}, got)

	err := c.Report(context.Background(), "t3_locked", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "THREAD_LOCKED")
}

func TestWikiPages(t *testing.T) {
	pages := map[string]string{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /r/{sub}/api/wiki/edit", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Update of r/mysub at now", r.PostForm.Get("reason"))
		pages[r.PathValue("sub")+"/"+r.PostForm.Get("page")] = r.PostForm.Get("content")
		writeJSON(t, w, map[string]any{})
	})
	mux.HandleFunc("GET /r/{sub}/wiki/{page...}", func(w http.ResponseWriter, r *http.Request) {
		content, ok := pages[r.PathValue("sub")+"/"+r.PathValue("page")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(t, w, map[string]any{"kind": "wikipage", "data": map[string]any{"content_md": content, "revision_id": "rev-1"}})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	_, err := c.ReadPage(ctx, "historyhiders_dev3", "subreddits/mysub")
	assert.ErrorIs(t, err, models.ErrNotFound)

	rev, err := c.WritePage(ctx, models.WikiEdit{
		Subreddit: "historyhiders_dev3",
		Page:      "subreddits/mysub",
		Content:   `{"c":[]}`,
		Reason:    "Update of r/mysub at now",
	})
	require.NoError(t, err)
	assert.Equal(t, "rev-1", rev)

	content, err := c.ReadPage(ctx, "historyhiders_dev3", "subreddits/mysub")
	require.NoError(t, err)
	assert.Equal(t, `{"c":[]}`, content)
}

func TestServerErrorIsNotNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/info", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	})
	c := newTestClient(t, mux)

	_, err := c.GetPostByID(context.Background(), "t3_abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
	assert.Contains(t, err.Error(), "502")
}

func TestPasswordGrant(t *testing.T) {
	var tokenRequests int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenRequests, 1)
		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", id)
		assert.Equal(t, "secret", secret)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "botuser", r.PostForm.Get("username"))
		writeJSON(t, w, map[string]any{"access_token": "tok123", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("GET /user/{name}/about", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		assert.Equal(t, "hidewatch-test", r.Header.Get("User-Agent"))
		writeJSON(t, w, map[string]any{"kind": "t2", "data": map[string]any{"id": "abc", "name": r.PathValue("name")}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New(context.Background(), Options{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/api/v1/access_token",
		ClientID:     "client",
		ClientSecret: "secret",
		Username:     "botuser",
		Password:     "hunter2",
		UserAgent:    "hidewatch-test",
	})

	for i := 0; i < 3; i++ {
		_, err := c.GetUserByUsername(context.Background(), "someuser")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenRequests), "token is reused")
}

func TestProfileURLAndSubreddit(t *testing.T) {
	c := New(context.Background(), Options{Subreddit: "mysub"})

	assert.Equal(t, "https://www.reddit.com/user/someuser/", c.ProfileURL(&models.User{Name: "someuser"}))
	sub, err := c.CurrentSubreddit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mysub", sub)
}
