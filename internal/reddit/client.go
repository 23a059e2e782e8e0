// Package reddit is the platform client: it implements watch.ContentAPI and
// watch.Documents against Reddit's OAuth API.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/historyhiders/hidewatch/internal/metrics"
	"github.com/historyhiders/hidewatch/internal/models"
	"github.com/historyhiders/hidewatch/internal/tracing"
	"github.com/historyhiders/hidewatch/internal/watch"

	"github.com/go-resty/resty/v2"
	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL  = "https://oauth.reddit.com"
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"
	DefaultWebURL   = "https://www.reddit.com"

	// Listing endpoints return at most this many items per page.
	pageSize = 100
)

// Options configures the client.
type Options struct {
	BaseURL  string
	TokenURL string
	WebURL   string

	// Script-app credentials. When ClientID is empty requests are sent
	// without authentication, which only works against test servers.
	ClientID     string
	ClientSecret string
	Username     string
	Password     string

	UserAgent string

	// Subreddit is the community the bot is installed in.
	Subreddit string

	Timeout time.Duration
}

// Client talks to the Reddit API.
type Client struct {
	http      *resty.Client
	webURL    string
	subreddit string
}

var (
	_ watch.ContentAPI = (*Client)(nil)
	_ watch.Documents  = (*Client)(nil)
)

// New creates a client. Tokens are fetched lazily with the password grant
// and reused until they expire.
func New(ctx context.Context, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.WebURL == "" {
		opts.WebURL = DefaultWebURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "hidewatch/0.1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	base := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	hc := base
	if opts.ClientID != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
		cfg := &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}
		src := oauth2.ReuseTokenSource(nil, &passwordSource{
			ctx:      ctx,
			cfg:      cfg,
			username: opts.Username,
			password: opts.Password,
		})
		hc = oauth2.NewClient(ctx, src)
	}

	rc := resty.NewWithClient(hc).
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "application/json").
		SetTimeout(opts.Timeout)

	return &Client{
		http:      rc,
		webURL:    strings.TrimRight(opts.WebURL, "/"),
		subreddit: opts.Subreddit,
	}
}

// passwordSource fetches tokens with the resource owner password grant,
// the flow Reddit offers to script apps.
type passwordSource struct {
	ctx      context.Context
	cfg      *oauth2.Config
	username string
	password string
}

func (s *passwordSource) Token() (*oauth2.Token, error) {
	tok, err := s.cfg.PasswordCredentialsToken(s.ctx, s.username, s.password)
	if err != nil {
		return nil, fmt.Errorf("reddit token: %w", err)
	}
	log.Debug().Time("expiry", tok.Expiry).Msg("Fetched reddit access token")
	return tok, nil
}

type listingParams struct {
	Sort    string `url:"sort,omitempty"`
	Limit   int    `url:"limit,omitempty"`
	After   string `url:"after,omitempty"`
	RawJSON int    `url:"raw_json,omitempty"`
}

type infoParams struct {
	ID      string `url:"id"`
	RawJSON int    `url:"raw_json,omitempty"`
}

type accountIDsParams struct {
	IDs string `url:"ids"`
}

type reportParams struct {
	ThingID string `url:"thing_id"`
	Reason  string `url:"reason"`
	APIType string `url:"api_type"`
}

// do sends a request and returns the body of a 2xx response. 404 maps to
// models.ErrNotFound.
func (c *Client) do(ctx context.Context, op, method, path string, params any, form any, pathParams map[string]string) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if pathParams != nil {
		req.SetPathParams(pathParams)
	}
	if params != nil {
		v, err := query.Values(params)
		if err != nil {
			return nil, fmt.Errorf("encode query: %w", err)
		}
		req.SetQueryParamsFromValues(v)
	}
	if form != nil {
		v, err := query.Values(form)
		if err != nil {
			return nil, fmt.Errorf("encode form: %w", err)
		}
		req.SetFormDataFromValues(v)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		metrics.PlatformRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("reddit %s: %w", op, err)
	}
	metrics.PlatformRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode())).Inc()

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, models.ErrNotFound
	case !resp.IsSuccess():
		return nil, fmt.Errorf("reddit %s: status %d: %s", op, resp.StatusCode(), truncate(resp.String(), 200))
	}
	return resp.Body(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func fullname(prefix, id string) string {
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}

// GetPostByID fetches a post by id or fullname.
func (c *Client) GetPostByID(ctx context.Context, id string) (post *models.Post, err error) {
	ctx, span := tracing.PlatformSpan(ctx, "GetPostByID", id)
	defer span.End()
	defer func() { tracing.EndWithError(span, err) }()

	body, err := c.do(ctx, "info", http.MethodGet, "/api/info", infoParams{ID: fullname("t3_", id), RawJSON: 1}, nil, nil)
	if err != nil {
		return nil, err
	}

	var listing listing[postData]
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode post %s: %w", id, err)
	}
	if len(listing.Data.Children) == 0 {
		return nil, models.ErrNotFound
	}
	return listing.Data.Children[0].Data.post(), nil
}

// GetUserByID resolves an account fullname (t2_...) to a user.
func (c *Client) GetUserByID(ctx context.Context, id string) (user *models.User, err error) {
	ctx, span := tracing.PlatformSpan(ctx, "GetUserByID", id)
	defer span.End()
	defer func() { tracing.EndWithError(span, err) }()

	id = fullname("t2_", id)
	body, err := c.do(ctx, "user_data_by_account_ids", http.MethodGet, "/api/user_data_by_account_ids", accountIDsParams{IDs: id}, nil, nil)
	if err != nil {
		return nil, err
	}

	var users map[string]struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	u, ok := users[id]
	if !ok || u.Name == "" {
		return nil, models.ErrNotFound
	}
	return &models.User{ID: id, Name: u.Name}, nil
}

// GetUserByUsername resolves a username to a user.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (user *models.User, err error) {
	ctx, span := tracing.PlatformSpan(ctx, "GetUserByUsername", username)
	defer span.End()
	defer func() { tracing.EndWithError(span, err) }()

	body, err := c.do(ctx, "about", http.MethodGet, "/user/{name}/about", nil, nil, map[string]string{"name": username})
	if err != nil {
		return nil, err
	}

	var about thing[accountData]
	if err := json.Unmarshal(body, &about); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", username, err)
	}
	if about.Data.ID == "" {
		return nil, models.ErrNotFound
	}
	return &models.User{ID: fullname("t2_", about.Data.ID), Name: about.Data.Name}, nil
}

// RecentPosts pages through the user's submissions, newest first.
func (c *Client) RecentPosts(ctx context.Context, user *models.User, limit int) (posts []models.Post, err error) {
	ctx, span := tracing.PlatformSpan(ctx, "RecentPosts", user.Name)
	defer span.End()
	defer func() { tracing.EndWithError(span, err) }()

	err = paginate(ctx, c, "submitted", user.Name, limit, func(d postData) {
		posts = append(posts, *d.post())
	})
	return posts, err
}

// RecentComments pages through the user's comments, newest first.
func (c *Client) RecentComments(ctx context.Context, user *models.User, limit int) (comments []models.Comment, err error) {
	ctx, span := tracing.PlatformSpan(ctx, "RecentComments", user.Name)
	defer span.End()
	defer func() { tracing.EndWithError(span, err) }()

	err = paginate(ctx, c, "comments", user.Name, limit, func(d commentData) {
		comments = append(comments, models.Comment{ID: d.Name, CreatedAt: unixTime(d.CreatedUTC)})
	})
	return comments, err
}

func paginate[T any](ctx context.Context, c *Client, where, username string, limit int, add func(T)) error {
	params := listingParams{Sort: "new", RawJSON: 1}
	seen := 0
	for seen < limit {
		params.Limit = min(pageSize, limit-seen)
		body, err := c.do(ctx, where, http.MethodGet, "/user/{name}/"+where, params, nil, map[string]string{"name": username})
		if err != nil {
			return err
		}

		var page listing[T]
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("decode %s of %s: %w", where, username, err)
		}
		for _, child := range page.Data.Children {
			if seen == limit {
				break
			}
			add(child.Data)
			seen++
		}
		if page.Data.After == "" || len(page.Data.Children) == 0 {
			break
		}
		params.After = page.Data.After
	}
	return nil
}

// Report files a report against a post or comment.
func (c *Client) Report(ctx context.Context, thingID, reason string) (err error) {
	ctx, span := tracing.PlatformSpan(ctx, "Report", thingID)
	defer span.End()
	defer func() { tracing.EndWithError(span, err) }()

	body, err := c.do(ctx, "report", http.MethodPost, "/api/report", nil, reportParams{
		ThingID: thingID,
		Reason:  reason,
		APIType: "json",
	}, nil)
	if err != nil {
		return err
	}
	return jsonErrors(body, "report")
}

// CurrentSubreddit returns the configured subreddit.
func (c *Client) CurrentSubreddit(ctx context.Context) (string, error) {
	return c.subreddit, nil
}

// ProfileURL returns the public profile page of a user.
func (c *Client) ProfileURL(user *models.User) string {
	return c.webURL + "/user/" + user.Name + "/"
}
