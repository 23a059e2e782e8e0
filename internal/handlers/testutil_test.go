package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/historyhiders/hidewatch/internal/database/badgerkv"
	"github.com/historyhiders/hidewatch/internal/database/boltstore"
	"github.com/historyhiders/hidewatch/internal/middleware"
	"github.com/historyhiders/hidewatch/internal/models"
	"github.com/historyhiders/hidewatch/internal/moderation"
	"github.com/historyhiders/hidewatch/internal/watch"

	"github.com/stretchr/testify/require"
)

var errPlatformDown = errors.New("platform unavailable")

// stubContent is a minimal platform for handler tests.
type stubContent struct {
	mu      sync.Mutex
	users   map[string]*models.User
	reports []string
	userErr error
}

func (s *stubContent) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	return nil, models.ErrNotFound
}

func (s *stubContent) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userErr != nil {
		return nil, s.userErr
	}
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func (s *stubContent) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Name == username {
			return u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *stubContent) RecentPosts(ctx context.Context, user *models.User, limit int) ([]models.Post, error) {
	return []models.Post{{ID: "t3_one", CreatedAt: time.Now()}}, nil
}

func (s *stubContent) RecentComments(ctx context.Context, user *models.User, limit int) ([]models.Comment, error) {
	return nil, nil
}

func (s *stubContent) Report(ctx context.Context, thingID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, thingID)
	return nil
}

func (s *stubContent) CurrentSubreddit(ctx context.Context) (string, error) {
	return "mysub", nil
}

func (s *stubContent) ProfileURL(user *models.User) string {
	return "https://www.reddit.com/user/" + user.Name + "/"
}

type stubScheduler struct{}

func (stubScheduler) RunJob(spec watch.JobSpec) (string, error) { return "job-" + spec.Name, nil }
func (stubScheduler) CancelJob(id string) error                  { return nil }

// TestContext holds everything a handler test needs.
type TestContext struct {
	Handler *Handler
	Watcher *watch.Watcher
	Content *stubContent
	Store   *badgerkv.Store
	Wiki    *boltstore.WikiStore
	Audit   *boltstore.ModerationStore
}

const testModeratorConfig = `{
	"roles": {
		"admin": {
			"description": "Full control",
			"permissions": ["run_jobs", "evaluate_account", "clear_account", "goto_account", "view_audit_log"]
		},
		"moderator": {
			"description": "Account lookups",
			"permissions": ["evaluate_account", "goto_account"]
		}
	},
	"users": [
		{"username": "headmod", "role": "admin"},
		{"username": "helper", "role": "moderator"}
	]
}`

// NewTestContext creates a handler over an in-memory cache, a temporary bolt
// database and a stub platform with one known user.
func NewTestContext(t *testing.T) *TestContext {
	t.Helper()

	kv, err := badgerkv.Open(badgerkv.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	dir := t.TempDir()
	bolt, err := boltstore.Open(boltstore.Options{Path: filepath.Join(dir, "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	configPath := filepath.Join(dir, "moderators.json")
	require.NoError(t, os.WriteFile(configPath, []byte(testModeratorConfig), 0644))
	svc, err := moderation.NewService(configPath)
	require.NoError(t, err)

	content := &stubContent{users: map[string]*models.User{
		"t2_alice": {ID: "t2_alice", Name: "alice"},
	}}

	cfg := watch.DefaultConfig()
	cfg.Now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }

	tc := &TestContext{
		Content: content,
		Store:   kv,
		Wiki:    bolt.WikiStore(),
		Audit:   bolt.ModerationStore(),
	}
	tc.Watcher = watch.New(cfg, watch.Deps{
		Content:   content,
		Documents: tc.Wiki,
		Store:     kv,
		Scheduler: stubScheduler{},
		Audit:     tc.Audit,
	})
	tc.Handler = NewHandler(tc.Watcher)
	tc.Handler.SetModeration(svc, tc.Audit)
	return tc
}

// NewModeratorRequest creates a request on behalf of a moderator.
func NewModeratorRequest(method, path, moderator string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	if moderator != "" {
		req = req.WithContext(middleware.WithModerator(req.Context(), moderator))
	}
	return req
}
