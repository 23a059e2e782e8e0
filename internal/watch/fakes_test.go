package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/historyhiders/hidewatch/internal/database/badgerkv"
	"github.com/historyhiders/hidewatch/internal/database/boltstore"
	"github.com/historyhiders/hidewatch/internal/models"

	"github.com/stretchr/testify/require"
)

type filedReport struct {
	thingID string
	reason  string
}

type fakeContent struct {
	mu sync.Mutex

	subreddit    string
	users        map[string]*models.User
	posts        map[string]*models.Post
	postErrs     map[string]error
	userPosts    map[string][]models.Post
	userComments map[string][]models.Comment

	reports     []filedReport
	fetched     []string
	userLookups int
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		subreddit:    "mysub",
		users:        map[string]*models.User{},
		posts:        map[string]*models.Post{},
		postErrs:     map[string]error{},
		userPosts:    map[string][]models.Post{},
		userComments: map[string][]models.Comment{},
	}
}

func (f *fakeContent) addUser(id, name string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &models.User{ID: id, Name: name}
	f.users[id] = u
	return u
}

func (f *fakeContent) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, id)
	if err := f.postErrs[id]; err != nil {
		return nil, err
	}
	p, ok := f.posts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return p, nil
}

func (f *fakeContent) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userLookups++
	u, ok := f.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

func (f *fakeContent) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Name == username {
			return u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeContent) RecentPosts(ctx context.Context, user *models.User, limit int) ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userPosts[user.ID], nil
}

func (f *fakeContent) RecentComments(ctx context.Context, user *models.User, limit int) ([]models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userComments[user.ID], nil
}

func (f *fakeContent) Report(ctx context.Context, thingID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, filedReport{thingID: thingID, reason: reason})
	return nil
}

func (f *fakeContent) CurrentSubreddit(ctx context.Context) (string, error) {
	return f.subreddit, nil
}

func (f *fakeContent) ProfileURL(user *models.User) string {
	return "https://www.reddit.com/user/" + user.Name + "/"
}

type fakeDocs struct {
	mu     sync.Mutex
	pages  map[string]string
	writes []models.WikiEdit
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{pages: map[string]string{}}
}

func (d *fakeDocs) ReadPage(ctx context.Context, subreddit, page string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	content, ok := d.pages[subreddit+"/"+page]
	if !ok {
		return "", models.ErrNotFound
	}
	return content, nil
}

func (d *fakeDocs) WritePage(ctx context.Context, edit models.WikiEdit) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[edit.Subreddit+"/"+edit.Page] = edit.Content
	d.writes = append(d.writes, edit)
	return fmt.Sprintf("rev%d", len(d.writes)), nil
}

type fakeScheduler struct {
	next      int
	active    map[string]JobSpec
	cancelled []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{active: map[string]JobSpec{}}
}

func (s *fakeScheduler) RunJob(spec JobSpec) (string, error) {
	s.next++
	id := fmt.Sprintf("job-%d", s.next)
	s.active[id] = spec
	return id, nil
}

func (s *fakeScheduler) CancelJob(id string) error {
	s.cancelled = append(s.cancelled, id)
	delete(s.active, id)
	return nil
}

func (s *fakeScheduler) activeByName() map[string]int {
	counts := map[string]int{}
	for _, spec := range s.active {
		counts[spec.Name]++
	}
	return counts
}

type fakeUI struct {
	toasts     []string
	navigation []string
}

func (u *fakeUI) ShowToast(text string) { u.toasts = append(u.toasts, text) }
func (u *fakeUI) NavigateTo(url string) { u.navigation = append(u.navigation, url) }

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	w       *Watcher
	cfg     Config
	kv      *badgerkv.Store
	audit   *boltstore.ModerationStore
	content *fakeContent
	docs    *fakeDocs
	sched   *fakeScheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	kv, err := badgerkv.Open(badgerkv.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	bolt, err := boltstore.Open(boltstore.Options{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return testNow }

	env := &testEnv{
		cfg:     cfg,
		kv:      kv,
		audit:   bolt.ModerationStore(),
		content: newFakeContent(),
		docs:    newFakeDocs(),
		sched:   newFakeScheduler(),
	}
	env.w = New(cfg, Deps{
		Content:   env.content,
		Documents: env.docs,
		Store:     env.kv,
		Scheduler: env.sched,
		Audit:     env.audit,
	})
	return env
}

// withConfig rebuilds the watcher with a modified configuration.
func (e *testEnv) withConfig(fn func(*Config)) *testEnv {
	fn(&e.cfg)
	e.w = New(e.cfg, Deps{
		Content:   e.content,
		Documents: e.docs,
		Store:     e.kv,
		Scheduler: e.sched,
		Audit:     e.audit,
	})
	return e
}

func boolPtr(b bool) *bool { return &b }
