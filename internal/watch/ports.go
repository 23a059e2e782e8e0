package watch

import (
	"context"

	"github.com/historyhiders/hidewatch/internal/models"
)

// ContentAPI is the subset of the platform API the watcher calls.
// Lookups return models.ErrNotFound for missing entities.
type ContentAPI interface {
	GetPostByID(ctx context.Context, id string) (*models.Post, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	// RecentPosts and RecentComments return at most limit items, newest first.
	RecentPosts(ctx context.Context, user *models.User, limit int) ([]models.Post, error)
	RecentComments(ctx context.Context, user *models.User, limit int) ([]models.Comment, error)

	// Report files a moderator report against a post or comment.
	Report(ctx context.Context, thingID, reason string) error

	// CurrentSubreddit returns the subreddit the bot is installed in, or ""
	// when unknown.
	CurrentSubreddit(ctx context.Context) (string, error)
	ProfileURL(user *models.User) string
}

// Documents reads and writes wiki pages.
type Documents interface {
	// ReadPage returns models.ErrNotFound for a page that was never written.
	ReadPage(ctx context.Context, subreddit, page string) (string, error)
	WritePage(ctx context.Context, edit models.WikiEdit) (revisionID string, err error)
}

// JobSpec is a recurring job to register with a Scheduler.
type JobSpec struct {
	Name string
	Cron string
	Run  func(ctx context.Context) error
}

// Scheduler registers recurring jobs. CancelJob of an unknown or already
// cancelled id is not an error.
type Scheduler interface {
	RunJob(spec JobSpec) (id string, err error)
	CancelJob(id string) error
}

// UI is the surface moderator actions report back through.
type UI interface {
	ShowToast(text string)
	NavigateTo(url string)
}
