package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/historyhiders/hidewatch/internal/watch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_DATA_HOME", xdg)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "18920", cfg.Port)
	assert.Equal(t, ":18920", cfg.Addr())
	assert.Equal(t, WikiReddit, cfg.Wiki)
	assert.Equal(t, filepath.Join(xdg, "hidewatch"), cfg.DataDir)
	assert.Equal(t, filepath.Join(xdg, "hidewatch", "cache"), cfg.CachePath())
	assert.Equal(t, filepath.Join(xdg, "hidewatch", "hidewatch.db"), cfg.DBPath())
	assert.Equal(t, 30*time.Second, cfg.Reddit.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.JobTimeout)

	wc := cfg.Watch()
	def := watch.DefaultConfig()
	assert.Equal(t, def.ReportSubreddit, wc.ReportSubreddit)
	assert.Equal(t, def.Publisher, wc.Publisher)
	assert.Equal(t, def.Receiver, wc.Receiver)
	assert.True(t, wc.CurrentlyTesting)
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HIDEWATCH_DATA_DIR", dir)
	t.Setenv("HIDEWATCH_PORT", "9000")
	t.Setenv("HIDEWATCH_WIKI", "local")
	t.Setenv("HIDEWATCH_REDDIT_CLIENT_ID", "abc")
	t.Setenv("HIDEWATCH_REDDIT_SUBREDDIT", "mysub")
	t.Setenv("HIDEWATCH_REPORT_SUBREDDIT", "reports")
	t.Setenv("HIDEWATCH_VERDICT_PAGE", "index")
	t.Setenv("HIDEWATCH_VERDICT_WINDOW", "48h")
	t.Setenv("HIDEWATCH_PUBLISHER_CRON", "30 22 * * *")
	t.Setenv("HIDEWATCH_CURRENTLY_TESTING", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, WikiLocal, cfg.Wiki)

	opts := cfg.RedditOptions()
	assert.Equal(t, "abc", opts.ClientID)
	assert.Equal(t, "mysub", opts.Subreddit)

	wc := cfg.Watch()
	assert.Equal(t, "reports", wc.ReportSubreddit)
	assert.Equal(t, "index", wc.VerdictPage)
	assert.Equal(t, 48*time.Hour, wc.VerdictWindow)
	assert.Equal(t, "30 22 * * *", wc.Publisher.Cron)
	assert.Equal(t, watch.DefaultConfig().Receiver.Cron, wc.Receiver.Cron)
	assert.False(t, wc.CurrentlyTesting)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("HIDEWATCH_DATA_DIR", t.TempDir())

	t.Run("unknown wiki mode", func(t *testing.T) {
		t.Setenv("HIDEWATCH_WIKI", "dropbox")
		_, err := Load()
		assert.ErrorContains(t, err, "HIDEWATCH_WIKI")
	})

	t.Run("bad log level", func(t *testing.T) {
		t.Setenv("HIDEWATCH_LOG_LEVEL", "loud")
		_, err := Load()
		assert.ErrorContains(t, err, "HIDEWATCH_LOG_LEVEL")
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("HIDEWATCH_AUTHOR_TTL", "forever")
		_, err := Load()
		assert.Error(t, err)
	})
}
