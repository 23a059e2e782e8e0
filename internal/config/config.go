// Package config loads hidewatch settings from HIDEWATCH_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/historyhiders/hidewatch/internal/reddit"
	"github.com/historyhiders/hidewatch/internal/watch"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prefix is prepended to every environment variable name.
const Prefix = "HIDEWATCH"

// Wiki modes select where published reports and the verdict index live.
const (
	WikiReddit = "reddit"
	WikiLocal  = "local"
)

// Config holds the process configuration. Zero values for the watcher
// overrides keep the defaults of watch.DefaultConfig.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`

	Port  string `envconfig:"PORT" default:"18920"`
	Token string `envconfig:"TOKEN"`

	// DataDir holds the cache and the bolt database. Defaults to
	// $XDG_DATA_HOME/hidewatch.
	DataDir string `envconfig:"DATA_DIR"`

	// ModeratorsConfig is the path of the moderator roles file. Empty
	// disables the moderator endpoints.
	ModeratorsConfig string `envconfig:"MODERATORS_CONFIG"`

	Reddit RedditConfig `envconfig:"REDDIT"`

	// Wiki is WikiReddit or WikiLocal.
	Wiki string `envconfig:"WIKI" default:"reddit"`

	ReportSubreddit  string        `envconfig:"REPORT_SUBREDDIT"`
	VerdictSubreddit string        `envconfig:"VERDICT_SUBREDDIT"`
	VerdictPage      string        `envconfig:"VERDICT_PAGE"`
	VerdictWindow    time.Duration `envconfig:"VERDICT_WINDOW"`
	AuthorTTL        time.Duration `envconfig:"AUTHOR_TTL"`
	HistoryLimit     int           `envconfig:"HISTORY_LIMIT"`
	PublisherCron    string        `envconfig:"PUBLISHER_CRON"`
	ReceiverCron     string        `envconfig:"RECEIVER_CRON"`
	CurrentlyTesting *bool         `envconfig:"CURRENTLY_TESTING"`

	// JobTimeout bounds a single scheduled job run.
	JobTimeout time.Duration `envconfig:"JOB_TIMEOUT" default:"10m"`

	// StatsInterval is how often the gauge collector runs.
	StatsInterval time.Duration `envconfig:"STATS_INTERVAL" default:"1m"`
}

// RedditConfig holds script-app credentials for the Reddit API.
type RedditConfig struct {
	ClientID     string        `envconfig:"CLIENT_ID"`
	ClientSecret string        `envconfig:"CLIENT_SECRET"`
	Username     string        `envconfig:"USERNAME"`
	Password     string        `envconfig:"PASSWORD"`
	UserAgent    string        `envconfig:"USER_AGENT"`
	BaseURL      string        `envconfig:"BASE_URL"`
	Subreddit    string        `envconfig:"SUBREDDIT"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.resolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolveDefaults() error {
	switch c.Wiki {
	case WikiReddit, WikiLocal:
	default:
		return fmt.Errorf("unsupported HIDEWATCH_WIKI: %s", c.Wiki)
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid HIDEWATCH_LOG_LEVEL: %w", err)
	}

	if c.DataDir == "" {
		// Default to XDG data directory or home directory for development
		dataDir := os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}
			dataDir = filepath.Join(home, ".local", "share")
		}
		c.DataDir = filepath.Join(dataDir, "hidewatch")
	}
	return nil
}

// CachePath is the badger directory of the author cache and day buckets.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache")
}

// DBPath is the bolt file of the local wiki and audit log.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "hidewatch.db")
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Watch builds the watcher configuration.
func (c *Config) Watch() watch.Config {
	wc := watch.DefaultConfig()
	if c.ReportSubreddit != "" {
		wc.ReportSubreddit = c.ReportSubreddit
	}
	if c.VerdictSubreddit != "" {
		wc.VerdictSubreddit = c.VerdictSubreddit
	}
	if c.VerdictPage != "" {
		wc.VerdictPage = c.VerdictPage
	}
	if c.VerdictWindow > 0 {
		wc.VerdictWindow = c.VerdictWindow
	}
	if c.AuthorTTL > 0 {
		wc.AuthorTTL = c.AuthorTTL
	}
	if c.HistoryLimit > 0 {
		wc.HistoryLimit = c.HistoryLimit
	}
	if c.PublisherCron != "" {
		wc.Publisher.Cron = c.PublisherCron
	}
	if c.ReceiverCron != "" {
		wc.Receiver.Cron = c.ReceiverCron
	}
	if c.CurrentlyTesting != nil {
		wc.CurrentlyTesting = *c.CurrentlyTesting
	}
	return wc
}

// RedditOptions builds the platform client options.
func (c *Config) RedditOptions() reddit.Options {
	return reddit.Options{
		BaseURL:      c.Reddit.BaseURL,
		ClientID:     c.Reddit.ClientID,
		ClientSecret: c.Reddit.ClientSecret,
		Username:     c.Reddit.Username,
		Password:     c.Reddit.Password,
		UserAgent:    c.Reddit.UserAgent,
		Subreddit:    c.Reddit.Subreddit,
		Timeout:      c.Reddit.Timeout,
	}
}

// SetupLogging configures the global zerolog logger.
func (c *Config) SetupLogging() {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Use pretty console logging in development, JSON in production
	if c.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}

// LogSummary logs the effective configuration without secrets.
func (c *Config) LogSummary() {
	log.Info().
		Str("port", c.Port).
		Str("data_dir", c.DataDir).
		Str("wiki", c.Wiki).
		Str("subreddit", c.Reddit.Subreddit).
		Bool("reddit_auth", c.Reddit.ClientID != "").
		Bool("token_set", c.Token != "").
		Bool("moderators_config", c.ModeratorsConfig != "").
		Msg("Configuration loaded")
}
