package watch

import "time"

// JobConfig names a daily job, the key its scheduler id is stored under and
// its cron expression.
type JobConfig struct {
	Name string
	Key  string
	Cron string
}

// Config holds every tunable the watcher uses. Zero values are not usable;
// start from DefaultConfig and override.
type Config struct {
	// AuthorTTL is how long an author's cache entry lives.
	AuthorTTL time.Duration
	// BucketTTL is refreshed on the day bucket on every snapshot write.
	BucketTTL time.Duration
	// HistoryLimit bounds the posts and comments kept per snapshot.
	HistoryLimit int

	// ReportReason is the reason attached to reports against hiding accounts.
	ReportReason string

	// ReportSubreddit hosts the wiki the publisher writes to.
	ReportSubreddit string
	// ReportPagePrefix is joined with the current subreddit name.
	ReportPagePrefix string

	// VerdictSubreddit and VerdictPage locate the externally maintained
	// index of verdict posts.
	VerdictSubreddit string
	VerdictPage      string
	// VerdictWindow is how far back from today's midnight (UTC) verdict
	// posts are considered.
	VerdictWindow time.Duration
	// FetchConcurrency caps parallel post fetches in the ingester.
	FetchConcurrency int

	AppVersion       string
	CurrentlyTesting bool

	Publisher JobConfig
	Receiver  JobConfig

	// Now returns the current time. Tests override it.
	Now func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AuthorTTL:    28 * 24 * time.Hour,
		BucketTTL:    24 * time.Hour,
		HistoryLimit: 500,

		ReportReason: "from my memory (cache) this user is hiding his history",

		ReportSubreddit:  "historyhiders_dev3",
		ReportPagePrefix: "subreddits/",

		VerdictSubreddit: "historyhiders_dev3",
		VerdictPage:      "verdicts",
		VerdictWindow:    3 * 24 * time.Hour,
		FetchConcurrency: 4,

		AppVersion:       "0.0.1",
		CurrentlyTesting: true,

		Publisher: JobConfig{
			Name: "dailyUserPayloadName",
			Key:  "jobId",
			Cron: "0 23 * * *",
		},
		Receiver: JobConfig{
			Name: "daily_receiver",
			Key:  "jobId-daily_receiver",
			Cron: "0 0 * * *",
		},

		Now: time.Now,
	}
}

func (c Config) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}
