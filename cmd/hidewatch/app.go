package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/historyhiders/hidewatch/internal/config"
	"github.com/historyhiders/hidewatch/internal/database/badgerkv"
	"github.com/historyhiders/hidewatch/internal/database/boltstore"
	"github.com/historyhiders/hidewatch/internal/reddit"
	"github.com/historyhiders/hidewatch/internal/scheduler"
	"github.com/historyhiders/hidewatch/internal/watch"

	"github.com/rs/zerolog/log"
)

// app holds the opened stores and the watcher built on them.
type app struct {
	kv      *badgerkv.Store
	bolt    *boltstore.Store
	reddit  *reddit.Client
	sched   *scheduler.Scheduler
	watcher *watch.Watcher
}

// openApp opens the cache and the bolt database and wires the watcher. The
// badger directory is locked while open, so only one process may use a
// data directory at a time.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	kv, err := badgerkv.Open(badgerkv.Options{Path: cfg.CachePath()})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache at %s: %w", cfg.CachePath(), err)
	}

	bolt, err := boltstore.Open(boltstore.Options{Path: cfg.DBPath()})
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("failed to open database at %s: %w", cfg.DBPath(), err)
	}

	a := &app{
		kv:     kv,
		bolt:   bolt,
		reddit: reddit.New(ctx, cfg.RedditOptions()),
		sched:  scheduler.New(scheduler.Options{JobTimeout: cfg.JobTimeout}),
	}

	var docs watch.Documents = a.reddit
	if cfg.Wiki == config.WikiLocal {
		docs = bolt.WikiStore()
	}

	a.watcher = watch.New(cfg.Watch(), watch.Deps{
		Content:   a.reddit,
		Documents: docs,
		Store:     kv,
		Scheduler: a.sched,
		Audit:     bolt.ModerationStore(),
	})

	log.Info().
		Str("cache", cfg.CachePath()).
		Str("database", cfg.DBPath()).
		Str("wiki", cfg.Wiki).
		Msg("Stores opened")
	return a, nil
}

func (a *app) Close() error {
	return errors.Join(a.kv.Close(), a.bolt.Close())
}
