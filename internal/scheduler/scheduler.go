// Package scheduler runs the watcher's daily jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/historyhiders/hidewatch/internal/watch"

	"github.com/go-logr/zerologr"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler is a watch.Scheduler backed by robfig/cron. Job ids are uuids
// so they stay meaningful when persisted across restarts; ids from a
// previous process are simply unknown and cancel as a no-op.
type Scheduler struct {
	cron     *cron.Cron
	timeout  time.Duration
	location *time.Location

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

var _ watch.Scheduler = (*Scheduler)(nil)

// Options configures the scheduler.
type Options struct {
	// Location cron expressions are evaluated in. If nil, UTC is used.
	Location *time.Location

	// JobTimeout bounds a single job run. If zero, ten minutes is used.
	JobTimeout time.Duration
}

// New creates a stopped scheduler.
func New(opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.JobTimeout == 0 {
		opts.JobTimeout = 10 * time.Minute
	}

	logger := zerologr.New(&log.Logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		timeout:  opts.JobTimeout,
		location: opts.Location,
		entries:  make(map[string]cron.EntryID),
	}
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", s.Len()).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn().Msg("Scheduler stopped before running jobs finished")
	}
}

// RunJob registers a recurring job and returns its id.
func (s *Scheduler) RunJob(spec watch.JobSpec) (string, error) {
	if spec.Run == nil {
		return "", fmt.Errorf("job %s has no run function", spec.Name)
	}

	id := uuid.NewString()
	timeout := s.timeout
	entryID, err := s.cron.AddFunc(spec.Cron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		err := spec.Run(ctx)
		log.Info().
			Str("job", spec.Name).
			Str("id", id).
			Dur("duration", time.Since(start)).
			AnErr("error", err).
			Msg("Job run finished")
	})
	if err != nil {
		return "", fmt.Errorf("invalid cron %q for job %s: %w", spec.Cron, spec.Name, err)
	}

	s.mu.Lock()
	s.entries[id] = entryID
	s.mu.Unlock()
	return id, nil
}

// CancelJob removes a job. Unknown ids are ignored.
func (s *Scheduler) CancelJob(id string) error {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if ok {
		s.cron.Remove(entryID)
	}
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Next returns the next run time of a job.
func (s *Scheduler) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	e := s.cron.Entry(entryID)
	if e.Next.IsZero() && e.Schedule != nil {
		// Not started yet.
		return e.Schedule.Next(time.Now().In(s.location)), true
	}
	return e.Next, true
}
