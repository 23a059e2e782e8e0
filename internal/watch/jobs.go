package watch

import (
	"context"
	"errors"
	"fmt"

	"github.com/historyhiders/hidewatch/internal/database"
	"github.com/historyhiders/hidewatch/internal/metrics"
	"github.com/historyhiders/hidewatch/internal/moderation"
	"github.com/historyhiders/hidewatch/internal/tracing"

	"github.com/rs/zerolog/log"
)

// Jobs returns the daily jobs with their run functions bound to w.
func (w *Watcher) Jobs() []JobSpec {
	return []JobSpec{
		{
			Name: w.cfg.Publisher.Name,
			Cron: w.cfg.Publisher.Cron,
			Run: w.runJob(w.cfg.Publisher.Name, func(ctx context.Context) error {
				_, err := w.Publish(ctx)
				return err
			}),
		},
		{
			Name: w.cfg.Receiver.Name,
			Cron: w.cfg.Receiver.Cron,
			Run: w.runJob(w.cfg.Receiver.Name, func(ctx context.Context) error {
				_, err := w.Ingest(ctx)
				return err
			}),
		},
	}
}

func (w *Watcher) runJob(name string, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, span := tracing.JobSpan(ctx, name)
		defer span.End()

		err := fn(ctx)
		tracing.EndWithError(span, err)
		if err != nil {
			metrics.JobRunsTotal.WithLabelValues(name, "error").Inc()
			log.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
			return err
		}
		metrics.JobRunsTotal.WithLabelValues(name, "ok").Inc()
		return nil
	}
}

// Installed reports whether any job id has been recorded, distinguishing an
// upgrade from a first install.
func (w *Watcher) Installed(ctx context.Context) (bool, error) {
	for _, job := range []JobConfig{w.cfg.Publisher, w.cfg.Receiver} {
		_, err := w.kv.Get(ctx, job.Key)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return false, err
		}
	}
	return false, nil
}

// InstallJobs cancels the previously recorded job of each name, registers a
// replacement and records its id. Running it repeatedly leaves one job per
// name.
func (w *Watcher) InstallJobs(ctx context.Context, trigger string) error {
	keys := map[string]string{
		w.cfg.Publisher.Name: w.cfg.Publisher.Key,
		w.cfg.Receiver.Name:  w.cfg.Receiver.Key,
	}

	for _, spec := range w.Jobs() {
		key := keys[spec.Name]

		old, err := w.kv.Get(ctx, key)
		switch {
		case err == nil && len(old) > 0:
			if err := w.scheduler.CancelJob(string(old)); err != nil {
				log.Warn().Err(err).Str("job", spec.Name).Str("id", string(old)).Msg("Failed to cancel previous job")
			}
		case err != nil && !errors.Is(err, database.ErrNotFound):
			return fmt.Errorf("failed to read %s: %w", key, err)
		}

		id, err := w.scheduler.RunJob(spec)
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", spec.Name, err)
		}
		if err := w.kv.Set(ctx, key, []byte(id)); err != nil {
			return fmt.Errorf("failed to record %s: %w", key, err)
		}

		log.Info().
			Str("job", spec.Name).
			Str("cron", spec.Cron).
			Str("id", id).
			Str("trigger", trigger).
			Msg("Scheduled job installed")
	}

	w.record(ctx, moderation.AuditActionInstallJobs, "scheduler", trigger, nil)
	return nil
}
