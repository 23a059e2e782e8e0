package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/historyhiders/hidewatch/internal/handlers"
	"github.com/historyhiders/hidewatch/internal/metrics"
	"github.com/historyhiders/hidewatch/internal/moderation"
	"github.com/historyhiders/hidewatch/internal/routing"
	"github.com/historyhiders/hidewatch/internal/tracing"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the daily jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	log.Info().Str("version", version).Msg("Starting hidewatch")
	cfg.LogSummary()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	modSvc, err := moderation.NewService(cfg.ModeratorsConfig)
	if err != nil {
		return err
	}
	go reloadOnHangup(ctx, modSvc)

	// Jobs recorded by a previous process are gone with it; installing on
	// every start keeps exactly one job per name.
	installed, err := a.watcher.Installed(ctx)
	if err != nil {
		return fmt.Errorf("failed to check installed jobs: %w", err)
	}
	trigger := "install"
	if installed {
		trigger = "upgrade"
	}
	if err := a.watcher.InstallJobs(ctx, trigger); err != nil {
		return err
	}
	a.sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.sched.Stop(stopCtx)
	}()

	metrics.StartCollector(ctx, metrics.StatsSource{
		BucketEntries: func() int {
			n, err := a.watcher.BucketSize(ctx)
			if err != nil {
				return -1
			}
			return n
		},
		ScheduledJobs: a.sched.Len,
	}, cfg.StatsInterval)

	h := handlers.NewHandler(a.watcher)
	h.SetModeration(modSvc, a.bolt.ModerationStore())

	handler := routing.SetupRouter(routing.Config{
		Handlers: h,
		Logger:   log.Logger,
		Token:    cfg.Token,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           otelhttp.NewHandler(handler, "hidewatch"),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", cfg.Addr()).
			Str("wiki", cfg.Wiki).
			Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// reloadOnHangup re-reads the moderator roles on SIGHUP.
func reloadOnHangup(ctx context.Context, svc *moderation.Service) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := svc.Reload(); err != nil {
				log.Error().Err(err).Msg("Failed to reload moderation config")
				continue
			}
			log.Info().Msg("Moderation config reloaded")
		}
	}
}
