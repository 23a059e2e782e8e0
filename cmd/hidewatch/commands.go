package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"time"

	"github.com/historyhiders/hidewatch/internal/watch"

	"github.com/spf13/cobra"
)

// cliUI prints what a watcher operation would show a moderator.
type cliUI struct {
	out io.Writer
}

func (u cliUI) ShowToast(text string) {
	fmt.Fprintln(u.out, text)
}

func (u cliUI) NavigateTo(url string) {
	fmt.Fprintf(u.out, "open %s\n", url)
}

// withApp opens the stores for a one-shot command and attributes its actions
// to the local operator.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app, ui watch.UI) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = watch.WithActor(ctx, operator())

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a, cliUI{out: cmd.OutOrStdout()})
}

func operator() string {
	if name := os.Getenv("HIDEWATCH_OPERATOR"); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		return "cli:" + u.Username
	}
	return "cli"
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Record the daily jobs and show their next runs",
	Long: `Replace the recorded daily jobs and print when each would next run.

The jobs only run while "hidewatch serve" is up; serve reinstalls them on
every start.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, ui watch.UI) error {
			if err := a.watcher.InstallJobs(ctx, "install"); err != nil {
				return err
			}
			wc := a.watcher.Config()
			for _, job := range []watch.JobConfig{wc.Publisher, wc.Receiver} {
				id, err := a.kv.Get(ctx, job.Key)
				if err != nil {
					return err
				}
				next, _ := a.sched.Next(string(id))
				ui.ShowToast(fmt.Sprintf("%s (%s) next run %s", job.Name, job.Cron, next.Format(time.RFC3339)))
			}
			return nil
		})
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish today's snapshots to the report wiki now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, ui watch.UI) error {
			return a.watcher.PostNow(ctx, ui)
		})
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Apply the latest verdict report now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, ui watch.UI) error {
			return a.watcher.FindNow(ctx, ui)
		})
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <username>",
	Short: "Show the cached verdict of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, ui watch.UI) error {
			return ignoreShown(a.watcher.Evaluate(ctx, ui, args[0]))
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <username>",
	Short: "Delete the cached verdict of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, ui watch.UI) error {
			return ignoreShown(a.watcher.Clear(ctx, ui, args[0]))
		})
	},
}

var gotoCmd = &cobra.Command{
	Use:   "goto <userId>",
	Short: "Print the profile URL of an account id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, ui watch.UI) error {
			return ignoreShown(a.watcher.Goto(ctx, ui, args[0]))
		})
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent moderation actions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, func(ctx context.Context, a *app, ui watch.UI) error {
			entries, err := a.bolt.ModerationStore().ListAuditLog(ctx, limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				ui.ShowToast(fmt.Sprintf("%s  %-16s %-14s %s %s",
					e.Timestamp.UTC().Format(time.RFC3339), e.Action, e.Actor, e.Target, e.Reason))
			}
			return nil
		})
	},
}

func init() {
	auditCmd.Flags().Int("limit", 20, "number of entries to show")
}

// ignoreShown drops rejections that were already printed to the operator.
func ignoreShown(err error) error {
	if watch.IsKind(err, watch.KindInvalidInput) || watch.IsKind(err, watch.KindNotFound) {
		return nil
	}
	return err
}
