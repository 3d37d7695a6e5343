package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcward/keel/internal/config"
	"github.com/marcward/keel/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch linked files and run git detection passes",
	Long: `Run the file watcher in the foreground.

Watches every file linked to a non-archived task and, on an interval,
runs the stage and commit detection passes so tasks complete and
archive without explicit hook wiring. Logs go to the configured log
file with rotation, or to stderr when none is set.

Example usage:
  keel watch
  keel watch --interval 30s`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")

		cfg, err := config.Load(rootFlag)
		if err != nil {
			fatal(err)
		}
		logger := newLogger(cfg, "[watch] ")

		a, err := openApp(appOptions{withWatcher: true, logger: logger})
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := a.tr.StartWatcher(ctx); err != nil {
			fatal(err)
		}

		fmt.Println(ui.RenderWatcherStatus(a.tr.WatcherStatus()))
		fmt.Println("Press Ctrl+C to stop...")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nStopping watcher...")
				return
			case ev, ok := <-a.watch.Events():
				if !ok {
					return
				}
				logger.Printf("%s %s (tasks %v)", ev.Op, ev.Path, ev.TaskIDs)
			case <-ticker.C:
				if n, err := a.tr.DetectAndCompleteOnStaging(ctx); err != nil {
					logger.Printf("stage detection failed: %v", err)
				} else if n > 0 {
					logger.Printf("stage detection completed %d task(s)", n)
				}
				if n, err := a.tr.DetectAndArchiveOnCommit(ctx); err != nil {
					logger.Printf("commit detection failed: %v", err)
				} else if n > 0 {
					logger.Printf("commit detection archived %d task(s)", n)
				}
			}
		}
	},
}

func init() {
	watchCmd.Flags().Duration("interval", 15*time.Second, "Detection pass interval")
	rootCmd.AddCommand(watchCmd)
}
