package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marcward/keel/internal/config"
	"github.com/marcward/keel/internal/dashboard"
	"github.com/marcward/keel/internal/watcher"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Start the real-time WebSocket dashboard",
	Long: `Start a WebSocket dashboard server for monitoring task lifecycle
events in real time.

The server broadcasts every status transition and prune to connected
clients, so multiple agents working in the same repository can observe
each other's progress. The file watcher runs alongside it, and its
status is published on each transition.

WebSocket messages include:
- transition: a task changed status
- prune: stale file links were removed from a task
- watcher_status: files and tasks currently watched

Example usage:
  keel dashboard
  keel dashboard --addr 0.0.0.0:9000

Connect with a WebSocket client:
  ws://<addr>/ws`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(rootFlag)
		if err != nil {
			fatal(err)
		}

		addr := cfg.DashboardAddr
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			addr = v
		}

		logger := newLogger(cfg, "[dashboard] ")

		// The server publishes watcher status and the tracker publishes
		// events through the server, so the status source is a closure
		// over the app built just below.
		var a *app
		server := dashboard.NewServer(addr, func() watcher.Status {
			if a == nil {
				return watcher.Status{}
			}
			return a.tr.WatcherStatus()
		}, logger)

		a, err = openApp(appOptions{withWatcher: true, logger: logger, events: server})
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := server.Start(); err != nil {
			fatal(fmt.Errorf("failed to start dashboard: %w", err))
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := a.tr.StartWatcher(ctx); err != nil {
			logger.Printf("watcher unavailable: %v", err)
		} else {
			// Drain the watcher's attributed events into the broadcast so
			// connected clients see file activity and the channel never
			// backs up.
			go func() {
				for ev := range a.watch.Events() {
					server.FileChanged(ev)
				}
			}()
		}

		fmt.Printf("Dashboard listening on http://%s\n", server.Addr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.Addr())
		fmt.Println("Press Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Dashboard stopped")
	},
}

func init() {
	dashboardCmd.Flags().String("addr", "", "Listen address (defaults to dashboard_addr from config)")
	rootCmd.AddCommand(dashboardCmd)
}
