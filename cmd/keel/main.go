// Command keel is a metadata tracker for automated coding agents: work
// items recorded against a project, kept in sync with the filesystem and
// the git staging/commit pipeline.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/marcward/keel/internal/config"
	"github.com/marcward/keel/internal/store"
	"github.com/marcward/keel/internal/tracker"
	"github.com/marcward/keel/internal/vcs"
	gitprobe "github.com/marcward/keel/internal/vcs/git"
	"github.com/marcward/keel/internal/watcher"
)

var rootFlag string

var rootCmd = &cobra.Command{
	Use:   "keel",
	Short: "Task lifecycle tracker for coding agents",
	Long: `keel records work items for automated coding agents and keeps their
lifecycle synchronized with git: tasks waiting for review complete when
their files are staged, and completed tasks archive when their files
are committed.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", ".", "project root directory")
}

// app bundles the services a command needs, built once per invocation.
type app struct {
	cfg   *config.Config
	store *store.Store
	tr    *tracker.Tracker
	watch *watcher.Registry
}

// appOptions selects optional services.
type appOptions struct {
	withWatcher bool
	events      tracker.EventSink
	logger      *log.Logger
}

// openApp loads configuration, opens the store, and wires the tracker.
// The git probe is attached when the project root is inside a repository;
// commands that never touch git work fine outside one.
func openApp(opts appOptions) (*app, error) {
	cfg, err := config.Load(rootFlag)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.ResolvedDBPath())
	if err != nil {
		return nil, err
	}

	if err := st.InitSchema(rootCmd.Context()); err != nil {
		_ = st.Close()
		return nil, err
	}

	var probe vcs.Probe
	if g, err := gitprobe.New(cfg.ProjectRoot); err == nil {
		probe = g
	}

	var watch *watcher.Registry
	if opts.withWatcher {
		watch = watcher.New(cfg.ProjectRoot, opts.logger)
	}

	tr, err := tracker.New(tracker.Options{
		Store:   st,
		Probe:   probe,
		Watcher: watch,
		Config:  cfg,
		Events:  opts.events,
		Logger:  opts.logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: st, tr: tr, watch: watch}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if a.watch != nil {
		_ = a.watch.Stop()
	}
	_ = a.store.Close()
}

// newLogger builds the logger for long-running commands: a rotating file
// sink when the config names one, stderr otherwise.
func newLogger(cfg *config.Config, prefix string) *log.Logger {
	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}
	}
	return log.New(out, prefix, log.LstdFlags)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
