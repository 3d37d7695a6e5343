// Package config loads keel's configuration into a single typed struct.
//
// Configuration lives in a .keel.yaml file at the project root and is
// resolved once per invocation, then passed down; nothing re-reads flags
// per task inside a loop. Missing file or missing keys fall back to
// defaults (all completion-policy flags default to enabled/ALL-mode).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-project configuration file.
const ConfigFileName = ".keel.yaml"

// Config is the resolved configuration for one invocation.
type Config struct {
	// ProjectRoot is the directory file links are resolved against.
	// Defaults to the directory the config file was loaded from.
	ProjectRoot string `yaml:"project_root,omitempty"`

	// ProjectID scopes all task rows.
	ProjectID int64 `yaml:"project_id"`

	// DBPath is the SQLite database file, relative to ProjectRoot when
	// not absolute.
	DBPath string `yaml:"db_path"`

	// GitAutoCompleteOnStage moves waiting_review tasks to done once
	// their linked files are staged.
	GitAutoCompleteOnStage bool `yaml:"git_auto_complete_on_stage"`

	// GitAutoArchiveOnCommit moves done tasks to archived once their
	// linked files are committed.
	GitAutoArchiveOnCommit bool `yaml:"git_auto_archive_on_commit"`

	// RequireAllFilesStaged selects the completion predicate: ALL linked
	// files staged (true) vs at least one (false).
	RequireAllFilesStaged bool `yaml:"require_all_files_staged"`

	// RequireAllFilesCommittedForArchive selects the archive predicate:
	// ALL linked files committed (true) vs at least one (false).
	RequireAllFilesCommittedForArchive bool `yaml:"require_all_files_committed_for_archive"`

	// LogFile receives watcher/hook logs for long-running commands.
	// Empty means stderr.
	LogFile string `yaml:"log_file"`

	// DashboardAddr is the listen address for the monitoring dashboard.
	DashboardAddr string `yaml:"dashboard_addr"`
}

// Default returns a Config populated with sensible defaults for root.
func Default(root string) *Config {
	return &Config{
		ProjectRoot:                        root,
		ProjectID:                          1,
		DBPath:                             filepath.Join(".keel", "keel.db"),
		GitAutoCompleteOnStage:             true,
		GitAutoArchiveOnCommit:             true,
		RequireAllFilesStaged:              true,
		RequireAllFilesCommittedForArchive: true,
		LogFile:                            "",
		DashboardAddr:                      "127.0.0.1:9444",
	}
}

// Load reads .keel.yaml from root. If the file does not exist, defaults
// are returned.
func Load(root string) (*Config, error) {
	cfg := Default(root)

	v := viper.New()
	v.SetConfigName(".keel")
	v.SetConfigType("yaml")
	v.AddConfigPath(root)

	// Set Viper defaults so missing keys fall back gracefully.
	v.SetDefault("project_id", cfg.ProjectID)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("git_auto_complete_on_stage", cfg.GitAutoCompleteOnStage)
	v.SetDefault("git_auto_archive_on_commit", cfg.GitAutoArchiveOnCommit)
	v.SetDefault("require_all_files_staged", cfg.RequireAllFilesStaged)
	v.SetDefault("require_all_files_committed_for_archive", cfg.RequireAllFilesCommittedForArchive)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("dashboard_addr", cfg.DashboardAddr)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}

	// An explicit project_root overrides the config file's own location.
	if pr := v.GetString("project_root"); pr != "" {
		cfg.ProjectRoot = pr
	}
	cfg.ProjectID = v.GetInt64("project_id")
	cfg.DBPath = v.GetString("db_path")
	cfg.GitAutoCompleteOnStage = v.GetBool("git_auto_complete_on_stage")
	cfg.GitAutoArchiveOnCommit = v.GetBool("git_auto_archive_on_commit")
	cfg.RequireAllFilesStaged = v.GetBool("require_all_files_staged")
	cfg.RequireAllFilesCommittedForArchive = v.GetBool("require_all_files_committed_for_archive")
	cfg.LogFile = v.GetString("log_file")
	cfg.DashboardAddr = v.GetString("dashboard_addr")

	return cfg, nil
}

// ResolvedDBPath returns the database path, made absolute against the
// project root when relative.
func (c *Config) ResolvedDBPath() string {
	if filepath.IsAbs(c.DBPath) {
		return c.DBPath
	}
	return filepath.Join(c.ProjectRoot, c.DBPath)
}

// WriteDefault writes a default .keel.yaml into root.
// Fails if the file already exists.
func WriteDefault(root string) (string, error) {
	path := filepath.Join(root, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", path)
	}

	cfg := Default(root)
	cfg.ProjectRoot = "" // omit: the file's own location defines the root

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}
