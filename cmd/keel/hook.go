package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Run a git lifecycle detection pass",
	Long: `Run one detection pass against the git index or history.

Intended to be called from git hooks:
  pre-commit:  keel hook stage    # waiting_review tasks with staged files -> done
  post-commit: keel hook commit   # done tasks with committed files -> archived

Both passes are idempotent; running them twice in a row transitions
nothing the second time. Detection respects the git_auto_* and
require_all_* settings in .keel.yaml.`,
}

var hookStageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Complete waiting_review tasks whose files are staged",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(appOptions{})
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		n, err := a.tr.DetectAndCompleteOnStaging(cmd.Context())
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Completed %d task(s)\n", n)
	},
}

var hookCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Archive done tasks whose files are committed",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(appOptions{})
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		n, err := a.tr.DetectAndArchiveOnCommit(cmd.Context())
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Archived %d task(s)\n", n)
	},
}

func init() {
	hookCmd.AddCommand(hookStageCmd)
	hookCmd.AddCommand(hookCommitCmd)
	rootCmd.AddCommand(hookCmd)
}
