package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcward/keel/internal/task"
)

var linkCmd = &cobra.Command{
	Use:   "link <id> <path>",
	Short: "Link a file to a task",
	Long: `Link a file path to a task.

Linking the same path twice is a no-op. The path is recorded relative
to the project root and is what the watcher and the git completion
detector observe for the task.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseID(args[0])
		if err != nil {
			fatal(err)
		}

		kind := task.FileActionKind(cmd.Flag("kind").Value.String())
		a, err := openApp(appOptions{})
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.tr.LinkFile(cmd.Context(), id, args[1], kind); err != nil {
			fatal(err)
		}
		fmt.Printf("Linked %s to task #%d\n", args[1], id)
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <id> <path>",
	Short: "Remove a file link from a task",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseID(args[0])
		if err != nil {
			fatal(err)
		}

		a, err := openApp(appOptions{})
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		if err := a.tr.UnlinkFile(cmd.Context(), id, args[1]); err != nil {
			fatal(err)
		}
		fmt.Printf("Unlinked %s from task #%d\n", args[1], id)
	},
}

var filesCmd = &cobra.Command{
	Use:   "files <id>",
	Short: "List the files linked to a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseID(args[0])
		if err != nil {
			fatal(err)
		}

		a, err := openApp(appOptions{})
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		links, err := a.tr.ListLinks(cmd.Context(), id)
		if err != nil {
			fatal(err)
		}
		if len(links) == 0 {
			fmt.Printf("Task #%d has no linked files\n", id)
			return
		}
		for _, l := range links {
			fmt.Printf("%-8s %s\n", l.Kind, l.Path)
		}
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune <id>",
	Short: "Remove links to files that no longer exist",
	Long: `Remove a task's links to files that no longer exist on disk.

Each removed link leaves an audit record retrievable with "keel pruned".
If every linked file is missing the prune is refused: total absence
usually means the probe ran from the wrong directory, not that the work
vanished.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseID(args[0])
		if err != nil {
			fatal(err)
		}

		a, err := openApp(appOptions{})
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		res, err := a.tr.PruneNonexistentLinks(cmd.Context(), id, a.cfg.ProjectRoot)
		if err != nil {
			fatal(err)
		}

		if res.PrunedCount == 0 {
			fmt.Printf("Task #%d: nothing to prune\n", id)
			return
		}
		fmt.Printf("Pruned %d link(s) from task #%d (%d remaining):\n",
			res.PrunedCount, id, res.RemainingCount)
		for _, p := range res.PrunedPaths {
			fmt.Printf("  %s\n", p)
		}
	},
}

var prunedCmd = &cobra.Command{
	Use:   "pruned <id>",
	Short: "Show the pruned-file audit records for a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseID(args[0])
		if err != nil {
			fatal(err)
		}

		a, err := openApp(appOptions{})
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		records, err := a.tr.GetPrunedFiles(cmd.Context(), id)
		if err != nil {
			fatal(err)
		}
		if len(records) == 0 {
			fmt.Printf("Task #%d has no pruned files\n", id)
			return
		}
		for _, r := range records {
			decision := "-"
			if r.DecisionID != nil {
				decision = fmt.Sprintf("decision %d", *r.DecisionID)
			}
			fmt.Printf("%-6d %s  pruned %s  %s\n",
				r.ID, r.Path, r.PrunedAt.Format("2006-01-02 15:04"), decision)
		}
	},
}

func init() {
	linkCmd.Flags().StringP("kind", "k", string(task.ActionEdit), "Action kind: create, edit, or delete")

	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(unlinkCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(prunedCmd)
}
