package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcward/keel/internal/store"
	"github.com/marcward/keel/internal/task"
	"github.com/marcward/keel/internal/ui"
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new task",
	Long: `Create a task in the current project.

Tasks in file-required layers (presentation, business, data, infrastructure,
cross-cutting, documentation) must declare the files they touch with --file,
or state explicitly that they touch none with --no-files. Planning,
coordination, and review tasks may omit file declarations.

Example usage:
  keel create "Add login endpoint" -l business --file internal/auth/login.go:create
  keel create "Sprint planning" -l planning`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(appOptions{})
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		description, _ := cmd.Flags().GetString("description")
		notes, _ := cmd.Flags().GetString("notes")
		criteria, _ := cmd.Flags().GetString("criteria")
		priority, _ := cmd.Flags().GetInt("priority")
		layer, _ := cmd.Flags().GetString("layer")
		agent, _ := cmd.Flags().GetString("agent")
		tags, _ := cmd.Flags().GetStringSlice("tags")
		files, _ := cmd.Flags().GetStringArray("file")
		noFiles, _ := cmd.Flags().GetBool("no-files")

		actions, err := parseFileActions(files, noFiles)
		if err != nil {
			fatal(err)
		}

		t := &task.Task{
			Title:              args[0],
			Description:        description,
			Notes:              notes,
			AcceptanceCriteria: criteria,
			Priority:           priority,
			Layer:              task.Layer(layer),
			Tags:               tags,
			AssignedAgent:      agent,
		}

		if err := a.tr.CreateTask(cmd.Context(), t, actions); err != nil {
			fatal(err)
		}

		fmt.Printf("Created task #%d: %s\n", t.ID, t.Title)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a task's metadata",
	Long: `Update the metadata of an existing task.

Only the fields named by flags change; everything else is preserved.
Status is not updated here, use "keel move" for lifecycle changes.
Additional files may be declared with --file; existing links are kept.`,
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

		t, err := a.tr.GetTask(cmd.Context(), id)
		if err != nil {
			fatal(err)
		}

		if cmd.Flags().Changed("title") {
			t.Title, _ = cmd.Flags().GetString("title")
		}
		if cmd.Flags().Changed("description") {
			t.Description, _ = cmd.Flags().GetString("description")
		}
		if cmd.Flags().Changed("notes") {
			t.Notes, _ = cmd.Flags().GetString("notes")
		}
		if cmd.Flags().Changed("criteria") {
			t.AcceptanceCriteria, _ = cmd.Flags().GetString("criteria")
		}
		if cmd.Flags().Changed("priority") {
			t.Priority, _ = cmd.Flags().GetInt("priority")
		}
		if cmd.Flags().Changed("layer") {
			layer, _ := cmd.Flags().GetString("layer")
			t.Layer = task.Layer(layer)
		}
		if cmd.Flags().Changed("agent") {
			t.AssignedAgent, _ = cmd.Flags().GetString("agent")
		}
		if cmd.Flags().Changed("tags") {
			t.Tags, _ = cmd.Flags().GetStringSlice("tags")
		}

		files, _ := cmd.Flags().GetStringArray("file")
		noFiles, _ := cmd.Flags().GetBool("no-files")
		actions, err := parseFileActions(files, noFiles)
		if err != nil {
			fatal(err)
		}
		if actions == nil && t.Layer.RequiresFileActions() {
			// Files already linked to the task satisfy the layer policy.
			links, err := a.tr.ListLinks(cmd.Context(), id)
			if err != nil {
				fatal(err)
			}
			if len(links) > 0 {
				actions = []task.FileAction{}
			}
		}

		if err := a.tr.UpdateTask(cmd.Context(), t, actions); err != nil {
			fatal(err)
		}

		fmt.Printf("Updated task #%d\n", t.ID)
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <id> <status>",
	Short: "Move a task to a new lifecycle status",
	Long: `Move a task to a new status.

Valid statuses: todo, in_progress, waiting_review, blocked, done,
archived, rejected. Archived and rejected are terminal; a task in a
terminal status cannot move again. Moving a task to its current status
is a no-op and records nothing.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseID(args[0])
		if err != nil {
			fatal(err)
		}
		to, err := task.ParseStatus(args[1])
		if err != nil {
			fatal(err)
		}

		a, err := openApp(appOptions{})
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		agent, _ := cmd.Flags().GetString("agent")
		if err := a.tr.MoveTask(cmd.Context(), id, to, agent); err != nil {
			fatal(err)
		}

		fmt.Printf("Task #%d is now %s\n", id, to)
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a completed task",
	Long: `Archive a task that has reached done.

Archival is terminal and releases the task's file watches. Tasks that
are not done cannot be archived directly; move them through the
lifecycle first.`,
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

		agent, _ := cmd.Flags().GetString("agent")
		if err := a.tr.ArchiveTask(cmd.Context(), id, agent); err != nil {
			fatal(err)
		}

		fmt.Printf("Task #%d archived\n", id)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(appOptions{})
		if err != nil {
			fatal(err)
		}
		defer a.Close()

		filter := store.TaskFilter{}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			st, err := task.ParseStatus(s)
			if err != nil {
				fatal(err)
			}
			filter.Status = &st
		}
		filter.AssignedAgent, _ = cmd.Flags().GetString("agent")
		if l, _ := cmd.Flags().GetString("layer"); l != "" {
			filter.Layer = task.Layer(l)
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		tasks, err := a.tr.ListTasks(cmd.Context(), filter)
		if err != nil {
			fatal(err)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks found")
			return
		}
		for _, t := range tasks {
			fmt.Println(ui.RenderTaskLine(t))
		}
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task with its linked files",
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

		t, err := a.tr.GetTask(cmd.Context(), id)
		if err != nil {
			fatal(err)
		}
		links, err := a.tr.ListLinks(cmd.Context(), id)
		if err != nil {
			fatal(err)
		}

		paths := make([]string, len(links))
		for i, l := range links {
			paths[i] = l.Path
		}
		fmt.Print(ui.RenderTask(t, paths))
	},
}

// parseFileActions turns repeated --file values into file action
// declarations. Each value is "path" or "path:kind" where kind is one of
// create, edit, delete (default edit). noFiles yields an explicit empty
// declaration, which satisfies file-required layers.
func parseFileActions(files []string, noFiles bool) ([]task.FileAction, error) {
	if len(files) == 0 {
		if noFiles {
			return []task.FileAction{}, nil
		}
		return nil, nil
	}

	actions := make([]task.FileAction, 0, len(files))
	for _, f := range files {
		path, kind := f, task.ActionEdit
		if i := strings.LastIndex(f, ":"); i > 0 {
			k := task.FileActionKind(f[i+1:])
			if k.IsValid() {
				path, kind = f[:i], k
			}
		}
		if path == "" {
			return nil, fmt.Errorf("invalid file declaration %q", f)
		}
		actions = append(actions, task.FileAction{Path: path, Kind: kind})
	}
	return actions, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

func init() {
	createCmd.Flags().StringP("description", "d", "", "Task description")
	createCmd.Flags().String("notes", "", "Free-form notes")
	createCmd.Flags().String("criteria", "", "Acceptance criteria")
	createCmd.Flags().IntP("priority", "p", 0, "Priority 1 (highest) to 4")
	createCmd.Flags().StringP("layer", "l", "", "Architectural layer")
	createCmd.Flags().String("agent", "", "Assigned agent")
	createCmd.Flags().StringSlice("tags", nil, "Comma-separated tags")
	createCmd.Flags().StringArray("file", nil, "File the task touches, path[:kind] (repeatable)")
	createCmd.Flags().Bool("no-files", false, "Declare that the task touches no files")

	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().StringP("description", "d", "", "New description")
	updateCmd.Flags().String("notes", "", "New notes")
	updateCmd.Flags().String("criteria", "", "New acceptance criteria")
	updateCmd.Flags().IntP("priority", "p", 0, "New priority")
	updateCmd.Flags().StringP("layer", "l", "", "New architectural layer")
	updateCmd.Flags().String("agent", "", "New assigned agent")
	updateCmd.Flags().StringSlice("tags", nil, "New comma-separated tags")
	updateCmd.Flags().StringArray("file", nil, "Additional file, path[:kind] (repeatable)")
	updateCmd.Flags().Bool("no-files", false, "Declare that the task touches no files")

	moveCmd.Flags().String("agent", "", "Agent recording the transition")
	archiveCmd.Flags().String("agent", "", "Agent recording the archival")

	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	listCmd.Flags().String("agent", "", "Filter by assigned agent")
	listCmd.Flags().StringP("layer", "l", "", "Filter by layer")
	listCmd.Flags().IntP("limit", "n", 0, "Limit results (0 = all)")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
}
