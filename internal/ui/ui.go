// Package ui renders tasks and watcher status for the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/marcward/keel/internal/task"
	"github.com/marcward/keel/internal/watcher"
)

var (
	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)

	statusStyles = map[task.Status]lipgloss.Style{
		task.StatusTodo:          lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		task.StatusInProgress:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		task.StatusWaitingReview: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		task.StatusBlocked:       lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		task.StatusDone:          lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		task.StatusArchived:      lipgloss.NewStyle().Faint(true),
		task.StatusRejected:      lipgloss.NewStyle().Faint(true).Strikethrough(true),
	}
)

// RenderStatus returns the colored form of a status.
func RenderStatus(s task.Status) string {
	if style, ok := statusStyles[s]; ok {
		return style.Render(s.String())
	}
	return s.String()
}

// RenderTaskLine renders one task as a single list row.
func RenderTaskLine(t *task.Task) string {
	line := fmt.Sprintf("%s  P%d %-16s %s",
		idStyle.Render(fmt.Sprintf("#%-4d", t.ID)),
		t.Priority,
		RenderStatus(t.Status),
		titleStyle.Render(t.Title),
	)
	if t.AssignedAgent != "" {
		line += dimStyle.Render("  @" + t.AssignedAgent)
	}
	return line
}

// RenderTask renders a full task card.
func RenderTask(t *task.Task, links []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", idStyle.Render(fmt.Sprintf("#%d", t.ID)), titleStyle.Render(t.Title))
	fmt.Fprintf(&b, "  status: %s  priority: P%d", RenderStatus(t.Status), t.Priority)
	if t.Layer != "" {
		fmt.Fprintf(&b, "  layer: %s", t.Layer)
	}
	if t.AssignedAgent != "" {
		fmt.Fprintf(&b, "  agent: %s", t.AssignedAgent)
	}
	b.WriteString("\n")

	if t.Description != "" {
		fmt.Fprintf(&b, "  %s\n", t.Description)
	}
	if t.AcceptanceCriteria != "" {
		fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render("accept:"), t.AcceptanceCriteria)
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render("tags:"), strings.Join(t.Tags, ", "))
	}
	for _, l := range links {
		fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render("file:"), l)
	}

	return b.String()
}

// RenderWatcherStatus renders the watcher registry status line.
func RenderWatcherStatus(st watcher.Status) string {
	state := "stopped"
	if st.Running {
		state = "running"
	}
	return fmt.Sprintf("watcher %s: %d files, %d tasks",
		state, st.FilesWatched, st.TasksWatched)
}
