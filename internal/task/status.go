// Package task provides the core data structures for keel work items:
// the status enumeration and transition table, architectural layers with
// their file-actions policy, and the Task record itself.
//
// Status transitions follow a deliberately relaxed policy: any non-terminal
// status may move to any other status, including the terminal ones, so that
// agents can correct a mis-filed status in a single step. Terminal statuses
// (archived, rejected) permit no outbound transitions at all.
package task

import "fmt"

// Status represents the lifecycle state of a task.
type Status int

const (
	// StatusTodo is the initial state for new work.
	StatusTodo Status = iota
	// StatusInProgress indicates an agent is actively working the task.
	StatusInProgress
	// StatusWaitingReview indicates the work is ready for review; tasks in
	// this state are candidates for auto-completion once their files are
	// staged in git.
	StatusWaitingReview
	// StatusBlocked indicates the task cannot proceed.
	StatusBlocked
	// StatusDone indicates the work is complete; tasks in this state are
	// candidates for auto-archival once their files are committed.
	StatusDone
	// StatusArchived is a terminal state for durably completed work.
	StatusArchived
	// StatusRejected is a terminal state for abandoned work.
	StatusRejected
)

// statusNames maps each Status to its persisted string form.
// The inverse mapping lives in statusValues; both must stay in sync.
var statusNames = map[Status]string{
	StatusTodo:          "todo",
	StatusInProgress:    "in_progress",
	StatusWaitingReview: "waiting_review",
	StatusBlocked:       "blocked",
	StatusDone:          "done",
	StatusArchived:      "archived",
	StatusRejected:      "rejected",
}

var statusValues = map[string]Status{
	"todo":           StatusTodo,
	"in_progress":    StatusInProgress,
	"waiting_review": StatusWaitingReview,
	"blocked":        StatusBlocked,
	"done":           StatusDone,
	"archived":       StatusArchived,
	"rejected":       StatusRejected,
}

// String returns the persisted string form of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsValid reports whether s is a member of the status enumeration.
func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal reports whether s permits no outbound transitions.
func (s Status) IsTerminal() bool {
	return s == StatusArchived || s == StatusRejected
}

// ParseStatus converts a persisted string into a Status.
// Returns ErrUnknownStatus (wrapped with the offending value) for any
// string outside the enumeration.
func ParseStatus(name string) (Status, error) {
	s, ok := statusValues[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, name)
	}
	return s, nil
}

// AllStatuses returns every member of the status enumeration in a stable
// order. Useful for validation and exhaustive tests.
func AllStatuses() []Status {
	return []Status{
		StatusTodo,
		StatusInProgress,
		StatusWaitingReview,
		StatusBlocked,
		StatusDone,
		StatusArchived,
		StatusRejected,
	}
}

// CanTransition reports whether a task may move from one status to another.
// This is a pure lookup with no side effects:
//   - terminal states permit no outbound transitions
//   - a status never transitions to itself (callers treat same-status
//     moves as idempotent no-ops, see ValidateTransition)
//   - every other pair is permitted
func CanTransition(from, to Status) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from.IsTerminal() {
		return false
	}
	return from != to
}

// ValidateTransition checks a proposed status change and classifies it.
//
// Returns (true, nil) when the transition should be applied, (false, nil)
// when from == to (idempotent no-op: success, no state change, no audit
// entry), and (false, err) when the transition is not permitted.
func ValidateTransition(from, to Status) (bool, error) {
	if !to.IsValid() {
		return false, fmt.Errorf("%w: %d", ErrUnknownStatus, int(to))
	}
	if from == to {
		return false, nil
	}
	if from.IsTerminal() {
		return false, fmt.Errorf("%w: task is %s", ErrTerminalStatus, from)
	}
	if !CanTransition(from, to) {
		return false, fmt.Errorf("transition %s -> %s is not permitted", from, to)
	}
	return true, nil
}
