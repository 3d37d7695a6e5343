package task

import "errors"

// Common errors returned by task validation and transitions.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, task.ErrTerminalStatus) {
//	    // the task is archived or rejected; no further transitions
//	}
var (
	// ErrUnknownStatus is returned when a status string or value is not
	// a member of the status enumeration.
	ErrUnknownStatus = errors.New("unknown task status")

	// ErrTerminalStatus is returned when attempting to transition a task
	// out of a terminal status (archived or rejected).
	ErrTerminalStatus = errors.New("task is in a terminal status")

	// ErrTitleRequired is returned when a task is created or updated
	// without a title.
	ErrTitleRequired = errors.New("task title is required")

	// ErrTitleTooLong is returned when the title exceeds MaxTitleLength.
	ErrTitleTooLong = errors.New("task title too long")

	// ErrInvalidPriority is returned when the priority is outside the
	// permitted 1-4 range.
	ErrInvalidPriority = errors.New("priority must be between 1 and 4")

	// ErrUnknownLayer is returned when the layer tag is not a recognized
	// architectural layer.
	ErrUnknownLayer = errors.New("unknown architectural layer")

	// ErrFileActionsRequired is returned when a task in a file-required
	// layer is created or updated without an explicit file-actions
	// declaration. An empty declaration is acceptable; a missing one is
	// not, so that implementation work always states its intended files.
	ErrFileActionsRequired = errors.New("file-required layer needs an explicit file-actions declaration")
)
