package tracker

import "errors"

// Common errors returned by tracker operations.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, tracker.ErrAllFilesMissing) {
//	    // the zero-evidence gate fired; re-examine the task's file set
//	}
var (
	// ErrAllFilesMissing is returned when pruning finds every linked file
	// gone from disk. A task with zero surviving evidence of work must
	// not be silently stripped of its links and allowed to auto-complete;
	// the task's file set was likely wrong from the start and needs a
	// human or agent to re-examine it. No rows are touched.
	ErrAllFilesMissing = errors.New("all linked files are missing from disk; refusing to prune a task down to zero evidence of work")

	// ErrNotDone is returned by ArchiveTask when the task is not in done
	// status. Archival requires completion first.
	ErrNotDone = errors.New("task must be in done status to archive")

	// ErrNoDecisionResolver is returned when linking a pruned file to a
	// decision without a decision resolver configured.
	ErrNoDecisionResolver = errors.New("no decision resolver configured")

	// ErrDecisionNotFound is returned when the decision key does not
	// resolve to a decision record.
	ErrDecisionNotFound = errors.New("decision not found")
)
