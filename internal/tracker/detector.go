package tracker

import (
	"context"
	"fmt"

	"github.com/marcward/keel/internal/store"
	"github.com/marcward/keel/internal/task"
)

// Agent names recorded in the activity log for detector-driven
// transitions, so audit rows distinguish automation from direct moves.
const (
	stageDetectorAgent  = "git-stage-detector"
	commitDetectorAgent = "git-commit-detector"
)

// DetectAndCompleteOnStaging scans the project's waiting_review tasks that
// have at least one linked file and transitions to done every task whose
// linked files satisfy the staging predicate: ALL files staged when
// require_all_files_staged is set, at least one otherwise.
//
// Gated by git_auto_complete_on_stage; when the flag is off the scan is
// skipped entirely. Returns the number of tasks transitioned. Repeated
// invocation with no new git activity transitions nothing further,
// because completed tasks have left the waiting_review cohort.
//
// A probe failure aborts the whole pass with an error; it is never
// treated as "nothing staged". A failure processing an individual task is
// logged and skipped without aborting the batch.
func (tr *Tracker) DetectAndCompleteOnStaging(ctx context.Context) (int, error) {
	if !tr.cfg.GitAutoCompleteOnStage {
		return 0, nil
	}

	return tr.detect(ctx, detectPass{
		cohort:     task.StatusWaitingReview,
		target:     task.StatusDone,
		requireAll: tr.cfg.RequireAllFilesStaged,
		agent:      stageDetectorAgent,
		probe: func(ctx context.Context, paths []string) (map[string]bool, error) {
			return tr.probe.StagedSet(ctx, paths)
		},
	})
}

// DetectAndArchiveOnCommit scans the project's done tasks that have at
// least one linked file and transitions to archived every task whose
// linked files satisfy the commit predicate (ALL vs ANY per
// require_all_files_committed_for_archive). Archived tasks are also
// unregistered from the watcher registry.
//
// Gated by git_auto_archive_on_commit. Same idempotence, probe-failure,
// and per-task isolation behavior as DetectAndCompleteOnStaging.
func (tr *Tracker) DetectAndArchiveOnCommit(ctx context.Context) (int, error) {
	if !tr.cfg.GitAutoArchiveOnCommit {
		return 0, nil
	}

	return tr.detect(ctx, detectPass{
		cohort:     task.StatusDone,
		target:     task.StatusArchived,
		requireAll: tr.cfg.RequireAllFilesCommittedForArchive,
		agent:      commitDetectorAgent,
		probe: func(ctx context.Context, paths []string) (map[string]bool, error) {
			return tr.probe.CommittedSet(ctx, paths)
		},
	})
}

// detectPass parameterizes one detection sweep.
type detectPass struct {
	cohort     task.Status
	target     task.Status
	requireAll bool
	agent      string
	probe      func(ctx context.Context, paths []string) (map[string]bool, error)
}

func (tr *Tracker) detect(ctx context.Context, pass detectPass) (int, error) {
	if tr.probe == nil {
		return 0, fmt.Errorf("no VCS probe configured")
	}

	projectID, err := tr.projects.CurrentProjectID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve project: %w", err)
	}

	cohort, err := tr.store.ListTasksWithLinks(ctx, projectID, pass.cohort)
	if err != nil {
		return 0, err
	}
	if len(cohort) == 0 {
		return 0, nil
	}

	// One batched probe call over the union of linked paths.
	var union []string
	seen := make(map[string]bool)
	for _, tl := range cohort {
		for _, p := range tl.Paths {
			if !seen[p] {
				seen[p] = true
				union = append(union, p)
			}
		}
	}

	inGit, err := pass.probe(ctx, union)
	if err != nil {
		return 0, fmt.Errorf("git probe failed, skipping %s pass: %w", pass.cohort, err)
	}

	count := 0
	for _, tl := range cohort {
		if !satisfies(tl.Paths, inGit, pass.requireAll) {
			continue
		}

		// Each task's check-and-transition is its own unit of work; one
		// task's failure must not prevent processing of the others.
		applied, err := tr.transitionIfStill(ctx, tl.Task.ID, pass.cohort, pass.target, pass.agent)
		if err != nil {
			tr.logger.Printf("Warning: failed to transition task %d to %s: %v", tl.Task.ID, pass.target, err)
			continue
		}
		if !applied {
			continue
		}

		count++

		if pass.target == task.StatusArchived {
			tr.watch.UnregisterTask(tl.Task.ID)
		}
		if tr.events != nil {
			tl.Task.Status = pass.target
			tr.events.TaskTransitioned(tl.Task, pass.cohort, pass.target, pass.agent)
		}
	}

	return count, nil
}

// satisfies evaluates the completeness predicate for one task's paths.
func satisfies(paths []string, inGit map[string]bool, requireAll bool) bool {
	if len(paths) == 0 {
		return false
	}

	matched := 0
	for _, p := range paths {
		if inGit[p] {
			matched++
		}
	}

	if requireAll {
		return matched == len(paths)
	}
	return matched > 0
}

// transitionIfStill applies cohort -> target for a task if and only if
// the task is still in the cohort status when re-read inside the
// transaction. Returns whether the transition was applied.
func (tr *Tracker) transitionIfStill(ctx context.Context, taskID int64, from, to task.Status, agent string) (bool, error) {
	applied := false

	err := tr.store.WithTx(ctx, func(tx *store.Tx) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Status != from {
			// A concurrent writer moved the task; nothing to do.
			return nil
		}

		apply, err := task.ValidateTransition(t.Status, to)
		if err != nil {
			return err
		}
		if !apply {
			return nil
		}

		if err := tx.SetTaskStatus(ctx, taskID, from, to, agent); err != nil {
			return err
		}
		applied = true
		return nil
	})

	return applied, err
}
