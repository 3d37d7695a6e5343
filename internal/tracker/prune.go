package tracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marcward/keel/internal/store"
)

// PruneResult reports the outcome of a pruning pass over a task's links.
type PruneResult struct {
	// PrunedCount is the number of links removed.
	PrunedCount int
	// RemainingCount is the number of links left after pruning.
	RemainingCount int
	// PrunedPaths lists the removed paths for caller reporting.
	PrunedPaths []string
}

// PruneNonexistentLinks removes a task's links to files that no longer
// exist on disk, writing an immutable pruned-file audit row for each
// removal in the same transaction as the link deletion.
//
// Safety gate: if every linked file is missing, the operation fails with
// ErrAllFilesMissing and leaves all rows untouched. The link snapshot and
// the mutations share one transaction, so a concurrent unlink cannot make
// the gate's all-files-gone answer flicker mid-check.
//
// A task whose files all still exist yields a zero-pruned no-op result.
func (tr *Tracker) PruneNonexistentLinks(ctx context.Context, taskID int64, projectRoot string) (*PruneResult, error) {
	var result *PruneResult

	err := tr.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetTask(ctx, taskID); err != nil {
			return err
		}

		links, err := tx.ListLinks(ctx, taskID)
		if err != nil {
			return err
		}

		if len(links) == 0 {
			result = &PruneResult{}
			return nil
		}

		var missing []store.FileLink
		for _, l := range links {
			abs := filepath.Join(projectRoot, filepath.FromSlash(l.Path))
			if _, err := os.Stat(abs); os.IsNotExist(err) {
				missing = append(missing, l)
			} else if err != nil {
				return fmt.Errorf("failed to check %s: %w", abs, err)
			}
		}

		if len(missing) == len(links) {
			return fmt.Errorf("task %d: %w", taskID, ErrAllFilesMissing)
		}

		prunedPaths := make([]string, 0, len(missing))
		for _, l := range missing {
			if _, err := tx.InsertPrunedFile(ctx, l.ProjectID, taskID, l.Path); err != nil {
				return err
			}
			if err := tx.DeleteLink(ctx, taskID, l.Path); err != nil {
				return err
			}
			prunedPaths = append(prunedPaths, l.Path)
		}

		result = &PruneResult{
			PrunedCount:    len(missing),
			RemainingCount: len(links) - len(missing),
			PrunedPaths:    prunedPaths,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.PrunedCount > 0 {
		tr.resyncWatcher(ctx, taskID)
		if tr.events != nil {
			tr.events.FilesPruned(taskID, result.PrunedPaths)
		}
	}

	return result, nil
}

// GetPrunedFiles returns a task's pruned-file audit rows.
func (tr *Tracker) GetPrunedFiles(ctx context.Context, taskID int64) ([]store.PrunedFile, error) {
	return tr.store.ListPrunedFiles(ctx, taskID)
}

// LinkPrunedFileToDecision sets the one-way back-reference from a pruned
// file to the decision record explaining why the file was removed.
//
// Fails if the decision key or the pruned row does not resolve, and fails
// with store.ErrDecisionAlreadyLinked if the back-reference was set
// before; the reference may be set exactly once.
func (tr *Tracker) LinkPrunedFileToDecision(ctx context.Context, prunedID int64, decisionKey string) error {
	if tr.decisions == nil {
		return ErrNoDecisionResolver
	}

	decisionID, err := tr.decisions.ResolveDecision(ctx, decisionKey)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrDecisionNotFound, decisionKey, err)
	}

	return tr.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetPrunedDecision(ctx, prunedID, decisionID)
	})
}

// resyncWatcher re-registers a task's watcher interest from its current
// link set after pruning removed some paths.
func (tr *Tracker) resyncWatcher(ctx context.Context, taskID int64) {
	if tr.watch == nil {
		return
	}

	tr.watch.UnregisterTask(taskID)

	links, err := tr.store.ListLinks(ctx, taskID)
	if err != nil {
		tr.logger.Printf("Warning: failed to re-read links for task %d: %v", taskID, err)
		return
	}
	if len(links) == 0 {
		return
	}

	paths := make([]string, len(links))
	for i, l := range links {
		paths[i] = l.Path
	}
	if err := tr.watch.RegisterTask(taskID, paths); err != nil {
		tr.logger.Printf("Warning: failed to re-watch task %d: %v", taskID, err)
	}
}
