// Package vcs defines the version-control probe interface used by the
// completion detector.
//
// The detector needs exactly two questions answered about the working
// tree: which of a task's linked paths are currently staged, and which
// were part of the most recent commit. The Probe interface captures those
// two queries; internal/vcs/git implements them against the git binary.
//
// Both queries tolerate paths that do not exist in the working tree (they
// are simply absent from the result, never an error) and are safe to call
// with empty input (empty result, no subprocess invocation). A subprocess
// failure is propagated to the caller so it can skip the detection pass
// rather than wrongly concluding nothing is staged.
package vcs

import "context"

// Probe answers staged/committed membership questions for a set of
// candidate paths, each relative to the repository root.
type Probe interface {
	// RepoRoot returns the repository root directory path.
	RepoRoot() string

	// StagedSet returns the subset of paths currently present in the
	// index (staged for the next commit).
	StagedSet(ctx context.Context, paths []string) (map[string]bool, error)

	// CommittedSet returns the subset of paths that were part of the most
	// recent commit and no longer appear as pending changes relative to
	// HEAD.
	CommittedSet(ctx context.Context, paths []string) (map[string]bool, error)
}
