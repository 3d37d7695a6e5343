// Package git provides a git implementation of the vcs.Probe interface.
//
// This package wraps git commands to answer the two working-tree queries
// the completion detector needs: index membership (staged) and most-recent-
// commit membership (committed). Queries run the relevant git command once
// over the whole tree and intersect the output with the candidate set, so
// candidate paths that do not exist never cause pathspec errors.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/marcward/keel/internal/vcs"
)

// Git implements vcs.Probe for git repositories.
type Git struct {
	// repoRoot is the repository root directory path
	repoRoot string
}

// New creates a new Git probe for the given repository.
// The path should be somewhere within a git repository.
func New(path string) (*Git, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, vcs.ErrGitNotAvailable
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = absPath

	output, err := cmd.Output()
	if err != nil {
		return nil, vcs.ErrNotInRepo
	}

	return &Git{repoRoot: strings.TrimSpace(string(output))}, nil
}

// RepoRoot returns the repository root directory path.
func (g *Git) RepoRoot() string {
	return g.repoRoot
}

// StagedSet returns the subset of paths currently present in the index.
//
// Implemented as a single "git diff --cached --name-only" over the whole
// tree, intersected with the candidate set. Candidate paths absent from
// the index are simply missing from the result, never an error.
func (g *Git) StagedSet(ctx context.Context, paths []string) (map[string]bool, error) {
	if len(paths) == 0 {
		return map[string]bool{}, nil
	}

	staged, err := g.nameOnly(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, err
	}

	return intersect(paths, staged), nil
}

// CommittedSet returns the subset of paths that were part of the most
// recent commit and have no pending changes relative to HEAD.
//
// A repository with no commits yet has nothing committed, so an unborn
// HEAD yields an empty set rather than an error.
func (g *Git) CommittedSet(ctx context.Context, paths []string) (map[string]bool, error) {
	if len(paths) == 0 {
		return map[string]bool{}, nil
	}

	if !g.hasHEAD(ctx) {
		return map[string]bool{}, nil
	}

	// Files touched by the most recent commit. --root covers the case
	// where HEAD is the initial commit.
	inCommit, err := g.nameOnly(ctx, "diff-tree", "--no-commit-id", "--name-only", "-r", "--root", "HEAD")
	if err != nil {
		return nil, err
	}

	// Files that still differ from HEAD (staged or unstaged) are pending,
	// not durably committed.
	pending, err := g.nameOnly(ctx, "diff", "HEAD", "--name-only")
	if err != nil {
		return nil, err
	}

	result := intersect(paths, inCommit)
	for _, p := range paths {
		if pending[normalizePath(p)] {
			delete(result, p)
		}
	}

	return result, nil
}

// hasHEAD reports whether the repository has at least one commit.
func (g *Git) hasHEAD(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--verify", "HEAD")
	cmd.Dir = g.repoRoot
	return cmd.Run() == nil
}

// nameOnly runs a git command that prints one path per line and returns
// the paths as a set.
func (g *Git) nameOnly(ctx context.Context, args ...string) (map[string]bool, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoRoot

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}

	set := make(map[string]bool)
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line == "" {
			continue
		}
		set[normalizePath(line)] = true
	}

	return set, nil
}

// intersect returns the candidates present in the git output set.
func intersect(candidates []string, set map[string]bool) map[string]bool {
	result := make(map[string]bool)
	for _, p := range candidates {
		if set[normalizePath(p)] {
			result[p] = true
		}
	}
	return result
}

// normalizePath converts a path to the slash-separated form git prints.
func normalizePath(p string) string {
	return filepath.ToSlash(p)
}
