package vcs

import "errors"

// Common errors returned by VCS probes.
//
// These can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, vcs.ErrNotInRepo) {
//	    // we're outside any git repository
//	}
var (
	// ErrNotInRepo is returned when the operation requires being inside
	// a git repository but none was found.
	ErrNotInRepo = errors.New("not in a git repository")

	// ErrGitNotAvailable is returned when the git binary is not installed
	// or not in PATH.
	ErrGitNotAvailable = errors.New("git binary not available")
)
