package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/marcward/keel/internal/vcs"
)

// setupTestRepo initializes a git repository in a temp dir with identity
// configured so commits work in CI environments
func setupTestRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test")
	return dir
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	abs := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
}

// TestNew_NotInRepo tests the sentinel for non-repository directories
func TestNew_NotInRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	_, err := New(t.TempDir())
	if !errors.Is(err, vcs.ErrNotInRepo) {
		t.Errorf("New() error = %v, want ErrNotInRepo", err)
	}
}

// TestNew_FindsRoot tests root discovery from a subdirectory
func TestNew_FindsRoot(t *testing.T) {
	dir := setupTestRepo(t)
	sub := filepath.Join(dir, "internal", "deep")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}

	g, err := New(sub)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	// Compare resolved paths; macOS tempdirs involve symlinks.
	wantRoot, _ := filepath.EvalSymlinks(dir)
	gotRoot, _ := filepath.EvalSymlinks(g.RepoRoot())
	if gotRoot != wantRoot {
		t.Errorf("RepoRoot() = %q, want %q", gotRoot, wantRoot)
	}
}

// TestStagedSet_EmptyInput tests the no-subprocess contract for empty input
func TestStagedSet_EmptyInput(t *testing.T) {
	dir := setupTestRepo(t)
	g, err := New(dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	set, err := g.StagedSet(context.Background(), nil)
	if err != nil {
		t.Fatalf("StagedSet() failed: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("StagedSet(nil) = %v, want empty", set)
	}
}

// TestStagedSet tests index membership against staged, unstaged, and
// untracked files
func TestStagedSet(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "staged.go", "a")
	writeFile(t, dir, "untracked.go", "b")
	writeFile(t, dir, "sub/nested.go", "c")
	runGit(t, dir, "add", "staged.go", "sub/nested.go")

	g, err := New(dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	set, err := g.StagedSet(ctx, []string{"staged.go", "untracked.go", "sub/nested.go", "absent.go"})
	if err != nil {
		t.Fatalf("StagedSet() failed: %v", err)
	}

	if !set["staged.go"] || !set["sub/nested.go"] {
		t.Errorf("set = %v, want staged.go and sub/nested.go present", set)
	}
	if set["untracked.go"] || set["absent.go"] {
		t.Errorf("set = %v, untracked/absent paths must not appear", set)
	}
}

// TestCommittedSet_UnbornHEAD tests that a repository with no commits
// reports nothing committed rather than erroring
func TestCommittedSet_UnbornHEAD(t *testing.T) {
	dir := setupTestRepo(t)

	writeFile(t, dir, "a.go", "x")
	runGit(t, dir, "add", "a.go")

	g, err := New(dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	set, err := g.CommittedSet(context.Background(), []string{"a.go"})
	if err != nil {
		t.Fatalf("CommittedSet() failed: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("CommittedSet() = %v on unborn HEAD, want empty", set)
	}
}

// TestCommittedSet tests most-recent-commit membership
func TestCommittedSet(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "first.go", "1")
	runGit(t, dir, "add", "first.go")
	runGit(t, dir, "commit", "-m", "first")

	writeFile(t, dir, "second.go", "2")
	runGit(t, dir, "add", "second.go")
	runGit(t, dir, "commit", "-m", "second")

	g, err := New(dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	set, err := g.CommittedSet(ctx, []string{"first.go", "second.go"})
	if err != nil {
		t.Fatalf("CommittedSet() failed: %v", err)
	}

	if !set["second.go"] {
		t.Errorf("set = %v, want second.go (in the latest commit)", set)
	}
	if set["first.go"] {
		t.Errorf("set = %v, first.go was in an earlier commit", set)
	}
}

// TestCommittedSet_PendingChanges tests that a committed file with new
// local edits is no longer considered durably committed
func TestCommittedSet_PendingChanges(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "a.go", "v1")
	runGit(t, dir, "add", "a.go")
	runGit(t, dir, "commit", "-m", "commit a")

	g, err := New(dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	set, err := g.CommittedSet(ctx, []string{"a.go"})
	if err != nil {
		t.Fatalf("CommittedSet() failed: %v", err)
	}
	if !set["a.go"] {
		t.Fatalf("set = %v, want a.go after clean commit", set)
	}

	// Edit after the commit: the file drops out.
	writeFile(t, dir, "a.go", "v2")
	set, err = g.CommittedSet(ctx, []string{"a.go"})
	if err != nil {
		t.Fatalf("CommittedSet() failed: %v", err)
	}
	if set["a.go"] {
		t.Errorf("set = %v, a.go has pending changes and must not appear", set)
	}
}

// TestCommittedSet_InitialCommit tests the --root path for a repository
// whose HEAD is the very first commit
func TestCommittedSet_InitialCommit(t *testing.T) {
	dir := setupTestRepo(t)

	writeFile(t, dir, "only.go", "x")
	runGit(t, dir, "add", "only.go")
	runGit(t, dir, "commit", "-m", "initial")

	g, err := New(dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	set, err := g.CommittedSet(context.Background(), []string{"only.go"})
	if err != nil {
		t.Fatalf("CommittedSet() failed: %v", err)
	}
	if !set["only.go"] {
		t.Errorf("set = %v, want only.go from the initial commit", set)
	}
}
