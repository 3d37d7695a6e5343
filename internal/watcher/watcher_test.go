package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	r := New(root, nil)
	t.Cleanup(func() { _ = r.Stop() })
	return r, root
}

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(abs, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
}

// waitForEvent receives one event or fails the test after a timeout
func waitForEvent(t *testing.T, r *Registry) Event {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// TestStartStop tests the lifecycle including double-start rejection
func TestStartStop(t *testing.T) {
	r, _ := testRegistry(t)

	if err := r.Start(nil); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !r.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}

	if err := r.Start(nil); err == nil {
		t.Error("second Start() succeeded, want error")
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if r.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
}

// TestStop_NeverStarted tests that stopping an idle registry is a no-op
func TestStop_NeverStarted(t *testing.T) {
	r, _ := testRegistry(t)
	if err := r.Stop(); err != nil {
		t.Errorf("Stop() on never-started registry failed: %v", err)
	}
}

// TestGetStatus tests the status counters across the lifecycle
func TestGetStatus(t *testing.T) {
	r, root := testRegistry(t)

	st := r.GetStatus()
	if st.Running || st.FilesWatched != 0 || st.TasksWatched != 0 {
		t.Errorf("idle status = %+v, want all zero", st)
	}

	writeFile(t, root, "a.go")
	writeFile(t, root, "b.go")

	links := map[int64][]string{
		1: {"a.go", "b.go"},
		2: {"a.go"},
	}
	if err := r.Start(links); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	st = r.GetStatus()
	if !st.Running {
		t.Error("Running = false")
	}
	if st.FilesWatched != 2 {
		t.Errorf("FilesWatched = %d, want 2 (shared path counted once)", st.FilesWatched)
	}
	if st.TasksWatched != 2 {
		t.Errorf("TasksWatched = %d, want 2", st.TasksWatched)
	}
}

// TestGetStatus_NilRegistry tests the nil-receiver contract
func TestGetStatus_NilRegistry(t *testing.T) {
	var r *Registry
	st := r.GetStatus()
	if st.Running || st.FilesWatched != 0 {
		t.Errorf("nil registry status = %+v, want zero value", st)
	}
	r.UnregisterTask(1) // must not panic
}

// TestRegisterTask_NotRunning tests that registration before Start is a
// quiet no-op
func TestRegisterTask_NotRunning(t *testing.T) {
	r, _ := testRegistry(t)

	if err := r.RegisterTask(1, []string{"a.go"}); err != nil {
		t.Fatalf("RegisterTask() failed: %v", err)
	}
	if st := r.GetStatus(); st.FilesWatched != 0 {
		t.Errorf("FilesWatched = %d before Start, want 0", st.FilesWatched)
	}
}

// TestUnregisterTask tests interest removal and shared-path survival
func TestUnregisterTask(t *testing.T) {
	r, root := testRegistry(t)
	writeFile(t, root, "shared.go")
	writeFile(t, root, "own.go")

	links := map[int64][]string{
		1: {"shared.go", "own.go"},
		2: {"shared.go"},
	}
	if err := r.Start(links); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	r.UnregisterTask(1)

	st := r.GetStatus()
	if st.TasksWatched != 1 {
		t.Errorf("TasksWatched = %d, want 1", st.TasksWatched)
	}
	if st.FilesWatched != 1 {
		t.Errorf("FilesWatched = %d, want 1 (shared.go kept by task 2)", st.FilesWatched)
	}

	// Unregistering a task with no watches is a no-op.
	r.UnregisterTask(99)
}

// TestUnregisterTask_DropsSharedDirWatch tests that a path shared by
// several tasks counts toward its directory watch only once, so the
// underlying fsnotify subscription is dropped when the last interested
// task unregisters
func TestUnregisterTask_DropsSharedDirWatch(t *testing.T) {
	r, root := testRegistry(t)
	writeFile(t, root, "sub/shared.go")

	links := map[int64][]string{
		1: {"sub/shared.go"},
		2: {"sub/shared.go"},
	}
	if err := r.Start(links); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	r.mu.Lock()
	refs := r.dirRefs[r.dirOf("sub/shared.go")]
	r.mu.Unlock()
	if refs != 1 {
		t.Errorf("dirRefs = %d with two tasks on one path, want 1", refs)
	}

	r.UnregisterTask(1)
	r.UnregisterTask(2)

	r.mu.Lock()
	remaining := len(r.dirRefs)
	watched := r.watcher.WatchList()
	r.mu.Unlock()

	if remaining != 0 {
		t.Errorf("dirRefs has %d entries after all tasks unregistered, want 0", remaining)
	}
	if len(watched) != 0 {
		t.Errorf("fsnotify still watches %v after the last interested task unregistered", watched)
	}
}

// TestEvents_AttributesTasks tests that a file change reaches every
// interested task, in ascending id order
func TestEvents_AttributesTasks(t *testing.T) {
	r, root := testRegistry(t)
	writeFile(t, root, "watched.go")

	links := map[int64][]string{
		2: {"watched.go"},
		1: {"watched.go"},
	}
	if err := r.Start(links); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	writeFile(t, root, "watched.go")

	ev := waitForEvent(t, r)
	if ev.Path != "watched.go" {
		t.Errorf("Path = %q, want watched.go", ev.Path)
	}
	if len(ev.TaskIDs) != 2 || ev.TaskIDs[0] != 1 || ev.TaskIDs[1] != 2 {
		t.Errorf("TaskIDs = %v, want [1 2]", ev.TaskIDs)
	}
}

// TestEvents_IgnoresUnwatchedPaths tests that changes to sibling files in
// a watched directory are not delivered
func TestEvents_IgnoresUnwatchedPaths(t *testing.T) {
	r, root := testRegistry(t)
	writeFile(t, root, "watched.go")

	if err := r.Start(map[int64][]string{1: {"watched.go"}}); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	// Same directory, different file: watched at the fsnotify level but
	// filtered out during attribution.
	writeFile(t, root, "ignored.go")
	writeFile(t, root, "watched.go")

	ev := waitForEvent(t, r)
	if ev.Path != "watched.go" {
		t.Errorf("first delivered event is for %q, want watched.go", ev.Path)
	}
}

// TestEvents_DeleteAndRecreate tests that a deleted file keeps producing
// events when recreated, since the watch sits on the directory
func TestEvents_DeleteAndRecreate(t *testing.T) {
	r, root := testRegistry(t)
	writeFile(t, root, "flappy.go")

	if err := r.Start(map[int64][]string{1: {"flappy.go"}}); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if err := os.Remove(filepath.Join(root, "flappy.go")); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	ev := waitForEvent(t, r)
	if ev.Op != OpDelete {
		t.Errorf("Op = %v, want delete", ev.Op)
	}

	writeFile(t, root, "flappy.go")
	ev = waitForEvent(t, r)
	if ev.Op != OpCreate {
		t.Errorf("Op = %v after recreate, want create", ev.Op)
	}
}

// TestEventOp_String tests the op labels
func TestEventOp_String(t *testing.T) {
	cases := map[EventOp]string{
		OpCreate:    "create",
		OpModify:    "modify",
		OpDelete:    "delete",
		EventOp(99): "unknown",
	}
	for op, want := range cases {
		if got := op.String(); got != want {
			t.Errorf("EventOp(%d).String() = %q, want %q", op, got, want)
		}
	}
}
