// Package watcher provides the file-watch registry that ties tasks to the
// filesystem paths they reference.
//
// The registry is an explicitly constructed service with its own start/stop
// lifecycle, injected into callers rather than reached through a package
// global. It tracks which paths are currently of interest (because some
// non-archived task references them) and attributes filesystem change
// notifications back to the interested tasks. It never mutates task state
// itself; it only maintains in-memory subscriptions and emits events.
//
// fsnotify watches are placed on parent directories rather than individual
// files, so a watched file that is deleted and recreated keeps producing
// events. A directory watch is dropped once no registered path remains
// under it.
package watcher

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is a filesystem change attributed to the tasks interested in the
// changed path.
type Event struct {
	// Path is the project-root-relative path that changed.
	Path string
	// Op is the operation that occurred.
	Op EventOp
	// TaskIDs are the tasks currently linked to the path, ascending.
	TaskIDs []int64
}

// Status is a point-in-time view of the registry.
type Status struct {
	Running      bool `json:"running"`
	FilesWatched int  `json:"files_watched"`
	TasksWatched int  `json:"tasks_watched"`
}

// Registry tracks path interest for non-archived tasks and delivers
// attributed change events.
type Registry struct {
	root   string
	logger *log.Logger

	mu      sync.Mutex
	running bool
	// byPath maps a relative path to the set of interested task ids.
	byPath map[string]map[int64]bool
	// byTask maps a task id to the set of relative paths it watches.
	byTask map[int64]map[string]bool
	// dirRefs counts registered paths per watched directory.
	dirRefs map[string]int

	watcher *fsnotify.Watcher
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Registry for paths relative to the given project root.
// The registry must be started with Start() before it delivers events.
func New(root string, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(os.Stderr, "[watcher] ", log.LstdFlags)
	}
	return &Registry{
		root:    root,
		logger:  logger,
		byPath:  make(map[string]map[int64]bool),
		byTask:  make(map[int64]map[string]bool),
		dirRefs: make(map[string]int),
	}
}

// Start begins watching. The initial subscription set is rebuilt from
// links, a task-id to relative-paths map taken from the store's FileLink
// rows for non-archived tasks.
func (r *Registry) Start(links map[int64][]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("watcher already running")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	r.watcher = fw
	r.events = make(chan Event, 100)
	r.done = make(chan struct{})
	r.running = true

	for taskID, paths := range links {
		if err := r.registerLocked(taskID, paths); err != nil {
			r.logger.Printf("Warning: failed to register task %d: %v", taskID, err)
		}
	}

	r.wg.Add(1)
	go r.processEvents()

	return nil
}

// Stop stops watching and cleans up resources. It blocks until the event
// processing goroutine has exited. Stopping a registry that was never
// started is a safe no-op.
func (r *Registry) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	close(r.done)

	if err := r.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	r.wg.Wait()
	close(r.events)

	return nil
}

// Events returns the channel that emits attributed change events.
// The channel is closed when the registry is stopped.
func (r *Registry) Events() <-chan Event {
	return r.events
}

// RegisterTask records the task's interest in the given relative paths and
// ensures their parent directories are watched. Registering against a
// registry that is not running is a safe no-op: the subscription set is
// rebuilt from the store at the next Start.
func (r *Registry) RegisterTask(taskID int64, paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}

	return r.registerLocked(taskID, paths)
}

func (r *Registry) registerLocked(taskID int64, paths []string) error {
	for _, p := range paths {
		rel := filepath.ToSlash(filepath.Clean(p))

		if r.byPath[rel] == nil {
			r.byPath[rel] = make(map[int64]bool)
		}
		if r.byPath[rel][taskID] {
			continue
		}
		// The directory refcount is per watched path, not per (path, task)
		// pair; only the first interested task counts the path in.
		newPath := len(r.byPath[rel]) == 0
		r.byPath[rel][taskID] = true

		if r.byTask[taskID] == nil {
			r.byTask[taskID] = make(map[string]bool)
		}
		r.byTask[taskID][rel] = true

		if newPath {
			dir := r.dirOf(rel)
			r.dirRefs[dir]++
			if r.dirRefs[dir] == 1 {
				if err := r.watcher.Add(dir); err != nil {
					return fmt.Errorf("failed to watch %s: %w", dir, err)
				}
			}
		}
	}

	return nil
}

// UnregisterTask removes all of the task's path interest. Directories with
// no remaining interested path are dropped from the underlying fsnotify
// subscription. Unregistering a task with no active watch, or against a
// registry that is not running, is a safe no-op.
func (r *Registry) UnregisterTask(taskID int64) {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	for rel := range r.byTask[taskID] {
		delete(r.byPath[rel], taskID)
		if len(r.byPath[rel]) == 0 {
			delete(r.byPath, rel)

			dir := r.dirOf(rel)
			r.dirRefs[dir]--
			if r.dirRefs[dir] <= 0 {
				delete(r.dirRefs, dir)
				if err := r.watcher.Remove(dir); err != nil {
					r.logger.Printf("Warning: failed to unwatch %s: %v", dir, err)
				}
			}
		}
	}
	delete(r.byTask, taskID)
}

// GetStatus returns the registry's current state.
func (r *Registry) GetStatus() Status {
	if r == nil {
		return Status{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return Status{
		Running:      r.running,
		FilesWatched: len(r.byPath),
		TasksWatched: len(r.byTask),
	}
}

// IsRunning reports whether the registry is currently running.
func (r *Registry) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// dirOf returns the absolute directory to watch for a relative path.
func (r *Registry) dirOf(rel string) string {
	return filepath.Dir(filepath.Join(r.root, filepath.FromSlash(rel)))
}

// processEvents converts fsnotify events into attributed Events.
func (r *Registry) processEvents() {
	defer r.wg.Done()

	for {
		select {
		case <-r.done:
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}

			if ev, ok := r.convertEvent(event); ok {
				select {
				case r.events <- ev:
				case <-r.done:
					return
				}
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Printf("Watcher error: %v", err)
		}
	}
}

// convertEvent attributes an fsnotify event to interested tasks.
// Returns (Event{}, false) for events on paths no task cares about.
func (r *Registry) convertEvent(event fsnotify.Event) (Event, bool) {
	rel, err := filepath.Rel(r.root, event.Name)
	if err != nil {
		return Event{}, false
	}
	rel = filepath.ToSlash(rel)

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		// Treat rename as delete (the new name will trigger a create)
		op = OpDelete
	default:
		// Ignore chmod and other events
		return Event{}, false
	}

	r.mu.Lock()
	interested := r.byPath[rel]
	ids := make([]int64, 0, len(interested))
	for id := range interested {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	if len(ids) == 0 {
		return Event{}, false
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return Event{Path: rel, Op: op, TaskIDs: ids}, true
}
