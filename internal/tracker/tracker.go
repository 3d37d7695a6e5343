// Package tracker orchestrates the task lifecycle: create/update/move
// operations, file links, pruning with its quality gate, and the
// git-synchronized two-step completion detector.
//
// The tracker composes the store, the VCS probe, the watcher registry,
// and a typed configuration resolved once per invocation. Project scope
// is resolved through an explicit ProjectResolver and threaded through
// every store call; there is no ambient "current project" global.
//
// All task mutations happen inside store transactions. Within a
// transition-applying transaction the read-check-transition-audit
// sequence is atomic with respect to other writers on the same task row;
// across tasks no ordering is guaranteed or needed.
package tracker

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/marcward/keel/internal/config"
	"github.com/marcward/keel/internal/store"
	"github.com/marcward/keel/internal/task"
	"github.com/marcward/keel/internal/vcs"
	"github.com/marcward/keel/internal/watcher"
)

// ProjectResolver supplies the active project id for an invocation.
type ProjectResolver interface {
	CurrentProjectID(ctx context.Context) (int64, error)
}

// DecisionResolver looks up decision records kept by the external
// decision subsystem. Only the lookup is consumed here; decision CRUD is
// out of scope.
type DecisionResolver interface {
	// ResolveDecision returns the id of the decision with the given key,
	// or an error if no such decision exists.
	ResolveDecision(ctx context.Context, key string) (int64, error)
}

// EventSink receives lifecycle notifications after they are durably
// committed. Implemented by the monitoring dashboard; a nil sink is valid.
type EventSink interface {
	TaskTransitioned(t *task.Task, old, new task.Status, agent string)
	FilesPruned(taskID int64, paths []string)
}

// fixedProject resolves every call to a single configured project id.
type fixedProject int64

func (p fixedProject) CurrentProjectID(ctx context.Context) (int64, error) {
	return int64(p), nil
}

// Options configures a Tracker.
type Options struct {
	// Store is the persistence layer (required).
	Store *store.Store

	// Probe answers staged/committed queries (required for the
	// completion detector; lifecycle operations work without it).
	Probe vcs.Probe

	// Watcher is the file-watch registry. Optional; all watcher calls
	// are nil-safe.
	Watcher *watcher.Registry

	// Config is the typed configuration for this invocation (required).
	Config *config.Config

	// Projects resolves the active project id. Defaults to the fixed
	// project id from Config.
	Projects ProjectResolver

	// Decisions resolves decision keys for pruned-file enrichment.
	// Optional.
	Decisions DecisionResolver

	// Events receives post-commit lifecycle notifications. Optional.
	Events EventSink

	// Logger for per-task detector errors and watcher bookkeeping.
	Logger *log.Logger
}

// Tracker is the task lifecycle service.
type Tracker struct {
	store     *store.Store
	probe     vcs.Probe
	watch     *watcher.Registry
	cfg       *config.Config
	projects  ProjectResolver
	decisions DecisionResolver
	events    EventSink
	logger    *log.Logger
}

// New creates a Tracker from options.
func New(opts Options) (*Tracker, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Projects == nil {
		opts.Projects = fixedProject(opts.Config.ProjectID)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[tracker] ", log.LstdFlags)
	}

	return &Tracker{
		store:     opts.Store,
		probe:     opts.Probe,
		watch:     opts.Watcher,
		cfg:       opts.Config,
		projects:  opts.Projects,
		decisions: opts.Decisions,
		events:    opts.Events,
		logger:    opts.Logger,
	}, nil
}

// Store exposes the underlying store for read-only surfaces (CLI listing,
// dashboard status).
func (tr *Tracker) Store() *store.Store {
	return tr.store
}

// Watcher returns the file-watch registry, which may be nil.
func (tr *Tracker) Watcher() *watcher.Registry {
	return tr.watch
}

// CreateTask validates and persists a new task with its declared file
// actions, then registers the task's paths with the watcher.
//
// Tasks in file-required layers must declare file actions explicitly; an
// empty but non-nil declaration satisfies the policy.
func (tr *Tracker) CreateTask(ctx context.Context, t *task.Task, actions []task.FileAction) error {
	projectID, err := tr.projects.CurrentProjectID(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve project: %w", err)
	}
	t.ProjectID = projectID
	t.SetDefaults()

	if err := task.ValidateFileActions(t.Layer, actions); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}

	if err := tr.store.CreateTask(ctx, t, actions); err != nil {
		return err
	}

	tr.registerWithWatcher(t.ID, actions)
	return nil
}

// CreateTasks persists a batch of tasks in a single transaction. Either
// every task in the batch is created or none is.
func (tr *Tracker) CreateTasks(ctx context.Context, tasks []*task.Task, actions [][]task.FileAction) error {
	if len(actions) != len(tasks) {
		return fmt.Errorf("got %d file-action declarations for %d tasks", len(actions), len(tasks))
	}

	projectID, err := tr.projects.CurrentProjectID(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve project: %w", err)
	}

	for i, t := range tasks {
		t.ProjectID = projectID
		t.SetDefaults()
		if err := task.ValidateFileActions(t.Layer, actions[i]); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
	}

	err = tr.store.WithTx(ctx, func(tx *store.Tx) error {
		for i, t := range tasks {
			if err := tx.CreateTask(ctx, t, actions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i, t := range tasks {
		tr.registerWithWatcher(t.ID, actions[i])
	}

	return nil
}

// GetTask retrieves a task by id.
func (tr *Tracker) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	return tr.store.GetTask(ctx, id)
}

// ListTasks retrieves tasks for the active project matching the filter.
func (tr *Tracker) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*task.Task, error) {
	if filter.ProjectID == 0 {
		projectID, err := tr.projects.CurrentProjectID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve project: %w", err)
		}
		filter.ProjectID = projectID
	}
	return tr.store.ListTasks(ctx, filter)
}

// UpdateTask persists task field changes (not status; use MoveTask) and
// links any newly declared file actions. The layer policy applies on
// update exactly as on create.
func (tr *Tracker) UpdateTask(ctx context.Context, t *task.Task, actions []task.FileAction) error {
	if err := task.ValidateFileActions(t.Layer, actions); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}

	if err := tr.store.UpdateTask(ctx, t); err != nil {
		return err
	}

	for _, a := range actions {
		if err := tr.store.LinkFile(ctx, t.ProjectID, t.ID, a.Path, a.Kind); err != nil {
			return err
		}
	}

	tr.registerWithWatcher(t.ID, actions)
	return nil
}

// MoveTask transitions a task to a new status through the state machine.
//
// Same-status moves are idempotent no-ops: success, no state change, no
// audit entry. Moves out of a terminal status fail with
// task.ErrTerminalStatus. Every applied transition appends an
// activity-log row in the same transaction.
func (tr *Tracker) MoveTask(ctx context.Context, taskID int64, to task.Status, agent string) error {
	var moved *task.Task
	var old task.Status

	err := tr.store.WithTx(ctx, func(tx *store.Tx) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}

		apply, err := task.ValidateTransition(t.Status, to)
		if err != nil {
			return err
		}
		if !apply {
			return nil
		}

		if err := tx.SetTaskStatus(ctx, taskID, t.Status, to, agent); err != nil {
			return err
		}

		old = t.Status
		t.Status = to
		moved = t
		return nil
	})
	if err != nil {
		return err
	}

	if moved != nil {
		if to == task.StatusArchived {
			tr.watch.UnregisterTask(taskID)
		}
		if tr.events != nil {
			tr.events.TaskTransitioned(moved, old, to, agent)
		}
	}

	return nil
}

// ArchiveTask archives a completed task. Unlike MoveTask, which permits
// any non-terminal status to jump straight to archived, the explicit
// archive action requires the task to be done first.
//
// The task is also unregistered from the watcher registry; that call is
// safe even when the watcher was never started.
func (tr *Tracker) ArchiveTask(ctx context.Context, taskID int64, agent string) error {
	t, err := tr.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != task.StatusDone {
		return fmt.Errorf("%w (task %d is %s)", ErrNotDone, taskID, t.Status)
	}

	return tr.MoveTask(ctx, taskID, task.StatusArchived, agent)
}

// LinkFile associates a file path with a task. Duplicate links are
// no-ops. The path is registered with the watcher.
func (tr *Tracker) LinkFile(ctx context.Context, taskID int64, path string, kind task.FileActionKind) error {
	if !kind.IsValid() {
		return fmt.Errorf("invalid file action kind %q", kind)
	}

	t, err := tr.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if err := tr.store.LinkFile(ctx, t.ProjectID, taskID, path, kind); err != nil {
		return err
	}

	if tr.watch != nil {
		if err := tr.watch.RegisterTask(taskID, []string{path}); err != nil {
			tr.logger.Printf("Warning: failed to watch %s for task %d: %v", path, taskID, err)
		}
	}

	return nil
}

// UnlinkFile removes a task's association with a path and re-syncs the
// task's watcher interest to the remaining links. No audit row is
// written; pruning is reserved for filesystem-driven removal.
func (tr *Tracker) UnlinkFile(ctx context.Context, taskID int64, path string) error {
	if err := tr.store.UnlinkFile(ctx, taskID, path); err != nil {
		return err
	}

	if tr.watch != nil {
		tr.watch.UnregisterTask(taskID)
		links, err := tr.store.ListLinks(ctx, taskID)
		if err != nil {
			return err
		}
		paths := make([]string, len(links))
		for i, l := range links {
			paths[i] = l.Path
		}
		if len(paths) > 0 {
			if err := tr.watch.RegisterTask(taskID, paths); err != nil {
				tr.logger.Printf("Warning: failed to re-watch task %d: %v", taskID, err)
			}
		}
	}

	return nil
}

// ListLinks returns a task's file links.
func (tr *Tracker) ListLinks(ctx context.Context, taskID int64) ([]store.FileLink, error) {
	return tr.store.ListLinks(ctx, taskID)
}

// StartWatcher rebuilds the watcher's subscription set from all file
// links belonging to non-archived tasks and starts its listener.
func (tr *Tracker) StartWatcher(ctx context.Context) error {
	if tr.watch == nil {
		return fmt.Errorf("no watcher configured")
	}

	projectID, err := tr.projects.CurrentProjectID(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve project: %w", err)
	}

	links, err := tr.store.ListActiveLinks(ctx, projectID)
	if err != nil {
		return err
	}

	return tr.watch.Start(links)
}

// WatcherStatus reports the watcher registry's current state. A tracker
// without a watcher reports a zero status.
func (tr *Tracker) WatcherStatus() watcher.Status {
	return tr.watch.GetStatus()
}

// registerWithWatcher records path interest for a task; failures only log
// because watch registration is advisory, never part of the transaction.
func (tr *Tracker) registerWithWatcher(taskID int64, actions []task.FileAction) {
	if tr.watch == nil || len(actions) == 0 {
		return
	}

	paths := make([]string, len(actions))
	for i, a := range actions {
		paths[i] = a.Path
	}

	if err := tr.watch.RegisterTask(taskID, paths); err != nil {
		tr.logger.Printf("Warning: failed to watch paths for task %d: %v", taskID, err)
	}
}
