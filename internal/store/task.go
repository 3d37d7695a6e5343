package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marcward/keel/internal/task"
)

// taskColumns is the column list shared by every task SELECT.
const taskColumns = `id, project_id, title, description, notes, acceptance_criteria,
	status, priority, assigned_agent, layer, tags, created_at, updated_at`

// CreateTask inserts a task and its initial file links in one transaction.
// The task's ID field is populated on success.
func (s *Store) CreateTask(ctx context.Context, t *task.Task, actions []task.FileAction) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.CreateTask(ctx, t, actions)
	})
}

// CreateTask inserts a task and its initial file links within the
// transaction. Used directly for batch creation.
func (tx *Tx) CreateTask(ctx context.Context, t *task.Task, actions []task.FileAction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	id, err := insertTask(ctx, tx.tx, t)
	if err != nil {
		return err
	}
	t.ID = id

	for _, a := range actions {
		if err := linkFile(ctx, tx.tx, t.ProjectID, t.ID, a.Path, a.Kind); err != nil {
			return err
		}
	}

	return nil
}

func insertTask(ctx context.Context, q dbtx, t *task.Task) (int64, error) {
	tagsJSON, err := json.Marshal(t.Tags)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
	INSERT INTO tasks (
		project_id, title, description, notes, acceptance_criteria,
		status, priority, assigned_agent, layer, tags, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := q.ExecContext(ctx, query,
		t.ProjectID,
		t.Title,
		t.Description,
		t.Notes,
		t.AcceptanceCriteria,
		t.Status.String(),
		t.Priority,
		t.AssignedAgent,
		t.Layer.String(),
		string(tagsJSON),
		t.CreatedAt.Unix(),
		t.UpdatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted task id: %w", err)
	}

	return id, nil
}

// GetTask retrieves a single task by ID.
// Returns ErrNotFound if the task does not exist.
func (s *Store) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	return getTask(ctx, s.conn, id)
}

// GetTask retrieves a single task by ID within the transaction.
func (tx *Tx) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	return getTask(ctx, tx.tx, id)
}

func getTask(ctx context.Context, q dbtx, id int64) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	t, err := scanTask(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}

	return t, nil
}

// UpdateTask persists mutable task fields (everything except status, which
// only changes through SetTaskStatus so every change is audited).
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	return updateTask(ctx, s.conn, t)
}

// UpdateTask persists mutable task fields within the transaction.
func (tx *Tx) UpdateTask(ctx context.Context, t *task.Task) error {
	return updateTask(ctx, tx.tx, t)
}

func updateTask(ctx context.Context, q dbtx, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	tagsJSON, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
	UPDATE tasks SET
		title = ?, description = ?, notes = ?, acceptance_criteria = ?,
		priority = ?, assigned_agent = ?, layer = ?, tags = ?, updated_at = ?
	WHERE id = ?
	`

	res, err := q.ExecContext(ctx, query,
		t.Title,
		t.Description,
		t.Notes,
		t.AcceptanceCriteria,
		t.Priority,
		t.AssignedAgent,
		t.Layer.String(),
		string(tagsJSON),
		time.Now().Unix(),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", t.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %d: %w", t.ID, ErrNotFound)
	}

	return nil
}

// SetTaskStatus updates a task's status and appends the activity-log row
// recording the change, in a single transaction scope. The caller is
// responsible for having validated the transition against the current
// status read from the same transaction.
func (tx *Tx) SetTaskStatus(ctx context.Context, taskID int64, old, new task.Status, agent string) error {
	now := time.Now().Unix()

	res, err := tx.tx.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		new.String(), now, taskID,
	)
	if err != nil {
		return fmt.Errorf("failed to update status of task %d: %w", taskID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}

	_, err = tx.tx.ExecContext(ctx,
		`INSERT INTO activity_log (task_id, old_status, new_status, agent, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		taskID, old.String(), new.String(), agent, now,
	)
	if err != nil {
		return fmt.Errorf("failed to append activity log for task %d: %w", taskID, err)
	}

	return nil
}

// TaskFilter configures the ListTasks query.
type TaskFilter struct {
	// ProjectID scopes results to a project (0 = all projects)
	ProjectID int64
	// Status filters by task status (nil = all statuses)
	Status *task.Status
	// AssignedAgent filters by assigned agent (empty = all agents)
	AssignedAgent string
	// Layer filters by architectural layer (empty = all layers)
	Layer task.Layer
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// ListTasks retrieves tasks matching the given filters.
// Results are ordered by priority ASC, then created_at ASC.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]*task.Task, error) {
	var conditions []string
	var args []any

	if filter.ProjectID != 0 {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status.String())
	}
	if filter.AssignedAgent != "" {
		conditions = append(conditions, "assigned_agent = ?")
		args = append(args, filter.AssignedAgent)
	}
	if filter.Layer != "" {
		conditions = append(conditions, "layer = ?")
		args = append(args, filter.Layer.String())
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY priority ASC, created_at ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// TaskLinks pairs a task with its linked file paths. This is the unit the
// completion detector scans: one status cohort, links included.
type TaskLinks struct {
	Task  *task.Task
	Paths []string
}

// ListTasksWithLinks returns all tasks in the given project and status
// that have at least one linked file, each with its full link set.
func (s *Store) ListTasksWithLinks(ctx context.Context, projectID int64, st task.Status) ([]TaskLinks, error) {
	query := `
	SELECT ` + taskColumns + `
	FROM tasks
	WHERE project_id = ? AND status = ?
	  AND EXISTS (SELECT 1 FROM file_links WHERE file_links.task_id = tasks.id)
	ORDER BY priority ASC, created_at ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, projectID, st.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s tasks: %w", st, err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	result := make([]TaskLinks, 0, len(tasks))
	for _, t := range tasks {
		links, err := listLinks(ctx, s.conn, t.ID)
		if err != nil {
			return nil, err
		}
		paths := make([]string, len(links))
		for i, l := range links {
			paths[i] = l.Path
		}
		result = append(result, TaskLinks{Task: t, Paths: paths})
	}

	return result, nil
}

// ActivityEntry is one status-change audit row.
type ActivityEntry struct {
	ID        int64
	TaskID    int64
	OldStatus task.Status
	NewStatus task.Status
	Agent     string
	CreatedAt time.Time
}

// ListActivity returns a task's status-change history, oldest first.
func (s *Store) ListActivity(ctx context.Context, taskID int64) ([]ActivityEntry, error) {
	query := `
	SELECT id, task_id, old_status, new_status, agent, created_at
	FROM activity_log
	WHERE task_id = ?
	ORDER BY id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity for task %d: %w", taskID, err)
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var oldStr, newStr string
		var createdAt int64

		if err := rows.Scan(&e.ID, &e.TaskID, &oldStr, &newStr, &e.Agent, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}

		if e.OldStatus, err = task.ParseStatus(oldStr); err != nil {
			return nil, err
		}
		if e.NewStatus, err = task.ParseStatus(newStr); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAt, 0)

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity entries: %w", err)
	}

	return entries, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var statusStr, layerStr, tagsJSON string
	var createdAt, updatedAt int64

	err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Title,
		&t.Description,
		&t.Notes,
		&t.AcceptanceCriteria,
		&statusStr,
		&t.Priority,
		&t.AssignedAgent,
		&layerStr,
		&tagsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.Status, err = task.ParseStatus(statusStr); err != nil {
		return nil, err
	}
	t.Layer = task.Layer(layerStr)

	if tagsJSON != "" && tagsJSON != "null" {
		if err := json.Unmarshal([]byte(tagsJSON), &t.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	} else {
		t.Tags = []string{}
	}

	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)

	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*task.Task, error) {
	var tasks []*task.Task

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}
