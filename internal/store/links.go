package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marcward/keel/internal/task"
)

// ErrDecisionAlreadyLinked is returned when attempting to set the decision
// back-reference on a pruned-file row that already has one. The reference
// is one-way and settable exactly once.
var ErrDecisionAlreadyLinked = errors.New("pruned file already linked to a decision")

// FileLink associates a task with a file path it is expected to touch.
type FileLink struct {
	ID        int64
	ProjectID int64
	TaskID    int64
	Path      string
	Kind      task.FileActionKind
	CreatedAt time.Time
}

// PrunedFile is an audit row for a link removed because the file no longer
// existed on disk. Immutable once created, except DecisionID which may be
// set exactly once from NULL.
type PrunedFile struct {
	ID         int64
	ProjectID  int64
	TaskID     int64
	Path       string
	PrunedAt   time.Time
	DecisionID *int64
}

// LinkFile associates a file path with a task. Linking an already-linked
// path is a no-op, not an error.
func (s *Store) LinkFile(ctx context.Context, projectID, taskID int64, path string, kind task.FileActionKind) error {
	return linkFile(ctx, s.conn, projectID, taskID, path, kind)
}

// LinkFile associates a file path with a task within the transaction.
func (tx *Tx) LinkFile(ctx context.Context, projectID, taskID int64, path string, kind task.FileActionKind) error {
	return linkFile(ctx, tx.tx, projectID, taskID, path, kind)
}

func linkFile(ctx context.Context, q dbtx, projectID, taskID int64, path string, kind task.FileActionKind) error {
	query := `
	INSERT INTO file_links (project_id, task_id, file_path, action, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (project_id, task_id, file_path) DO NOTHING
	`

	_, err := q.ExecContext(ctx, query, projectID, taskID, path, string(kind), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to link %s to task %d: %w", path, taskID, err)
	}

	return nil
}

// UnlinkFile removes the association between a task and a path. No audit
// row is written; pruning is reserved for filesystem-driven removal.
// Returns ErrNotFound if no such link exists.
func (s *Store) UnlinkFile(ctx context.Context, taskID int64, path string) error {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM file_links WHERE task_id = ? AND file_path = ?`,
		taskID, path,
	)
	if err != nil {
		return fmt.Errorf("failed to unlink %s from task %d: %w", path, taskID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("link %s on task %d: %w", path, taskID, ErrNotFound)
	}

	return nil
}

// DeleteLink removes a link row within the transaction. Used by pruning,
// which pairs the deletion with an audit row.
func (tx *Tx) DeleteLink(ctx context.Context, taskID int64, path string) error {
	_, err := tx.tx.ExecContext(ctx,
		`DELETE FROM file_links WHERE task_id = ? AND file_path = ?`,
		taskID, path,
	)
	if err != nil {
		return fmt.Errorf("failed to delete link %s of task %d: %w", path, taskID, err)
	}
	return nil
}

// ListLinks returns a task's file links ordered by path.
func (s *Store) ListLinks(ctx context.Context, taskID int64) ([]FileLink, error) {
	return listLinks(ctx, s.conn, taskID)
}

// ListLinks returns a task's file links within the transaction. Pruning
// reads its snapshot through this so the all-files-missing gate is
// evaluated against transactionally consistent state.
func (tx *Tx) ListLinks(ctx context.Context, taskID int64) ([]FileLink, error) {
	return listLinks(ctx, tx.tx, taskID)
}

func listLinks(ctx context.Context, q dbtx, taskID int64) ([]FileLink, error) {
	query := `
	SELECT id, project_id, task_id, file_path, action, created_at
	FROM file_links
	WHERE task_id = ?
	ORDER BY file_path ASC
	`

	rows, err := q.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links for task %d: %w", taskID, err)
	}
	defer rows.Close()

	var links []FileLink
	for rows.Next() {
		var l FileLink
		var kind string
		var createdAt int64

		if err := rows.Scan(&l.ID, &l.ProjectID, &l.TaskID, &l.Path, &kind, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan file link: %w", err)
		}

		l.Kind = task.FileActionKind(kind)
		l.CreatedAt = time.Unix(createdAt, 0)
		links = append(links, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file links: %w", err)
	}

	return links, nil
}

// ListActiveLinks returns every file link belonging to a non-archived task
// in the project, grouped by task id. The watcher registry rebuilds its
// subscription set from this at startup.
func (s *Store) ListActiveLinks(ctx context.Context, projectID int64) (map[int64][]string, error) {
	query := `
	SELECT fl.task_id, fl.file_path
	FROM file_links fl
	JOIN tasks t ON t.id = fl.task_id
	WHERE fl.project_id = ? AND t.status != 'archived'
	ORDER BY fl.task_id ASC, fl.file_path ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active links: %w", err)
	}
	defer rows.Close()

	links := make(map[int64][]string)
	for rows.Next() {
		var taskID int64
		var path string
		if err := rows.Scan(&taskID, &path); err != nil {
			return nil, fmt.Errorf("failed to scan active link: %w", err)
		}
		links[taskID] = append(links[taskID], path)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active links: %w", err)
	}

	return links, nil
}

// InsertPrunedFile appends a pruned-file audit row within the transaction.
func (tx *Tx) InsertPrunedFile(ctx context.Context, projectID, taskID int64, path string) (int64, error) {
	res, err := tx.tx.ExecContext(ctx,
		`INSERT INTO pruned_files (project_id, task_id, file_path, pruned_at)
		 VALUES (?, ?, ?, ?)`,
		projectID, taskID, path, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record pruned file %s: %w", path, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read pruned file id: %w", err)
	}

	return id, nil
}

// GetPrunedFile retrieves a pruned-file row by id.
// Returns ErrNotFound if it does not exist.
func (s *Store) GetPrunedFile(ctx context.Context, id int64) (*PrunedFile, error) {
	return getPrunedFile(ctx, s.conn, id)
}

// GetPrunedFile retrieves a pruned-file row within the transaction.
func (tx *Tx) GetPrunedFile(ctx context.Context, id int64) (*PrunedFile, error) {
	return getPrunedFile(ctx, tx.tx, id)
}

func getPrunedFile(ctx context.Context, q dbtx, id int64) (*PrunedFile, error) {
	query := `
	SELECT id, project_id, task_id, file_path, pruned_at, decision_id
	FROM pruned_files
	WHERE id = ?
	`

	var p PrunedFile
	var prunedAt int64
	var decisionID sql.NullInt64

	err := q.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.ProjectID, &p.TaskID, &p.Path, &prunedAt, &decisionID,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pruned file %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pruned file %d: %w", id, err)
	}

	p.PrunedAt = time.Unix(prunedAt, 0)
	if decisionID.Valid {
		p.DecisionID = &decisionID.Int64
	}

	return &p, nil
}

// ListPrunedFiles returns a task's pruned-file audit rows, oldest first.
func (s *Store) ListPrunedFiles(ctx context.Context, taskID int64) ([]PrunedFile, error) {
	query := `
	SELECT id, project_id, task_id, file_path, pruned_at, decision_id
	FROM pruned_files
	WHERE task_id = ?
	ORDER BY id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pruned files for task %d: %w", taskID, err)
	}
	defer rows.Close()

	var pruned []PrunedFile
	for rows.Next() {
		var p PrunedFile
		var prunedAt int64
		var decisionID sql.NullInt64

		if err := rows.Scan(&p.ID, &p.ProjectID, &p.TaskID, &p.Path, &prunedAt, &decisionID); err != nil {
			return nil, fmt.Errorf("failed to scan pruned file: %w", err)
		}

		p.PrunedAt = time.Unix(prunedAt, 0)
		if decisionID.Valid {
			p.DecisionID = &decisionID.Int64
		}
		pruned = append(pruned, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pruned files: %w", err)
	}

	return pruned, nil
}

// SetPrunedDecision sets the decision back-reference on a pruned-file row.
// The reference may be set exactly once; a second attempt returns
// ErrDecisionAlreadyLinked. The row must exist (ErrNotFound otherwise).
func (tx *Tx) SetPrunedDecision(ctx context.Context, prunedID, decisionID int64) error {
	p, err := tx.GetPrunedFile(ctx, prunedID)
	if err != nil {
		return err
	}
	if p.DecisionID != nil {
		return fmt.Errorf("pruned file %d: %w", prunedID, ErrDecisionAlreadyLinked)
	}

	_, err = tx.tx.ExecContext(ctx,
		`UPDATE pruned_files SET decision_id = ? WHERE id = ? AND decision_id IS NULL`,
		decisionID, prunedID,
	)
	if err != nil {
		return fmt.Errorf("failed to link pruned file %d to decision: %w", prunedID, err)
	}

	return nil
}
