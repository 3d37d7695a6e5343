package task

import (
	"fmt"
	"time"
)

// MaxTitleLength bounds task titles.
const MaxTitleLength = 500

// Priority bounds. Priority 1 is most urgent, 4 is backlog.
const (
	MinPriority = 1
	MaxPriority = 4
)

// FileActionKind describes the intent an agent declared for a file.
// The kind is informational only; it never gates lifecycle behavior.
type FileActionKind string

const (
	ActionCreate FileActionKind = "create"
	ActionEdit   FileActionKind = "edit"
	ActionDelete FileActionKind = "delete"
)

// IsValid reports whether the kind is one of create, edit, or delete.
func (k FileActionKind) IsValid() bool {
	switch k {
	case ActionCreate, ActionEdit, ActionDelete:
		return true
	default:
		return false
	}
}

// FileAction declares a file a task intends to touch and how.
type FileAction struct {
	Path string         `json:"path"`
	Kind FileActionKind `json:"kind"`
}

// Task is a unit of work recorded against a project.
//
// Tasks are never physically deleted; archival and rejection are terminal
// statuses, not row deletion. Status must always be a member of the status
// enumeration and every status change passes through the transition table.
type Task struct {
	// ===== Identity =====
	ID        int64 `json:"id"`
	ProjectID int64 `json:"project_id"`

	// ===== Content =====
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	Notes              string `json:"notes,omitempty"`
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`

	// ===== Classification =====
	Status   Status   `json:"status"`
	Priority int      `json:"priority"` // 1-4 (1=critical, 4=backlog)
	Layer    Layer    `json:"layer,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	// ===== Assignment =====
	AssignedAgent string `json:"assigned_agent,omitempty"`

	// ===== Timestamps (epoch seconds when persisted) =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks field values on a task about to be persisted.
func (t *Task) Validate() error {
	if t.Title == "" {
		return ErrTitleRequired
	}
	if len(t.Title) > MaxTitleLength {
		return fmt.Errorf("%w: %d characters (max %d)", ErrTitleTooLong, len(t.Title), MaxTitleLength)
	}
	if t.Priority < MinPriority || t.Priority > MaxPriority {
		return fmt.Errorf("%w (got %d)", ErrInvalidPriority, t.Priority)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %d", ErrUnknownStatus, int(t.Status))
	}
	if !t.Layer.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownLayer, t.Layer)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.Priority == 0 {
		t.Priority = 2
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
}

// ValidateFileActions enforces the layer policy on a file-actions
// declaration. For file-required layers the declaration must be present
// (non-nil); an explicitly empty declaration is permitted. File-optional
// layers accept a nil declaration.
func ValidateFileActions(layer Layer, actions []FileAction) error {
	if layer.RequiresFileActions() && actions == nil {
		return fmt.Errorf("%w: layer %q", ErrFileActionsRequired, layer)
	}
	for _, a := range actions {
		if a.Path == "" {
			return fmt.Errorf("file action with empty path")
		}
		if !a.Kind.IsValid() {
			return fmt.Errorf("invalid file action kind %q for %s", a.Kind, a.Path)
		}
	}
	return nil
}
