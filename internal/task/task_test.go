package task

import (
	"errors"
	"strings"
	"testing"
)

func validTask() *Task {
	return &Task{
		Title:    "Implement login endpoint",
		Status:   StatusTodo,
		Priority: 2,
		Layer:    LayerBusiness,
	}
}

// TestValidate_Success tests a well-formed task
func TestValidate_Success(t *testing.T) {
	if err := validTask().Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
}

// TestValidate_TitleRequired tests rejection of empty titles
func TestValidate_TitleRequired(t *testing.T) {
	tk := validTask()
	tk.Title = ""
	if err := tk.Validate(); !errors.Is(err, ErrTitleRequired) {
		t.Errorf("Validate() error = %v, want ErrTitleRequired", err)
	}
}

// TestValidate_TitleTooLong tests the title length bound
func TestValidate_TitleTooLong(t *testing.T) {
	tk := validTask()
	tk.Title = strings.Repeat("x", MaxTitleLength+1)
	if err := tk.Validate(); !errors.Is(err, ErrTitleTooLong) {
		t.Errorf("Validate() error = %v, want ErrTitleTooLong", err)
	}

	tk.Title = strings.Repeat("x", MaxTitleLength)
	if err := tk.Validate(); err != nil {
		t.Errorf("Validate() at exactly max length failed: %v", err)
	}
}

// TestValidate_Priority tests the priority bounds
func TestValidate_Priority(t *testing.T) {
	for _, p := range []int{0, -1, 5} {
		tk := validTask()
		tk.Priority = p
		if err := tk.Validate(); !errors.Is(err, ErrInvalidPriority) {
			t.Errorf("Validate() with priority %d error = %v, want ErrInvalidPriority", p, err)
		}
	}
	for p := MinPriority; p <= MaxPriority; p++ {
		tk := validTask()
		tk.Priority = p
		if err := tk.Validate(); err != nil {
			t.Errorf("Validate() with priority %d failed: %v", p, err)
		}
	}
}

// TestValidate_UnknownLayer tests rejection of unrecognized layers
func TestValidate_UnknownLayer(t *testing.T) {
	tk := validTask()
	tk.Layer = Layer("frontend")
	if err := tk.Validate(); !errors.Is(err, ErrUnknownLayer) {
		t.Errorf("Validate() error = %v, want ErrUnknownLayer", err)
	}
}

// TestValidate_EmptyLayer tests that unclassified tasks are accepted
func TestValidate_EmptyLayer(t *testing.T) {
	tk := validTask()
	tk.Layer = ""
	if err := tk.Validate(); err != nil {
		t.Errorf("Validate() with empty layer failed: %v", err)
	}
}

// TestSetDefaults tests default priority, tags, and timestamps
func TestSetDefaults(t *testing.T) {
	tk := &Task{Title: "t"}
	tk.SetDefaults()

	if tk.Priority != 2 {
		t.Errorf("Priority = %d, want 2", tk.Priority)
	}
	if tk.Tags == nil {
		t.Error("Tags = nil, want empty slice")
	}
	if tk.CreatedAt.IsZero() || tk.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	// Explicit values survive
	tk2 := &Task{Title: "t", Priority: 4}
	tk2.SetDefaults()
	if tk2.Priority != 4 {
		t.Errorf("Priority = %d, want 4", tk2.Priority)
	}
}

// TestValidateFileActions_RequiredLayers tests that file-required layers
// reject a missing declaration but accept an explicitly empty one
func TestValidateFileActions_RequiredLayers(t *testing.T) {
	required := []Layer{
		LayerPresentation, LayerBusiness, LayerData,
		LayerInfrastructure, LayerCrossCutting, LayerDocumentation,
	}
	for _, l := range required {
		if err := ValidateFileActions(l, nil); !errors.Is(err, ErrFileActionsRequired) {
			t.Errorf("ValidateFileActions(%s, nil) error = %v, want ErrFileActionsRequired", l, err)
		}
		if err := ValidateFileActions(l, []FileAction{}); err != nil {
			t.Errorf("ValidateFileActions(%s, empty) failed: %v", l, err)
		}
	}
}

// TestValidateFileActions_OptionalLayers tests that coordination-type layers
// and the empty layer accept a nil declaration
func TestValidateFileActions_OptionalLayers(t *testing.T) {
	for _, l := range []Layer{LayerPlanning, LayerCoordination, LayerReview, ""} {
		if err := ValidateFileActions(l, nil); err != nil {
			t.Errorf("ValidateFileActions(%s, nil) failed: %v", l, err)
		}
	}
}

// TestValidateFileActions_BadEntries tests per-entry validation
func TestValidateFileActions_BadEntries(t *testing.T) {
	err := ValidateFileActions(LayerBusiness, []FileAction{{Path: "", Kind: ActionEdit}})
	if err == nil {
		t.Error("ValidateFileActions() accepted an empty path")
	}

	err = ValidateFileActions(LayerBusiness, []FileAction{{Path: "a.go", Kind: "rename"}})
	if err == nil {
		t.Error("ValidateFileActions() accepted an invalid kind")
	}
}

// TestParseLayer tests layer parsing including the empty layer
func TestParseLayer(t *testing.T) {
	if _, err := ParseLayer("business"); err != nil {
		t.Errorf("ParseLayer(business) failed: %v", err)
	}
	if _, err := ParseLayer(""); err != nil {
		t.Errorf("ParseLayer(\"\") failed: %v", err)
	}
	if _, err := ParseLayer("backend"); !errors.Is(err, ErrUnknownLayer) {
		t.Errorf("ParseLayer(backend) error = %v, want ErrUnknownLayer", err)
	}
}
