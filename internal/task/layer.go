package task

import "fmt"

// Layer classifies a task by the architectural layer it touches.
// Layers determine the file-actions policy: implementation layers require
// an explicit file-actions declaration at create/update time so that a
// task cannot reach review with nothing to show for it.
type Layer string

const (
	LayerPresentation   Layer = "presentation"
	LayerBusiness       Layer = "business"
	LayerData           Layer = "data"
	LayerInfrastructure Layer = "infrastructure"
	LayerCrossCutting   Layer = "cross-cutting"
	LayerDocumentation  Layer = "documentation"
	LayerPlanning       Layer = "planning"
	LayerCoordination   Layer = "coordination"
	LayerReview         Layer = "review"
)

// fileRequiredLayers are the layers whose tasks must declare file actions.
var fileRequiredLayers = map[Layer]bool{
	LayerPresentation:   true,
	LayerBusiness:       true,
	LayerData:           true,
	LayerInfrastructure: true,
	LayerCrossCutting:   true,
	LayerDocumentation:  true,
	LayerPlanning:       false,
	LayerCoordination:   false,
	LayerReview:         false,
}

// String returns the string form of the layer.
func (l Layer) String() string {
	return string(l)
}

// IsValid reports whether l is a recognized layer. The empty layer is
// valid: unclassified tasks have no file-actions requirement.
func (l Layer) IsValid() bool {
	if l == "" {
		return true
	}
	_, ok := fileRequiredLayers[l]
	return ok
}

// RequiresFileActions reports whether tasks in this layer must carry an
// explicit file-actions declaration.
func (l Layer) RequiresFileActions() bool {
	return fileRequiredLayers[l]
}

// ParseLayer validates a layer string.
func ParseLayer(name string) (Layer, error) {
	l := Layer(name)
	if !l.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLayer, name)
	}
	return l, nil
}
