package classify

import (
	"context"
	"image"
)

// Class is the state of a single skill slot
type Class int

const (
	Normal Class = iota
	Cooldown
	Empty
)

var classNames = []string{"Normal", "Cooldown", "Empty"}

func (c Class) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return "Unknown"
	}
	return classNames[c]
}

// Classifier labels cropped skill slot images. Implementations must preserve
// input order one-to-one and return an empty result for empty input.
type Classifier interface {
	Classify(ctx context.Context, slots []image.Image) ([]Class, error)
	Close() error
}
