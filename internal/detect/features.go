package detect

import (
	"image"

	"github.com/kikiluvv/combatclip/internal/classify"
)

// FrameFeatures is the per-frame input to the combat detector
type FrameFeatures struct {
	Index       int
	SlotClasses []classify.Class
	Mounted     bool
	HasCooldown bool
	RedScreen   bool
}

// Sample is one decoded frame reduced to the inputs the classifier needs
type Sample struct {
	Index     int
	Slots     []image.Image
	RedScreen bool
}

// NewFrameFeatures derives the mounted and cooldown flags from slot classes
func NewFrameFeatures(index int, classes []classify.Class, redScreen bool, mountedEmptySlots int) FrameFeatures {
	empty := 0
	cooldown := false
	for _, c := range classes {
		switch c {
		case classify.Empty:
			empty++
		case classify.Cooldown:
			cooldown = true
		}
	}

	return FrameFeatures{
		Index:       index,
		SlotClasses: classes,
		Mounted:     empty >= mountedEmptySlots,
		HasCooldown: cooldown,
		RedScreen:   redScreen,
	}
}
