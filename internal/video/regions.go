package video

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Skill slot positions for a 1920x1080 game UI. Calibrated for the default
// action bar layout; other resolutions are rejected during validation.
var slotRects = []image.Rectangle{
	image.Rect(760, 960, 824, 1024),
	image.Rect(832, 960, 896, 1024),
	image.Rect(904, 960, 968, 1024),
	image.Rect(976, 960, 1040, 1024),
	image.Rect(1048, 960, 1112, 1024),
	image.Rect(1120, 960, 1184, 1024),
	image.Rect(1192, 960, 1256, 1024),
	image.Rect(1264, 960, 1328, 1024),
}

// Center screen region sampled for the death red-screen check
var screenColorRect = image.Rect(540, 380, 740, 580)

const (
	redThreshold      = 150.0
	redRatioThreshold = 0.6
	// keeps the ratio finite on near-black regions
	colorEpsilon = 0.1
)

// SlotCount is the number of tracked skill slots
const SlotCount = 8

// CropSlots extracts the 8 skill slot images from a full frame, in slot order
func CropSlots(frame gocv.Mat) ([]image.Image, error) {
	slots := make([]image.Image, 0, SlotCount)
	for i, rect := range slotRects {
		region := frame.Region(rect)
		img, err := region.ToImage()
		region.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to crop slot %d: %w", i, err)
		}
		slots = append(slots, img)
	}
	return slots, nil
}

// IsRedScreen reports whether the center of the frame is predominantly red,
// which the game uses as its death overlay
func IsRedScreen(frame gocv.Mat) bool {
	region := frame.Region(screenColorRect)
	defer region.Close()

	mean := region.Mean()
	// BGR channel order
	return redDecision(mean.Val1, mean.Val2, mean.Val3)
}

func redDecision(b, g, r float64) bool {
	return r > redThreshold &&
		r > b && r > g &&
		r/(b+g+colorEpsilon) > redRatioThreshold
}
