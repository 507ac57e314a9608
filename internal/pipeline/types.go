package pipeline

import (
	"errors"
	"fmt"

	"github.com/kikiluvv/combatclip/internal/video"
)

// ErrNoCombat means the detector found no combat windows in the input
var ErrNoCombat = errors.New("no combat detected")

// ValidationError rejects an input video before any processing happens
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Report summarizes one processed video
type Report struct {
	Input       string
	OutputVideo string
	OutputJSON  string
	Info        video.VideoInfo
	Windows     int
	Extracted   int
	Dropped     int
}
