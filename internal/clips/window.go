package clips

import "github.com/kikiluvv/combatclip/internal/video"

// RawWindow is a combat interval in detected frame bounds
type RawWindow struct {
	StartFrame int  `json:"start_frame"`
	EndFrame   int  `json:"end_frame"`
	Death      bool `json:"death"`
}

// ClipWindow is a RawWindow expanded with extraction bounds and derived times.
// Field names match the metadata sidecar schema.
type ClipWindow struct {
	RawWindow
	ClipStartFrame int     `json:"clip_start_frame"`
	ClipEndFrame   int     `json:"clip_end_frame"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
	ClipStartTime  float64 `json:"clip_start_time"`
	ClipEndTime    float64 `json:"clip_end_time"`
}

// Expand maps raw windows to clip windows by applying lead/trail buffers and
// clamping to the video bounds. Pure and order-preserving, one output per input.
func Expand(windows []RawWindow, info video.VideoInfo, leadSeconds, trailSeconds float64) []ClipWindow {
	expanded := make([]ClipWindow, 0, len(windows))
	for _, w := range windows {
		clipStart := w.StartFrame - int(leadSeconds*info.FPS)
		if clipStart < 0 {
			clipStart = 0
		}
		clipEnd := w.EndFrame + int(trailSeconds*info.FPS)
		if clipEnd > info.FrameCount-1 {
			clipEnd = info.FrameCount - 1
		}

		expanded = append(expanded, ClipWindow{
			RawWindow:      w,
			ClipStartFrame: clipStart,
			ClipEndFrame:   clipEnd,
			StartTime:      float64(w.StartFrame) / info.FPS,
			EndTime:        float64(w.EndFrame) / info.FPS,
			ClipStartTime:  float64(clipStart) / info.FPS,
			ClipEndTime:    float64(clipEnd) / info.FPS,
		})
	}
	return expanded
}
