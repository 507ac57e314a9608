package video

import (
	"fmt"

	"gocv.io/x/gocv"
)

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FPS        float64
	FrameCount int
	Width      int
	Height     int
	Duration   float64 // seconds
}

// Reader decodes frames from a video file in forward order
type Reader interface {
	Info() VideoInfo
	// Seek positions the reader so the next ReadNext returns the given frame
	Seek(frame int) error
	// ReadNext returns the next decoded frame. The returned Mat is owned by
	// the reader and is only valid until the next ReadNext or Close.
	ReadNext() (gocv.Mat, bool)
	Close() error
}

// Writer encodes frames to a video file at a fixed rate and resolution
type Writer interface {
	WriteFrame(frame gocv.Mat) error
	Close() error
}

// OpenReaderFunc opens a read handle on a video file
type OpenReaderFunc func(path string) (Reader, error)

// OpenWriterFunc opens a write handle with the given encoding parameters
type OpenWriterFunc func(path, codec string, fps float64, width, height int) (Writer, error)

// Probe opens a video just long enough to read its metadata
func Probe(path string) (VideoInfo, error) {
	r, err := OpenReader(path)
	if err != nil {
		return VideoInfo{}, err
	}
	defer r.Close()
	return r.Info(), nil
}

// sanity check shared by Probe and the pipeline's validation stage
func checkInfo(path string, info VideoInfo) error {
	if info.FPS <= 0 {
		return fmt.Errorf("video %s reports invalid fps %.2f", path, info.FPS)
	}
	if info.FrameCount <= 0 {
		return fmt.Errorf("video %s contains no frames", path)
	}
	return nil
}
