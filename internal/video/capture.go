package video

import (
	"fmt"

	"gocv.io/x/gocv"
)

// fileReader wraps a gocv capture handle
type fileReader struct {
	path string
	cap  *gocv.VideoCapture
	info VideoInfo
	buf  gocv.Mat
}

// OpenReader opens a video file for sequential decoding
func OpenReader(path string) (Reader, error) {
	vc, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}

	fps := vc.Get(gocv.VideoCaptureFPS)
	frameCount := int(vc.Get(gocv.VideoCaptureFrameCount))
	width := int(vc.Get(gocv.VideoCaptureFrameWidth))
	height := int(vc.Get(gocv.VideoCaptureFrameHeight))

	duration := 0.0
	if fps > 0 {
		duration = float64(frameCount) / fps
	}

	info := VideoInfo{
		FPS:        fps,
		FrameCount: frameCount,
		Width:      width,
		Height:     height,
		Duration:   duration,
	}

	if err := checkInfo(path, info); err != nil {
		vc.Close()
		return nil, err
	}

	return &fileReader{
		path: path,
		cap:  vc,
		info: info,
		buf:  gocv.NewMat(),
	}, nil
}

func (r *fileReader) Info() VideoInfo {
	return r.info
}

func (r *fileReader) Seek(frame int) error {
	r.cap.Set(gocv.VideoCapturePosFrames, float64(frame))
	if pos := int(r.cap.Get(gocv.VideoCapturePosFrames)); pos != frame {
		return fmt.Errorf("failed to seek %s to frame %d (at %d)", r.path, frame, pos)
	}
	return nil
}

func (r *fileReader) ReadNext() (gocv.Mat, bool) {
	if ok := r.cap.Read(&r.buf); !ok {
		return r.buf, false
	}
	if r.buf.Empty() {
		return r.buf, false
	}
	return r.buf, true
}

func (r *fileReader) Close() error {
	r.buf.Close()
	return r.cap.Close()
}

// fileWriter wraps a gocv writer handle
type fileWriter struct {
	path   string
	writer *gocv.VideoWriter
}

// OpenWriter opens a video file for encoding with the given parameters
func OpenWriter(path, codec string, fps float64, width, height int) (Writer, error) {
	w, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open writer for %s: %w", path, err)
	}
	if !w.IsOpened() {
		w.Close()
		return nil, fmt.Errorf("writer for %s did not open", path)
	}
	return &fileWriter{path: path, writer: w}, nil
}

func (w *fileWriter) WriteFrame(frame gocv.Mat) error {
	if err := w.writer.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame to %s: %w", w.path, err)
	}
	return nil
}

func (w *fileWriter) Close() error {
	return w.writer.Close()
}
