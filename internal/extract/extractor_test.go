package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/kikiluvv/combatclip/internal/clips"
	"github.com/kikiluvv/combatclip/internal/video"
)

// fakeIO simulates the video layer: readers serve synthetic frame counts and
// writers record what was written, keyed by path
type fakeIO struct {
	mu         sync.Mutex
	sourceInfo video.VideoInfo

	failSeekTo    map[int]bool    // source seeks that fail
	failOpenPaths map[string]bool // artifact/output paths whose open fails
	failWritePath string          // writer path whose WriteFrame fails

	writers map[string]*fakeWriter
}

func newFakeIO(frameCount int) *fakeIO {
	return &fakeIO{
		sourceInfo: video.VideoInfo{
			FPS:        60,
			FrameCount: frameCount,
			Width:      1920,
			Height:     1080,
		},
		failSeekTo:    make(map[int]bool),
		failOpenPaths: make(map[string]bool),
		writers:       make(map[string]*fakeWriter),
	}
}

func (f *fakeIO) openReader(path string) (video.Reader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failOpenPaths[path] {
		return nil, fmt.Errorf("cannot open %s", path)
	}

	if w, ok := f.writers[path]; ok {
		// reading back a previously written artifact
		return &fakeReader{
			info: video.VideoInfo{FPS: w.fps, FrameCount: w.frames, Width: w.width, Height: w.height},
		}, nil
	}

	return &fakeReader{info: f.sourceInfo, io: f}, nil
}

func (f *fakeIO) openWriter(path, codec string, fps float64, width, height int) (video.Writer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failOpenPaths[path] {
		return nil, fmt.Errorf("cannot open writer %s", path)
	}

	w := &fakeWriter{fps: fps, width: width, height: height, failWrite: path == f.failWritePath}
	f.writers[path] = w
	return w, nil
}

func (f *fakeIO) writerFor(path string) *fakeWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writers[path]
}

type fakeReader struct {
	info video.VideoInfo
	io   *fakeIO
	pos  int
}

func (r *fakeReader) Info() video.VideoInfo { return r.info }

func (r *fakeReader) Seek(frame int) error {
	if r.io != nil {
		r.io.mu.Lock()
		fail := r.io.failSeekTo[frame]
		r.io.mu.Unlock()
		if fail {
			return errors.New("seek failed")
		}
	}
	r.pos = frame
	return nil
}

func (r *fakeReader) ReadNext() (gocv.Mat, bool) {
	if r.pos >= r.info.FrameCount {
		return gocv.Mat{}, false
	}
	r.pos++
	return gocv.Mat{}, true
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	fps           float64
	width, height int
	frames        int
	failWrite     bool
	closed        bool
}

func (w *fakeWriter) WriteFrame(gocv.Mat) error {
	if w.failWrite {
		return errors.New("write failed")
	}
	w.frames++
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestEngine(t *testing.T, io *fakeIO) (*Engine, string, string) {
	t.Helper()
	dir := t.TempDir()
	engine := NewEngine(zerolog.Nop(), Options{
		TempDir:    dir,
		Workers:    2,
		OpenReader: io.openReader,
		OpenWriter: io.openWriter,
	})
	return engine, filepath.Join(dir, "out_highlights.mp4"), filepath.Join(dir, "out_metadata.json")
}

func testWindows() []clips.ClipWindow {
	return []clips.ClipWindow{
		{RawWindow: clips.RawWindow{StartFrame: 3, EndFrame: 6}, ClipStartFrame: 0, ClipEndFrame: 9},
		{RawWindow: clips.RawWindow{StartFrame: 105, EndFrame: 110}, ClipStartFrame: 100, ClipEndFrame: 119},
		{RawWindow: clips.RawWindow{StartFrame: 210, EndFrame: 220, Death: true}, ClipStartFrame: 200, ClipEndFrame: 229},
	}
}

func TestEmptyWindowListFails(t *testing.T) {
	io := newFakeIO(1000)
	engine, outVideo, outJSON := newTestEngine(t, io)

	_, err := engine.ExtractAndMerge(context.Background(), "source.mp4", nil, outVideo, outJSON)
	if !errors.Is(err, ErrNoWindows) {
		t.Fatalf("err = %v, want ErrNoWindows", err)
	}
	if io.writerFor(outVideo) != nil {
		t.Error("output video writer opened despite empty window list")
	}
	if _, statErr := os.Stat(outJSON); statErr == nil {
		t.Error("sidecar written despite empty window list")
	}
}

func TestExtractAndMergeHappyPath(t *testing.T) {
	io := newFakeIO(1000)
	engine, outVideo, outJSON := newTestEngine(t, io)
	windows := testWindows()

	res, err := engine.ExtractAndMerge(context.Background(), "/videos/raid.mp4", windows, outVideo, outJSON)
	if err != nil {
		t.Fatalf("ExtractAndMerge failed: %v", err)
	}
	if res.Extracted != 3 || res.Dropped != 0 {
		t.Errorf("result = %+v, want 3 extracted, 0 dropped", res)
	}

	merged := io.writerFor(outVideo)
	if merged == nil {
		t.Fatal("no merged output written")
	}
	wantFrames := 10 + 20 + 30
	if merged.frames != wantFrames {
		t.Errorf("merged frames = %d, want %d", merged.frames, wantFrames)
	}
	if !merged.closed {
		t.Error("merged writer not closed")
	}
	if merged.fps != 60 || merged.width != 1920 || merged.height != 1080 {
		t.Errorf("merged parameters = %v/%dx%d, want source parameters", merged.fps, merged.width, merged.height)
	}

	data, err := os.ReadFile(outJSON)
	if err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	var doc Sidecar
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("sidecar is not valid JSON: %v", err)
	}
	if doc.SourceVideo != "raid.mp4" {
		t.Errorf("source_video = %q, want base name raid.mp4", doc.SourceVideo)
	}
	if doc.OutputVideo != filepath.Base(outVideo) {
		t.Errorf("output_video = %q, want %q", doc.OutputVideo, filepath.Base(outVideo))
	}
	if doc.TotalSegments != 3 || len(doc.Segments) != 3 {
		t.Fatalf("sidecar has %d/%d segments, want 3", doc.TotalSegments, len(doc.Segments))
	}
	for i := 1; i < len(doc.Segments); i++ {
		if doc.Segments[i].StartFrame <= doc.Segments[i-1].StartFrame {
			t.Error("sidecar segments not in detection order")
		}
	}
	if !doc.Segments[2].Death {
		t.Error("death flag lost in sidecar")
	}
}

func TestFailedWindowIsDropped(t *testing.T) {
	io := newFakeIO(1000)
	// the middle window's seek target is unreadable
	io.failSeekTo[100] = true
	engine, outVideo, outJSON := newTestEngine(t, io)

	res, err := engine.ExtractAndMerge(context.Background(), "source.mp4", testWindows(), outVideo, outJSON)
	if err != nil {
		t.Fatalf("ExtractAndMerge failed: %v", err)
	}
	if res.Extracted != 2 || res.Dropped != 1 {
		t.Errorf("result = %+v, want 2 extracted, 1 dropped", res)
	}

	merged := io.writerFor(outVideo)
	if merged.frames != 10+30 {
		t.Errorf("merged frames = %d, want %d (failed window excluded)", merged.frames, 40)
	}

	data, _ := os.ReadFile(outJSON)
	var doc Sidecar
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.TotalSegments != 2 {
		t.Errorf("total_segments = %d, want 2", doc.TotalSegments)
	}
	for _, seg := range doc.Segments {
		if seg.ClipStartFrame == 100 {
			t.Error("dropped window still present in sidecar")
		}
	}
}

func TestAllWindowsFailing(t *testing.T) {
	io := newFakeIO(1000)
	io.failSeekTo[0] = true
	io.failSeekTo[100] = true
	io.failSeekTo[200] = true
	engine, outVideo, outJSON := newTestEngine(t, io)

	_, err := engine.ExtractAndMerge(context.Background(), "source.mp4", testWindows(), outVideo, outJSON)
	if !errors.Is(err, ErrNoSurvivors) {
		t.Fatalf("err = %v, want ErrNoSurvivors", err)
	}
	if io.writerFor(outVideo) != nil {
		t.Error("output video written despite no survivors")
	}
	if _, statErr := os.Stat(outJSON); statErr == nil {
		t.Error("sidecar written despite no survivors")
	}
}

func TestFirstArtifactOpenFailureFailsRun(t *testing.T) {
	io := newFakeIO(1000)
	engine, outVideo, outJSON := newTestEngine(t, io)
	windows := testWindows()

	// every artifact extracts fine, but the first one cannot be reopened to
	// establish the output parameters
	origOpen := io.openReader
	engine.openReader = func(path string) (video.Reader, error) {
		if filepath.Base(path) == "clip_000.mp4" {
			return nil, errors.New("corrupt artifact")
		}
		return origOpen(path)
	}

	_, err := engine.ExtractAndMerge(context.Background(), "source.mp4", windows, outVideo, outJSON)
	if err == nil {
		t.Fatal("run succeeded although output parameters could not be established")
	}
	if io.writerFor(outVideo) != nil {
		t.Error("output video written despite merge failure")
	}
	if _, statErr := os.Stat(outJSON); statErr == nil {
		t.Error("sidecar written despite merge failure")
	}
}

func TestMergeWriteFailureProducesNoOutputs(t *testing.T) {
	io := newFakeIO(1000)
	engine, outVideo, outJSON := newTestEngine(t, io)
	io.failWritePath = outVideo

	_, err := engine.ExtractAndMerge(context.Background(), "source.mp4", testWindows(), outVideo, outJSON)
	if err == nil {
		t.Fatal("run succeeded although the merge writer failed")
	}
	if _, statErr := os.Stat(outJSON); statErr == nil {
		t.Error("sidecar written despite merge failure")
	}
}

func TestOverlappingWindowsExtractIndependently(t *testing.T) {
	io := newFakeIO(1000)
	engine, outVideo, outJSON := newTestEngine(t, io)

	windows := []clips.ClipWindow{
		{RawWindow: clips.RawWindow{StartFrame: 10, EndFrame: 20}, ClipStartFrame: 0, ClipEndFrame: 49},
		{RawWindow: clips.RawWindow{StartFrame: 30, EndFrame: 40}, ClipStartFrame: 20, ClipEndFrame: 69},
	}

	res, err := engine.ExtractAndMerge(context.Background(), "source.mp4", windows, outVideo, outJSON)
	if err != nil {
		t.Fatalf("ExtractAndMerge failed: %v", err)
	}
	if res.Extracted != 2 {
		t.Fatalf("extracted = %d, want 2", res.Extracted)
	}

	// overlap is preserved, not deduplicated: 50 + 50 frames
	if merged := io.writerFor(outVideo); merged.frames != 100 {
		t.Errorf("merged frames = %d, want 100 (duplicated overlap)", merged.frames)
	}
}
