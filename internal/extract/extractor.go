package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/combatclip/internal/clips"
	"github.com/kikiluvv/combatclip/internal/video"
	"github.com/kikiluvv/combatclip/pkg/util"
)

var (
	// ErrNoWindows means the caller passed an empty window list
	ErrNoWindows = errors.New("no clip windows to extract")
	// ErrNoSurvivors means every per-window extraction failed
	ErrNoSurvivors = errors.New("all clip extractions failed")
)

// Options configures the extraction engine
type Options struct {
	TempDir string
	Codec   string
	Workers int

	// Injectable for tests; default to the gocv-backed implementations
	OpenReader video.OpenReaderFunc
	OpenWriter video.OpenWriterFunc
}

// Engine extracts clip windows from a source video and merges them into one
// output with a JSON metadata sidecar
type Engine struct {
	logger     zerolog.Logger
	tempDir    string
	codec      string
	workers    int
	openReader video.OpenReaderFunc
	openWriter video.OpenWriterFunc
}

// NewEngine creates an extraction engine
func NewEngine(logger zerolog.Logger, opts Options) *Engine {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Codec == "" {
		opts.Codec = "mp4v"
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.OpenReader == nil {
		opts.OpenReader = video.OpenReader
	}
	if opts.OpenWriter == nil {
		opts.OpenWriter = video.OpenWriter
	}

	return &Engine{
		logger:     logger.With().Str("component", "clip-extractor").Logger(),
		tempDir:    opts.TempDir,
		codec:      opts.Codec,
		workers:    opts.Workers,
		openReader: opts.OpenReader,
		openWriter: opts.OpenWriter,
	}
}

// Result summarizes a successful extract-and-merge run
type Result struct {
	OutputVideo string
	OutputJSON  string
	Extracted   int
	Dropped     int
}

// ExtractAndMerge extracts each window's frame range, concatenates the
// surviving clips in window order into outVideo, and writes the metadata
// sidecar to outJSON. Either both outputs are produced or neither is.
func (e *Engine) ExtractAndMerge(ctx context.Context, source string, windows []clips.ClipWindow, outVideo, outJSON string) (*Result, error) {
	if len(windows) == 0 {
		return nil, ErrNoWindows
	}

	scratch := filepath.Join(e.tempDir, "combatclip-"+uuid.NewString())
	if err := util.EnsureDir(scratch); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() {
		// intermediate artifacts cannot corrupt an already-written output,
		// so a failed cleanup is only worth a log line
		if err := os.RemoveAll(scratch); err != nil {
			e.logger.Warn().Err(err).Str("dir", scratch).Msg("failed to remove scratch dir")
		}
	}()

	e.logger.Info().
		Str("source", source).
		Int("windows", len(windows)).
		Str("scratch", scratch).
		Msg("extracting clip windows")

	artifacts, surviving := e.extractAll(ctx, source, windows, scratch)
	if len(artifacts) == 0 {
		return nil, ErrNoSurvivors
	}

	if err := e.merge(ctx, artifacts, outVideo); err != nil {
		util.CleanupFiles(outVideo)
		return nil, err
	}

	if err := writeSidecar(source, surviving, outVideo, outJSON); err != nil {
		util.CleanupFiles(outVideo)
		return nil, fmt.Errorf("failed to write metadata sidecar: %w", err)
	}

	e.logger.Info().
		Str("output", outVideo).
		Int("extracted", len(surviving)).
		Int("dropped", len(windows)-len(surviving)).
		Msg("clip extraction complete")

	return &Result{
		OutputVideo: outVideo,
		OutputJSON:  outJSON,
		Extracted:   len(surviving),
		Dropped:     len(windows) - len(surviving),
	}, nil
}

// extractAll runs per-window extraction on a worker pool. Failed windows are
// dropped; the returned slices preserve window order.
func (e *Engine) extractAll(ctx context.Context, source string, windows []clips.ClipWindow, scratch string) ([]string, []clips.ClipWindow) {
	type slot struct {
		path string
		ok   bool
	}
	results := make([]slot, len(windows))

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(e.workers)
	for w := 0; w < e.workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				win := windows[i]
				path := filepath.Join(scratch, fmt.Sprintf("clip_%03d.mp4", i))
				if err := e.extractOne(ctx, source, win, path); err != nil {
					e.logger.Warn().
						Err(err).
						Int("window", i).
						Int("clip_start_frame", win.ClipStartFrame).
						Int("clip_end_frame", win.ClipEndFrame).
						Msg("window extraction failed, dropping")
					continue
				}
				results[i] = slot{path: path, ok: true}
			}
		}()
	}

	for i := range windows {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var artifacts []string
	var surviving []clips.ClipWindow
	for i, r := range results {
		if r.ok {
			artifacts = append(artifacts, r.path)
			surviving = append(surviving, windows[i])
		}
	}
	return artifacts, surviving
}

// extractOne re-encodes one window's frame range into a scratch artifact,
// preserving the source frame rate and resolution. Each call owns its own
// read handle so windows can extract concurrently.
func (e *Engine) extractOne(ctx context.Context, source string, win clips.ClipWindow, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r, err := e.openReader(source)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.Seek(win.ClipStartFrame); err != nil {
		return err
	}

	info := r.Info()
	w, err := e.openWriter(path, e.codec, info.FPS, info.Width, info.Height)
	if err != nil {
		return err
	}

	written := 0
	for idx := win.ClipStartFrame; idx <= win.ClipEndFrame; idx++ {
		frame, ok := r.ReadNext()
		if !ok {
			break
		}
		if err := w.WriteFrame(frame); err != nil {
			w.Close()
			return err
		}
		written++
	}

	if err := w.Close(); err != nil {
		return err
	}
	if written == 0 {
		return fmt.Errorf("frame range %d-%d yielded no frames", win.ClipStartFrame, win.ClipEndFrame)
	}
	return nil
}

// merge concatenates the artifacts frame-for-frame in order. The output
// frame rate and resolution come from the first artifact; if that artifact
// cannot be opened the whole run fails.
func (e *Engine) merge(ctx context.Context, artifacts []string, outVideo string) error {
	first, err := e.openReader(artifacts[0])
	if err != nil {
		return fmt.Errorf("failed to open first clip to establish output parameters: %w", err)
	}
	info := first.Info()

	w, err := e.openWriter(outVideo, e.codec, info.FPS, info.Width, info.Height)
	if err != nil {
		first.Close()
		return err
	}

	appendClip := func(r video.Reader) error {
		for {
			frame, ok := r.ReadNext()
			if !ok {
				return nil
			}
			if err := w.WriteFrame(frame); err != nil {
				return err
			}
		}
	}

	err = appendClip(first)
	first.Close()
	if err != nil {
		w.Close()
		return fmt.Errorf("merge failed: %w", err)
	}

	for _, path := range artifacts[1:] {
		if err := ctx.Err(); err != nil {
			w.Close()
			return err
		}

		r, err := e.openReader(path)
		if err != nil {
			w.Close()
			return fmt.Errorf("merge failed on %s: %w", filepath.Base(path), err)
		}
		err = appendClip(r)
		r.Close()
		if err != nil {
			w.Close()
			return fmt.Errorf("merge failed on %s: %w", filepath.Base(path), err)
		}
	}

	return w.Close()
}
