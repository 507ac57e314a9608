package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/kikiluvv/combatclip/internal/classify"
	"github.com/kikiluvv/combatclip/internal/clips"
	"github.com/kikiluvv/combatclip/internal/config"
	"github.com/kikiluvv/combatclip/internal/detect"
	"github.com/kikiluvv/combatclip/internal/extract"
	"github.com/kikiluvv/combatclip/internal/video"
	"github.com/kikiluvv/combatclip/pkg/util"
)

// featurizeFunc reduces a decoded frame to a classification sample
type featurizeFunc func(frame gocv.Mat, index int) (detect.Sample, error)

// Pipeline orchestrates probe, validation, detection, expansion and extraction
type Pipeline struct {
	logger     zerolog.Logger
	cfg        *config.Config
	classifier classify.Classifier
	engine     *extract.Engine

	openReader video.OpenReaderFunc
	featurize  featurizeFunc
}

// New creates a pipeline using the gocv-backed video layer
func New(logger zerolog.Logger, cfg *config.Config, classifier classify.Classifier) *Pipeline {
	engine := extract.NewEngine(logger, extract.Options{
		TempDir: cfg.TempDir,
		Codec:   cfg.Clip.Codec,
		Workers: cfg.Concurrency,
	})

	return &Pipeline{
		logger:     logger.With().Str("component", "pipeline").Logger(),
		cfg:        cfg,
		classifier: classifier,
		engine:     engine,
		openReader: video.OpenReader,
		featurize:  featurizeFrame,
	}
}

func featurizeFrame(frame gocv.Mat, index int) (detect.Sample, error) {
	slots, err := video.CropSlots(frame)
	if err != nil {
		return detect.Sample{}, err
	}
	return detect.Sample{
		Index:     index,
		Slots:     slots,
		RedScreen: video.IsRedScreen(frame),
	}, nil
}

// Process runs the full pipeline on one input video. Output names derive
// from the input base name.
func (p *Pipeline) Process(ctx context.Context, input, outputDir string) (*Report, error) {
	info, err := p.probe(input)
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("input", input).
		Float64("fps", info.FPS).
		Int("frames", info.FrameCount).
		Int("width", info.Width).
		Int("height", info.Height).
		Str("duration", util.FormatSeconds(info.Duration)).
		Msg("video metadata read")

	if err := p.validate(input, info); err != nil {
		return nil, err
	}

	windows, err := p.detectWindows(ctx, input, info)
	if err != nil {
		return nil, fmt.Errorf("combat detection failed: %w", err)
	}
	if len(windows) == 0 {
		return nil, ErrNoCombat
	}

	p.logger.Info().Int("windows", len(windows)).Msg("combat windows detected")

	expanded := clips.Expand(windows, info, p.cfg.Clip.LeadSeconds, p.cfg.Clip.TrailSeconds)

	if err := util.EnsureDir(outputDir); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	stem := util.Stem(input)
	outVideo := filepath.Join(outputDir, stem+"_highlights.mp4")
	outJSON := filepath.Join(outputDir, stem+"_metadata.json")

	res, err := p.engine.ExtractAndMerge(ctx, input, expanded, outVideo, outJSON)
	if err != nil {
		return nil, err
	}

	return &Report{
		Input:       input,
		OutputVideo: res.OutputVideo,
		OutputJSON:  res.OutputJSON,
		Info:        info,
		Windows:     len(windows),
		Extracted:   res.Extracted,
		Dropped:     res.Dropped,
	}, nil
}

func (p *Pipeline) probe(input string) (video.VideoInfo, error) {
	r, err := p.openReader(input)
	if err != nil {
		return video.VideoInfo{}, err
	}
	defer r.Close()
	return r.Info(), nil
}

func (p *Pipeline) validate(input string, info video.VideoInfo) error {
	v := p.cfg.Video
	if info.Width != v.ExpectWidth || info.Height != v.ExpectHeight {
		return &ValidationError{
			Path: input,
			Reason: fmt.Sprintf("invalid resolution: %dx%d (expected %dx%d)",
				info.Width, info.Height, v.ExpectWidth, v.ExpectHeight),
		}
	}
	if info.FPS < v.MinFPS {
		return &ValidationError{
			Path:   input,
			Reason: fmt.Sprintf("low fps: %.2f (expected at least %.0f)", info.FPS, v.MinFPS),
		}
	}
	return nil
}

// detectWindows drives one sequential decode pass. Cropping and red-screen
// checks happen on the decode goroutine; classification fans out over the
// stream's worker pool and is re-sequenced before the detector sees it.
func (p *Pipeline) detectWindows(ctx context.Context, input string, info video.VideoInfo) ([]clips.RawWindow, error) {
	r, err := p.openReader(input)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := p.cfg.Concurrency
	if workers < 1 {
		workers = 1
	}

	samples := make(chan detect.Sample, workers*2)
	features := make(chan detect.FrameFeatures, workers*2)

	var wg sync.WaitGroup
	var produceErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(samples)

		index := 0
		for {
			frame, ok := r.ReadNext()
			if !ok {
				return
			}

			sample, err := p.featurize(frame, index)
			if err != nil {
				produceErr = fmt.Errorf("frame %d: %w", index, err)
				return
			}

			select {
			case samples <- sample:
			case <-ctx.Done():
				return
			}
			index++
		}
	}()

	stream := detect.NewStream(p.logger, p.classifier, workers, p.cfg.Detector.MountedEmptySlots)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- stream.Run(ctx, samples, features)
	}()

	detectorCfg := detect.Config{
		MountedEmptySlots:   p.cfg.Detector.MountedEmptySlots,
		CooldownStartFrames: p.cfg.Detector.CooldownStartFrames,
		IdleTimeoutSeconds:  p.cfg.Detector.IdleTimeoutSeconds,
	}
	detector := detect.NewDetector(p.logger, detectorCfg, info.FPS)

	var windows []clips.RawWindow
	for f := range features {
		if w, ok := detector.Observe(f); ok {
			windows = append(windows, w)
		}
	}

	err = <-streamErr
	cancel()
	wg.Wait()

	if produceErr != nil {
		return nil, produceErr
	}
	if err != nil {
		return nil, err
	}

	if w, ok := detector.Finish(); ok {
		windows = append(windows, w)
	}
	return windows, nil
}
