package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/combatclip/internal/classify"
	"github.com/kikiluvv/combatclip/internal/config"
	"github.com/kikiluvv/combatclip/internal/logging"
	"github.com/kikiluvv/combatclip/internal/pipeline"
	"github.com/kikiluvv/combatclip/internal/video"
	"github.com/kikiluvv/combatclip/pkg/util"
)

const (
	uiErrorLog  = "ui_error_videos.txt"
	noCombatLog = "no_combat_videos.txt"
)

var (
	cfgFile   string
	verbose   bool
	outputDir string
	modelPath string
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "combatclip",
	Short: "combatclip - combat highlight extraction for gameplay recordings",
	Long:  "Scans recorded gameplay videos for combat intervals and cuts them into a single merged highlight video with a JSON metadata sidecar.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	extractCmd.Flags().StringVarP(&outputDir, "output", "o", "output", "output directory for highlights")
	extractCmd.Flags().StringVarP(&modelPath, "model", "m", "", "slot classifier model path (overrides config)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(probeCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract [video file or directory]",
	Short: "Extract combat highlights from one video or a directory of videos",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		if modelPath != "" {
			cfg.Classifier.ModelPath = modelPath
		}

		videos, err := collectVideos(args[0])
		if err != nil {
			return err
		}
		if len(videos) == 0 {
			return fmt.Errorf("no video files found in %s", args[0])
		}

		classifier, err := classify.NewONNXClassifier(log.Logger, cfg.Classifier.ModelPath)
		if err != nil {
			return err
		}
		defer classifier.Close()

		pipe := pipeline.New(log.Logger, cfg, classifier)

		log.Info().Int("videos", len(videos)).Msg("starting extraction run")

		succeeded := 0
		for _, input := range videos {
			report, err := pipe.Process(cmd.Context(), input, outputDir)
			if err != nil {
				recordFailure(input, err)
				continue
			}

			succeeded++
			log.Info().
				Str("input", report.Input).
				Str("output", report.OutputVideo).
				Int("windows", report.Windows).
				Int("extracted", report.Extracted).
				Int("dropped", report.Dropped).
				Msg("highlights written")
		}

		log.Info().
			Int("processed", len(videos)).
			Int("succeeded", succeeded).
			Msg("extraction run complete")

		if succeeded == 0 {
			return fmt.Errorf("no highlights extracted from %d video(s)", len(videos))
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [video file]",
	Short: "Print video metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := video.Probe(args[0])
		if err != nil {
			return err
		}

		log.Info().
			Float64("fps", info.FPS).
			Int("frames", info.FrameCount).
			Int("width", info.Width).
			Int("height", info.Height).
			Str("duration", util.FormatSeconds(info.Duration)).
			Msg(args[0])

		return nil
	},
}

var videoExts = map[string]bool{
	".mp4": true,
	".avi": true,
	".mkv": true,
	".mov": true,
}

func collectVideos(input string) ([]string, error) {
	stat, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("%s not found", input)
	}

	if !stat.IsDir() {
		return []string{input}, nil
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, err
	}

	var videos []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if videoExts[filepath.Ext(entry.Name())] {
			videos = append(videos, filepath.Join(input, entry.Name()))
		}
	}
	return videos, nil
}

// recordFailure routes a failed input to the right report file
func recordFailure(input string, err error) {
	var verr *pipeline.ValidationError

	switch {
	case errors.Is(err, pipeline.ErrNoCombat):
		log.Warn().Str("input", input).Msg("no combat detected")
		appendLine(noCombatLog, input)
	case errors.As(err, &verr):
		log.Warn().Str("input", input).Str("reason", verr.Reason).Msg("video rejected")
		appendLine(uiErrorLog, verr.Error())
	default:
		log.Error().Err(err).Str("input", input).Msg("extraction failed")
		appendLine(uiErrorLog, fmt.Sprintf("%s: %v", input, err))
	}
}

func appendLine(path, line string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("failed to write report file")
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}
