package detect

import (
	"github.com/rs/zerolog"

	"github.com/kikiluvv/combatclip/internal/clips"
)

// Config configures combat window detection
type Config struct {
	// MountedEmptySlots is how many Empty slots mark the player as mounted
	MountedEmptySlots int
	// CooldownStartFrames is the debounce length for opening a window
	CooldownStartFrames int
	// IdleTimeoutSeconds closes a window after this long without cooldowns
	IdleTimeoutSeconds float64
}

func DefaultConfig() Config {
	return Config{
		MountedEmptySlots:   4,
		CooldownStartFrames: 3,
		IdleTimeoutSeconds:  60,
	}
}

// Detector turns an ordered frame feature stream into closed combat windows.
// It observes frames strictly in increasing index order; one window is open
// at most at any time.
type Detector struct {
	logger zerolog.Logger
	cfg    Config
	fps    float64

	cooldownStreak   int
	noCooldownStreak int
	open             *clips.RawWindow
	lastIndex        int
}

// NewDetector creates a detector for one video scan
func NewDetector(logger zerolog.Logger, cfg Config, fps float64) *Detector {
	return &Detector{
		logger:    logger.With().Str("component", "combat-detector").Logger(),
		cfg:       cfg,
		fps:       fps,
		lastIndex: -1,
	}
}

// Observe consumes the next frame's features and returns a window if this
// frame closed one.
func (d *Detector) Observe(f FrameFeatures) (clips.RawWindow, bool) {
	d.lastIndex = f.Index

	// Mounted frames advance the index but never touch the counters: the
	// travel UI state must not start, extend, or end a window.
	if f.Mounted {
		return clips.RawWindow{}, false
	}

	if f.HasCooldown {
		d.cooldownStreak++
		d.noCooldownStreak = 0

		if d.cooldownStreak >= d.cfg.CooldownStartFrames && d.open == nil {
			start := f.Index - d.cfg.CooldownStartFrames + 1
			if start < 0 {
				start = 0
			}
			d.open = &clips.RawWindow{StartFrame: start}
			d.logger.Debug().Int("start_frame", start).Msg("combat window opened")
		}
	} else {
		d.noCooldownStreak++
		d.cooldownStreak = 0
	}

	if d.open == nil {
		return clips.RawWindow{}, false
	}

	// Death wins over the idle timeout when both fire on the same frame
	if f.RedScreen {
		return d.closeWindow(f.Index, true), true
	}

	if float64(d.noCooldownStreak)/d.fps >= d.cfg.IdleTimeoutSeconds {
		return d.closeWindow(f.Index-d.noCooldownStreak, false), true
	}

	return clips.RawWindow{}, false
}

// Finish closes a window left open at stream end using the last observed
// frame index. Call exactly once after the final Observe.
func (d *Detector) Finish() (clips.RawWindow, bool) {
	if d.open == nil {
		return clips.RawWindow{}, false
	}
	d.logger.Debug().Int("end_frame", d.lastIndex).Msg("stream ended during combat")
	return d.closeWindow(d.lastIndex, false), true
}

func (d *Detector) closeWindow(endFrame int, death bool) clips.RawWindow {
	w := *d.open
	w.EndFrame = endFrame
	w.Death = death

	d.open = nil
	d.cooldownStreak = 0
	d.noCooldownStreak = 0

	d.logger.Debug().
		Int("start_frame", w.StartFrame).
		Int("end_frame", w.EndFrame).
		Bool("death", w.Death).
		Msg("combat window closed")

	return w
}
