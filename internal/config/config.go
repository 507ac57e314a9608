package config

import (
	"context"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	TempDir     string `yaml:"temp_dir"`
	Concurrency int    `yaml:"concurrency"`

	// Detector settings
	Detector DetectorConfig `yaml:"detector"`

	// Clip buffering and encoding settings
	Clip ClipConfig `yaml:"clip"`

	// Slot classifier settings
	Classifier ClassifierConfig `yaml:"classifier"`

	// Source video validation settings
	Video VideoConfig `yaml:"video"`
}

type DetectorConfig struct {
	MountedEmptySlots   int     `yaml:"mounted_empty_slots"`
	CooldownStartFrames int     `yaml:"cooldown_start_frames"`
	IdleTimeoutSeconds  float64 `yaml:"idle_timeout_seconds"`
}

type ClipConfig struct {
	LeadSeconds  float64 `yaml:"lead_seconds"`
	TrailSeconds float64 `yaml:"trail_seconds"`
	Codec        string  `yaml:"codec"`
}

type ClassifierConfig struct {
	ModelPath string `yaml:"model_path"`
}

type VideoConfig struct {
	ExpectWidth  int     `yaml:"expect_width"`
	ExpectHeight int     `yaml:"expect_height"`
	MinFPS       float64 `yaml:"min_fps"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func defaultConfig() *Config {
	return &Config{
		TempDir:     os.TempDir(),
		Concurrency: 4,
		Detector: DetectorConfig{
			MountedEmptySlots:   4,
			CooldownStartFrames: 3,
			IdleTimeoutSeconds:  60,
		},
		Clip: ClipConfig{
			LeadSeconds:  120,
			TrailSeconds: 120,
			Codec:        "mp4v",
		},
		Classifier: ClassifierConfig{
			ModelPath: "./models/slot-classifier.onnx",
		},
		Video: VideoConfig{
			ExpectWidth:  1920,
			ExpectHeight: 1080,
			MinFPS:       30,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".combatclip", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
