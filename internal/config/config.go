package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Layout places the controls of the player window. The track bar is the
// strip beats are drawn on; pointer x coordinates map onto it.
type Layout struct {
	WindowWidth  float64 `toml:"window_width"`
	WindowHeight float64 `toml:"window_height"`
	ButtonWidth  float64 `toml:"button_width"`
	BarX         float64 `toml:"bar_x"`
	BarWidth     float64 `toml:"bar_width"`
	BarHeight    float64 `toml:"bar_height"`
}

// Config holds all runtime configuration. Values come from defaults, then an
// optional TOML file named by LOOPATRON_CONFIG, then environment variables.
type Config struct {
	// Server
	Port int `toml:"port"`

	// Storage
	OutputDir string `toml:"output_dir"` // where loop.txt is written
	DBPath    string `toml:"db_path"`

	// Analysis
	Clusters    int  `toml:"clusters"` // 0 picks automatically
	MaxClusters int  `toml:"max_clusters"`
	UseV1       bool `toml:"use_v1"`
	Verbose     bool `toml:"verbose"`

	// Playback
	TickRate   int     `toml:"tick_rate"` // control loop ticks per second
	Volume     float64 `toml:"volume"`
	VolumeStep float64 `toml:"volume_step"`

	Layout Layout `toml:"layout"`

	// Outputs
	LocalOutput   bool   `toml:"local_output"` // play through the sound card
	WebRTC        bool   `toml:"webrtc"`
	ExportPreview bool   `toml:"export_preview"` // write loop.wav next to loop.txt
	LogLevel      string `toml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:        8080,
		OutputDir:   ".",
		DBPath:      "loopatron.sqlite3",
		MaxClusters: 24,
		TickRate:    60,
		Volume:      1.0,
		VolumeStep:  0.05,
		Layout: Layout{
			WindowWidth:  1000,
			WindowHeight: 400,
			ButtonWidth:  50,
			BarX:         50,
			BarWidth:     900,
			BarHeight:    30,
		},
		LocalOutput:   true,
		WebRTC:        true,
		ExportPreview: false,
		LogLevel:      "info",
	}
}

// Load reads configuration with sane defaults. A missing or malformed file
// named by LOOPATRON_CONFIG is an error; unparsable environment values fall
// back silently.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("LOOPATRON_CONFIG"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.Port = envInt("LOOPATRON_PORT", cfg.Port)
	cfg.OutputDir = envStr("LOOPATRON_OUTPUT_DIR", cfg.OutputDir)
	cfg.DBPath = envStr("LOOPATRON_DB", cfg.DBPath)
	cfg.Clusters = envInt("LOOPATRON_CLUSTERS", cfg.Clusters)
	cfg.MaxClusters = envInt("LOOPATRON_MAX_CLUSTERS", cfg.MaxClusters)
	cfg.UseV1 = envBool("LOOPATRON_USE_V1", cfg.UseV1)
	cfg.Verbose = envBool("LOOPATRON_VERBOSE", cfg.Verbose)
	cfg.TickRate = envInt("LOOPATRON_TICK_RATE", cfg.TickRate)
	cfg.Volume = envFloat("LOOPATRON_VOLUME", cfg.Volume)
	cfg.VolumeStep = envFloat("LOOPATRON_VOLUME_STEP", cfg.VolumeStep)
	cfg.Layout.BarX = envFloat("LOOPATRON_BAR_X", cfg.Layout.BarX)
	cfg.Layout.BarWidth = envFloat("LOOPATRON_BAR_WIDTH", cfg.Layout.BarWidth)
	cfg.LocalOutput = envBool("LOOPATRON_LOCAL_OUTPUT", cfg.LocalOutput)
	cfg.WebRTC = envBool("LOOPATRON_WEBRTC", cfg.WebRTC)
	cfg.ExportPreview = envBool("LOOPATRON_EXPORT_PREVIEW", cfg.ExportPreview)
	cfg.LogLevel = envStr("LOOPATRON_LOG_LEVEL", cfg.LogLevel)
	return cfg, nil
}

// LoadFile overlays the TOML file at path onto cfg. Keys the file leaves out
// keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
