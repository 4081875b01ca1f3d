package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might interfere
	envVars := []string{
		"LOOPATRON_CONFIG", "LOOPATRON_PORT", "LOOPATRON_OUTPUT_DIR", "LOOPATRON_DB",
		"LOOPATRON_CLUSTERS", "LOOPATRON_MAX_CLUSTERS", "LOOPATRON_USE_V1",
		"LOOPATRON_VERBOSE", "LOOPATRON_TICK_RATE",
		"LOOPATRON_VOLUME", "LOOPATRON_VOLUME_STEP", "LOOPATRON_BAR_X",
		"LOOPATRON_BAR_WIDTH", "LOOPATRON_LOCAL_OUTPUT", "LOOPATRON_WEBRTC",
		"LOOPATRON_EXPORT_PREVIEW", "LOOPATRON_LOG_LEVEL",
	}
	for _, k := range envVars {
		os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.OutputDir != "." {
		t.Errorf("OutputDir = %q, want '.'", cfg.OutputDir)
	}
	if cfg.DBPath != "loopatron.sqlite3" {
		t.Errorf("DBPath = %q, want default", cfg.DBPath)
	}
	if cfg.Clusters != 0 {
		t.Errorf("Clusters = %d, want 0 (automatic)", cfg.Clusters)
	}
	if cfg.MaxClusters != 24 {
		t.Errorf("MaxClusters = %d, want 24", cfg.MaxClusters)
	}
	if cfg.UseV1 || cfg.Verbose {
		t.Errorf("UseV1 = %v, Verbose = %v, want both off", cfg.UseV1, cfg.Verbose)
	}
	if cfg.TickRate != 60 {
		t.Errorf("TickRate = %d, want 60", cfg.TickRate)
	}
	if cfg.Volume != 1.0 {
		t.Errorf("Volume = %f, want 1.0", cfg.Volume)
	}
	if cfg.VolumeStep != 0.05 {
		t.Errorf("VolumeStep = %f, want 0.05", cfg.VolumeStep)
	}
	if cfg.Layout.BarX != 50 || cfg.Layout.BarWidth != 900 {
		t.Errorf("Layout bar = %v+%v, want 50+900", cfg.Layout.BarX, cfg.Layout.BarWidth)
	}
	if !cfg.LocalOutput || !cfg.WebRTC {
		t.Errorf("LocalOutput = %v, WebRTC = %v, want both on", cfg.LocalOutput, cfg.WebRTC)
	}
	if cfg.ExportPreview {
		t.Error("ExportPreview should default to off")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want 'info'", cfg.LogLevel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOOPATRON_CONFIG", "")
	t.Setenv("LOOPATRON_PORT", "3000")
	t.Setenv("LOOPATRON_OUTPUT_DIR", "/tmp/loops")
	t.Setenv("LOOPATRON_DB", "/tmp/l.db")
	t.Setenv("LOOPATRON_CLUSTERS", "7")
	t.Setenv("LOOPATRON_MAX_CLUSTERS", "12")
	t.Setenv("LOOPATRON_USE_V1", "true")
	t.Setenv("LOOPATRON_VERBOSE", "1")
	t.Setenv("LOOPATRON_TICK_RATE", "30")
	t.Setenv("LOOPATRON_VOLUME", "0.5")
	t.Setenv("LOOPATRON_VOLUME_STEP", "0.1")
	t.Setenv("LOOPATRON_LOCAL_OUTPUT", "off")
	t.Setenv("LOOPATRON_EXPORT_PREVIEW", "yes")
	t.Setenv("LOOPATRON_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.OutputDir != "/tmp/loops" {
		t.Errorf("OutputDir = %q, want env override", cfg.OutputDir)
	}
	if cfg.DBPath != "/tmp/l.db" {
		t.Errorf("DBPath = %q, want env override", cfg.DBPath)
	}
	if cfg.Clusters != 7 || cfg.MaxClusters != 12 {
		t.Errorf("Clusters = %d/%d, want 7/12", cfg.Clusters, cfg.MaxClusters)
	}
	if !cfg.UseV1 || !cfg.Verbose {
		t.Errorf("UseV1 = %v, Verbose = %v, want both on", cfg.UseV1, cfg.Verbose)
	}
	if cfg.TickRate != 30 {
		t.Errorf("TickRate = %d, want 30", cfg.TickRate)
	}
	if cfg.Volume != 0.5 || cfg.VolumeStep != 0.1 {
		t.Errorf("Volume = %f step %f, want 0.5 step 0.1", cfg.Volume, cfg.VolumeStep)
	}
	if cfg.LocalOutput {
		t.Error("LocalOutput should be off")
	}
	if !cfg.ExportPreview {
		t.Error("ExportPreview should be on")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want 'debug'", cfg.LogLevel)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("LOOPATRON_CONFIG", "")
	t.Setenv("LOOPATRON_PORT", "not-a-number")
	cfg, _ := Load()
	if cfg.Port != 8080 {
		t.Errorf("Invalid int env should fallback to default: got %d, want 8080", cfg.Port)
	}
}

func TestEnvBoolInvalidFallsBack(t *testing.T) {
	t.Setenv("LOOPATRON_CONFIG", "")
	t.Setenv("LOOPATRON_WEBRTC", "maybe")
	cfg, _ := Load()
	if !cfg.WebRTC {
		t.Error("Invalid bool env should fallback to default")
	}
}

// --- TOML file ---

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loopatron.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileOverlay(t *testing.T) {
	path := writeConfig(t, `
port = 9090
output_dir = "/srv/loops"
max_clusters = 10

[layout]
bar_x = 20
bar_width = 600
`)
	t.Setenv("LOOPATRON_CONFIG", path)
	t.Setenv("LOOPATRON_PORT", "")
	t.Setenv("LOOPATRON_OUTPUT_DIR", "")
	t.Setenv("LOOPATRON_MAX_CLUSTERS", "")
	t.Setenv("LOOPATRON_BAR_X", "")
	t.Setenv("LOOPATRON_BAR_WIDTH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 || cfg.OutputDir != "/srv/loops" || cfg.MaxClusters != 10 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Layout.BarX != 20 || cfg.Layout.BarWidth != 600 {
		t.Errorf("layout = %+v, want bar 20+600", cfg.Layout)
	}
	// Keys the file leaves out keep their defaults.
	if cfg.Layout.WindowWidth != 1000 || cfg.TickRate != 60 {
		t.Errorf("unset keys lost defaults: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("LOOPATRON_CONFIG", writeConfig(t, "port = 9090\n"))
	t.Setenv("LOOPATRON_PORT", "7000")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7000 {
		t.Errorf("Port = %d, want env to win over file", cfg.Port)
	}
}

func TestLoadFileErrors(t *testing.T) {
	t.Setenv("LOOPATRON_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := Load(); err == nil {
		t.Error("missing config file should fail")
	}
	t.Setenv("LOOPATRON_CONFIG", writeConfig(t, "port = [not toml"))
	if _, err := Load(); err == nil {
		t.Error("malformed config file should fail")
	}
}
