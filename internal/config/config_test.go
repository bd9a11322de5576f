package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AudioBufferFrames != 512 {
		t.Errorf("AudioBufferFrames = %d, want default 512", cfg.AudioBufferFrames)
	}
	if cfg.PreloadFrames != 16384 {
		t.Errorf("PreloadFrames = %d, want default 16384", cfg.PreloadFrames)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "organfox.toml")
	contents := "polyphonyLimit = 32\nreverbMix = 0.5\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PolyphonyLimit != 32 {
		t.Errorf("PolyphonyLimit = %d, want 32", cfg.PolyphonyLimit)
	}
	if cfg.ReverbMix != 0.5 {
		t.Errorf("ReverbMix = %v, want 0.5", cfg.ReverbMix)
	}
	if cfg.AudioBufferFrames != 512 {
		t.Errorf("AudioBufferFrames = %d, want default 512 (unset by file)", cfg.AudioBufferFrames)
	}
}

func TestClampRejectsOutOfRangeMix(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.ReverbMix = 5
	cfg.GlobalGain = -3
	cfg.Clamp()
	if cfg.ReverbMix != 1 {
		t.Errorf("ReverbMix = %v, want clamped to 1", cfg.ReverbMix)
	}
	if cfg.GlobalGain != 0 {
		t.Errorf("GlobalGain = %v, want clamped to 0", cfg.GlobalGain)
	}
}
