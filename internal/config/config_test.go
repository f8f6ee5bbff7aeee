package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Integrator != "verlet" {
		t.Errorf("expected integrator verlet, got %s", cfg.Integrator)
	}
	if cfg.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("lj", "langevin")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Integrator != "langevin" {
		t.Errorf("expected langevin integrator, got %s", cfg.Integrator)
	}

	// presets are rebuilt on each lookup
	cfg.Dt = 99
	if again := GetPreset("lj", "langevin"); again.Dt == 99 {
		t.Error("preset shared between lookups")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	cfg := GetPreset("lj", "nonexistent")
	if cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}

	cfg = GetPreset("nonexistent", "fluid")
	if cfg != nil {
		t.Error("expected nil for nonexistent family")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("lj")
	if len(presets) == 0 {
		t.Error("expected presets for lj")
	}

	presets = ListPresets("nonexistent")
	if presets != nil {
		t.Error("expected nil for nonexistent family")
	}
}

func TestAllPresetsValidate(t *testing.T) {
	for _, family := range Families() {
		for _, name := range ListPresets(family) {
			if err := GetPreset(family, name).Validate(); err != nil {
				t.Errorf("%s/%s: %v", family, name, err)
			}
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero dt", func(c *Config) { c.Dt = 0 }},
		{"bad dimension", func(c *Config) { c.Dimension = 4 }},
		{"short box", func(c *Config) { c.Box.Hi = []float64{1, 1} }},
		{"periodic flags", func(c *Config) { c.Periodic = []bool{true} }},
		{"no types", func(c *Config) { c.Types = nil }},
		{"fix without handle", func(c *Config) { c.Fixes = []FixConfig{{Type: "lj_cut"}} }},
		{"duplicate handle", func(c *Config) {
			c.Fixes = []FixConfig{{Type: "lj_cut", Handle: "x"}, {Type: "wall_harmonic", Handle: "x"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	cfg := GetPreset("polymer", "wall")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Fixes) != len(cfg.Fixes) {
		t.Fatalf("expected %d fixes, got %d", len(cfg.Fixes), len(loaded.Fixes))
	}
	if loaded.PeriodicFlags() != [3]bool{true, true, false} {
		t.Errorf("periodic flags not preserved: %v", loaded.PeriodicFlags())
	}
	if !loaded.Fixes[1].Chain || loaded.Fixes[1].Params["k"] != 100 {
		t.Errorf("bond fix not preserved: %+v", loaded.Fixes[1])
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("turns: 42\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Turns != 42 {
		t.Errorf("expected 42 turns, got %d", cfg.Turns)
	}
	if cfg.Dt != DefaultDt {
		t.Errorf("expected default dt, got %g", cfg.Dt)
	}
}
