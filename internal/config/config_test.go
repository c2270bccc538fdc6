package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/robustflow/internal/diagnostics"
	"github.com/san-kum/robustflow/internal/flow"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Problem != "quadratic" {
		t.Errorf("expected problem quadratic, got %s", cfg.Problem)
	}
	if !cfg.Adaptive() {
		t.Error("default integrator should be adaptive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if len(cfg.Search.Starts)*len(cfg.Search.Bounds) != 20 {
		t.Errorf("expected 20 search trials, got %d", len(cfg.Search.Starts)*len(cfg.Search.Bounds))
	}
}

func TestDefaultThresholdsRoundTrip(t *testing.T) {
	if got := DefaultConfig().Diagnostics.Thresholds(); got != diagnostics.DefaultThresholds() {
		t.Errorf("default diagnostics = %+v, want %+v", got, diagnostics.DefaultThresholds())
	}
}

func TestHardenedPresetSafeguards(t *testing.T) {
	if got := GetPreset("exponential-hardened").Safeguards.Flow(); got != flow.HardenedSafeguards() {
		t.Errorf("hardened safeguards = %+v, want %+v", got, flow.HardenedSafeguards())
	}
	if GetPreset("exponential").Safeguards.Enabled || GetPreset("quadratic").Safeguards.Enabled {
		t.Error("reference presets must run without safeguards")
	}
}

func TestPresetSearchGrids(t *testing.T) {
	tests := []struct {
		preset string
		dim    int
	}{
		{"quadratic", 10},
		{"exponential", 7},
		{"exponential-hardened", 7},
	}
	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			cfg := GetPreset(tt.preset)
			if len(cfg.Search.Starts)*len(cfg.Search.Bounds) != 20 {
				t.Errorf("expected 20 trials, got %d", len(cfg.Search.Starts)*len(cfg.Search.Bounds))
			}
			for i, s := range cfg.Search.Starts {
				if len(s) != tt.dim {
					t.Errorf("start %d has %d components, want %d", i, len(s), tt.dim)
				}
			}
		})
	}
}

func TestPresetsValidate(t *testing.T) {
	for _, name := range ListPresets() {
		if err := GetPreset(name).Validate(); err != nil {
			t.Errorf("preset %s: %v", name, err)
		}
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("exponential")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Horizon.End != 100 || cfg.Horizon.Samples != 5000 {
		t.Errorf("expected horizon [0,100] with 5000 samples, got %+v", cfg.Horizon)
	}
	if !cfg.CalibrateBound {
		t.Error("exponential preset should calibrate its bound")
	}

	hardened := GetPreset("exponential-hardened")
	if !hardened.Safeguards.Enabled || hardened.ExpCap != 30 || hardened.Epsilon != 0.01 {
		t.Errorf("unexpected hardened preset %+v", hardened)
	}
}

func TestGetPreset_ReturnsCopy(t *testing.T) {
	cfg := GetPreset("quadratic")
	cfg.Bound = 99
	cfg.Search.Bounds[0] = 99

	again := GetPreset("quadratic")
	if again.Bound != 5 || again.Search.Bounds[0] != 3 {
		t.Error("preset was mutated through a returned copy")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets()
	want := []string{"exponential", "exponential-hardened", "quadratic"}
	if len(presets) != len(want) {
		t.Fatalf("expected %v, got %v", want, presets)
	}
	for i := range want {
		if presets[i] != want[i] {
			t.Errorf("expected %v, got %v", want, presets)
		}
	}
}

func TestGetInitState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitState.Fill = 1

	state, err := cfg.GetInitState(7)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range state {
		if v != 1 {
			t.Errorf("component %d: expected 1, got %f", i, v)
		}
	}

	cfg.InitState.Values = []float64{1, 2, 3}
	state, err = cfg.GetInitState(3)
	if err != nil || state[2] != 3 {
		t.Errorf("expected explicit values, got %v (%v)", state, err)
	}

	if _, err := cfg.GetInitState(7); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no problem", func(c *Config) { c.Problem = "" }},
		{"one sample", func(c *Config) { c.Horizon.Samples = 1 }},
		{"reversed horizon", func(c *Config) { c.Horizon.End = -1 }},
		{"zero atol", func(c *Config) { c.Tolerance.Atol = 0 }},
		{"negative epsilon", func(c *Config) { c.Epsilon = -0.01 }},
		{"fixed step without dt", func(c *Config) { c.Integrator = "rk4"; c.Horizon.Dt = 0 }},
		{"negative clip", func(c *Config) { c.Safeguards.UncertaintyClip = -1 }},
		{"zero tolerance", func(c *Config) { c.Diagnostics.Tolerance = 0 }},
		{"ragged starts", func(c *Config) { c.Search.Starts[1] = []float64{1} }},
		{"negative workers", func(c *Config) { c.Search.Workers = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	cfg := GetPreset("exponential-hardened")
	cfg.InitState.Values = []float64{0.5, 0.8, 0.5, 1.0, 1.5, 0.5, 0.5}

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Safeguards != cfg.Safeguards || loaded.Tolerance != cfg.Tolerance {
		t.Errorf("round trip changed config: %+v", loaded)
	}
	if len(loaded.InitState.Values) != 7 || loaded.InitState.Values[4] != 1.5 {
		t.Errorf("round trip lost init state: %v", loaded.InitState.Values)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("problem: exponential\nepsilon: 0.02\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Problem != "exponential" || cfg.Epsilon != 0.02 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Horizon.Samples != DefaultSamples {
		t.Errorf("expected default samples, got %d", cfg.Horizon.Samples)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
