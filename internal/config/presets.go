package config

import (
	"sort"

	"github.com/san-kum/robustflow/internal/flow"
)

// Presets are the reference runs, keyed by name.
var Presets = map[string]*Config{
	"quadratic":            quadraticPreset(),
	"exponential":          exponentialPreset(),
	"exponential-hardened": hardenedPreset(),
}

func quadraticPreset() *Config {
	cfg := DefaultConfig()
	cfg.Problem = "quadratic"
	cfg.Bound = 5
	cfg.InitState = InitStateConfig{Fill: 0}
	cfg.Search.Starts = quadraticStarts()
	return cfg
}

// quadraticStarts are [x1 x2 | λ | u1 u2 | v1..v5] starts around the
// origin, one per quadrant of x.
func quadraticStarts() [][]float64 {
	return [][]float64{
		{0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		{1, 1, 0.5, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1},
		{-1, 2, 0, -0.2, 0.3, 0, 0.5, 0, 0.5, 0},
		{2, -1, 1, 0.5, -0.5, 1, 1, 1, 1, 1},
	}
}

// exponentialStarts are [x1 x2 | λ | u1 u2 | v1 v2] starts near the
// reference with positive u.
func exponentialStarts() [][]float64 {
	return [][]float64{
		{0.5, 0.8, 0.5, 1.0, 1.5, 0.5, 0.5},
		{1, 1, 1, 1, 1, 1, 1},
		{0.3, 0.5, 0.1, 0.5, 0.8, 0.1, 0.1},
		{0.7, 1.2, 0.8, 1.2, 1.4, 0.8, 0.8},
	}
}

func exponentialPreset() *Config {
	cfg := DefaultConfig()
	cfg.Problem = "exponential"
	cfg.Horizon.End = 100
	cfg.Horizon.Samples = 5000
	cfg.CalibrateBound = true
	cfg.InitState = InitStateConfig{Fill: 1}
	cfg.Diagnostics.Tolerance = 5e-2
	cfg.Diagnostics.WarnTolerance = 1e-1
	cfg.Search.Starts = exponentialStarts()
	return cfg
}

func hardenedPreset() *Config {
	cfg := DefaultConfig()
	cfg.Problem = "exponential"
	cfg.Tolerance.Rtol = 1e-6
	cfg.Tolerance.Atol = 1e-8
	cfg.Epsilon = 0.01
	cfg.ExpCap = 30
	cfg.CalibrateBound = true
	cfg.InitState = InitStateConfig{Fill: 1}
	cfg.Safeguards = safeguardsFrom(flow.HardenedSafeguards())
	cfg.Diagnostics.Tolerance = 1e-1
	cfg.Diagnostics.WarnTolerance = 2e-1
	cfg.Search.Starts = exponentialStarts()
	return cfg
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
