package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/robustflow/internal/diagnostics"
	"github.com/san-kum/robustflow/internal/flow"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

const (
	DefaultStart    = 0.0
	DefaultEnd      = 50.0
	DefaultSamples  = 2000
	DefaultRtol     = 1e-8
	DefaultAtol     = 1e-10
	DefaultMinDt    = 1e-12
	DefaultMaxSteps = 5_000_000
	DefaultExpCap   = 50.0
)

type Config struct {
	Problem        string            `yaml:"problem"`
	Integrator     string            `yaml:"integrator"`
	Horizon        HorizonConfig     `yaml:"horizon"`
	Tolerance      ToleranceConfig   `yaml:"tolerance"`
	Epsilon        float64           `yaml:"epsilon"`
	Bound          float64           `yaml:"bound"`
	CalibrateBound bool              `yaml:"calibrate_bound"`
	ExpCap         float64           `yaml:"exp_cap"`
	InitState      InitStateConfig   `yaml:"init_state"`
	Safeguards     SafeguardConfig   `yaml:"safeguards"`
	Diagnostics    DiagnosticsConfig `yaml:"diagnostics"`
	Search         SearchConfig      `yaml:"search"`
}

type HorizonConfig struct {
	Start   float64 `yaml:"start"`
	End     float64 `yaml:"end"`
	Samples int     `yaml:"samples"`
	Dt      float64 `yaml:"dt"` // step for fixed-step integrators
}

type ToleranceConfig struct {
	Rtol     float64 `yaml:"rtol"`
	Atol     float64 `yaml:"atol"`
	MinDt    float64 `yaml:"min_dt"`
	MaxDt    float64 `yaml:"max_dt"`
	MaxSteps int     `yaml:"max_steps"`
}

// InitStateConfig gives the initial state either explicitly or as one value
// for every component.
type InitStateConfig struct {
	Fill   float64   `yaml:"fill"`
	Values []float64 `yaml:"values,omitempty"`
}

type SafeguardConfig struct {
	Enabled          bool    `yaml:"enabled"`
	PrimalClip       float64 `yaml:"primal_clip"`
	MultiplierClip   float64 `yaml:"multiplier_clip"`
	UncertaintyClip  float64 `yaml:"uncertainty_clip"`
	UncertaintyFloor float64 `yaml:"uncertainty_floor"`
}

type DiagnosticsConfig struct {
	Tolerance             float64 `yaml:"tolerance"`
	WarnTolerance         float64 `yaml:"warn_tolerance"`
	ActivityTol           float64 `yaml:"activity_tol"`
	ConstraintActivityTol float64 `yaml:"constraint_activity_tol"`
	FeasibilityTol        float64 `yaml:"feasibility_tol"`
}

type SearchConfig struct {
	Starts  [][]float64 `yaml:"starts"`
	Bounds  []float64   `yaml:"bounds"`
	Workers int         `yaml:"workers"` // 0 uses GOMAXPROCS
}

func DefaultConfig() *Config {
	return &Config{
		Problem:    "quadratic",
		Integrator: "rk45",
		Horizon: HorizonConfig{
			Start:   DefaultStart,
			End:     DefaultEnd,
			Samples: DefaultSamples,
			Dt:      0.01,
		},
		Tolerance: ToleranceConfig{
			Rtol:     DefaultRtol,
			Atol:     DefaultAtol,
			MinDt:    DefaultMinDt,
			MaxSteps: DefaultMaxSteps,
		},
		Bound:  5,
		ExpCap: DefaultExpCap,
		Diagnostics: diagnosticsFrom(diagnostics.DefaultThresholds()),
		Search: SearchConfig{
			Starts: quadraticStarts(),
			Bounds: []float64{3, 4, 5, 6, 7},
		},
	}
}

// Thresholds converts the section into evaluator thresholds.
func (d DiagnosticsConfig) Thresholds() diagnostics.Thresholds {
	return diagnostics.Thresholds{
		Tolerance:             d.Tolerance,
		WarnTolerance:         d.WarnTolerance,
		ActivityTol:           d.ActivityTol,
		ConstraintActivityTol: d.ConstraintActivityTol,
		FeasibilityTol:        d.FeasibilityTol,
	}
}

func diagnosticsFrom(th diagnostics.Thresholds) DiagnosticsConfig {
	return DiagnosticsConfig{
		Tolerance:             th.Tolerance,
		WarnTolerance:         th.WarnTolerance,
		ActivityTol:           th.ActivityTol,
		ConstraintActivityTol: th.ConstraintActivityTol,
		FeasibilityTol:        th.FeasibilityTol,
	}
}

// Flow converts the section into flow safeguards.
func (s SafeguardConfig) Flow() flow.Safeguards {
	return flow.Safeguards{
		Enabled:          s.Enabled,
		PrimalClip:       s.PrimalClip,
		MultiplierClip:   s.MultiplierClip,
		UncertaintyClip:  s.UncertaintyClip,
		UncertaintyFloor: s.UncertaintyFloor,
	}
}

func safeguardsFrom(g flow.Safeguards) SafeguardConfig {
	return SafeguardConfig{
		Enabled:          g.Enabled,
		PrimalClip:       g.PrimalClip,
		MultiplierClip:   g.MultiplierClip,
		UncertaintyClip:  g.UncertaintyClip,
		UncertaintyFloor: g.UncertaintyFloor,
	}
}

// Load reads a YAML file over DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := LoadInto(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadInto reads a YAML file over cfg; keys absent from the file keep their
// current values.
func LoadInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Adaptive reports whether the configured integrator controls its own step.
func (c *Config) Adaptive() bool {
	return c.Integrator == "rk45"
}

// GetInitState returns the initial state for a state vector of length dim.
func (c *Config) GetInitState(dim int) ([]float64, error) {
	if len(c.InitState.Values) > 0 {
		if len(c.InitState.Values) != dim {
			return nil, fmt.Errorf("init_state has %d values, state has %d: %w",
				len(c.InitState.Values), dim, ErrInvalidConfig)
		}
		out := make([]float64, dim)
		copy(out, c.InitState.Values)
		return out, nil
	}
	out := make([]float64, dim)
	for i := range out {
		out[i] = c.InitState.Fill
	}
	return out, nil
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Problem != "", "problem is required")
	check(c.Integrator != "", "integrator is required")
	check(c.Horizon.Samples >= 2, "horizon.samples must be at least 2, got %d", c.Horizon.Samples)
	check(c.Horizon.End > c.Horizon.Start, "horizon.end %g must exceed horizon.start %g", c.Horizon.End, c.Horizon.Start)
	if c.Adaptive() {
		check(c.Tolerance.Atol > 0, "tolerance.atol must be positive, got %g", c.Tolerance.Atol)
		check(c.Tolerance.Rtol >= 0, "tolerance.rtol must be non-negative, got %g", c.Tolerance.Rtol)
		check(c.Tolerance.MinDt >= 0, "tolerance.min_dt must be non-negative, got %g", c.Tolerance.MinDt)
		check(c.Tolerance.MaxDt >= 0, "tolerance.max_dt must be non-negative, got %g", c.Tolerance.MaxDt)
	} else {
		check(c.Horizon.Dt > 0, "horizon.dt must be positive for %s, got %g", c.Integrator, c.Horizon.Dt)
	}
	check(c.Tolerance.MaxSteps > 0, "tolerance.max_steps must be positive, got %d", c.Tolerance.MaxSteps)
	check(c.Epsilon >= 0, "epsilon must be non-negative, got %g", c.Epsilon)
	check(c.ExpCap >= 0, "exp_cap must be non-negative, got %g", c.ExpCap)

	s := c.Safeguards
	check(s.PrimalClip >= 0 && s.MultiplierClip >= 0 && s.UncertaintyClip >= 0 && s.UncertaintyFloor >= 0,
		"safeguard limits must be non-negative")

	d := c.Diagnostics
	check(d.Tolerance > 0, "diagnostics.tolerance must be positive, got %g", d.Tolerance)
	check(d.ActivityTol > 0 && d.ConstraintActivityTol > 0 && d.FeasibilityTol >= 0,
		"diagnostics activity and feasibility tolerances must be positive")

	check(c.Search.Workers >= 0, "search.workers must be non-negative, got %d", c.Search.Workers)
	for i, st := range c.Search.Starts {
		check(len(st) == len(c.Search.Starts[0]), "search.starts[%d] has %d values, expected %d", i, len(st), len(c.Search.Starts[0]))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.InitState.Values != nil {
		out.InitState.Values = append([]float64(nil), c.InitState.Values...)
	}
	out.Search.Bounds = append([]float64(nil), c.Search.Bounds...)
	out.Search.Starts = make([][]float64, len(c.Search.Starts))
	for i, st := range c.Search.Starts {
		out.Search.Starts[i] = append([]float64(nil), st...)
	}
	return &out
}
