package dynamo

import "math"

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// System is an autonomous-or-not ODE dX/dt = f(X, t). Derive must be pure.
type System interface {
	Derive(x State, t float64) State
	StateDim() int
}

type Integrator interface {
	Step(dyn System, x State, t, dt float64) State
}

// Tolerance is a mixed error tolerance atol + rtol·|y| per component.
type Tolerance struct {
	Rtol float64
	Atol float64
}

// AdaptiveIntegrator takes one trial step and reports whether it met tol.
// On rejection the returned state is nil and dtNext is the retry step.
type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(dyn System, x State, t, dt float64, tol Tolerance) (xNew State, dtNext float64, accepted bool)
}

type Metric interface {
	Name() string
	Observe(x State, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnSample(x State, t float64)
}

// Config controls one trajectory. States are reported on Samples evenly
// spaced points of [Start, End], the first being x0.
type Config struct {
	Start    float64
	End      float64
	Samples  int
	Adaptive bool
	Dt       float64 // fixed step, or initial step when Adaptive (0 = estimate)
	Rtol     float64
	Atol     float64
	MinDt    float64
	MaxDt    float64 // 0 = unlimited
	MaxSteps int     // accepted plus rejected steps
}

func DefaultConfig() Config {
	return Config{
		Start:    0,
		End:      50,
		Samples:  2000,
		Adaptive: true,
		Rtol:     1e-8,
		Atol:     1e-10,
		MinDt:    1e-12,
		MaxSteps: 5_000_000,
	}
}

// Times returns the sample grid.
func (c Config) Times() []float64 {
	ts := make([]float64, c.Samples)
	if c.Samples == 1 {
		ts[0] = c.Start
		return ts
	}
	h := (c.End - c.Start) / float64(c.Samples-1)
	for i := range ts {
		ts[i] = c.Start + float64(i)*h
	}
	ts[len(ts)-1] = c.End
	return ts
}

type Result struct {
	States      []State
	Times       []float64
	Metrics     map[string]float64
	StepsTaken  int
	Rejected    int
	Evaluations int
}

// Final returns the terminal state, or nil for an empty result.
func (r *Result) Final() State {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}

// Component extracts one state coordinate across all samples.
func (r *Result) Component(i int) []float64 {
	out := make([]float64, len(r.States))
	for k, s := range r.States {
		if i < len(s) {
			out[k] = s[i]
		}
	}
	return out
}
