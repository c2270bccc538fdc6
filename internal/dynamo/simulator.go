package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// Simulator drives a System forward with an Integrator over a sample grid.
type Simulator struct {
	dyn        System
	integrator Integrator
	metrics    []Metric
	observers  []Observer
	logger     *slog.Logger
}

func New(dyn System, integrator Integrator) *Simulator {
	return &Simulator{
		dyn:        dyn,
		integrator: integrator,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
		logger:     slog.Default(),
	}
}

func (s *Simulator) AddMetric(m Metric)       { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer)   { s.observers = append(s.observers, o) }
func (s *Simulator) SetLogger(l *slog.Logger) { s.logger = l }
func (s *Simulator) System() System           { return s.dyn }
func (s *Simulator) Integrator() Integrator   { return s.integrator }

// Run integrates from x0 and returns one state per sample time.
//
// On failure the partial result up to the last good sample is returned along
// with a *SimulationError wrapping ErrUnstable, ErrStepTooSmall, ErrMaxSteps or
// ErrContextCanceled. Callers must not treat a partial result as converged.
func (s *Simulator) Run(ctx context.Context, x0 State, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if len(x0) != s.dyn.StateDim() {
		return nil, fmt.Errorf("initial state has %d components, system expects %d: %w",
			len(x0), s.dyn.StateDim(), ErrDimensionMismatch)
	}
	if !x0.IsValid() {
		return nil, fmt.Errorf("initial state: %w", ErrUnstable)
	}

	times := cfg.Times()
	result := &Result{
		States:  make([]State, 0, len(times)),
		Times:   make([]float64, 0, len(times)),
		Metrics: make(map[string]float64),
	}
	dyn := &countingSystem{System: s.dyn}

	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	s.record(result, x, times[0])

	dt := cfg.Dt
	if cfg.Adaptive && dt <= 0 {
		dt = initialStep(dyn, x, times[0], cfg)
	}

	var err error
	for k := 1; k < len(times); k++ {
		select {
		case <-ctx.Done():
			err = &SimulationError{Step: result.StepsTaken, Time: times[k-1], State: x.Clone(),
				Wrapped: fmt.Errorf("%w: %w", ErrContextCanceled, ctx.Err())}
		default:
			if cfg.Adaptive {
				x, dt, err = s.advanceAdaptive(dyn, x, times[k-1], times[k], dt, cfg, result)
			} else {
				x, err = s.advanceFixed(dyn, x, times[k-1], times[k], cfg, result)
			}
		}
		if err != nil {
			break
		}
		s.record(result, x, times[k])
	}

	result.Evaluations = dyn.calls
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	s.logger.Debug("trajectory integrated",
		slog.Int("samples", len(result.States)),
		slog.Int("steps", result.StepsTaken),
		slog.Int("rejected", result.Rejected),
		slog.Int("evaluations", result.Evaluations),
		slog.Bool("ok", err == nil))

	return result, err
}

func (s *Simulator) record(result *Result, x State, t float64) {
	for _, m := range s.metrics {
		m.Observe(x, t)
	}
	for _, obs := range s.observers {
		obs.OnSample(x, t)
	}
	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)
}

func validateConfig(cfg Config) error {
	if cfg.Samples < 2 {
		return fmt.Errorf("samples must be at least 2, got %d: %w", cfg.Samples, ErrInvalidConfig)
	}
	if !(cfg.End > cfg.Start) {
		return fmt.Errorf("horizon end %g must exceed start %g: %w", cfg.End, cfg.Start, ErrInvalidConfig)
	}
	if !cfg.Adaptive && cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f: %w", cfg.Dt, ErrInvalidConfig)
	}
	if cfg.Adaptive && (cfg.Rtol < 0 || cfg.Atol <= 0) {
		return fmt.Errorf("atol must be positive and rtol non-negative for adaptive stepping: %w", ErrInvalidConfig)
	}
	if cfg.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be positive, got %d: %w", cfg.MaxSteps, ErrInvalidConfig)
	}
	return nil
}

func (s *Simulator) advanceFixed(dyn System, x State, t, tEnd float64, cfg Config, result *Result) (State, error) {
	for t < tEnd {
		if result.StepsTaken >= cfg.MaxSteps {
			return x, &SimulationError{Step: result.StepsTaken, Time: t, State: x, Wrapped: ErrMaxSteps}
		}
		h := cfg.Dt
		last := reaches(t, h, tEnd)
		if last {
			h = tEnd - t
		}
		newX := s.integrator.Step(dyn, x, t, h)
		if !newX.IsValid() {
			return x, &SimulationError{Step: result.StepsTaken, Time: t, State: x, Wrapped: ErrUnstable}
		}
		x = newX
		result.StepsTaken++
		if last {
			t = tEnd
		} else {
			t += h
		}
	}
	return x, nil
}

func (s *Simulator) advanceAdaptive(dyn System, x State, t, tEnd, dt float64, cfg Config, result *Result) (State, float64, error) {
	tol := Tolerance{Rtol: cfg.Rtol, Atol: cfg.Atol}
	for t < tEnd {
		if result.StepsTaken+result.Rejected >= cfg.MaxSteps {
			return x, dt, &SimulationError{Step: result.StepsTaken, Time: t, State: x, Wrapped: ErrMaxSteps}
		}
		if cfg.MaxDt > 0 && dt > cfg.MaxDt {
			dt = cfg.MaxDt
		}
		h := dt
		last := reaches(t, h, tEnd)
		if last {
			h = tEnd - t
		}

		newX, dtNext, ok := s.adaptiveStep(dyn, x, t, h, tol)
		if !ok {
			result.Rejected++
			if !(dtNext >= cfg.MinDt) {
				return x, dt, &SimulationError{Step: result.StepsTaken, Time: t, State: x, Wrapped: ErrStepTooSmall}
			}
			dt = dtNext
			continue
		}
		if !newX.IsValid() {
			return x, dt, &SimulationError{Step: result.StepsTaken, Time: t, State: x, Wrapped: ErrUnstable}
		}

		x = newX
		result.StepsTaken++
		if last {
			t = tEnd
			// a step shortened to land on the sample says little about the next one
			dt = math.Max(dt, dtNext)
		} else {
			t += h
			dt = dtNext
		}
	}
	return x, dt, nil
}

func (s *Simulator) adaptiveStep(dyn System, x State, t, dt float64, tol Tolerance) (State, float64, bool) {
	if adaptive, ok := s.integrator.(AdaptiveIntegrator); ok {
		return adaptive.StepAdaptive(dyn, x, t, dt, tol)
	}

	// step doubling for fixed-step integrators
	x1 := s.integrator.Step(dyn, x, t, dt)
	xHalf := s.integrator.Step(dyn, x, t, dt/2)
	x2 := s.integrator.Step(dyn, xHalf, t+dt/2, dt/2)

	errMax := 0.0
	for i := range x2 {
		sc := tol.Atol + tol.Rtol*math.Max(math.Abs(x[i]), math.Abs(x2[i]))
		errMax = math.Max(errMax, math.Abs(x1[i]-x2[i])/sc)
	}
	if math.IsNaN(errMax) {
		return nil, dt / 4, false
	}
	if errMax > 1 {
		return nil, dt / 2, false
	}
	if errMax < 0.1 {
		return x2, dt * 2, true
	}
	return x2, dt, true
}

// initialStep picks a first step from the scale of f and its variation,
// following Hairer, Nørsett & Wanner, Solving ODEs I, II.4.
func initialStep(dyn System, x State, t float64, cfg Config) float64 {
	const order = 5
	f0 := dyn.Derive(x, t)

	d0, d1 := 0.0, 0.0
	for i := range x {
		sc := cfg.Atol + cfg.Rtol*math.Abs(x[i])
		d0 += (x[i] / sc) * (x[i] / sc)
		d1 += (f0[i] / sc) * (f0[i] / sc)
	}
	n := float64(len(x))
	d0, d1 = math.Sqrt(d0/n), math.Sqrt(d1/n)

	h0 := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h0 = 0.01 * d0 / d1
	}

	x1 := make(State, len(x))
	for i := range x {
		x1[i] = x[i] + h0*f0[i]
	}
	f1 := dyn.Derive(x1, t+h0)

	d2 := 0.0
	for i := range x {
		sc := cfg.Atol + cfg.Rtol*math.Abs(x[i])
		d := (f1[i] - f0[i]) / sc
		d2 += d * d
	}
	d2 = math.Sqrt(d2/n) / h0

	var h1 float64
	if m := math.Max(d1, d2); m <= 1e-15 {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Pow(0.01/m, 1.0/(order+1))
	}

	h := math.Min(100*h0, h1)
	if cfg.MaxDt > 0 {
		h = math.Min(h, cfg.MaxDt)
	}
	if math.IsNaN(h) || h <= 0 {
		h = 1e-6
	}
	return h
}

// reaches reports whether a step of h from t lands on or past tEnd, allowing
// for rounding so accumulated steps do not leave a sliver before the sample.
func reaches(t, h, tEnd float64) bool {
	return t+h*(1+1e-9) >= tEnd
}

type countingSystem struct {
	System
	calls int
}

func (c *countingSystem) Derive(x State, t float64) State {
	c.calls++
	return c.System.Derive(x, t)
}
