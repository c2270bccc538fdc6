package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/robustflow/internal/config"
	"github.com/san-kum/robustflow/internal/diagnostics"
	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/flow"
	"github.com/san-kum/robustflow/internal/problem"
)

// Experiment is one configured trajectory: a flow, its simulator and the
// evaluator for the terminal state.
type Experiment struct {
	cfg       *config.Config
	flow      *flow.Flow
	simulator *dynamo.Simulator
	evaluator *diagnostics.Evaluator
	logger    *slog.Logger
}

type Option func(*Experiment)

func WithLogger(l *slog.Logger) Option {
	return func(e *Experiment) { e.logger = l }
}

// Outcome is the product of a run. Report is nil when integration failed.
type Outcome struct {
	Result *dynamo.Result
	Report *diagnostics.Report
}

// New validates cfg and wires problem, flow, integrator, metrics and
// evaluator from the registry.
func New(cfg *config.Config, reg *Registry, opts ...Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Experiment{cfg: cfg.Clone(), logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	p, err := reg.GetProblem(e.cfg)
	if err != nil {
		return nil, err
	}

	bound := e.cfg.Bound
	if e.cfg.CalibrateBound {
		if bound, err = problem.CalibrateBound(p); err != nil {
			return nil, err
		}
		e.logger.Debug("bound calibrated", slog.String("problem", p.Name()), slog.Float64("bound", bound))
	}

	e.flow, err = flow.New(p, flow.Params{Bound: bound, Epsilon: e.cfg.Epsilon}, e.cfg.Safeguards.Flow())
	if err != nil {
		return nil, err
	}

	integrator, err := reg.GetIntegrator(e.cfg.Integrator)
	if err != nil {
		return nil, err
	}
	e.simulator = dynamo.New(e.flow, integrator)
	e.simulator.SetLogger(e.logger)
	for _, m := range reg.DefaultMetrics(e.flow) {
		e.simulator.AddMetric(m)
	}

	e.evaluator = diagnostics.New(e.flow, e.cfg.Diagnostics.Thresholds())
	return e, nil
}

// Run integrates from the configured initial state and evaluates the final
// sample. On integration failure the partial result is returned with the error.
func (e *Experiment) Run(ctx context.Context) (*Outcome, error) {
	x0, err := e.InitialState()
	if err != nil {
		return nil, err
	}

	result, err := e.simulator.Run(ctx, x0, e.SimConfig())
	if err != nil {
		return &Outcome{Result: result}, fmt.Errorf("%s: %w", e.flow.Problem().Name(), err)
	}

	report, err := e.evaluator.Evaluate(result.Final())
	if err != nil {
		return &Outcome{Result: result}, err
	}
	e.logger.Debug("run complete",
		slog.String("problem", report.Problem),
		slog.Float64("x_error", report.XError),
		slog.String("verdict", string(report.Verdict)))
	return &Outcome{Result: result, Report: report}, nil
}

func (e *Experiment) InitialState() (dynamo.State, error) {
	x0, err := e.cfg.GetInitState(e.flow.StateDim())
	if err != nil {
		return nil, err
	}
	return dynamo.State(x0), nil
}

func (e *Experiment) SimConfig() dynamo.Config {
	c := dynamo.Config{
		Start:    e.cfg.Horizon.Start,
		End:      e.cfg.Horizon.End,
		Samples:  e.cfg.Horizon.Samples,
		Adaptive: e.cfg.Adaptive(),
		Rtol:     e.cfg.Tolerance.Rtol,
		Atol:     e.cfg.Tolerance.Atol,
		MinDt:    e.cfg.Tolerance.MinDt,
		MaxDt:    e.cfg.Tolerance.MaxDt,
		MaxSteps: e.cfg.Tolerance.MaxSteps,
	}
	if !c.Adaptive {
		c.Dt = e.cfg.Horizon.Dt
	}
	return c
}

func (e *Experiment) Config() *config.Config            { return e.cfg }
func (e *Experiment) Flow() *flow.Flow                  { return e.flow }
func (e *Experiment) Evaluator() *diagnostics.Evaluator { return e.evaluator }
func (e *Experiment) Bound() float64                    { return e.flow.Params().Bound }

// GetSimulator returns the underlying simulator for adding observers.
func (e *Experiment) GetSimulator() *dynamo.Simulator { return e.simulator }

// TrialBuilder returns a constructor for multi-start trials: base with the
// initial state and bound replaced.
func TrialBuilder(base *config.Config, reg *Registry, opts ...Option) func(start []float64, bound float64) (*Experiment, error) {
	return func(start []float64, bound float64) (*Experiment, error) {
		cfg := base.Clone()
		cfg.InitState.Values = append([]float64(nil), start...)
		cfg.Bound = bound
		cfg.CalibrateBound = false
		return New(cfg, reg, opts...)
	}
}
