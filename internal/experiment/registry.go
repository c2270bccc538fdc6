package experiment

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/robustflow/internal/config"
	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/flow"
	"github.com/san-kum/robustflow/internal/integrators"
	"github.com/san-kum/robustflow/internal/metrics"
	"github.com/san-kum/robustflow/internal/problem"
)

var (
	ErrUnknownProblem    = errors.New("experiment: unknown problem")
	ErrUnknownIntegrator = errors.New("experiment: unknown integrator")
)

// DivergenceThreshold is the component magnitude counted against the
// stability metric.
const DivergenceThreshold = 1e3

type Registry struct {
	problems    map[string]func(cfg *config.Config) problem.Problem
	integrators map[string]func() dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		problems:    make(map[string]func(*config.Config) problem.Problem),
		integrators: make(map[string]func() dynamo.Integrator),
	}

	r.problems["quadratic"] = func(*config.Config) problem.Problem { return problem.NewExampleA() }
	r.problems["exponential"] = func(cfg *config.Config) problem.Problem { return problem.NewExampleB(cfg.ExpCap) }

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }

	return r
}

func (r *Registry) GetProblem(cfg *config.Config) (problem.Problem, error) {
	fn, ok := r.problems[cfg.Problem]
	if !ok {
		return nil, fmt.Errorf("%q: %w", cfg.Problem, ErrUnknownProblem)
	}
	return fn(cfg), nil
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownIntegrator)
	}
	return fn(), nil
}

func (r *Registry) ListProblems() []string {
	return sortedKeys(r.problems)
}

func (r *Registry) ListIntegrators() []string {
	return sortedKeys(r.integrators)
}

func (r *Registry) DefaultMetrics(f *flow.Flow) []dynamo.Metric {
	comp := metrics.NewComplementarity(f)
	res := metrics.NewResidual(f)
	return []dynamo.Metric{
		comp,
		metrics.NewDerived("complementarity_peak", comp.Peak),
		res,
		metrics.NewDerived("residual_reduction", res.Reduction),
		metrics.NewStability(DivergenceThreshold),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
