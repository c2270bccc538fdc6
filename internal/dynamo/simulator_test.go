package dynamo

import (
	"context"
	"errors"
	"math"
	"testing"
)

type testDynamics struct{}

func (t *testDynamics) Derive(x State, time float64) State {
	return State{-x[0]}
}

func (t *testDynamics) StateDim() int { return 1 }

type blowup struct{}

func (b *blowup) Derive(x State, t float64) State { return State{x[0] * x[0]} }
func (b *blowup) StateDim() int                   { return 1 }

type testIntegrator struct{}

func (t *testIntegrator) Step(dyn System, x State, time float64, dt float64) State {
	dx := dyn.Derive(x, time)
	return State{x[0] + dt*dx[0]}
}

type testMetric struct {
	count int
	sum   float64
}

func (t *testMetric) Name() string { return "test" }
func (t *testMetric) Observe(x State, time float64) {
	t.count++
	t.sum += x[0]
}
func (t *testMetric) Value() float64 {
	if t.count == 0 {
		return 0
	}
	return t.sum / float64(t.count)
}
func (t *testMetric) Reset() {
	t.count = 0
	t.sum = 0
}

func TestSimulatorRunFixed(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{})

	cfg := Config{Start: 0, End: 1, Samples: 11, Dt: 0.01, MaxSteps: 1000}
	result, err := sim.Run(context.Background(), State{1.0}, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 11 {
		t.Errorf("expected 11 states, got %d", len(result.States))
	}
	if len(result.Times) != 11 {
		t.Errorf("expected 11 times, got %d", len(result.Times))
	}
	if result.StepsTaken != 100 {
		t.Errorf("expected 100 steps, got %d", result.StepsTaken)
	}

	final := result.Final()[0]
	if math.Abs(final-math.Exp(-1.0)) > 0.01 {
		t.Errorf("expected final state ~%.4f, got %.4f", math.Exp(-1.0), final)
	}
}

func TestSimulatorRunAdaptiveFallback(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{})

	cfg := DefaultConfig()
	cfg.End = 1
	cfg.Samples = 5
	cfg.Rtol, cfg.Atol = 1e-4, 1e-6

	result, err := sim.Run(context.Background(), State{1.0}, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := result.Final()[0]; math.Abs(got-math.Exp(-1)) > 1e-2 {
		t.Errorf("expected ~%.4f, got %.4f", math.Exp(-1), got)
	}
	if result.Evaluations == 0 {
		t.Error("evaluations not counted")
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{})

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{End: 1, Samples: 10, MaxSteps: 10}},
		{"negative dt", Config{End: 1, Samples: 10, Dt: -0.1, MaxSteps: 10}},
		{"empty horizon", Config{Start: 1, End: 1, Samples: 10, Dt: 0.1, MaxSteps: 10}},
		{"one sample", Config{End: 1, Samples: 1, Dt: 0.1, MaxSteps: 10}},
		{"no atol", Config{End: 1, Samples: 10, Adaptive: true, Rtol: 1e-6, MaxSteps: 10}},
		{"no step budget", Config{End: 1, Samples: 10, Dt: 0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), State{1.0}, tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSimulatorDimensionMismatch(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{})
	cfg := Config{End: 1, Samples: 2, Dt: 0.1, MaxSteps: 10}

	_, err := sim.Run(context.Background(), State{1.0, 2.0}, cfg)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSimulatorReportsDivergence(t *testing.T) {
	sim := New(&blowup{}, &testIntegrator{})
	cfg := Config{End: 10, Samples: 11, Dt: 0.01, MaxSteps: 100000}

	result, err := sim.Run(context.Background(), State{1.0}, cfg)
	if !errors.Is(err, ErrUnstable) {
		t.Fatalf("expected ErrUnstable, got %v", err)
	}

	var simErr *SimulationError
	if !errors.As(err, &simErr) {
		t.Fatalf("expected *SimulationError, got %T", err)
	}
	if simErr.Time <= 0 {
		t.Errorf("failure time should be positive, got %g", simErr.Time)
	}
	if len(result.States) == 0 || len(result.States) >= 11 {
		t.Errorf("expected a partial result, got %d samples", len(result.States))
	}
}

func TestSimulatorStepBudget(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{})
	cfg := Config{End: 1, Samples: 2, Dt: 0.001, MaxSteps: 10}

	_, err := sim.Run(context.Background(), State{1.0}, cfg)
	if !errors.Is(err, ErrMaxSteps) {
		t.Errorf("expected ErrMaxSteps, got %v", err)
	}
}

func TestSimulatorCanceled(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{End: 1, Samples: 10, Dt: 0.01, MaxSteps: 1000}
	_, err := sim.Run(ctx, State{1.0}, cfg)
	if !errors.Is(err, ErrContextCanceled) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestSimulatorMetrics(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{})

	metric := &testMetric{}
	sim.AddMetric(metric)

	cfg := Config{End: 1, Samples: 10, Dt: 0.01, MaxSteps: 1000}
	result, err := sim.Run(context.Background(), State{1.0}, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, ok := result.Metrics["test"]; !ok {
		t.Error("metric not found in result")
	}
	if metric.count != 10 {
		t.Errorf("expected 10 observations, got %d", metric.count)
	}
}
