package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/flow"
	"github.com/san-kum/robustflow/internal/problem"
)

func quadraticFlow(t *testing.T) *flow.Flow {
	t.Helper()
	f, err := flow.New(problem.NewExampleA(), flow.Params{Bound: 5}, flow.Safeguards{})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestStability(t *testing.T) {
	m := NewStability(10)
	if m.Value() != 1.0 {
		t.Errorf("expected 1 with no samples, got %f", m.Value())
	}

	m.Observe(dynamo.State{1, 2}, 0)
	m.Observe(dynamo.State{1, 20}, 1)
	m.Observe(dynamo.State{math.NaN(), 0}, 2)
	m.Observe(dynamo.State{0, 0}, 3)

	if math.Abs(m.Value()-0.5) > 1e-12 {
		t.Errorf("expected 0.5, got %f", m.Value())
	}

	m.Reset()
	if m.Value() != 1.0 {
		t.Error("expected 1 after reset")
	}
}

func TestComplementarity(t *testing.T) {
	f := quadraticFlow(t)
	m := NewComplementarity(f)

	// λ = 2, g = 3, b = 5 gives 4; v_1 = 0.5 with h_1(0) = -1 gives 0.5.
	x := dynamo.State{1, 2, 2, 0, 0, 0.5, 0, 0, 0, 0}
	m.Observe(x, 0)
	if math.Abs(m.Value()-4.5) > 1e-12 {
		t.Errorf("expected 4.5, got %f", m.Value())
	}

	m.Observe(make(dynamo.State, 10), 1)
	if m.Value() != 0 {
		t.Errorf("expected 0 at the origin, got %f", m.Value())
	}
	if math.Abs(m.Peak()-4.5) > 1e-12 {
		t.Errorf("expected peak 4.5, got %f", m.Peak())
	}

	m.Observe(dynamo.State{1, 2}, 2)
	if m.Value() != 0 {
		t.Error("mismatched state must be ignored")
	}

	m.Reset()
	if m.Value() != 0 || m.Peak() != 0 {
		t.Error("expected zero after reset")
	}
}

func TestResidual(t *testing.T) {
	f := quadraticFlow(t)
	m := NewResidual(f)

	origin := make(dynamo.State, 10)
	m.Observe(origin, 0)
	want := math.Hypot(8, 16)
	if math.Abs(m.Value()-want) > 1e-9 {
		t.Errorf("expected %f, got %f", want, m.Value())
	}

	// unconstrained minimizer: dx vanishes, dλ = g - b = 1 and du = Pᵀx = (4, 2)
	m.Observe(dynamo.State{4, 2, 0, 0, 0, 0, 0, 0, 0, 0}, 1)
	if math.Abs(m.Value()-math.Sqrt(21)) > 1e-9 {
		t.Errorf("expected sqrt(21), got %f", m.Value())
	}
	if math.Abs(m.Reduction()-math.Sqrt(21)/want) > 1e-9 {
		t.Errorf("expected reduction %f, got %f", math.Sqrt(21)/want, m.Reduction())
	}

	m.Reset()
	if m.Value() != 0 || m.Reduction() != 0 {
		t.Error("expected zero after reset")
	}
}
