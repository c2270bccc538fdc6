package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/robustflow/internal/dynamo"
)

type simpleDynamics struct{}

func (s *simpleDynamics) Derive(x dynamo.State, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (s *simpleDynamics) StateDim() int { return 2 }

func TestRK4Accuracy(t *testing.T) {
	dyn := &simpleDynamics{}
	integ := NewRK4()

	x0 := dynamo.State{1.0, 0.0}
	dt := 0.01
	steps := 100

	x := x0
	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, float64(i)*dt, dt)
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}

	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestEulerFirstOrder(t *testing.T) {
	dyn := &simpleDynamics{}
	integ := NewEuler()

	x := integ.Step(dyn, dynamo.State{1.0, 0.0}, 0, 0.1)
	if x[0] != 1.0 || x[1] != -0.1 {
		t.Errorf("euler step = %v, want [1 -0.1]", x)
	}
}

func TestRK4DoesNotMutateInput(t *testing.T) {
	integ := NewRK4()
	x0 := dynamo.State{1.0, 0.0}
	_ = integ.Step(&simpleDynamics{}, x0, 0, 0.1)
	if x0[0] != 1.0 || x0[1] != 0.0 {
		t.Errorf("input state modified: %v", x0)
	}
}
