package problem

import (
	"errors"
	"fmt"
)

var (
	// ErrDimension indicates inconsistent problem data.
	ErrDimension = errors.New("problem: inconsistent dimensions")

	// ErrNoReference indicates the problem has no reference uncertainty u*.
	ErrNoReference = errors.New("problem: reference has no uncertainty component")
)

// Dims describes the block sizes of a problem.
type Dims struct {
	Primal    int // len(x)
	Uncertain int // len(u)
	Sets      int // number of h_j, equal to len(v)
}

// Reference is a known equilibrium used for validation.
type Reference struct {
	X    []float64
	U    []float64 // nil when unknown
	Cost float64
}

// Problem is a robust constrained problem
//
//	min f(x)  s.t.  g(x, u) <= b  for all u with h_j(u) <= 0.
type Problem interface {
	Name() string
	Dims() Dims

	Objective(x []float64) float64
	ObjectiveGrad(x []float64) []float64

	Constraint(x, u []float64) float64
	ConstraintGradX(x, u []float64) []float64
	ConstraintGradU(x, u []float64) []float64

	// Uncertainty returns h(u), one entry per set constraint.
	Uncertainty(u []float64) []float64
	// UncertaintyGrad returns Σ_j v_j ∇h_j(u).
	UncertaintyGrad(u, v []float64) []float64

	Reference() Reference
}

// CalibrateBound returns g(x*, u*) for the problem's reference.
func CalibrateBound(p Problem) (float64, error) {
	ref := p.Reference()
	if ref.U == nil {
		return 0, fmt.Errorf("calibrate %s: %w", p.Name(), ErrNoReference)
	}
	return p.Constraint(ref.X, ref.U), nil
}
