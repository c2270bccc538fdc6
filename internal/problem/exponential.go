package problem

import (
	"fmt"
	"math"

	"github.com/san-kum/robustflow/internal/safemath"
)

// DefaultZeroBand is the half-width around u_j = 0 where h_j switches to its
// limiting branch.
const DefaultZeroBand = 1e-10

// ExponentialParams holds the data of a separable exponential robust problem
//
//	f(x) = ½ Σ (x_i - c_i)²,  g(x, u) = Σ u_i·exp(x_i²),
//	h_j(u) = exp(u_j²) + u_j·exp(1/u_j) - ρ_j.
type ExponentialParams struct {
	Center   []float64
	Rho      []float64
	ExpCap   float64 // saturation exponent for every exp, DefaultExpCap when zero
	ZeroBand float64 // DefaultZeroBand when zero
}

// Exponential is the nonlinear problem with an exponential robust constraint
// and independent scalar uncertainty sets.
type Exponential struct {
	name     string
	center   []float64
	rho      []float64
	expCap   float64
	zeroBand float64
	ref      Reference
}

// NewExponential validates params and builds the problem.
func NewExponential(name string, params ExponentialParams, ref Reference) (*Exponential, error) {
	n := len(params.Center)
	if n == 0 || len(params.Rho) != n {
		return nil, fmt.Errorf("%s: center/rho sizes: %w", name, ErrDimension)
	}
	if len(ref.X) != n || (ref.U != nil && len(ref.U) != n) {
		return nil, fmt.Errorf("%s: reference: %w", name, ErrDimension)
	}
	e := &Exponential{
		name:     name,
		center:   clone(params.Center),
		rho:      clone(params.Rho),
		expCap:   params.ExpCap,
		zeroBand: params.ZeroBand,
		ref:      ref,
	}
	if e.expCap <= 0 {
		e.expCap = safemath.DefaultExpCap
	}
	if e.zeroBand <= 0 {
		e.zeroBand = DefaultZeroBand
	}
	return e, nil
}

// NewExampleB returns the two-dimensional exponential problem with ρ = [10, 20].
// expCap of zero selects safemath.DefaultExpCap.
func NewExampleB(expCap float64) *Exponential {
	e, err := NewExponential("exponential", ExponentialParams{
		Center: []float64{1, 2},
		Rho:    []float64{10, 20},
		ExpCap: expCap,
	}, Reference{
		X:    []float64{0.5271, 0.7916},
		U:    []float64{1.4020, 1.6824},
		Cost: 0.8419,
	})
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Exponential) Name() string { return e.name }

func (e *Exponential) Dims() Dims {
	n := len(e.center)
	return Dims{Primal: n, Uncertain: n, Sets: n}
}

func (e *Exponential) Reference() Reference { return e.ref }

func (e *Exponential) Objective(x []float64) float64 {
	sum := 0.0
	for i, c := range e.center {
		d := x[i] - c
		sum += d * d
	}
	return 0.5 * sum
}

func (e *Exponential) ObjectiveGrad(x []float64) []float64 {
	g := make([]float64, len(e.center))
	for i, c := range e.center {
		g[i] = x[i] - c
	}
	return g
}

func (e *Exponential) Constraint(x, u []float64) float64 {
	sum := 0.0
	for i := range e.center {
		sum += u[i] * e.exp(x[i]*x[i])
	}
	return sum
}

func (e *Exponential) ConstraintGradX(x, u []float64) []float64 {
	g := make([]float64, len(e.center))
	for i := range g {
		g[i] = 2 * x[i] * e.exp(x[i]*x[i]) * u[i]
	}
	return g
}

func (e *Exponential) ConstraintGradU(x, u []float64) []float64 {
	g := make([]float64, len(e.center))
	for i := range g {
		g[i] = e.exp(x[i] * x[i])
	}
	return g
}

func (e *Exponential) Uncertainty(u []float64) []float64 {
	h := make([]float64, len(e.rho))
	for j, rho := range e.rho {
		h[j] = e.setValue(u[j]) - rho
	}
	return h
}

func (e *Exponential) UncertaintyGrad(u, v []float64) []float64 {
	g := make([]float64, len(e.rho))
	for j := range g {
		g[j] = v[j] * e.setSlope(u[j])
	}
	return g
}

// setValue is exp(u²) + u·exp(1/u).
//
// u·exp(1/u) has no finite limit at 0: it tends to 0 from the left and to +∞
// from the right. Inside the zero band the left limit is used, so the value is
// exp(u²) ≈ 1. For u > 0 the 1/u exponent saturates at the cap.
func (e *Exponential) setValue(u float64) float64 {
	base := e.exp(u * u)
	if math.Abs(u) < e.zeroBand {
		return base
	}
	return base + u*e.exp(safemath.Div(1, u))
}

// setSlope is d/du of setValue: 2u·exp(u²) + exp(1/u)·(1 - 1/u).
// The second term also tends to 0 from the left, so the band keeps only the first.
func (e *Exponential) setSlope(u float64) float64 {
	base := 2 * u * e.exp(u*u)
	if math.Abs(u) < e.zeroBand {
		return base
	}
	inv := e.exp(safemath.Div(1, u))
	return base + inv - safemath.Div(inv, u)
}

func (e *Exponential) exp(x float64) float64 {
	return safemath.Exp(x, e.expCap)
}
