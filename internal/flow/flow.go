package flow

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/problem"
	"github.com/san-kum/robustflow/internal/safemath"
)

// ErrInvalidParams indicates a bound, ε or safeguard that cannot be used.
var ErrInvalidParams = errors.New("flow: invalid parameters")

// Params are the scalars fixed for one trajectory.
type Params struct {
	Bound   float64 // b in g(x, u) <= b
	Epsilon float64 // ε biasing the multiplier channels towards positive
}

// Safeguards are numerical stabilizations outside the mathematical model.
// They are meant for hard instances only; the reference runs leave them off.
type Safeguards struct {
	Enabled          bool
	PrimalClip       float64 // bound on |dx_i|, 0 disables
	MultiplierClip   float64 // bound on |dλ| and |dv_j|, 0 disables
	UncertaintyClip  float64 // bound on |du_i|, 0 disables
	UncertaintyFloor float64 // u is evaluated as max(u, floor); 0 disables
}

// HardenedSafeguards returns the clipping and flooring used for the
// stabilized exponential runs.
func HardenedSafeguards() Safeguards {
	return Safeguards{
		Enabled:          true,
		PrimalClip:       10,
		MultiplierClip:   10,
		UncertaintyClip:  5,
		UncertaintyFloor: 0.01,
	}
}

// Flow is the primal-dual-adversarial right-hand side
//
//	ẋ = -∇f(x) - (λ+ε)∇ₓg(x,u)
//	λ̇ = g(x,u) - b - v·h(u)        gated at λ+ε = 0
//	u̇ = ∇ᵤg(x,u) - Σ v_j ∇h_j(u)
//	v̇_j = (λ+ε) h_j(u)             gated at v_j = 0
//
// It implements dynamo.System and holds no mutable state.
type Flow struct {
	prob   problem.Problem
	layout Layout
	params Params
	guard  Safeguards
}

func New(p problem.Problem, params Params, guard Safeguards) (*Flow, error) {
	if math.IsNaN(params.Bound) || math.IsInf(params.Bound, 0) {
		return nil, fmt.Errorf("bound %g: %w", params.Bound, ErrInvalidParams)
	}
	if !(params.Epsilon >= 0) || math.IsInf(params.Epsilon, 0) {
		return nil, fmt.Errorf("epsilon %g must be finite and non-negative: %w", params.Epsilon, ErrInvalidParams)
	}
	if guard.PrimalClip < 0 || guard.MultiplierClip < 0 || guard.UncertaintyClip < 0 || guard.UncertaintyFloor < 0 {
		return nil, fmt.Errorf("safeguard limits must be non-negative: %w", ErrInvalidParams)
	}
	return &Flow{
		prob:   p,
		layout: LayoutFor(p.Dims()),
		params: params,
		guard:  guard,
	}, nil
}

func (f *Flow) StateDim() int            { return f.layout.Len() }
func (f *Flow) Layout() Layout           { return f.layout }
func (f *Flow) Problem() problem.Problem { return f.prob }
func (f *Flow) Params() Params           { return f.params }

// Derive returns d(state)/dt. t is unused; the flow is autonomous.
// It panics if s does not match the layout, which the simulator rules out
// before integrating.
func (f *Flow) Derive(s dynamo.State, _ float64) dynamo.State {
	x, lambda, u, v, err := f.layout.Split(s)
	if err != nil {
		panic(err)
	}
	u = f.evalPoint(u)
	weight := lambda + f.params.Epsilon

	out := make(dynamo.State, f.layout.Len())
	dx, _, du, dv, _ := f.layout.Split(out)

	gradF := f.prob.ObjectiveGrad(x)
	gradGx := f.prob.ConstraintGradX(x, u)
	for i := range dx {
		dx[i] = -gradF[i] - weight*gradGx[i]
	}

	g := f.prob.Constraint(x, u)
	h := f.prob.Uncertainty(u)
	if drive := g - f.params.Bound - floats.Dot(v, h); weight > 0 || drive > 0 {
		out[f.layout.Lambda()] = drive
	}

	gradGu := f.prob.ConstraintGradU(x, u)
	gradH := f.prob.UncertaintyGrad(u, v)
	for i := range du {
		du[i] = gradGu[i] - gradH[i]
	}

	for j := range dv {
		if drive := weight * h[j]; v[j] > 0 || drive > 0 {
			dv[j] = drive
		}
	}

	if f.guard.Enabled {
		safemath.ClipAll(dx, f.guard.PrimalClip)
		safemath.ClipAll(out[f.layout.Lambda():f.layout.Lambda()+1], f.guard.MultiplierClip)
		safemath.ClipAll(du, f.guard.UncertaintyClip)
		safemath.ClipAll(dv, f.guard.MultiplierClip)
	}

	return out
}

// evalPoint applies the uncertainty floor to a copy of u.
func (f *Flow) evalPoint(u []float64) []float64 {
	if !f.guard.Enabled || f.guard.UncertaintyFloor <= 0 {
		return u
	}
	floored := make([]float64, len(u))
	for i, ui := range u {
		floored[i] = math.Max(ui, f.guard.UncertaintyFloor)
	}
	return floored
}

// Regime is the gating mode of a multiplier channel at one instant.
type Regime int

const (
	// Interior means the multiplier follows its raw driving term.
	Interior Regime = iota
	// Boundary means the multiplier sits at its lower bound and its
	// derivative is held at zero.
	Boundary
)

func (r Regime) String() string {
	if r == Boundary {
		return "boundary"
	}
	return "interior"
}

// Drives holds the raw multiplier driving terms before gating.
type Drives struct {
	Lambda       float64
	V            []float64
	LambdaRegime Regime
	VRegimes     []Regime
}

// Drives evaluates the multiplier driving terms and their regimes. Regimes
// are recomputed from the current signs on every call.
func (f *Flow) Drives(s dynamo.State) (Drives, error) {
	x, lambda, u, v, err := f.layout.Split(s)
	if err != nil {
		return Drives{}, err
	}
	u = f.evalPoint(u)
	weight := lambda + f.params.Epsilon
	h := f.prob.Uncertainty(u)

	d := Drives{
		Lambda:   f.prob.Constraint(x, u) - f.params.Bound - floats.Dot(v, h),
		V:        make([]float64, len(v)),
		VRegimes: make([]Regime, len(v)),
	}
	if !(weight > 0 || d.Lambda > 0) {
		d.LambdaRegime = Boundary
	}
	for j := range v {
		d.V[j] = weight * h[j]
		if !(v[j] > 0 || d.V[j] > 0) {
			d.VRegimes[j] = Boundary
		}
	}
	return d, nil
}
