// Package diagnostics classifies a terminal flow state against the problem's
// reference equilibrium.
package diagnostics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/flow"
	"github.com/san-kum/robustflow/internal/metrics"
)

type Verdict string

const (
	Pass Verdict = "pass"
	Warn Verdict = "warn"
	Fail Verdict = "fail"
)

// Thresholds used to classify a state.
type Thresholds struct {
	Tolerance             float64 // XError below this passes
	WarnTolerance         float64 // XError below this warns; values below Tolerance disable warn
	ActivityTol           float64 // |h_j| below this marks set j active
	ConstraintActivityTol float64 // |g - b| below this marks the robust constraint active
	FeasibilityTol        float64 // g <= b + FeasibilityTol is feasible
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Tolerance:             1e-2,
		WarnTolerance:         1e-1,
		ActivityTol:           1e-3,
		ConstraintActivityTol: 1e-2,
		FeasibilityTol:        1e-6,
	}
}

// Classify maps a distance to the reference onto a verdict.
func (th Thresholds) Classify(xErr float64) Verdict {
	switch {
	case xErr < th.Tolerance:
		return Pass
	case xErr < th.WarnTolerance:
		return Warn
	default:
		return Fail
	}
}

type Report struct {
	Problem string    `json:"problem"`
	X       []float64 `json:"x"`
	Lambda  float64   `json:"lambda"`
	U       []float64 `json:"u"`
	V       []float64 `json:"v"`

	Cost          float64 `json:"cost"`
	ReferenceCost float64 `json:"reference_cost"`
	CostError     float64 `json:"cost_error"`

	Constraint       float64 `json:"constraint"`
	Bound            float64 `json:"bound"`
	Feasible         bool    `json:"feasible"`
	ConstraintActive bool    `json:"constraint_active"`

	H      []float64 `json:"h"`
	Active []int     `json:"active_sets"` // 1-based

	LambdaRegime flow.Regime   `json:"-"`
	VRegimes     []flow.Regime `json:"-"`

	Complementarity float64 `json:"complementarity"`

	XError  float64 `json:"x_error"`
	UError  float64 `json:"u_error,omitempty"`
	UKnown  bool    `json:"u_known"`
	Verdict Verdict `json:"verdict"`
}

// Evaluator builds reports for states of one flow. It is stateless; the
// same state always yields the same report.
type Evaluator struct {
	f  *flow.Flow
	th Thresholds
}

func New(f *flow.Flow, th Thresholds) *Evaluator {
	return &Evaluator{f: f, th: th}
}

func (e *Evaluator) Evaluate(state dynamo.State) (*Report, error) {
	x, lambda, u, v, err := e.f.Layout().Split(state)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	p := e.f.Problem()
	ref := p.Reference()
	bound := e.f.Params().Bound

	r := &Report{
		Problem:       p.Name(),
		X:             clone(x),
		Lambda:        lambda,
		U:             clone(u),
		V:             clone(v),
		Cost:          p.Objective(x),
		ReferenceCost: ref.Cost,
		Constraint:    p.Constraint(x, u),
		Bound:         bound,
		H:             p.Uncertainty(u),
		Active:        []int{},
	}
	r.CostError = math.Abs(r.Cost - ref.Cost)
	r.Feasible = r.Constraint <= bound+e.th.FeasibilityTol
	r.ConstraintActive = math.Abs(r.Constraint-bound) < e.th.ConstraintActivityTol

	for j, hj := range r.H {
		if math.Abs(hj) < e.th.ActivityTol {
			r.Active = append(r.Active, j+1)
		}
	}

	if drives, err := e.f.Drives(state); err == nil {
		r.LambdaRegime = drives.LambdaRegime
		r.VRegimes = drives.VRegimes
	}
	r.Complementarity, _ = metrics.Violation(e.f, state)

	r.XError = floats.Distance(x, ref.X, 2)
	if ref.U != nil {
		r.UError = floats.Distance(u, ref.U, 2)
		r.UKnown = true
	}
	r.Verdict = e.th.Classify(r.XError)
	return r, nil
}

func clone(x []float64) []float64 {
	c := make([]float64, len(x))
	copy(c, x)
	return c
}
