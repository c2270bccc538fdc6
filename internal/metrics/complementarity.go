package metrics

import (
	"math"

	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/flow"
)

// Complementarity tracks |λ·(g - b)| + Σ|v_j·h_j| along the trajectory and
// reports the value at the last sample. At a KKT point it is zero.
type Complementarity struct {
	name    string
	f       *flow.Flow
	current float64
	peak    float64
	samples int
}

func NewComplementarity(f *flow.Flow) *Complementarity {
	return &Complementarity{
		name: "complementarity",
		f:    f,
	}
}

func (c *Complementarity) Name() string { return c.name }

func (c *Complementarity) Observe(x dynamo.State, t float64) {
	val, ok := Violation(c.f, x)
	if !ok {
		return
	}
	c.current = val
	c.peak = math.Max(c.peak, val)
	c.samples++
}

func (c *Complementarity) Value() float64 { return c.current }

// Peak is the largest violation seen since the last Reset.
func (c *Complementarity) Peak() float64 { return c.peak }

func (c *Complementarity) Reset() {
	c.current = 0
	c.peak = 0
	c.samples = 0
}

// Violation evaluates the complementarity violation of a single state.
func Violation(f *flow.Flow, x dynamo.State) (float64, bool) {
	xs, lambda, u, v, err := f.Layout().Split(x)
	if err != nil {
		return 0, false
	}
	p := f.Problem()
	sum := math.Abs(lambda * (p.Constraint(xs, u) - f.Params().Bound))
	for j, hj := range p.Uncertainty(u) {
		sum += math.Abs(v[j] * hj)
	}
	return sum, true
}
