package metrics

import (
	"github.com/san-kum/robustflow/internal/dynamo"
)

// Residual is the norm of the vector field at the last sample. It goes to
// zero as the flow settles on an equilibrium, gated channels included.
type Residual struct {
	name    string
	dyn     dynamo.System
	initial float64
	current float64
	samples int
}

func NewResidual(dyn dynamo.System) *Residual {
	return &Residual{
		name: "residual",
		dyn:  dyn,
	}
}

func (r *Residual) Name() string { return r.name }

func (r *Residual) Observe(x dynamo.State, t float64) {
	if len(x) != r.dyn.StateDim() {
		return
	}
	norm := r.dyn.Derive(x, t).Norm()
	if r.samples == 0 {
		r.initial = norm
	}
	r.current = norm
	r.samples++
}

func (r *Residual) Value() float64 { return r.current }

// Reduction is the ratio of the final residual to the initial one.
func (r *Residual) Reduction() float64 {
	if r.initial == 0 {
		return 0
	}
	return r.current / r.initial
}

func (r *Residual) Reset() {
	r.initial = 0
	r.current = 0
	r.samples = 0
}
