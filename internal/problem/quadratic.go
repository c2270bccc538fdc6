package problem

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// QuadraticParams holds the data of a quadratic robust problem
//
//	f(x) = cᵀx + xᵀHx,  g(x, u) = (a + P u)ᵀx,  h_j(u) = uᵀQ_j u - 1.
type QuadraticParams struct {
	C  []float64   // linear objective coefficients, len n
	H  [][]float64 // symmetric n×n objective curvature
	A  []float64   // nominal constraint row, len n
	P  [][]float64 // n×p perturbation map
	Qs [][][]float64
}

// Quadratic is a quadratic objective with an affine robust constraint and an
// intersection of ellipsoids as uncertainty set.
type Quadratic struct {
	name string
	c    *mat.VecDense
	h    *mat.SymDense
	a    *mat.VecDense
	p    *mat.Dense
	qs   []*mat.SymDense
	ref  Reference
	dims Dims
}

// NewQuadratic validates params and builds the problem.
func NewQuadratic(name string, params QuadraticParams, ref Reference) (*Quadratic, error) {
	n := len(params.C)
	if n == 0 || len(params.A) != n || len(params.H) != n || len(params.P) != n {
		return nil, fmt.Errorf("%s: objective/constraint sizes: %w", name, ErrDimension)
	}
	pDim := len(params.P[0])
	if pDim == 0 || len(params.Qs) == 0 {
		return nil, fmt.Errorf("%s: empty uncertainty set: %w", name, ErrDimension)
	}

	h, err := symDense(params.H, n)
	if err != nil {
		return nil, fmt.Errorf("%s: H: %w", name, err)
	}
	p := mat.NewDense(n, pDim, nil)
	for i, row := range params.P {
		if len(row) != pDim {
			return nil, fmt.Errorf("%s: P row %d: %w", name, i, ErrDimension)
		}
		p.SetRow(i, row)
	}
	qs := make([]*mat.SymDense, len(params.Qs))
	for j, q := range params.Qs {
		if qs[j], err = symDense(q, pDim); err != nil {
			return nil, fmt.Errorf("%s: Q%d: %w", name, j+1, err)
		}
	}
	if len(ref.X) != n || (ref.U != nil && len(ref.U) != pDim) {
		return nil, fmt.Errorf("%s: reference: %w", name, ErrDimension)
	}

	return &Quadratic{
		name: name,
		c:    mat.NewVecDense(n, clone(params.C)),
		h:    h,
		a:    mat.NewVecDense(n, clone(params.A)),
		p:    p,
		qs:   qs,
		ref:  ref,
		dims: Dims{Primal: n, Uncertain: pDim, Sets: len(qs)},
	}, nil
}

// NewExampleA returns the five-ellipsoid robust QP.
func NewExampleA() *Quadratic {
	q, err := NewQuadratic("quadratic", QuadraticParams{
		C: []float64{-8, -16},
		H: [][]float64{{1, 0}, {0, 4}},
		A: []float64{1, 1},
		P: [][]float64{{1, 0}, {0, 1}},
		Qs: [][][]float64{
			{{2, 0}, {0, 2}},
			{{5, -2}, {-2, 4}},
			{{4, 4}, {4, 6}},
			{{3, 0}, {0, 8}},
			{{5, 2}, {2, 4}},
		},
	}, Reference{
		X:    []float64{2.2674, 1.6636},
		Cost: -28.5452,
	})
	if err != nil {
		panic(err)
	}
	return q
}

func (q *Quadratic) Name() string         { return q.name }
func (q *Quadratic) Dims() Dims           { return q.dims }
func (q *Quadratic) Reference() Reference { return q.ref }

func (q *Quadratic) Objective(x []float64) float64 {
	xv := vec(x)
	return mat.Dot(q.c, xv) + mat.Inner(xv, q.h, xv)
}

func (q *Quadratic) ObjectiveGrad(x []float64) []float64 {
	var g mat.VecDense
	g.MulVec(q.h, vec(x))
	g.AddScaledVec(q.c, 2, &g)
	return g.RawVector().Data
}

func (q *Quadratic) Constraint(x, u []float64) float64 {
	return mat.Dot(q.row(u), vec(x))
}

// ConstraintGradX returns a + P u.
func (q *Quadratic) ConstraintGradX(x, u []float64) []float64 {
	return q.row(u).RawVector().Data
}

// ConstraintGradU returns Pᵀx.
func (q *Quadratic) ConstraintGradU(x, u []float64) []float64 {
	var g mat.VecDense
	g.MulVec(q.p.T(), vec(x))
	return g.RawVector().Data
}

func (q *Quadratic) Uncertainty(u []float64) []float64 {
	uv := vec(u)
	h := make([]float64, len(q.qs))
	for j, qj := range q.qs {
		h[j] = mat.Inner(uv, qj, uv) - 1
	}
	return h
}

// UncertaintyGrad returns 2 Σ_j v_j Q_j u.
func (q *Quadratic) UncertaintyGrad(u, v []float64) []float64 {
	uv := vec(u)
	sum := mat.NewVecDense(q.dims.Uncertain, nil)
	var qu mat.VecDense
	for j, qj := range q.qs {
		qu.MulVec(qj, uv)
		sum.AddScaledVec(sum, 2*v[j], &qu)
	}
	return sum.RawVector().Data
}

// row returns a + P u.
func (q *Quadratic) row(u []float64) *mat.VecDense {
	r := mat.NewVecDense(q.dims.Primal, nil)
	r.MulVec(q.p, vec(u))
	r.AddVec(r, q.a)
	return r
}

func symDense(rows [][]float64, n int) (*mat.SymDense, error) {
	if len(rows) != n {
		return nil, ErrDimension
	}
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		if len(rows[i]) != n {
			return nil, ErrDimension
		}
		for k := i; k < n; k++ {
			if rows[i][k] != rows[k][i] {
				return nil, fmt.Errorf("not symmetric at (%d,%d): %w", i, k, ErrDimension)
			}
			s.SetSym(i, k, rows[i][k])
		}
	}
	return s, nil
}

func vec(x []float64) *mat.VecDense {
	return mat.NewVecDense(len(x), x)
}

func clone(x []float64) []float64 {
	c := make([]float64, len(x))
	copy(c, x)
	return c
}
