package flow

import (
	"fmt"

	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/problem"
)

// Layout partitions a state vector into [x | λ | u | v].
type Layout struct {
	N int // len(x)
	P int // len(u)
	M int // len(v), one multiplier per uncertainty-set constraint
}

// LayoutFor returns the layout matching a problem's dimensions.
func LayoutFor(d problem.Dims) Layout {
	return Layout{N: d.Primal, P: d.Uncertain, M: d.Sets}
}

func (l Layout) Len() int { return l.N + 1 + l.P + l.M }

// Lambda returns the index of λ.
func (l Layout) Lambda() int { return l.N }

// Split returns views of the four blocks. The views share storage with s.
func (l Layout) Split(s dynamo.State) (x []float64, lambda float64, u, v []float64, err error) {
	if len(s) != l.Len() {
		return nil, 0, nil, nil, fmt.Errorf("state has %d components, layout %d: %w",
			len(s), l.Len(), dynamo.ErrDimensionMismatch)
	}
	x = s[:l.N]
	lambda = s[l.N]
	u = s[l.N+1 : l.N+1+l.P]
	v = s[l.N+1+l.P:]
	return x, lambda, u, v, nil
}

// Join concatenates the blocks in layout order.
func (l Layout) Join(x []float64, lambda float64, u, v []float64) (dynamo.State, error) {
	if len(x) != l.N || len(u) != l.P || len(v) != l.M {
		return nil, fmt.Errorf("blocks (%d,%d,%d) do not match layout (%d,%d,%d): %w",
			len(x), len(u), len(v), l.N, l.P, l.M, dynamo.ErrDimensionMismatch)
	}
	s := make(dynamo.State, 0, l.Len())
	s = append(s, x...)
	s = append(s, lambda)
	s = append(s, u...)
	s = append(s, v...)
	return s, nil
}
