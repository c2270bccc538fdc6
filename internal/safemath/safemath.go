// Package safemath provides guarded numeric primitives for right-hand sides
// that must stay finite while the flow is far from equilibrium.
//
// All functions are pure and defined for every finite input.
package safemath

import "math"

const (
	// DefaultExpCap is the exponent above which Exp saturates.
	DefaultExpCap = 50.0

	// HardenedExpCap is the tighter cap used by stabilized configurations.
	HardenedExpCap = 30.0

	// DivEpsilon is the bias Div adds to a denominator.
	DivEpsilon = 1e-10
)

// Exp returns exp(min(x, cap)).
//
// This is an intentional approximation: above cap the result is the constant
// exp(cap), so values computed from large exponents (e.g. u·exp(1/u) for tiny
// positive u) are no longer the true function. It is monotone and continuous,
// which is all the gradients that use it require.
func Exp(x, cap float64) float64 {
	if x > cap {
		x = cap
	}
	return math.Exp(x)
}

// Div returns a / (b + ε·sign(b) + ε·[b=0]) with ε = DivEpsilon.
//
// The denominator is pushed away from zero in the direction of its own sign,
// so Div(a, 0) has the sign of a. Quotients that overflow are clamped to
// ±math.MaxFloat64.
func Div(a, b float64) float64 {
	d := b + DivEpsilon*Sign(b)
	if b == 0 {
		d += DivEpsilon
	}
	return Clip(a/d, -math.MaxFloat64, math.MaxFloat64)
}

// Sign returns -1, 0 or 1.
func Sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// Clip limits x to [lo, hi].
func Clip(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// ClipAll clips every element of xs in place to [-limit, limit].
// A non-positive limit disables clipping.
func ClipAll(xs []float64, limit float64) {
	if limit <= 0 {
		return
	}
	for i := range xs {
		xs[i] = Clip(xs[i], -limit, limit)
	}
}
