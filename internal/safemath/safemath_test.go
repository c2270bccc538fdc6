package safemath

import (
	"math"
	"testing"
)

func TestExp_FiniteAboveCap(t *testing.T) {
	tests := []struct {
		name string
		x    float64
	}{
		{"zero", 0},
		{"below cap", 10},
		{"at cap", DefaultExpCap},
		{"far above cap", 1e6},
		{"max float", math.MaxFloat64},
		{"very negative", -1e6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Exp(tt.x, DefaultExpCap)
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Errorf("Exp(%g) = %g, want finite", tt.x, got)
			}
			if got > math.Exp(DefaultExpCap) {
				t.Errorf("Exp(%g) = %g exceeds exp(cap)", tt.x, got)
			}
		})
	}
}

func TestExp_MatchesBelowCap(t *testing.T) {
	for _, x := range []float64{-3, -0.5, 0, 0.25, 2, 29.9} {
		if got, want := Exp(x, HardenedExpCap), math.Exp(x); got != want {
			t.Errorf("Exp(%g) = %g, want %g", x, got, want)
		}
	}
}

func TestExp_Monotone(t *testing.T) {
	prev := Exp(-10, DefaultExpCap)
	for x := -10.0; x < 80; x += 0.5 {
		cur := Exp(x, DefaultExpCap)
		if cur < prev {
			t.Fatalf("Exp not monotone at %g: %g < %g", x, cur, prev)
		}
		prev = cur
	}
}

func TestDiv_ZeroDenominator(t *testing.T) {
	tests := []struct {
		a    float64
		sign float64
	}{
		{1, 1},
		{-2.5, -1},
		{1e-300, 1},
		{1e300, 1},
		{-math.MaxFloat64, -1},
		{0, 0},
	}

	for _, tt := range tests {
		got := Div(tt.a, 0)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Errorf("Div(%g, 0) = %g, want finite", tt.a, got)
		}
		if Sign(got) != tt.sign {
			t.Errorf("Div(%g, 0) = %g, want sign %g", tt.a, got, tt.sign)
		}
	}
}

func TestDiv_Overflow(t *testing.T) {
	if got := Div(1e300, 1e-300); got != math.MaxFloat64 {
		t.Errorf("Div(1e300, 1e-300) = %g, want MaxFloat64", got)
	}
	if got := Div(-1e300, 1e-300); got != -math.MaxFloat64 {
		t.Errorf("Div(-1e300, 1e-300) = %g, want -MaxFloat64", got)
	}
}

func TestDiv_NegligibleBias(t *testing.T) {
	for _, b := range []float64{-3, -0.1, 0.5, 7} {
		got := Div(1, b)
		if math.Abs(got-1/b) > 1e-8 {
			t.Errorf("Div(1, %g) = %g, want ~%g", b, got, 1/b)
		}
	}
}

func TestClipAll(t *testing.T) {
	xs := []float64{-20, -1, 0, 4, 11}
	ClipAll(xs, 5)
	want := []float64{-5, -1, 0, 4, 5}
	for i := range xs {
		if xs[i] != want[i] {
			t.Errorf("ClipAll()[%d] = %g, want %g", i, xs[i], want[i])
		}
	}

	ys := []float64{-20, 20}
	ClipAll(ys, 0)
	if ys[0] != -20 || ys[1] != 20 {
		t.Errorf("ClipAll with zero limit modified input: %v", ys)
	}
}
