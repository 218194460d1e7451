package poly

import (
	"math"
	"math/cmplx"
	"sort"
	"testing"
)

func TestConstAndTrim(t *testing.T) {
	p := Poly{0, 0, 2, 3, 4}
	if got := Trim(p); len(got) != 3 || got[0] != 2 {
		t.Fatalf("Trim(%v) = %v", p, got)
	}
	if Degree(p) != 2 || Const(p) != 4 || Lead(p) != 2 {
		t.Fatalf("degree %d const %g lead %g", Degree(p), Const(p), Lead(p))
	}
	if z := Trim(Poly{0, 0}); len(z) != 1 || z[0] != 0 {
		t.Fatalf("zero polynomial trims to %v", z)
	}
}

func TestNumDenAdd(t *testing.T) {
	n1, d1 := Poly{2, 1}, Poly{1, 3, 2}
	n2, d2 := Poly{-1}, Poly{1e-3, 1}
	n, d := NumDenAdd(n1, n2, d1, d2)

	for _, w := range []float64{0, 0.1, 1, 10, 1e3, 1e6} {
		s := complex(0, w)
		want := Eval(n1, s)/Eval(d1, s) + Eval(n2, s)/Eval(d2, s)
		got := Eval(n, s) / Eval(d, s)
		if cmplx.Abs(got-want) > 1e-9*cmplx.Abs(want) {
			t.Fatalf("w=%g: %v, want %v", w, got, want)
		}
	}
}

func TestTFAdd(t *testing.T) {
	den := Poly{1, 2}
	a := TF{Num: Poly{3}, Den: den}
	b := TF{Num: Poly{1, 1}, Den: Poly{1, 2 + 1e-15}}
	sum := a.Add(b)
	if len(sum.Den) != len(den) {
		t.Fatalf("matching denominators were cross-multiplied: %v", sum.Den)
	}
	if got := Const(sum.Num) / Const(sum.Den); math.Abs(got-2) > 1e-12 {
		t.Fatalf("dc value %g, want 2", got)
	}

	c := TF{Num: Poly{1}, Den: Poly{1, 5}}
	sum = a.Add(c)
	if len(sum.Den) != 3 {
		t.Fatalf("different denominators not combined: %v", sum.Den)
	}
}

func TestRoots(t *testing.T) {
	want := []float64{-1e6, -1e3, -1, 0}
	p := FromRoots(want...)
	roots, err := Roots(p)
	if err != nil {
		t.Fatalf("Roots error: %v", err)
	}
	got := make([]float64, len(roots))
	for i, r := range roots {
		if math.Abs(imag(r)) > 1e-6*math.Max(1, cmplx.Abs(r)) {
			t.Fatalf("root %v not real", r)
		}
		got[i] = real(r)
	}
	sort.Float64s(got)
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6*math.Max(1, math.Abs(want[i])) {
			t.Fatalf("roots %v, want %v", got, want)
		}
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b Poly
		want bool
	}{
		{Poly{1, 2}, Poly{0, 1, 2}, true},
		{Poly{1, 2}, Poly{1, 2 + 1e-9}, false},
		{Poly{1e6, 1}, Poly{1e6, 1 + 1e-9}, true},
		{Poly{1, 2}, Poly{1, 2, 3}, false},
	}
	for _, tt := range tests {
		if got := Equal(tt.a, tt.b, 1e-12); got != tt.want {
			t.Fatalf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
