package main

import (
	"math"
	"testing"

	"github.com/edp1096/toy-dsn/pkg/poly"
)

func TestRegistry(t *testing.T) {
	names := blockNames()
	if len(names) != 11 {
		t.Fatalf("registered %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}

func TestFormatPoly(t *testing.T) {
	tests := []struct {
		p    poly.Poly
		want string
	}{
		{poly.Poly{0, 0}, "0"},
		{poly.Poly{2}, "2"},
		{poly.Poly{0, 1e-9, 0, -3}, "1e-09 s^2 + -3"},
		{poly.Poly{1, 2}, "1 s + 2"},
	}
	for _, tt := range tests {
		if got := formatPoly(tt.p); got != tt.want {
			t.Fatalf("formatPoly(%v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestPlotRange(t *testing.T) {
	w1, w2 := 2*math.Pi*1e3, 2*math.Pi*1e6
	tf := poly.TF{Num: poly.Poly{1}, Den: poly.FromRoots(-w1, -w2)}
	lo, hi := plotRange(tf)
	if math.Abs(lo-10)/10 > 1e-6 || math.Abs(hi-1e8)/1e8 > 1e-6 {
		t.Fatalf("plotRange = %g..%g", lo, hi)
	}
	if lo, hi := plotRange(poly.TF{Num: poly.Poly{1}, Den: poly.Poly{1}}); lo != 1 || hi != 1e9 {
		t.Fatalf("constant plotRange = %g..%g", lo, hi)
	}
}
