package matrix

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/edp1096/toy-dsn/pkg/poly"
)

func TestDetSmall(t *testing.T) {
	a := [][]poly.Poly{
		{{1, 1}, {2}},
		{{3}, {4}},
	}
	d, err := Det(a)
	if err != nil {
		t.Fatalf("Det error: %v", err)
	}
	if !poly.Equal(d, poly.Poly{4, -2}, 1e-15) {
		t.Fatalf("det %v, want [4 -2]", d)
	}

	if d, _ := Det(nil); len(d) != 1 || d[0] != 1 {
		t.Fatalf("empty det %v", d)
	}
}

func TestDetMatchesNumeric(t *testing.T) {
	m := NewPolyMatrix(4)
	stamp := func(i, j int, g, c float64) {
		m.AddAdmittance(i, i, g, c)
		m.AddAdmittance(j, j, g, c)
		m.AddAdmittance(i, j, -g, -c)
		m.AddAdmittance(j, i, -g, -c)
	}
	stamp(1, 2, 1e-3, 1e-12)
	stamp(2, 3, 2e-4, 0)
	stamp(3, 4, 5e-5, 3e-13)
	m.AddAdmittance(1, 1, 1e-4, 0)
	m.AddAdmittance(4, 4, 0, 2e-12)
	m.AddAdmittance(3, 1, 1e-3, 0) // transconductance
	m.AddAdmittance(0, 2, 1, 1)    // ground row is dropped

	d, err := m.Det()
	if err != nil {
		t.Fatalf("Det error: %v", err)
	}
	for _, s := range []float64{0, -1e3, 1e6, 1e9} {
		num := mat.NewDense(4, 4, nil)
		for i := range 4 {
			for j := range 4 {
				e := m.Entry(i+1, j+1)
				num.Set(i, j, e[1]+s*e[0])
			}
		}
		want := mat.Det(num)
		got := real(poly.Eval(d, complex(s, 0)))
		if math.Abs(got-want) > 1e-9*math.Abs(want) {
			t.Fatalf("s=%g: det %g, numeric %g", s, got, want)
		}
	}
}

func TestDetErrors(t *testing.T) {
	big := make([][]poly.Poly, MaxDetSize+1)
	for i := range big {
		big[i] = make([]poly.Poly, len(big))
	}
	if _, err := Det(big); err == nil {
		t.Fatalf("oversized matrix accepted")
	}
	if _, err := Det([][]poly.Poly{{{1}, {2}}, {{3}}}); err == nil {
		t.Fatalf("ragged matrix accepted")
	}
	if _, err := NewPolyMatrix(2).DetReplaced(3, []poly.Poly{{1}, {1}}); err == nil {
		t.Fatalf("column out of range accepted")
	}
}

func TestDetCancellation(t *testing.T) {
	// two identical rows
	a := [][]poly.Poly{
		{{1e-12, 1e-3}, {-1e-3}},
		{{1e-12, 1e-3}, {-1e-3}},
	}
	d, err := Det(a)
	if err != nil || !poly.IsZero(d) {
		t.Fatalf("singular det %v err %v", d, err)
	}
}
