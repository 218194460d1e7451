package circuit

import (
	"math"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/matrix"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

// reducer removes a voltage-driven node from the nodal system: its row is
// dropped and its column moves to the right-hand side with v(in) = 1.
type reducer struct {
	index  []int // full node index -> unknown index, 0 for dropped
	driven int
	inner  matrix.DeviceMatrix
	rhs    func(i int, g, c float64)
}

func (r *reducer) AddAdmittance(i, j int, g, c float64) {
	if i == r.driven {
		return
	}
	ri := r.index[i]
	if j == r.driven {
		r.rhs(ri, -g, -c)
		return
	}
	r.inner.AddAdmittance(ri, r.index[j], g, c)
}

// system describes the unknowns for one excitation.
type system struct {
	size   int
	index  []int
	driven int // full index of the voltage-driven net, 0 for current input
	inject int // unknown index receiving the unit current, 0 for voltage input
}

func (c *Circuit) system(in string, kind InputKind) (system, error) {
	inIdx, err := c.lookup(in)
	if err != nil {
		return system{}, err
	}

	n := len(c.nodeMap)
	sys := system{index: make([]int, n+1)}
	for i := 1; i <= n; i++ {
		if kind == Voltage && i == inIdx {
			continue
		}
		sys.size++
		sys.index[i] = sys.size
	}

	switch kind {
	case Voltage:
		sys.driven = inIdx
	case Current:
		sys.inject = sys.index[inIdx]
	default:
		return system{}, errors.Errorf("unknown input kind %d", kind)
	}
	return sys, nil
}

// polySystem stamps the circuit into G + sC form and returns the matrix and
// the polynomial right-hand side.
func (c *Circuit) polySystem(sys system) (*matrix.PolyMatrix, []poly.Poly, error) {
	m := matrix.NewPolyMatrix(sys.size)
	rhs := make([]poly.Poly, sys.size)
	for i := range rhs {
		rhs[i] = poly.Poly{0, 0}
	}

	r := &reducer{
		index:  sys.index,
		driven: sys.driven,
		inner:  m,
		rhs: func(i int, g, cap float64) {
			if i > 0 {
				rhs[i-1] = poly.Add(rhs[i-1], poly.Poly{cap, g})
			}
		},
	}
	if err := c.Stamp(r); err != nil {
		return nil, nil, err
	}
	if sys.inject > 0 {
		rhs[sys.inject-1] = poly.Add(rhs[sys.inject-1], poly.Poly{1})
	}
	return m, rhs, nil
}

func (c *Circuit) numerator(m *matrix.PolyMatrix, rhs []poly.Poly, sys system, out string) (poly.Poly, error) {
	if IsGround(out) {
		return poly.Poly{0}, nil
	}
	outIdx, err := c.lookup(out)
	if err != nil {
		return nil, err
	}
	if outIdx == sys.driven {
		// output is the driven net itself
		return m.Det()
	}
	return m.DetReplaced(sys.index[outIdx], rhs)
}

// TransferFunction returns v(out)/v(in) for Voltage input, or v(out)/i(in)
// for Current input.
func (c *Circuit) TransferFunction(in, out string, kind InputKind) (poly.TF, error) {
	return c.TransferFunctionDiff(in, out, Gnd, kind)
}

// TransferFunctionDiff returns (v(outp)-v(outn)) over the input.
func (c *Circuit) TransferFunctionDiff(in, outp, outn string, kind InputKind) (poly.TF, error) {
	sys, err := c.system(in, kind)
	if err != nil {
		return poly.TF{}, err
	}
	if sys.size == 0 {
		return poly.TF{}, errors.Errorf("%s: no unknown nets", c.name)
	}

	m, rhs, err := c.polySystem(sys)
	if err != nil {
		return poly.TF{}, err
	}

	den, err := m.Det()
	if err != nil {
		return poly.TF{}, errors.Wrap(err, c.name)
	}
	if poly.IsZero(den) {
		return poly.TF{}, errors.Errorf("%s: singular small-signal system", c.name)
	}

	numP, err := c.numerator(m, rhs, sys, outp)
	if err != nil {
		return poly.TF{}, err
	}
	numN, err := c.numerator(m, rhs, sys, outn)
	if err != nil {
		return poly.TF{}, err
	}

	return poly.TF{Num: poly.Trim(poly.Sub(numP, numN)), Den: den}, nil
}

// Response solves the circuit numerically at each frequency (Hz) with the
// sparse complex solver.
func (c *Circuit) Response(in, out string, kind InputKind, freqs []float64) ([]complex128, error) {
	sys, err := c.system(in, kind)
	if err != nil {
		return nil, err
	}
	outIdx := 0
	if !IsGround(out) {
		if outIdx, err = c.lookup(out); err != nil {
			return nil, err
		}
	}

	result := make([]complex128, len(freqs))
	for k, freq := range freqs {
		switch {
		case outIdx == 0:
			result[k] = 0
		case outIdx == sys.driven:
			result[k] = 1
		default:
			if result[k], err = c.solveAt(sys, sys.index[outIdx], 2*math.Pi*freq); err != nil {
				return nil, errors.Wrapf(err, "%s: solve at f=%g", c.name, freq)
			}
		}
	}
	return result, nil
}

// solveAt stamps and factors a fresh sparse system at omega. Factoring
// reorders the matrix, so one system serves one frequency.
func (c *Circuit) solveAt(sys system, row int, omega float64) (complex128, error) {
	mat, err := matrix.NewMatrix(sys.size)
	if err != nil {
		return 0, err
	}
	defer mat.Destroy()
	mat.SetupElements()
	mat.SetOmega(omega)

	r := &reducer{
		index:  sys.index,
		driven: sys.driven,
		inner:  mat,
		rhs: func(i int, g, cap float64) {
			if i > 0 {
				mat.AddComplexRHS(i, g, omega*cap)
			}
		},
	}
	if err := c.Stamp(r); err != nil {
		return 0, err
	}
	if sys.inject > 0 {
		mat.AddComplexRHS(sys.inject, 1, 0)
	}
	if err := mat.Solve(); err != nil {
		return 0, err
	}
	return mat.GetComplexSolution(row), nil
}
