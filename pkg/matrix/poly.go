package matrix

import (
	"math"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/poly"
)

// MaxDetSize bounds the symbolic determinant; the expansion visits 2^n minors.
const MaxDetSize = 20

// cancellation threshold relative to the sum of absolute contributions
const detRelTol = 1e-10

// PolyMatrix is the admittance matrix G + sC with exact polynomial entries.
type PolyMatrix struct {
	Size int
	g    [][]float64
	c    [][]float64
}

var _ DeviceMatrix = (*PolyMatrix)(nil)

func NewPolyMatrix(size int) *PolyMatrix {
	m := &PolyMatrix{Size: size, g: make([][]float64, size), c: make([][]float64, size)}
	for i := range size {
		m.g[i] = make([]float64, size)
		m.c[i] = make([]float64, size)
	}
	return m
}

func (m *PolyMatrix) AddAdmittance(i, j int, g, c float64) {
	if i <= 0 || j <= 0 || i > m.Size || j > m.Size {
		return
	}
	m.g[i-1][j-1] += g
	m.c[i-1][j-1] += c
}

// Entry returns row i, column j (1-based) as c*s + g.
func (m *PolyMatrix) Entry(i, j int) poly.Poly {
	return poly.Poly{m.c[i-1][j-1], m.g[i-1][j-1]}
}

func (m *PolyMatrix) entries() [][]poly.Poly {
	a := make([][]poly.Poly, m.Size)
	for i := range m.Size {
		a[i] = make([]poly.Poly, m.Size)
		for j := range m.Size {
			a[i][j] = m.Entry(i+1, j+1)
		}
	}
	return a
}

// Det returns det(G + sC).
func (m *PolyMatrix) Det() (poly.Poly, error) {
	return Det(m.entries())
}

// DetReplaced returns the determinant with column col (1-based) replaced by
// rhs, the numerator of Cramer's rule for unknown col.
func (m *PolyMatrix) DetReplaced(col int, rhs []poly.Poly) (poly.Poly, error) {
	if col <= 0 || col > m.Size || len(rhs) != m.Size {
		return nil, errors.Errorf("invalid column %d for size %d", col, m.Size)
	}
	a := m.entries()
	for i := range m.Size {
		a[i][col-1] = rhs[i]
	}
	return Det(a)
}

type detTerm struct {
	val poly.Poly
	mag poly.Poly
}

// Det computes the determinant of a polynomial matrix by Laplace expansion
// along rows, memoized on the set of consumed columns. Coefficients that
// cancel to below detRelTol of their absolute contribution are zeroed.
func Det(a [][]poly.Poly) (poly.Poly, error) {
	n := len(a)
	if n == 0 {
		return poly.Poly{1}, nil
	}
	if n > MaxDetSize {
		return nil, errors.Errorf("matrix size %d exceeds %d", n, MaxDetSize)
	}

	abs := make([][]poly.Poly, n)
	for i := range n {
		if len(a[i]) != n {
			return nil, errors.Errorf("row %d has %d entries, want %d", i, len(a[i]), n)
		}
		abs[i] = make([]poly.Poly, n)
		for j := range n {
			p := make(poly.Poly, len(a[i][j]))
			for k, v := range a[i][j] {
				p[k] = math.Abs(v)
			}
			abs[i][j] = p
		}
	}

	memo := make(map[uint32]detTerm)
	var expand func(used uint32) detTerm
	expand = func(used uint32) detTerm {
		row := bits.OnesCount32(used)
		if row == n {
			return detTerm{val: poly.Poly{1}, mag: poly.Poly{1}}
		}
		if t, ok := memo[used]; ok {
			return t
		}

		t := detTerm{val: poly.Poly{0}, mag: poly.Poly{0}}
		pos := 0
		for j := range n {
			if used&(1<<j) != 0 {
				continue
			}
			if e := a[row][j]; !poly.IsZero(e) {
				sub := expand(used | 1<<j)
				if !poly.IsZero(sub.mag) {
					term := poly.Conv(e, sub.val)
					if pos%2 == 1 {
						term = poly.Scale(term, -1)
					}
					t.val = poly.Add(t.val, term)
					t.mag = poly.Add(t.mag, poly.Conv(abs[row][j], sub.mag))
				}
			}
			pos++
		}
		memo[used] = t
		return t
	}

	t := expand(0)
	size := max(len(t.val), len(t.mag))
	val, mag := poly.Pad(t.val, size), poly.Pad(t.mag, size)
	out := make(poly.Poly, size)
	for k := range out {
		if math.Abs(val[k]) > detRelTol*mag[k] {
			out[k] = val[k]
		}
	}
	return poly.Trim(out), nil
}
