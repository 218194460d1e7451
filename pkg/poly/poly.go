// Package poly holds real-coefficient polynomials in the Laplace variable.
//
// Coefficients are stored highest power first: p[0]*s^n + ... + p[n].
// The constant term is therefore always the last element.
package poly

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type Poly []float64

// Trim drops exactly-zero leading coefficients. The zero polynomial is {0}.
func Trim(p Poly) Poly {
	for i, c := range p {
		if c != 0 {
			return p[i:]
		}
	}
	return Poly{0}
}

func Degree(p Poly) int { return len(Trim(p)) - 1 }

func IsZero(p Poly) bool {
	for _, c := range p {
		if c != 0 {
			return false
		}
	}
	return true
}

// Const returns the constant (s^0) coefficient.
func Const(p Poly) float64 {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1]
}

// Lead returns the highest-power coefficient after trimming.
func Lead(p Poly) float64 { return Trim(p)[0] }

// Conv multiplies two polynomials.
func Conv(a, b Poly) Poly {
	if len(a) == 0 || len(b) == 0 {
		return Poly{0}
	}
	out := make(Poly, len(a)+len(b)-1)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

// Pad left-pads p with zeros to length n.
func Pad(p Poly, n int) Poly {
	if len(p) >= n {
		return p
	}
	out := make(Poly, n)
	copy(out[n-len(p):], p)
	return out
}

func Add(a, b Poly) Poly {
	n := max(len(a), len(b))
	a, b = Pad(a, n), Pad(b, n)
	out := make(Poly, n)
	for i := range out {
		out[i] = a[i] + b[i]
	}
	return out
}

func Scale(p Poly, k float64) Poly {
	out := make(Poly, len(p))
	for i, c := range p {
		out[i] = k * c
	}
	return out
}

func Sub(a, b Poly) Poly { return Add(a, Scale(b, -1)) }

// Eval evaluates p at a complex point with Horner's rule.
func Eval(p Poly, s complex128) complex128 {
	var acc complex128
	for _, c := range p {
		acc = acc*s + complex(c, 0)
	}
	return acc
}

// NumDenAdd returns n/d = n1/d1 + n2/d2 by cross-convolution.
func NumDenAdd(n1, n2, d1, d2 Poly) (Poly, Poly) {
	num := Add(Conv(n1, d2), Conv(n2, d1))
	den := Conv(d1, d2)
	return num, den
}

// Roots returns the roots of p from the eigenvalues of its companion matrix.
func Roots(p Poly) ([]complex128, error) {
	p = Trim(p)
	n := len(p) - 1
	if n < 1 {
		return nil, nil
	}

	// Roots at the origin are peeled off so the companion matrix stays regular
	zeros := 0
	for n > 0 && p[n] == 0 {
		p = p[:n]
		n--
		zeros++
	}
	roots := make([]complex128, zeros, zeros+n)
	if n == 0 {
		return roots, nil
	}

	// Frequency scaling keeps the companion entries near unity
	w0 := math.Pow(math.Abs(p[n]/p[0]), 1/float64(n))
	if w0 == 0 || math.IsInf(w0, 0) || math.IsNaN(w0) {
		w0 = 1
	}

	comp := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		comp.Set(0, j, -p[j+1]/p[0]/math.Pow(w0, float64(j+1)))
	}
	for i := 1; i < n; i++ {
		comp.Set(i, i-1, 1)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(comp, mat.EigenNone); !ok {
		return nil, errors.New("companion matrix eigen decomposition failed")
	}
	for _, v := range eig.Values(nil) {
		roots = append(roots, v*complex(w0, 0))
	}
	return roots, nil
}

// FromRoots builds the monic polynomial with the given real roots.
func FromRoots(roots ...float64) Poly {
	p := Poly{1}
	for _, r := range roots {
		p = Conv(p, Poly{1, -r})
	}
	return p
}

// TF is a rational transfer function Num(s)/Den(s).
type TF struct {
	Num Poly
	Den Poly
}

func (tf TF) Eval(s complex128) complex128 {
	return Eval(tf.Num, s) / Eval(tf.Den, s)
}

// Add returns tf + o. Matching denominators are kept as they are, anything
// else goes through cross-convolution.
func (tf TF) Add(o TF) TF {
	if Equal(tf.Den, o.Den, 1e-12) {
		return TF{Num: Add(tf.Num, o.Num), Den: tf.Den}
	}
	num, den := NumDenAdd(tf.Num, o.Num, tf.Den, o.Den)
	return TF{Num: num, Den: den}
}

// Equal compares coefficients relative to the largest one in either
// polynomial.
func Equal(a, b Poly, rel float64) bool {
	a, b = Trim(a), Trim(b)
	if len(a) != len(b) {
		return false
	}
	var scale float64
	for i := range a {
		scale = math.Max(scale, math.Max(math.Abs(a[i]), math.Abs(b[i])))
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > rel*scale {
			return false
		}
	}
	return true
}

func (tf TF) Scale(k float64) TF {
	return TF{Num: Scale(tf.Num, k), Den: tf.Den}
}

// Series returns tf * o.
func (tf TF) Series(o TF) TF {
	return TF{Num: Conv(tf.Num, o.Num), Den: Conv(tf.Den, o.Den)}
}

// Proper reports degree(num) <= degree(den).
func (tf TF) Proper() bool {
	return Degree(tf.Num) <= Degree(tf.Den)
}
