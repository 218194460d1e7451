package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"

	"github.com/edp1096/toy-dsn/pkg/poly"
)

const (
	pointsPerDecade = 40
	bisectIters     = 60
)

// DCGain is H(0): the ratio of the constant coefficients (the last
// elements in highest-power-first order).
func DCGain(tf poly.TF) float64 {
	return poly.Const(tf.Num) / poly.Const(tf.Den)
}

func magAt(tf poly.TF, w float64) float64 {
	return cmplx.Abs(tf.Eval(complex(0, w)))
}

// searchRange brackets the interesting band around the poles and zeros
// (rad/s).
func searchRange(tf poly.TF) (float64, float64) {
	lo, hi := math.Inf(1), 0.0
	for _, p := range []poly.Poly{tf.Num, tf.Den} {
		roots, err := poly.Roots(p)
		if err != nil {
			continue
		}
		for _, r := range roots {
			m := cmplx.Abs(r)
			if m == 0 || math.IsNaN(m) || math.IsInf(m, 0) {
				continue
			}
			lo = math.Min(lo, m)
			hi = math.Max(hi, m)
		}
	}
	if hi == 0 {
		return 1e-3, 1e15
	}
	return math.Max(lo/1e4, 1e-6), math.Min(hi*1e4, 1e18)
}

func logGrid(lo, hi float64) []float64 {
	n := int(math.Ceil(math.Log10(hi/lo)*pointsPerDecade)) + 1
	if n < 2 {
		n = 2
	}
	return floats.LogSpan(make([]float64, n), lo, hi)
}

// crossing finds the first w where f goes from >= 0 to < 0 on the grid and
// refines it by bisection in log(w). ok is false when f never crosses.
func crossing(grid []float64, f func(w float64) float64) (float64, int, bool) {
	if f(grid[0]) < 0 {
		return 0, 0, false
	}
	for i := 1; i < len(grid); i++ {
		if f(grid[i]) >= 0 {
			continue
		}
		a, b := math.Log(grid[i-1]), math.Log(grid[i])
		for range bisectIters {
			mid := 0.5 * (a + b)
			if f(math.Exp(mid)) >= 0 {
				a = mid
			} else {
				b = mid
			}
		}
		return math.Exp(0.5 * (a + b)), i, true
	}
	return 0, 0, false
}

// Bandwidth3dB returns the -3dB frequency in Hz, or 0 when the magnitude
// never drops 3dB below its DC value.
func Bandwidth3dB(tf poly.TF) float64 {
	k := math.Abs(DCGain(tf))
	if k == 0 || math.IsInf(k, 0) || math.IsNaN(k) {
		return 0
	}
	target := k / math.Sqrt2

	lo, hi := searchRange(tf)
	w, _, ok := crossing(logGrid(lo, hi), func(w float64) float64 {
		return magAt(tf, w) - target
	})
	if !ok {
		return 0
	}
	return w / (2 * math.Pi)
}

type Margins struct {
	UGF float64 // unity-gain frequency (Hz), 0 when undefined
	PM  float64 // phase margin (deg), +Inf when undefined
	OK  bool    // a unity-gain crossing exists
}

// StabilityMargins computes the unity-gain crossover and the phase margin of
// a loop transfer function. The phase is unwrapped from the low-frequency
// asymptote of the loop and measured against the sign of its lowest-order
// gain, so an inverting loop gain is treated like its non-inverting
// counterpart while integrators keep their -90 degrees.
func StabilityMargins(loop poly.TF) Margins {
	lo, hi := searchRange(loop)
	grid := logGrid(lo, hi)

	w, idx, ok := crossing(grid, func(w float64) float64 {
		return magAt(loop, w) - 1
	})
	if !ok {
		return Margins{PM: math.Inf(1)}
	}

	ref, prev := lowFrequencyPhase(loop)
	for i := 0; i < idx; i++ {
		prev = unwrap(prev, cmplx.Phase(loop.Eval(complex(0, grid[i]))))
	}
	phaseU := unwrap(prev, cmplx.Phase(loop.Eval(complex(0, w))))

	pm := 180 + (phaseU-ref)*180/math.Pi
	return Margins{UGF: w / (2 * math.Pi), PM: pm, OK: true}
}

// lowOrder returns the lowest-order nonzero coefficient and its power.
func lowOrder(p poly.Poly) (float64, int) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != 0 {
			return p[i], len(p) - 1 - i
		}
	}
	return 0, 0
}

// lowFrequencyPhase returns the sign reference (0 or pi) of the loop and
// its phase asymptote as w goes to 0, both in radians.
func lowFrequencyPhase(loop poly.TF) (float64, float64) {
	n, kn := lowOrder(loop.Num)
	d, kd := lowOrder(loop.Den)
	ref := 0.0
	if n*d < 0 {
		ref = math.Pi
	}
	return ref, ref + float64(kn-kd)*math.Pi/2
}

func unwrap(prev, next float64) float64 {
	for next-prev > math.Pi {
		next -= 2 * math.Pi
	}
	for next-prev < -math.Pi {
		next += 2 * math.Pi
	}
	return next
}

// UnwrapPhase removes 360 degree jumps from a phase sweep in degrees.
func UnwrapPhase(deg []float64) []float64 {
	out := make([]float64, len(deg))
	for i, d := range deg {
		r := d * math.Pi / 180
		if i > 0 {
			r = unwrap(out[i-1]*math.Pi/180, r)
		}
		out[i] = r * 180 / math.Pi
	}
	return out
}

// GroupDelayDC returns -d(phase)/dw at w=0 in seconds, NaN when H(0) is 0
// or infinite.
func GroupDelayDC(tf poly.TF) float64 {
	n0, d0 := poly.Const(tf.Num), poly.Const(tf.Den)
	if n0 == 0 || d0 == 0 {
		return math.NaN()
	}
	return linear(tf.Den)/d0 - linear(tf.Num)/n0
}

// linear returns the s^1 coefficient.
func linear(p poly.Poly) float64 {
	if len(p) < 2 {
		return 0
	}
	return p[len(p)-2]
}

func Poles(tf poly.TF) ([]complex128, error) { return poly.Roots(tf.Den) }

func Zeros(tf poly.TF) ([]complex128, error) { return poly.Roots(tf.Num) }

// ClosedLoop returns L/(1+L).
func ClosedLoop(loop poly.TF) poly.TF {
	return poly.TF{Num: loop.Num, Den: poly.Add(loop.Den, loop.Num)}
}

// Stable reports whether every pole lies in the open left half plane.
func Stable(tf poly.TF) (bool, error) {
	poles, err := Poles(tf)
	if err != nil {
		return false, err
	}
	for _, p := range poles {
		if real(p) >= 0 {
			return false, nil
		}
	}
	return true, nil
}

// ReturnRatio turns a measured loop transmission t (test source to return
// node) into the loop gain L = -t of a negative-feedback loop.
func ReturnRatio(t poly.TF) poly.TF { return t.Scale(-1) }
