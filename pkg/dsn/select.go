package dsn

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Metrics are the figures of merit every candidate reports. Ibias is the
// total supply current magnitude; BW and UGF are in Hz, PM in degrees.
type Metrics struct {
	Ibias float64 `yaml:"ibias"`
	Gain  float64 `yaml:"gain"`
	BW    float64 `yaml:"bw"`
	UGF   float64 `yaml:"ugf,omitempty"`
	PM    float64 `yaml:"pm,omitempty"`
}

// Op is a candidate operating point produced by a designer.
type Op interface {
	Perf() Metrics
	// Key is a stable identity used to break ties deterministically.
	Key() string
}

// Rule returns the preferred of two candidates. Rules must be total orders
// so selection does not depend on enumeration order.
type Rule[T Op] func(a, b T) T

// MinIbias prefers lower current, then higher bandwidth, then lower key.
func MinIbias[T Op](a, b T) T {
	pa, pb := a.Perf(), b.Perf()
	switch {
	case pa.Ibias < pb.Ibias:
		return a
	case pb.Ibias < pa.Ibias:
		return b
	case pa.BW > pb.BW:
		return a
	case pb.BW > pa.BW:
		return b
	}
	return byKey(a, b)
}

// MaxBandwidth prefers higher bandwidth, then lower current, then lower key.
func MaxBandwidth[T Op](a, b T) T {
	pa, pb := a.Perf(), b.Perf()
	switch {
	case pa.BW > pb.BW:
		return a
	case pb.BW > pa.BW:
		return b
	case pa.Ibias < pb.Ibias:
		return a
	case pb.Ibias < pa.Ibias:
		return b
	}
	return byKey(a, b)
}

func byKey[T Op](a, b T) T {
	if strings.Compare(a.Key(), b.Key()) <= 0 {
		return a
	}
	return b
}

// Select folds cands with rule.
func Select[T Op](cands []T, rule Rule[T]) (T, error) {
	var best T
	if len(cands) == 0 {
		return best, errors.WithStack(ErrNoSolution)
	}
	best = cands[0]
	for _, c := range cands[1:] {
		best = rule(best, c)
	}
	return best, nil
}

// Measurement is what an external simulator reports for a design.
type Measurement struct {
	Gain       float64 `yaml:"gain"`
	BW         float64 `yaml:"bw"`
	UGF        float64 `yaml:"ugf,omitempty"`
	PM         float64 `yaml:"pm,omitempty"`
	PulseWidth float64 `yaml:"pulse_width,omitempty"`
}

// Verifier runs a testbench on generated schematic parameters. When present
// its numbers replace the small-signal estimate of the selected design.
type Verifier interface {
	Verify(block string, params SchParams, tb map[string]float64) (Measurement, error)
}

// Result is the outcome of one design run.
type Result[T Op] struct {
	Best       T            `yaml:"-"`
	Params     SchParams    `yaml:"params"`
	Metrics    Metrics      `yaml:"metrics"`
	Measured   *Measurement `yaml:"measured,omitempty"`
	Candidates []T          `yaml:"-"`
}

// Finish selects the best of cands, builds its schematic parameters and
// runs the verifier when one is configured.
func Finish[T Op](env Env, block string, cands []T, rule Rule[T], sch func(T) SchParams, tb map[string]float64) (Result[T], error) {
	var res Result[T]
	if len(cands) == 0 {
		return res, NoSolution(block, "no candidate met the constraints")
	}

	best, err := Select(cands, rule)
	if err != nil {
		return res, errors.Wrap(err, block)
	}
	res.Best = best
	res.Candidates = cands
	res.Metrics = best.Perf()
	res.Params = sch(best)
	env.Logf("%s: %d candidates, best %s ibias=%.4g gain=%.4g bw=%.4g",
		block, len(cands), best.Key(), res.Metrics.Ibias, res.Metrics.Gain, res.Metrics.BW)

	if env.Verifier == nil {
		return res, nil
	}
	m, err := env.Verifier.Verify(block, res.Params, tb)
	if err != nil {
		return res, errors.Wrapf(err, "%s: verification", block)
	}
	res.Measured = &m
	res.Metrics.Gain = m.Gain
	res.Metrics.BW = m.BW
	if m.UGF > 0 {
		res.Metrics.UGF = m.UGF
	}
	if m.PM != 0 {
		res.Metrics.PM = PhaseOrSentinel(m.PM)
	}
	return res, nil
}

// TotalIbias sums supply currents by magnitude.
func TotalIbias(is ...float64) float64 {
	var sum float64
	for _, i := range is {
		sum += math.Abs(i)
	}
	return sum
}
