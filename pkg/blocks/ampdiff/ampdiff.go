// Package ampdiff designs a differential pair with a current-mirror load and
// single-ended output. Mirr biases the tail at a fixed gate voltage,
// MirrBias enumerates tail gate voltages as well.
package ampdiff

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/opdb"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

const Block = "amp_diff_mirr"

type Spec struct {
	InType string  `yaml:"in_type"`
	VDD    float64 `yaml:"vdd"`
	VInCM  float64 `yaml:"vincm"`

	// VOut pins the output (and mirror) voltage; 0 sweeps it.
	VOut float64 `yaml:"vout"`
	// VTailBias is the |vgs| of the tail device. Required by Mirr, ignored
	// by MirrBias.
	VTailBias float64 `yaml:"vtail_bias"`

	CLoad    float64 `yaml:"cload"`
	GainMin  float64 `yaml:"gain_min"`
	GainMax  float64 `yaml:"gain_max"`
	BWMin    float64 `yaml:"bw_min"`
	IbiasMax float64 `yaml:"ibias_max"`
}

// Op is one viable operating point.
type Op struct {
	InType opdb.Polarity
	VDD    float64
	VInCM  float64

	VTail     float64
	VOut      float64
	VTailBias float64

	NfIn, NfLoad, NfTail int
	In, Load, Tail       opdb.OperatingPoint

	CLoad float64
	Ibias float64
	Gain  float64
	BW    float64
	TF    poly.TF
}

func (o Op) Perf() dsn.Metrics {
	return dsn.Metrics{Ibias: o.Ibias, Gain: o.Gain, BW: o.BW}
}

func (o Op) Key() string {
	return fmt.Sprintf("%s vtail=%.4f vout=%.4f vbias=%.4f nf=%d/%d/%d",
		o.InType, o.VTail, o.VOut, o.VTailBias, o.NfIn, o.NfLoad, o.NfTail)
}

// TailGate is the absolute tail gate voltage.
func (o Op) TailGate() float64 {
	if o.InType == opdb.PMOS {
		return o.VDD - o.VTailBias
	}
	return o.VTailBias
}

// InputCap is the gate capacitance one input presents.
func (o Op) InputCap() float64 {
	return float64(o.NfIn) * o.In.Cgg
}

type Designer struct {
	env       dsn.Env
	sweepBias bool
}

func NewMirr(env dsn.Env) *Designer { return &Designer{env: env} }

func NewMirrBias(env dsn.Env) *Designer { return &Designer{env: env, sweepBias: true} }

func (d *Designer) name() string {
	if d.sweepBias {
		return Block + "_bias"
	}
	return Block
}

func (d *Designer) validate(spec Spec) (opdb.Polarity, error) {
	block := d.name()
	pol, err := opdb.ParsePolarity(spec.InType)
	if err != nil {
		return pol, dsn.Invalid(block, "in_type", "%q must be n or p", spec.InType)
	}
	switch {
	case spec.VDD <= 0:
		return pol, dsn.Invalid(block, "vdd", "%g must be positive", spec.VDD)
	case spec.VInCM <= 0 || spec.VInCM >= spec.VDD:
		return pol, dsn.Invalid(block, "vincm", "%g outside (0, vdd)", spec.VInCM)
	case spec.IbiasMax <= 0:
		return pol, dsn.Invalid(block, "ibias_max", "%g must be positive", spec.IbiasMax)
	case spec.VOut < 0 || spec.VOut >= spec.VDD:
		return pol, dsn.Invalid(block, "vout", "%g outside [0, vdd)", spec.VOut)
	case !d.sweepBias && (spec.VTailBias <= 0 || spec.VTailBias > spec.VDD):
		return pol, dsn.Invalid(block, "vtail_bias", "%g outside (0, vdd]", spec.VTailBias)
	}
	return pol, nil
}

// Search returns every viable operating point.
func (d *Designer) Search(spec Spec) ([]Op, error) {
	pol, err := d.validate(spec)
	if err != nil {
		return nil, err
	}
	block := d.name()
	env := d.env

	dbIn, err := env.DB("in", pol)
	if err != nil {
		return nil, err
	}
	dbLoad, err := env.DB("load", pol.Opposite())
	if err != nil {
		return nil, err
	}
	dbTail, err := env.DB("tail", pol)
	if err != nil {
		return nil, err
	}

	s := pol.Sign()
	step := env.Step()
	railIn, railLoad := dsn.Rails(pol, spec.VDD)

	vthIn, err := dsn.EstimateVthAt(dbIn, pol, s*spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}
	vthTail, err := dsn.EstimateVthAt(dbTail, pol, s*spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}

	biasGrid := dsn.Point(spec.VTailBias)
	if d.sweepBias {
		biasGrid = dsn.Span(math.Abs(vthTail)+step, spec.VDD, step)
	}
	tailGrid := dsn.Span(railIn+s*step, spec.VInCM-vthIn, step)

	var cands []Op
	for vtail := range tailGrid.Values() {
		outGrid := dsn.Span(spec.VInCM-vthIn, railLoad-s*step, step)
		if spec.VOut > 0 {
			outGrid = dsn.Point(spec.VOut)
		}
		for vout := range outGrid.Values() {
			opIn, err := dbIn.Query(spec.VInCM-vtail, vout-vtail, railIn-vtail)
			if err != nil {
				return nil, err
			}
			opLoad, err := dbLoad.Query(vout-railLoad, vout-railLoad, 0)
			if err != nil {
				return nil, err
			}
			if opIn.Ibias == 0 || opLoad.Ibias == 0 {
				continue
			}

			nfMax := int(spec.IbiasMax / (2 * math.Abs(opIn.Ibias)))
			for vbias := range biasGrid.Values() {
				opTail, err := dbTail.Query(s*vbias, vtail-railIn, 0)
				if err != nil {
					return nil, err
				}
				if opTail.Ibias == 0 {
					continue
				}
				base := Op{
					InType: pol, VDD: spec.VDD, VInCM: spec.VInCM,
					VTail: vtail, VOut: vout, VTailBias: vbias,
					In: opIn, Load: opLoad, Tail: opTail, CLoad: spec.CLoad,
				}
				dsn.Sweep(dsn.Sizes(2, nfMax, 2), func(nf int) dsn.Verdict {
					op, v := d.size(base, nf, spec)
					if v == dsn.Accept {
						cands = append(cands, op)
					}
					return v
				})
			}
		}
	}

	if len(cands) == 0 {
		return nil, dsn.NoSolution(block, "no operating point meets gain %g..%g bw %g ibias %g",
			spec.GainMin, spec.GainMax, spec.BWMin, spec.IbiasMax)
	}
	env.Logf("%s: %d viable operating points", block, len(cands))
	return cands, nil
}

// size completes one candidate for nf input fingers per side.
func (d *Designer) size(op Op, nf int, spec Spec) (Op, dsn.Verdict) {
	env := d.env
	tol := env.Tol()

	nfLoad, ok := dsn.VerifyRatio(op.In.Ibias, op.Load.Ibias, nf, tol)
	if !ok {
		return op, dsn.Skip
	}
	nfTail, ok := dsn.VerifyRatio(op.In.Ibias, op.Tail.Ibias, 2*nf, tol)
	if !ok {
		return op, dsn.Skip
	}
	op.NfIn, op.NfLoad, op.NfTail = nf, nfLoad, nfTail
	op.Ibias = math.Abs(op.Tail.Ibias) * float64(nfTail)

	if v := env.Judge(d.name(), dsn.MaxRising("ibias", op.Ibias, spec.IbiasMax)); v != dsn.Accept {
		return op, v
	}

	tf, err := op.Differential()
	if err != nil {
		env.Logf("%s: %s: %v", d.name(), op.Key(), err)
		return op, dsn.Skip
	}
	op.TF = tf
	op.Gain = math.Abs(analysis.DCGain(tf))
	op.BW = analysis.Bandwidth3dB(tf)

	v := env.Judge(d.name(),
		dsn.Min("gain", op.Gain, spec.GainMin),
		dsn.MaxRising("gain", op.Gain, spec.GainMax),
		dsn.Min("bw", op.BW, spec.BWMin),
	)
	return op, v
}

func (d *Designer) Compare(a, b Op) Op { return dsn.MinIbias(a, b) }

func (d *Designer) SchParams(op Op) dsn.SchParams {
	p := d.env.Sch(map[string]int{"in": op.NfIn, "load": op.NfLoad, "tail": op.NfTail})
	p.Values["vtail"] = op.VTail
	p.Values["vout"] = op.VOut
	p.Values["vbias"] = op.TailGate()
	p.Values["ibias"] = op.Ibias
	return p
}

// Design searches, selects the minimum-current candidate and builds its
// schematic parameters.
func (d *Designer) Design(spec Spec) (dsn.Result[Op], error) {
	cands, err := d.Search(spec)
	if err != nil {
		return dsn.Result[Op]{}, err
	}
	tb := map[string]float64{"vdd": spec.VDD, "vincm": spec.VInCM, "cload": spec.CLoad}
	return dsn.Finish(d.env, d.name(), cands, d.Compare, d.SchParams, tb)
}
