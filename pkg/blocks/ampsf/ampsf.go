// Package ampsf designs a source follower biased by a current sink of the
// same device type.
package ampsf

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/circuit"
	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/opdb"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

const Block = "amp_sf"

type Spec struct {
	InType string  `yaml:"in_type"`
	VDD    float64 `yaml:"vdd"`
	VIn    float64 `yaml:"vin"`

	CLoad    float64 `yaml:"cload"`
	GainMin  float64 `yaml:"gain_min"`
	BWMin    float64 `yaml:"bw_min"`
	IbiasMax float64 `yaml:"ibias_max"`
}

type Op struct {
	InType opdb.Polarity
	VDD    float64
	VIn    float64
	VOut   float64
	VBias  float64 // |vgs| of the sink

	NfIn, NfBias int
	In, Bias     opdb.OperatingPoint

	CLoad float64
	Ibias float64
	Gain  float64
	BW    float64
	TF    poly.TF
}

func (o Op) Perf() dsn.Metrics { return dsn.Metrics{Ibias: o.Ibias, Gain: o.Gain, BW: o.BW} }

func (o Op) Key() string {
	return fmt.Sprintf("%s vout=%.4f vbias=%.4f nf=%d/%d", o.InType, o.VOut, o.VBias, o.NfIn, o.NfBias)
}

// InputCap is the capacitance seen at the gate. Cgs is bootstrapped by the
// follower gain.
func (o Op) InputCap() float64 {
	nf := float64(o.NfIn)
	return nf * (o.In.Cgd + o.In.Cgb + o.In.Cgs*(1-o.Gain))
}

// Stamp adds the follower from in to out. Drain and bulk sit on the
// small-signal ground rails.
func (o Op) Stamp(ckt *circuit.Circuit, in, out string) {
	gnd := circuit.Gnd
	ckt.AddTransistor(o.In, gnd, in, out, gnd, float64(o.NfIn))
	ckt.AddTransistor(o.Bias, out, gnd, gnd, gnd, float64(o.NfBias))
}

func (o Op) transfer() (poly.TF, error) {
	ckt := circuit.New(Block)
	o.Stamp(ckt, "in", "out")
	if o.CLoad > 0 {
		ckt.AddCapacitor(o.CLoad, "out", circuit.Gnd)
	}
	return ckt.TransferFunction("in", "out", circuit.Voltage)
}

type Designer struct {
	env dsn.Env
}

func New(env dsn.Env) *Designer { return &Designer{env: env} }

func (d *Designer) validate(spec Spec) (opdb.Polarity, error) {
	pol, err := opdb.ParsePolarity(spec.InType)
	if err != nil {
		return pol, dsn.Invalid(Block, "in_type", "%q must be n or p", spec.InType)
	}
	switch {
	case spec.VDD <= 0:
		return pol, dsn.Invalid(Block, "vdd", "%g must be positive", spec.VDD)
	case spec.VIn <= 0 || spec.VIn >= spec.VDD:
		return pol, dsn.Invalid(Block, "vin", "%g outside (0, vdd)", spec.VIn)
	case spec.IbiasMax <= 0:
		return pol, dsn.Invalid(Block, "ibias_max", "%g must be positive", spec.IbiasMax)
	case spec.GainMin >= 1:
		return pol, dsn.Invalid(Block, "gain_min", "%g: a follower gain is below 1", spec.GainMin)
	}
	return pol, nil
}

func (d *Designer) Search(spec Spec) ([]Op, error) {
	pol, err := d.validate(spec)
	if err != nil {
		return nil, err
	}
	env := d.env
	dbIn, err := env.DB("in", pol)
	if err != nil {
		return nil, err
	}
	dbBias, err := env.DB("bias", pol)
	if err != nil {
		return nil, err
	}

	s := pol.Sign()
	step := env.Step()
	railSrc, railDrain := dsn.Rails(pol, spec.VDD)

	vthIn, err := dsn.EstimateVthAt(dbIn, pol, s*spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}
	vthBias, err := dsn.EstimateVthAt(dbBias, pol, s*spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}

	outGrid := dsn.Span(railSrc+s*step, spec.VIn-vthIn, step)
	biasGrid := dsn.Span(math.Abs(vthBias)+step, spec.VDD, step)

	var cands []Op
	for vout := range outGrid.Values() {
		opIn, err := dbIn.Query(spec.VIn-vout, railDrain-vout, railSrc-vout)
		if err != nil {
			return nil, err
		}
		if opIn.Ibias == 0 {
			continue
		}
		nfMax := int(spec.IbiasMax / math.Abs(opIn.Ibias))

		for vbias := range biasGrid.Values() {
			opBias, err := dbBias.Query(s*vbias, vout-railSrc, 0)
			if err != nil {
				return nil, err
			}
			if opBias.Ibias == 0 {
				continue
			}
			base := Op{
				InType: pol, VDD: spec.VDD, VIn: spec.VIn, VOut: vout, VBias: vbias,
				In: opIn, Bias: opBias, CLoad: spec.CLoad,
			}
			dsn.Sweep(dsn.Sizes(1, nfMax, 1), func(nf int) dsn.Verdict {
				op, v := d.size(base, nf, spec)
				if v == dsn.Accept {
					cands = append(cands, op)
				}
				return v
			})
		}
	}

	if len(cands) == 0 {
		return nil, dsn.NoSolution(Block, "no operating point meets gain %g bw %g ibias %g",
			spec.GainMin, spec.BWMin, spec.IbiasMax)
	}
	return cands, nil
}

func (d *Designer) size(op Op, nf int, spec Spec) (Op, dsn.Verdict) {
	env := d.env
	nfBias, ok := dsn.VerifyRatio(op.In.Ibias, op.Bias.Ibias, nf, env.Tol())
	if !ok {
		return op, dsn.Skip
	}
	op.NfIn, op.NfBias = nf, nfBias
	op.Ibias = math.Abs(op.Bias.Ibias) * float64(nfBias)
	if v := env.Judge(Block, dsn.MaxRising("ibias", op.Ibias, spec.IbiasMax)); v != dsn.Accept {
		return op, v
	}

	tf, err := op.transfer()
	if err != nil {
		env.Logf("%s: %s: %v", Block, op.Key(), err)
		return op, dsn.Skip
	}
	op.TF = tf
	op.Gain = analysis.DCGain(tf)
	op.BW = analysis.Bandwidth3dB(tf)

	return op, env.Judge(Block,
		dsn.Min("gain", op.Gain, spec.GainMin),
		dsn.Min("bw", op.BW, spec.BWMin),
	)
}

func (d *Designer) Compare(a, b Op) Op { return dsn.MinIbias(a, b) }

func (d *Designer) SchParams(op Op) dsn.SchParams {
	p := d.env.Sch(map[string]int{"in": op.NfIn, "bias": op.NfBias})
	p.Values["vout"] = op.VOut
	p.Values["vbias"] = op.BiasGate()
	p.Values["ibias"] = op.Ibias
	return p
}

// BiasGate is the absolute gate voltage of the sink.
func (o Op) BiasGate() float64 {
	if o.InType == opdb.PMOS {
		return o.VDD - o.VBias
	}
	return o.VBias
}

func (d *Designer) Design(spec Spec) (dsn.Result[Op], error) {
	cands, err := d.Search(spec)
	if err != nil {
		return dsn.Result[Op]{}, err
	}
	tb := map[string]float64{"vdd": spec.VDD, "vin": spec.VIn, "cload": spec.CLoad}
	return dsn.Finish(d.env, Block, cands, d.Compare, d.SchParams, tb)
}
