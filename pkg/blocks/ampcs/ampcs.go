// Package ampcs designs a single-ended common-source stage with a
// current-source load.
package ampcs

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/circuit"
	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/opdb"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

const Block = "amp_cs"

type Spec struct {
	InType string  `yaml:"in_type"`
	VDD    float64 `yaml:"vdd"`
	VIn    float64 `yaml:"vin"`  // input gate DC voltage
	VOut   float64 `yaml:"vout"` // 0 sweeps the output

	CLoad    float64 `yaml:"cload"`
	GainMin  float64 `yaml:"gain_min"`
	GainMax  float64 `yaml:"gain_max"`
	BWMin    float64 `yaml:"bw_min"`
	IbiasMax float64 `yaml:"ibias_max"`
}

type Op struct {
	InType opdb.Polarity
	VDD    float64
	VIn    float64
	VOut   float64
	VLoad  float64 // |vgs| of the load

	NfIn, NfLoad int
	In, Load     opdb.OperatingPoint

	CLoad float64
	Ibias float64
	Gain  float64
	BW    float64
	Rout  float64
	TF    poly.TF
}

func (o Op) Perf() dsn.Metrics { return dsn.Metrics{Ibias: o.Ibias, Gain: o.Gain, BW: o.BW} }

func (o Op) Key() string {
	return fmt.Sprintf("%s vout=%.4f vload=%.4f nf=%d/%d", o.InType, o.VOut, o.VLoad, o.NfIn, o.NfLoad)
}

// LoadGate is the absolute load gate voltage.
func (o Op) LoadGate() float64 {
	if o.InType == opdb.PMOS {
		return o.VLoad
	}
	return o.VDD - o.VLoad
}

// Stamp adds the stage between in and out; the load gate sits on bias
// (ground when empty).
func (o Op) Stamp(ckt *circuit.Circuit, in, out, bias string) {
	gnd := circuit.Gnd
	if bias == "" {
		bias = gnd
	}
	ckt.AddTransistor(o.In, out, in, gnd, gnd, float64(o.NfIn))
	ckt.AddTransistor(o.Load, out, bias, gnd, gnd, float64(o.NfLoad))
}

func (o Op) transfer() (poly.TF, error) {
	ckt := circuit.New(Block)
	o.Stamp(ckt, "in", "out", "")
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
	dbLoad, err := env.DB("load", pol.Opposite())
	if err != nil {
		return nil, err
	}

	s := pol.Sign()
	step := env.Step()
	railIn, railLoad := dsn.Rails(pol, spec.VDD)

	vgsIn := spec.VIn - railIn
	vthIn, err := dsn.EstimateVthAt(dbIn, pol, vgsIn, 0)
	if err != nil {
		return nil, err
	}
	vthLoad, err := dsn.EstimateVthAt(dbLoad, pol.Opposite(), -s*spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}

	outGrid := dsn.Span(spec.VIn-vthIn, railLoad-s*step, step)
	if spec.VOut > 0 {
		outGrid = dsn.Point(spec.VOut)
	}
	loadGrid := dsn.Span(math.Abs(vthLoad)+step, spec.VDD, step)

	var cands []Op
	for vout := range outGrid.Values() {
		opIn, err := dbIn.Query(vgsIn, vout-railIn, 0)
		if err != nil {
			return nil, err
		}
		if opIn.Ibias == 0 {
			continue
		}
		nfMax := int(spec.IbiasMax / math.Abs(opIn.Ibias))

		for vload := range loadGrid.Values() {
			opLoad, err := dbLoad.Query(-s*vload, vout-railLoad, 0)
			if err != nil {
				return nil, err
			}
			if opLoad.Ibias == 0 {
				continue
			}
			base := Op{
				InType: pol, VDD: spec.VDD, VIn: spec.VIn, VOut: vout, VLoad: vload,
				In: opIn, Load: opLoad, CLoad: spec.CLoad,
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
		return nil, dsn.NoSolution(Block, "no operating point meets gain %g..%g bw %g ibias %g",
			spec.GainMin, spec.GainMax, spec.BWMin, spec.IbiasMax)
	}
	return cands, nil
}

func (d *Designer) size(op Op, nf int, spec Spec) (Op, dsn.Verdict) {
	env := d.env
	nfLoad, ok := dsn.VerifyRatio(op.In.Ibias, op.Load.Ibias, nf, env.Tol())
	if !ok {
		return op, dsn.Skip
	}
	op.NfIn, op.NfLoad = nf, nfLoad
	op.Ibias = math.Abs(op.In.Ibias) * float64(nf)
	op.Rout = dsn.Parallel(1/(op.In.Gds*float64(nf)), 1/(op.Load.Gds*float64(nfLoad)))

	if v := env.Judge(Block, dsn.MaxRising("ibias", op.Ibias, spec.IbiasMax)); v != dsn.Accept {
		return op, v
	}

	tf, err := op.transfer()
	if err != nil {
		env.Logf("%s: %s: %v", Block, op.Key(), err)
		return op, dsn.Skip
	}
	op.TF = tf
	op.Gain = math.Abs(analysis.DCGain(tf))
	op.BW = analysis.Bandwidth3dB(tf)

	return op, env.Judge(Block,
		dsn.Min("gain", op.Gain, spec.GainMin),
		dsn.MaxRising("gain", op.Gain, spec.GainMax),
		dsn.Min("bw", op.BW, spec.BWMin),
	)
}

func (d *Designer) Compare(a, b Op) Op { return dsn.MinIbias(a, b) }

func (d *Designer) SchParams(op Op) dsn.SchParams {
	p := d.env.Sch(map[string]int{"in": op.NfIn, "load": op.NfLoad})
	p.Values["vout"] = op.VOut
	p.Values["vload"] = op.LoadGate()
	p.Values["ibias"] = op.Ibias
	return p
}

func (d *Designer) Design(spec Spec) (dsn.Result[Op], error) {
	cands, err := d.Search(spec)
	if err != nil {
		return dsn.Result[Op]{}, err
	}
	tb := map[string]float64{"vdd": spec.VDD, "vin": spec.VIn, "cload": spec.CLoad}
	return dsn.Finish(d.env, Block, cands, d.Compare, d.SchParams, tb)
}
