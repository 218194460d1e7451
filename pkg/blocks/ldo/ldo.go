// Package ldo designs a low-dropout regulator: a PMOS pass device, a
// resistive divider feeding back to a mirror-loaded error amplifier whose
// output drives the pass gate.
package ldo

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/blocks/ampdiff"
	"github.com/edp1096/toy-dsn/pkg/circuit"
	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/opdb"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

const (
	Block = "ldo"

	// DefaultFeedbackRatio sets the divider current against the load.
	DefaultFeedbackRatio = 0.01
)

type Spec struct {
	VDD   float64 `yaml:"vdd"`
	VOut  float64 `yaml:"vout"`
	VRef  float64 `yaml:"vref"`
	ILoad float64 `yaml:"iload"`
	IFb   float64 `yaml:"ifb"` // divider current, 0 is iload/100
	CLoad float64 `yaml:"cload"`
	RLoad float64 `yaml:"rload"` // 0 is vout/iload

	AmpGainMin  float64 `yaml:"amp_gain_min"`
	LoopGainMin float64 `yaml:"loop_gain_min"`
	PMMin       float64 `yaml:"pm_min"`
	IbiasMax    float64 `yaml:"ibias_max"` // quiescent, load excluded
}

func (s Spec) withDefaults() Spec {
	if s.IFb == 0 {
		s.IFb = DefaultFeedbackRatio * s.ILoad
	}
	if s.RLoad == 0 && s.ILoad > 0 {
		s.RLoad = s.VOut / s.ILoad
	}
	return s
}

type Op struct {
	VPG    float64 // pass gate
	NfPass int
	Pass   opdb.OperatingPoint

	RTop, RBot float64
	Amp        ampdiff.Op

	Loop     poly.TF
	LoopGain float64
	UGF      float64
	PM       float64
	Stable   bool

	Ibias float64 // quiescent
}

func (o Op) Perf() dsn.Metrics {
	return dsn.Metrics{Ibias: o.Ibias, Gain: o.LoopGain, UGF: o.UGF, PM: o.PM}
}

func (o Op) Key() string {
	return fmt.Sprintf("vpg=%.4f nf=%d [%s]", o.VPG, o.NfPass, o.Amp.Key())
}

func (o Op) passCap() float64 { return float64(o.NfPass) * o.Pass.Cgg }

// loopTF breaks the loop at the pass gate. The divider drives the mirror
// side of the amplifier, which is non-inverting; the pass device supplies
// the loop's single inversion.
func (o Op) loopTF(spec Spec) (poly.TF, error) {
	gnd := circuit.Gnd
	ckt := circuit.New(Block + "_loop")
	ckt.AddTransistor(o.Pass, "out", "test", gnd, gnd, float64(o.NfPass))
	ckt.AddResistor(spec.RLoad, "out", gnd)
	if spec.CLoad > 0 {
		ckt.AddCapacitor(spec.CLoad, "out", gnd)
	}
	ckt.AddResistor(o.RTop, "out", "fb")
	ckt.AddResistor(o.RBot, "fb", gnd)
	o.Amp.Stamp(ckt, ampdiff.Nets{Prefix: "amp_", InP: "fb", InN: gnd, Out: "ret"})
	ckt.AddCapacitor(o.passCap(), "ret", gnd)
	return ckt.TransferFunction("test", "ret", circuit.Voltage)
}

type Designer struct {
	env dsn.Env
}

func New(env dsn.Env) *Designer { return &Designer{env: env} }

func (d *Designer) validate(spec Spec) error {
	switch {
	case spec.VDD <= 0:
		return dsn.Invalid(Block, "vdd", "%g must be positive", spec.VDD)
	case spec.VOut <= 0 || spec.VOut >= spec.VDD:
		return dsn.Invalid(Block, "vout", "%g outside (0, vdd)", spec.VOut)
	case spec.VRef <= 0 || spec.VRef >= spec.VOut:
		return dsn.Invalid(Block, "vref", "%g outside (0, vout)", spec.VRef)
	case spec.ILoad <= 0:
		return dsn.Invalid(Block, "iload", "%g must be positive", spec.ILoad)
	case spec.IbiasMax <= spec.IFb:
		return dsn.Invalid(Block, "ibias_max", "%g does not cover the divider current %g", spec.IbiasMax, spec.IFb)
	}
	return nil
}

func (d *Designer) Search(spec Spec) ([]Op, error) {
	spec = spec.withDefaults()
	if err := d.validate(spec); err != nil {
		return nil, err
	}
	env := d.env
	dbPass, err := env.DB("pass", opdb.PMOS)
	if err != nil {
		return nil, err
	}
	step := env.Step()
	vth, err := dsn.EstimateVthAt(dbPass, opdb.PMOS, -spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}

	ipass := spec.ILoad + spec.IFb
	base := Op{RTop: (spec.VOut - spec.VRef) / spec.IFb, RBot: spec.VRef / spec.IFb}
	amp := ampdiff.NewMirrBias(env)

	var cands []Op
	for vpg := range dsn.Span(spec.VDD+vth-step, step, step).Values() {
		op := base
		op.VPG = vpg
		op.Pass, err = dbPass.Query(vpg-spec.VDD, spec.VOut-spec.VDD, 0)
		if err != nil {
			return nil, err
		}
		if op.Dropout() > spec.VDD-spec.VOut {
			env.Logf("%s: vpg=%.4f: pass device leaves saturation", Block, vpg)
			continue
		}
		nf, ok := dsn.MatchCurrent(ipass, op.Pass.Ibias, env.Tol())
		if !ok {
			continue
		}
		op.NfPass = nf

		amps, err := amp.Search(ampdiff.Spec{
			InType: "n", VDD: spec.VDD, VInCM: spec.VRef, VOut: vpg,
			CLoad: op.passCap(), GainMin: spec.AmpGainMin, IbiasMax: spec.IbiasMax - spec.IFb,
		})
		if err != nil {
			if !dsn.IsNoSolution(err) {
				env.Logf("%s: amplifier: %v", Block, err)
			}
			continue
		}
		for _, a := range amps {
			c, v := d.compose(op, a, spec)
			if v == dsn.Accept {
				cands = append(cands, c)
			}
		}
	}

	if len(cands) == 0 {
		return nil, dsn.NoSolution(Block, "no pass gate voltage regulates %g A at %g V", spec.ILoad, spec.VOut)
	}
	env.Logf("%s: %d viable operating points", Block, len(cands))
	return cands, nil
}

func (d *Designer) compose(op Op, a ampdiff.Op, spec Spec) (Op, dsn.Verdict) {
	env := d.env
	op.Amp = a
	op.Ibias = dsn.TotalIbias(a.Ibias, spec.IFb)
	if v := env.Judge(Block, dsn.Max("ibias", op.Ibias, spec.IbiasMax)); v != dsn.Accept {
		return op, v
	}

	t, err := op.loopTF(spec)
	if err != nil {
		env.Logf("%s: %s: %v", Block, op.Key(), err)
		return op, dsn.Skip
	}
	op.Loop = analysis.ReturnRatio(t)
	op.LoopGain = analysis.DCGain(op.Loop)
	m := analysis.StabilityMargins(op.Loop)
	op.UGF, op.PM = m.UGF, m.PM
	if op.LoopGain <= 0 {
		env.Logf("%s: %s: positive feedback", Block, op.Key())
		return op, dsn.Skip
	}
	op.Stable, err = analysis.Stable(analysis.ClosedLoop(op.Loop))
	if err != nil || !op.Stable {
		env.Logf("%s: %s: closed loop unstable (%v)", Block, op.Key(), err)
		return op, dsn.Skip
	}

	return op, env.Judge(Block,
		dsn.Min("loop gain", op.LoopGain, spec.LoopGainMin),
		dsn.Min("pm", op.PM, spec.PMMin),
	)
}

func (d *Designer) Compare(a, b Op) Op { return dsn.MinIbias(a, b) }

func (d *Designer) SchParams(op Op) dsn.SchParams {
	p := d.env.Sch(map[string]int{"pass": op.NfPass})
	p.Values["rtop"] = op.RTop
	p.Values["rbot"] = op.RBot
	p.Values["vpg"] = op.VPG
	p.Values["dropout"] = op.Dropout()
	p.Values["ibias"] = op.Ibias
	p.Sub = map[string]dsn.SchParams{"amp": ampdiff.NewMirrBias(d.env).SchParams(op.Amp)}
	return p
}

func (d *Designer) Design(spec Spec) (dsn.Result[Op], error) {
	cands, err := d.Search(spec)
	if err != nil {
		return dsn.Result[Op]{}, err
	}
	spec = spec.withDefaults()
	tb := map[string]float64{
		"vdd": spec.VDD, "vref": spec.VRef, "iload": spec.ILoad,
		"cload": spec.CLoad, "rload": spec.RLoad,
	}
	return dsn.Finish(d.env, Block, cands, d.Compare, d.SchParams, tb)
}

// Dropout is the smallest supply-to-output drop that keeps the pass device
// saturated.
func (o Op) Dropout() float64 { return math.Abs(o.Pass.Vstar) }
