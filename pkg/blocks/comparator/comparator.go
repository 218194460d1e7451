// Package comparator designs a comparator front end: a fully differential
// preamp, the mirror amplifier closing its common-mode loop through the load
// gates, and a constant-gm generator driving the shared tail gate.
package comparator

import (
	"fmt"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/blocks/ampdiff"
	"github.com/edp1096/toy-dsn/pkg/blocks/constgm"
	"github.com/edp1096/toy-dsn/pkg/circuit"
	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/opdb"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

const (
	Block = "comparator"

	// DefaultRcmRatio sizes the averaging resistors against the preamp
	// output resistance.
	DefaultRcmRatio = 20
)

type Spec struct {
	InType string  `yaml:"in_type"`
	VDD    float64 `yaml:"vdd"`
	VInCM  float64 `yaml:"vincm"`
	VOutCM float64 `yaml:"voutcm"`
	CLoad  float64 `yaml:"cload"`

	GainMin  float64 `yaml:"gain_min"`
	GainMax  float64 `yaml:"gain_max"`
	BWMin    float64 `yaml:"bw_min"`
	IbiasMax float64 `yaml:"ibias_max"` // preamp

	Rcm          float64 `yaml:"rcm"` // 0 scales with the preamp
	SysGainMin   float64 `yaml:"sys_gain_min"`
	CMFBGainMin  float64 `yaml:"cmfb_gain_min"`
	CMFBIbiasMax float64 `yaml:"cmfb_ibias_max"`
	PMMin        float64 `yaml:"pm_min"`
	BiasIbiasMax float64 `yaml:"bias_ibias_max"`
	TotalMax     float64 `yaml:"total_ibias_max"`
}

func (s Spec) preamp() PreampSpec {
	return PreampSpec{
		InType: s.InType, VDD: s.VDD, VInCM: s.VInCM, VOutCM: s.VOutCM, CLoad: s.CLoad,
		GainMin: s.GainMin, GainMax: s.GainMax, BWMin: s.BWMin, IbiasMax: s.IbiasMax,
	}
}

type Op struct {
	Preamp Preamp
	CMFB   ampdiff.Op
	Bias   constgm.Op

	Rcm  float64
	Gain float64 // differential, with the averaging resistors
	BW   float64
	TF   poly.TF

	Loop     poly.TF // common-mode loop gain
	LoopGain float64
	UGF      float64
	PM       float64

	Ibias float64
}

func (o Op) Perf() dsn.Metrics {
	return dsn.Metrics{Ibias: o.Ibias, Gain: o.Gain, BW: o.BW, UGF: o.UGF, PM: o.PM}
}

func (o Op) Key() string {
	return fmt.Sprintf("[%s] [%s] [%s]", o.Preamp.Key(), o.CMFB.Key(), o.Bias.Key())
}

// stamp builds the closed common-mode loop around the preamp.
func (o Op) stamp(ckt *circuit.Circuit, inP, inN, loadGate, cmfbOut string) {
	o.Preamp.Stamp(ckt, PreampNets{
		Prefix: "pre_", InP: inP, InN: inN, OutP: "outp", OutN: "outn", LoadGate: loadGate,
	})
	ckt.AddResistor(o.Rcm, "outp", "cm")
	ckt.AddResistor(o.Rcm, "outn", "cm")
	o.CMFB.Stamp(ckt, ampdiff.Nets{Prefix: "cmfb_", InP: "cm", InN: circuit.Gnd, Out: cmfbOut})
}

func (o Op) differential() (poly.TF, error) {
	return differential(Block, func(ckt *circuit.Circuit, inP, inN string) {
		o.stamp(ckt, inP, inN, "vload", "vload")
	})
}

// loopTF breaks the common-mode loop at the load gates and returns the
// transmission from the test source back to the amplifier output.
func (o Op) loopTF() (poly.TF, error) {
	gnd := circuit.Gnd
	ckt := circuit.New(Block + "_cm_loop")
	o.stamp(ckt, gnd, gnd, "test", "ret")
	ckt.AddCapacitor(o.Preamp.LoadGateCap(), "ret", gnd)
	return ckt.TransferFunction("test", "ret", circuit.Voltage)
}

type Designer struct {
	env dsn.Env
}

func New(env dsn.Env) *Designer { return &Designer{env: env} }

func (d *Designer) validate(spec Spec) error {
	if pol, err := opdb.ParsePolarity(spec.InType); err != nil || pol != opdb.NMOS {
		return dsn.Invalid(Block, "in_type", "%q: the bias generator drives an nmos tail", spec.InType)
	}
	if spec.Rcm < 0 {
		return dsn.Invalid(Block, "rcm", "%g must not be negative", spec.Rcm)
	}
	return nil
}

func (d *Designer) Search(spec Spec) ([]Op, error) {
	if err := d.validate(spec); err != nil {
		return nil, err
	}
	env := d.env

	pres, err := NewPreamp(env).Search(spec.preamp())
	if err != nil {
		return nil, err
	}

	cmfbBudget := spec.CMFBIbiasMax
	if cmfbBudget == 0 {
		cmfbBudget = spec.IbiasMax
	}
	biasBudget := spec.BiasIbiasMax
	if biasBudget == 0 {
		biasBudget = spec.IbiasMax
	}

	cmfb := newCMFBCache(ampdiff.NewMirr(env))
	bias := constgm.NewCache(constgm.New(env))

	var cands []Op
	for _, p := range pres {
		amps, err := cmfb.search(ampdiff.Spec{
			InType: spec.InType, VDD: spec.VDD, VInCM: spec.VOutCM,
			VOut: p.LoadGate(), VTailBias: p.VTailBias, CLoad: p.LoadGateCap(),
			GainMin: spec.CMFBGainMin, IbiasMax: cmfbBudget,
		})
		if err != nil {
			if !dsn.IsNoSolution(err) {
				env.Logf("%s: cmfb: %v", Block, err)
			}
			continue
		}
		cg, err := bias.Best(constgm.Spec{VDD: spec.VDD, IbiasMax: biasBudget, VBNTarget: p.TailGate()})
		if err != nil {
			if !dsn.IsNoSolution(err) {
				env.Logf("%s: bias: %v", Block, err)
			}
			continue
		}
		for _, a := range amps {
			op, v := d.compose(p, a, cg, spec)
			if v == dsn.Accept {
				cands = append(cands, op)
			}
		}
	}

	if len(cands) == 0 {
		return nil, dsn.NoSolution(Block, "none of %d preamp candidates closes the common-mode loop", len(pres))
	}
	env.Logf("%s: %d viable compositions", Block, len(cands))
	return cands, nil
}

func (d *Designer) compose(p Preamp, a ampdiff.Op, cg constgm.Op, spec Spec) (Op, dsn.Verdict) {
	env := d.env
	op := Op{Preamp: p, CMFB: a, Bias: cg, Rcm: spec.Rcm}
	if op.Rcm == 0 {
		op.Rcm = DefaultRcmRatio * p.Rout()
	}
	op.Ibias = dsn.TotalIbias(p.Ibias, a.Ibias, cg.Ibias)
	if v := env.Judge(Block, dsn.Max("ibias", op.Ibias, spec.TotalMax)); v != dsn.Accept {
		return op, v
	}

	tf, err := op.differential()
	if err != nil {
		env.Logf("%s: %s: %v", Block, op.Key(), err)
		return op, dsn.Skip
	}
	op.TF = tf
	op.Gain = analysis.DCGain(tf)
	op.BW = analysis.Bandwidth3dB(tf)

	t, err := op.loopTF()
	if err != nil {
		env.Logf("%s: %s: %v", Block, op.Key(), err)
		return op, dsn.Skip
	}
	op.Loop = analysis.ReturnRatio(t)
	op.LoopGain = analysis.DCGain(op.Loop)
	m := analysis.StabilityMargins(op.Loop)
	op.UGF, op.PM = m.UGF, m.PM
	if op.LoopGain <= 0 {
		env.Logf("%s: %s: common-mode loop has positive feedback", Block, op.Key())
		return op, dsn.Skip
	}

	return op, env.Judge(Block,
		dsn.Min("gain", op.Gain, spec.SysGainMin),
		dsn.Min("bw", op.BW, spec.BWMin),
		dsn.Min("cm pm", op.PM, spec.PMMin),
	)
}

// Compare picks the cheapest composition; bandwidth preference lives in
// the preamp rule.
func (d *Designer) Compare(a, b Op) Op { return dsn.MinIbias(a, b) }

func (d *Designer) SchParams(op Op) dsn.SchParams {
	p := d.env.Sch(nil)
	p.Values["rcm"] = op.Rcm
	p.Values["ibias"] = op.Ibias
	p.Sub = map[string]dsn.SchParams{
		"preamp": NewPreamp(d.env).SchParams(op.Preamp),
		"cmfb":   ampdiff.NewMirr(d.env).SchParams(op.CMFB),
		"bias":   constgm.New(d.env).SchParams(op.Bias),
	}
	return p
}

func (d *Designer) Design(spec Spec) (dsn.Result[Op], error) {
	cands, err := d.Search(spec)
	if err != nil {
		return dsn.Result[Op]{}, err
	}
	tb := map[string]float64{"vdd": spec.VDD, "vincm": spec.VInCM, "voutcm": spec.VOutCM, "cload": spec.CLoad}
	return dsn.Finish(d.env, Block, cands, d.Compare, d.SchParams, tb)
}

// cmfbCache shares common-mode amplifier searches between preamp
// candidates that differ only in input sizing.
type cmfbCache struct {
	d    *ampdiff.Designer
	done map[string]cmfbEntry
}

type cmfbEntry struct {
	ops []ampdiff.Op
	err error
}

func newCMFBCache(d *ampdiff.Designer) *cmfbCache {
	return &cmfbCache{d: d, done: make(map[string]cmfbEntry)}
}

func (c *cmfbCache) search(spec ampdiff.Spec) ([]ampdiff.Op, error) {
	key := fmt.Sprintf("%.6f/%.6f/%.6g", spec.VOut, spec.VTailBias, spec.CLoad)
	if e, ok := c.done[key]; ok {
		return e.ops, e.err
	}
	ops, err := c.d.Search(spec)
	c.done[key] = cmfbEntry{ops: ops, err: err}
	return ops, err
}
