// Package bandgap designs a PTAT/CTAT bandgap reference: a PMOS mirror
// feeding a unit diode (branch a), an N-times diode behind R1 (branch b)
// and an output branch R2 plus unit diode, with an error amplifier holding
// a and b equal and a constant-gm generator biasing the amplifier tail.
package bandgap

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-dsn/internal/consts"
	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/blocks/ampdiff"
	"github.com/edp1096/toy-dsn/pkg/blocks/constgm"
	"github.com/edp1096/toy-dsn/pkg/circuit"
	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/opdb"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

const (
	Block = "bandgap"

	DefaultRatio    = 8
	DefaultIs       = 1e-17
	DefaultIdeality = 1.0
)

type Spec struct {
	VDD  float64 `yaml:"vdd"`
	VRef float64 `yaml:"vref"`
	Temp float64 `yaml:"temp"` // K

	N        int     `yaml:"n"`        // diode area ratio
	Is       float64 `yaml:"is"`       // unit diode saturation current
	Ideality float64 `yaml:"ideality"` // diode emission coefficient

	IMin  float64 `yaml:"i_min"` // branch current grid
	IMax  float64 `yaml:"i_max"`
	IStep float64 `yaml:"i_step"`

	AmpGainMin   float64 `yaml:"amp_gain_min"`
	LoopGainMin  float64 `yaml:"loop_gain_min"`
	PMMin        float64 `yaml:"pm_min"`
	IbiasMax     float64 `yaml:"ibias_max"`
	BiasIbiasMax float64 `yaml:"bias_ibias_max"`
}

func (s Spec) withDefaults() Spec {
	if s.Temp == 0 {
		s.Temp = consts.TNOM
	}
	if s.N == 0 {
		s.N = DefaultRatio
	}
	if s.Is == 0 {
		s.Is = DefaultIs
	}
	if s.Ideality == 0 {
		s.Ideality = DefaultIdeality
	}
	return s
}

type Op struct {
	I   float64 // branch current
	VBE float64
	R1  float64
	R2  float64
	Rd  float64 // diode small-signal resistance

	VPG     float64
	NfP     int // mirror branches a and b
	NfOut   int // output branch
	P, POut opdb.OperatingPoint

	Amp  ampdiff.Op
	Bias constgm.Op

	Loop     poly.TF
	LoopGain float64
	UGF      float64
	PM       float64
	Ibias    float64
}

func (o Op) Perf() dsn.Metrics {
	return dsn.Metrics{Ibias: o.Ibias, Gain: o.LoopGain, UGF: o.UGF, PM: o.PM}
}

func (o Op) Key() string {
	return fmt.Sprintf("i=%.4g vpg=%.4f nfp=%d [%s] [%s]", o.I, o.VPG, o.NfP, o.Amp.Key(), o.Bias.Key())
}

func (o Op) mirrorCap() float64 { return float64(2*o.NfP+o.NfOut) * o.P.Cgg }

// loopTF breaks the loop at the mirror gates and returns the transmission
// from the test source to the amplifier output.
func (o Op) loopTF() (poly.TF, error) {
	gnd := circuit.Gnd
	nfp := float64(o.NfP)
	ckt := circuit.New(Block + "_loop")
	ckt.AddTransistor(o.P, "va", "test", gnd, gnd, nfp)
	ckt.AddTransistor(o.P, "vb", "test", gnd, gnd, nfp)
	ckt.AddResistor(o.Rd, "va", gnd)
	ckt.AddResistor(o.R1, "vb", "vq")
	ckt.AddResistor(o.Rd, "vq", gnd)
	o.Amp.Stamp(ckt, ampdiff.Nets{Prefix: "amp_", InP: "vb", InN: "va", Out: "ret"})
	ckt.AddCapacitor(o.mirrorCap(), "ret", gnd)
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
	case spec.VRef <= 0 || spec.VRef >= spec.VDD:
		return dsn.Invalid(Block, "vref", "%g outside (0, vdd)", spec.VRef)
	case spec.N < 2:
		return dsn.Invalid(Block, "n", "diode ratio %d must be at least 2", spec.N)
	case spec.IMin <= 0 || spec.IMax < spec.IMin:
		return dsn.Invalid(Block, "i_min", "current grid %g..%g", spec.IMin, spec.IMax)
	case spec.IMax > spec.IMin && spec.IStep <= 0:
		return dsn.Invalid(Block, "i_step", "%g must be positive", spec.IStep)
	case spec.IbiasMax <= 0:
		return dsn.Invalid(Block, "ibias_max", "%g must be positive", spec.IbiasMax)
	}
	return nil
}

func (d *Designer) Search(spec Spec) ([]Op, error) {
	spec = spec.withDefaults()
	if err := d.validate(spec); err != nil {
		return nil, err
	}
	env := d.env
	dbP, err := env.DB("p", opdb.PMOS)
	if err != nil {
		return nil, err
	}
	step := env.Step()
	vt := consts.ThermalVoltage(spec.Temp)
	vthP, err := dsn.EstimateVthAt(dbP, opdb.PMOS, -spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}

	iGrid := dsn.Point(spec.IMin)
	if spec.IMax > spec.IMin {
		iGrid = dsn.Span(spec.IMin, spec.IMax, spec.IStep)
	}

	amp := ampdiff.NewMirrBias(env)
	bias := constgm.NewCache(constgm.New(env))

	var cands []Op
	dsn.Sweep(iGrid.Values(), func(i float64) dsn.Verdict {
		budget := spec.IbiasMax - 3*i
		if budget <= 0 {
			env.Logf("%s: branch current %g exhausts ibias_max", Block, i)
			return dsn.Stop
		}
		base := Op{
			I:   i,
			VBE: spec.Ideality * vt * math.Log(i/spec.Is),
			R1:  vt * math.Log(float64(spec.N)) / i,
			Rd:  spec.Ideality * vt / i,
		}
		base.R2 = (spec.VRef - base.VBE) / i
		if base.R2 <= 0 {
			env.Logf("%s: vbe %g above vref at i=%g", Block, base.VBE, i)
			return dsn.Skip
		}

		for vpg := range dsn.Span(spec.VDD+vthP-step, base.VBE, step).Values() {
			opP, err := dbP.Query(vpg-spec.VDD, base.VBE-spec.VDD, 0)
			if err != nil {
				env.Logf("%s: %v", Block, err)
				continue
			}
			opOut, err := dbP.Query(vpg-spec.VDD, spec.VRef-spec.VDD, 0)
			if err != nil {
				env.Logf("%s: %v", Block, err)
				continue
			}
			nfP, ok := dsn.MatchCurrent(i, opP.Ibias, env.Tol())
			if !ok {
				continue
			}
			nfOut, ok := dsn.MatchCurrent(i, opOut.Ibias, env.Tol())
			if !ok {
				continue
			}
			op := base
			op.VPG, op.NfP, op.NfOut, op.P, op.POut = vpg, nfP, nfOut, opP, opOut

			ampSpec := ampdiff.Spec{
				InType: "n", VDD: spec.VDD, VInCM: op.VBE, VOut: vpg,
				CLoad: op.mirrorCap(), GainMin: spec.AmpGainMin, IbiasMax: budget,
			}
			amps, err := amp.Search(ampSpec)
			if dsn.IsNoSolution(err) {
				continue
			}
			if err != nil {
				env.Logf("%s: amplifier: %v", Block, err)
				continue
			}
			for _, a := range amps {
				c, v := d.compose(op, a, bias, spec, budget)
				if v == dsn.Accept {
					cands = append(cands, c)
				}
			}
		}
		return dsn.Accept
	})

	if len(cands) == 0 {
		return nil, dsn.NoSolution(Block, "no branch current in %g..%g closes the loop", spec.IMin, spec.IMax)
	}
	return cands, nil
}

func (d *Designer) compose(op Op, a ampdiff.Op, bias *constgm.Cache, spec Spec, budget float64) (Op, dsn.Verdict) {
	env := d.env
	op.Amp = a

	biasBudget := spec.BiasIbiasMax
	if biasBudget == 0 {
		biasBudget = budget
	}
	cg, err := bias.Best(constgm.Spec{VDD: spec.VDD, IbiasMax: biasBudget, VBNTarget: a.TailGate()})
	if err != nil {
		if !dsn.IsNoSolution(err) {
			env.Logf("%s: bias: %v", Block, err)
		}
		return op, dsn.Skip
	}
	op.Bias = cg

	mirror := 2*float64(op.NfP)*math.Abs(op.P.Ibias) + float64(op.NfOut)*math.Abs(op.POut.Ibias)
	op.Ibias = mirror + a.Ibias + cg.Ibias

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
		env.Logf("%s: %s: positive feedback", Block, op.Key())
		return op, dsn.Skip
	}
	return op, env.Judge(Block,
		dsn.Max("ibias", op.Ibias, spec.IbiasMax),
		dsn.Min("loop gain", op.LoopGain, spec.LoopGainMin),
		dsn.Min("pm", op.PM, spec.PMMin),
	)
}

func (d *Designer) Compare(a, b Op) Op { return dsn.MinIbias(a, b) }

func (d *Designer) SchParams(op Op) dsn.SchParams {
	p := d.env.Sch(map[string]int{"p": op.NfP, "p_out": op.NfOut})
	p.Values["res1"] = op.R1
	p.Values["res2"] = op.R2
	p.Values["ibranch"] = op.I
	p.Values["vpg"] = op.VPG
	p.Values["ibias"] = op.Ibias
	p.Sub = map[string]dsn.SchParams{
		"amp":  ampdiff.NewMirrBias(d.env).SchParams(op.Amp),
		"bias": constgm.New(d.env).SchParams(op.Bias),
	}
	return p
}

func (d *Designer) Design(spec Spec) (dsn.Result[Op], error) {
	cands, err := d.Search(spec)
	if err != nil {
		return dsn.Result[Op]{}, err
	}
	tb := map[string]float64{"vdd": spec.VDD, "vref": spec.VRef}
	return dsn.Finish(d.env, Block, cands, d.Compare, d.SchParams, tb)
}
