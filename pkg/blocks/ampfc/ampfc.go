// Package ampfc designs a fully differential folded-cascode amplifier.
//
// For an NMOS input pair the fold devices (top) and their cascodes are
// PMOS at the supply, the output sinks (bot) and their cascodes are NMOS at
// ground. A PMOS input mirrors everything. Each fold leg carries the input
// current plus an equal cascode current, so top devices get twice the input
// fingers and every other leg device gets the input finger count.
package ampfc

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/circuit"
	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/opdb"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

const Block = "amp_folded_cascode"

type Spec struct {
	InType string  `yaml:"in_type"`
	VDD    float64 `yaml:"vdd"`
	VInCM  float64 `yaml:"vincm"`
	VOutCM float64 `yaml:"voutcm"`

	CLoad    float64 `yaml:"cload"`
	GainMin  float64 `yaml:"gain_min"`
	GainMax  float64 `yaml:"gain_max"`
	BWMin    float64 `yaml:"bw_min"`
	UGFMin   float64 `yaml:"ugf_min"`
	PMMin    float64 `yaml:"pm_min"`
	IbiasMax float64 `yaml:"ibias_max"`
}

// Leg is one solved device of the fold: its op and absolute gate voltage.
type Leg struct {
	Op   opdb.OperatingPoint
	Gate float64
}

type Op struct {
	InType opdb.Polarity
	VDD    float64
	VInCM  float64
	VOutCM float64

	VTail     float64
	VFold     float64
	VMid      float64
	VTailBias float64 // |vgs| of the tail

	In, Tail              opdb.OperatingPoint
	Top, CascTop, CascBot Leg
	Bot                   Leg

	NfIn, NfTail, NfTop int

	CLoad float64
	Ibias float64
	Gain  float64
	BW    float64
	UGF   float64
	PM    float64
	TF    poly.TF
}

func (o Op) Perf() dsn.Metrics {
	return dsn.Metrics{Ibias: o.Ibias, Gain: o.Gain, BW: o.BW, UGF: o.UGF, PM: o.PM}
}

func (o Op) Key() string {
	return fmt.Sprintf("%s vtail=%.4f vfold=%.4f vmid=%.4f vbias=%.4f nf=%d/%d/%d",
		o.InType, o.VTail, o.VFold, o.VMid, o.VTailBias, o.NfIn, o.NfTail, o.NfTop)
}

// Stamp adds the amplifier between inp/inn and outp/outn. Bias gates are
// small-signal ground.
func (o Op) Stamp(ckt *circuit.Circuit, prefix, inp, inn, outp, outn string) {
	gnd := circuit.Gnd
	nf := float64(o.NfIn)
	tail := prefix + "tail"
	ckt.AddTransistor(o.Tail, tail, gnd, gnd, gnd, float64(o.NfTail))

	// inp folds into the outn leg
	for _, side := range []struct{ in, out, sfx string }{{inp, outn, "n"}, {inn, outp, "p"}} {
		fold := prefix + "fold" + side.sfx
		mid := prefix + "mid" + side.sfx
		ckt.AddTransistor(o.In, fold, side.in, tail, gnd, nf)
		ckt.AddTransistor(o.Top.Op, fold, gnd, gnd, gnd, float64(o.NfTop))
		ckt.AddTransistor(o.CascTop.Op, side.out, gnd, fold, gnd, nf)
		ckt.AddTransistor(o.CascBot.Op, side.out, gnd, mid, gnd, nf)
		ckt.AddTransistor(o.Bot.Op, mid, gnd, gnd, gnd, nf)
	}
}

func (o Op) half(side string) (poly.TF, error) {
	ckt := circuit.New(Block + "_" + side)
	inp, inn := circuit.Gnd, circuit.Gnd
	in := "in" + side
	if side == "p" {
		inp = in
	} else {
		inn = in
	}
	o.Stamp(ckt, "", inp, inn, "outp", "outn")
	if o.CLoad > 0 {
		ckt.AddCapacitor(o.CLoad, "outp", circuit.Gnd)
		ckt.AddCapacitor(o.CLoad, "outn", circuit.Gnd)
	}
	tf, err := ckt.TransferFunctionDiff(in, "outp", "outn", circuit.Voltage)
	return tf, errors.Wrapf(err, "%s side", side)
}

// Differential is the differential-in, differential-out transfer function.
func (o Op) Differential() (poly.TF, error) {
	hp, err := o.half("p")
	if err != nil {
		return poly.TF{}, err
	}
	hn, err := o.half("n")
	if err != nil {
		return poly.TF{}, err
	}
	return dsn.Superpose(hp, hn), nil
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
	case spec.VInCM <= 0 || spec.VInCM >= spec.VDD:
		return pol, dsn.Invalid(Block, "vincm", "%g outside (0, vdd)", spec.VInCM)
	case spec.VOutCM <= 0 || spec.VOutCM >= spec.VDD:
		return pol, dsn.Invalid(Block, "voutcm", "%g outside (0, vdd)", spec.VOutCM)
	case spec.IbiasMax <= 0:
		return pol, dsn.Invalid(Block, "ibias_max", "%g must be positive", spec.IbiasMax)
	}
	return pol, nil
}

type dbs struct {
	in, tail, top, cascTop, cascBot, bot opdb.Database
}

func (d *Designer) databases(pol opdb.Polarity) (dbs, error) {
	var (
		out dbs
		err error
	)
	opp := pol.Opposite()
	for _, r := range []struct {
		role string
		pol  opdb.Polarity
		db   *opdb.Database
	}{
		{"in", pol, &out.in},
		{"tail", pol, &out.tail},
		{"top", opp, &out.top},
		{"casc_top", opp, &out.cascTop},
		{"casc_bot", pol, &out.cascBot},
		{"bot", pol, &out.bot},
	} {
		if *r.db, err = d.env.DB(r.role, r.pol); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (d *Designer) Search(spec Spec) ([]Op, error) {
	pol, err := d.validate(spec)
	if err != nil {
		return nil, err
	}
	env := d.env
	db, err := d.databases(pol)
	if err != nil {
		return nil, err
	}

	s := pol.Sign()
	step := env.Step()
	railIn, railLoad := dsn.Rails(pol, spec.VDD)

	vthIn, err := dsn.EstimateVthAt(db.in, pol, s*spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}
	vthTail, err := dsn.EstimateVthAt(db.tail, pol, s*spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}
	biasGrid := dsn.Span(math.Abs(vthTail)+step, spec.VDD, step)

	var cands []Op
	for vtail := range dsn.Span(railIn+s*step, spec.VInCM-vthIn, step).Values() {
		for vfold := range dsn.Span(spec.VOutCM+s*step, railLoad-s*step, step).Values() {
			opIn, err := db.in.Query(spec.VInCM-vtail, vfold-vtail, railIn-vtail)
			if err != nil {
				return nil, err
			}
			if opIn.Ibias == 0 {
				continue
			}
			nfMax := int(spec.IbiasMax / (4 * math.Abs(opIn.Ibias)))

			for vmid := range dsn.Span(railIn+s*step, spec.VOutCM-s*step, step).Values() {
				base, ok, err := d.solveLegs(db, pol, spec, opIn, vtail, vfold, vmid)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				for vbias := range biasGrid.Values() {
					opTail, err := db.tail.Query(s*vbias, vtail-railIn, 0)
					if err != nil {
						return nil, err
					}
					if opTail.Ibias == 0 {
						continue
					}
					base.Tail, base.VTailBias = opTail, vbias
					dsn.Sweep(dsn.Sizes(1, nfMax, 1), func(nf int) dsn.Verdict {
						op, v := d.size(base, nf, spec)
						if v == dsn.Accept {
							cands = append(cands, op)
						}
						return v
					})
				}
			}
		}
	}

	if len(cands) == 0 {
		return nil, dsn.NoSolution(Block, "no operating point meets gain %g bw %g ugf %g pm %g ibias %g",
			spec.GainMin, spec.BWMin, spec.UGFMin, spec.PMMin, spec.IbiasMax)
	}
	return cands, nil
}

// solveLegs finds the gate voltages of the fold devices so each finger
// carries the input finger current. ok is false when a device cannot.
func (d *Designer) solveLegs(db dbs, pol opdb.Polarity, spec Spec, opIn opdb.OperatingPoint, vtail, vfold, vmid float64) (Op, bool, error) {
	opp := pol.Opposite()
	railIn, railLoad := dsn.Rails(pol, spec.VDD)
	target := opIn.Ibias

	// the gate stays between the rails: |vgs| is bounded by the headroom
	// from the source to the far rail
	solve := func(db opdb.Database, p opdb.Polarity, vs, vd, vb float64) (Leg, bool, error) {
		headroom := spec.VDD - vs
		if p == opdb.PMOS {
			headroom = vs
		}
		window := math.Min(d.env.GateWindow(spec.VDD), headroom)
		if window <= 0 {
			return Leg{}, false, nil
		}
		vgs, op, err := opdb.SolveVgs(db, p, vd-vs, vb-vs, target, window)
		if errors.Is(err, opdb.ErrNoBias) {
			return Leg{}, false, nil
		}
		if err != nil {
			return Leg{}, false, err
		}
		return Leg{Op: op, Gate: vs + vgs}, true, nil
	}

	op := Op{
		InType: pol, VDD: spec.VDD, VInCM: spec.VInCM, VOutCM: spec.VOutCM,
		VTail: vtail, VFold: vfold, VMid: vmid, In: opIn, CLoad: spec.CLoad,
	}
	var ok bool
	var err error
	if op.Top, ok, err = solve(db.top, opp, railLoad, vfold, railLoad); !ok || err != nil {
		return op, false, err
	}
	if op.CascTop, ok, err = solve(db.cascTop, opp, vfold, spec.VOutCM, railLoad); !ok || err != nil {
		return op, false, err
	}
	if op.CascBot, ok, err = solve(db.cascBot, pol, vmid, spec.VOutCM, railIn); !ok || err != nil {
		return op, false, err
	}
	if op.Bot, ok, err = solve(db.bot, pol, railIn, vmid, railIn); !ok || err != nil {
		return op, false, err
	}
	return op, true, nil
}

func (d *Designer) size(op Op, nf int, spec Spec) (Op, dsn.Verdict) {
	env := d.env
	nfTail, ok := dsn.VerifyRatio(op.In.Ibias, op.Tail.Ibias, 2*nf, env.Tol())
	if !ok {
		return op, dsn.Skip
	}
	op.NfIn, op.NfTail, op.NfTop = nf, nfTail, 2*nf
	op.Ibias = 2 * float64(op.NfTop) * math.Abs(op.Top.Op.Ibias)

	if v := env.Judge(Block, dsn.MaxRising("ibias", op.Ibias, spec.IbiasMax)); v != dsn.Accept {
		return op, v
	}

	tf, err := op.Differential()
	if err != nil {
		env.Logf("%s: %s: %v", Block, op.Key(), err)
		return op, dsn.Skip
	}
	op.TF = tf
	op.Gain = math.Abs(analysis.DCGain(tf))
	op.BW = analysis.Bandwidth3dB(tf)
	m := analysis.StabilityMargins(tf)
	op.UGF, op.PM = m.UGF, m.PM

	return op, env.Judge(Block,
		dsn.Min("gain", op.Gain, spec.GainMin),
		dsn.MaxRising("gain", op.Gain, spec.GainMax),
		dsn.Min("bw", op.BW, spec.BWMin),
		dsn.Min("ugf", op.UGF, spec.UGFMin),
		dsn.Min("pm", op.PM, spec.PMMin),
	)
}

func (d *Designer) Compare(a, b Op) Op { return dsn.MinIbias(a, b) }

func (d *Designer) SchParams(op Op) dsn.SchParams {
	p := d.env.Sch(map[string]int{
		"in": op.NfIn, "tail": op.NfTail, "top": op.NfTop,
		"casc_top": op.NfIn, "casc_bot": op.NfIn, "bot": op.NfIn,
	})
	p.Values["vtail"] = op.VTail
	p.Values["vfold"] = op.VFold
	p.Values["vmid"] = op.VMid
	p.Values["vbias_tail"] = op.TailGate()
	p.Values["vbias_top"] = op.Top.Gate
	p.Values["vbias_casc_top"] = op.CascTop.Gate
	p.Values["vbias_casc_bot"] = op.CascBot.Gate
	p.Values["vbias_bot"] = op.Bot.Gate
	p.Values["ibias"] = op.Ibias
	return p
}

func (o Op) TailGate() float64 {
	if o.InType == opdb.PMOS {
		return o.VDD - o.VTailBias
	}
	return o.VTailBias
}

func (d *Designer) Design(spec Spec) (dsn.Result[Op], error) {
	cands, err := d.Search(spec)
	if err != nil {
		return dsn.Result[Op]{}, err
	}
	tb := map[string]float64{"vdd": spec.VDD, "vincm": spec.VInCM, "voutcm": spec.VOutCM, "cload": spec.CLoad}
	return dsn.Finish(d.env, Block, cands, d.Compare, d.SchParams, tb)
}
