// Package constgm designs a beta-multiplier constant-gm bias generator:
// a diode NMOS (n1) and a source-degenerated NMOS (n2) sharing their gate,
// closed by a PMOS mirror (p).
package constgm

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/circuit"
	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/opdb"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

const (
	Block = "constant_gm"

	DefaultLoopGainMax = 0.9
)

type Spec struct {
	VDD      float64 `yaml:"vdd"`
	IbiasMin float64 `yaml:"ibias_min"`
	IbiasMax float64 `yaml:"ibias_max"`
	// VBNTarget pins the NMOS gate output; 0 sweeps it.
	VBNTarget   float64 `yaml:"vbn_target"`
	RMax        float64 `yaml:"r_max"`
	LoopGainMax float64 `yaml:"loop_gain_max"`
}

type Op struct {
	VDD float64
	VN  float64 // NMOS gate (vbn)
	VP  float64 // PMOS gate (vbp)
	VR  float64 // degeneration node

	NfN1, NfN2, NfP int
	N1, N2, P1, P2  opdb.OperatingPoint

	R        float64
	Ibias    float64
	LoopGain float64
	Loop     poly.TF
}

func (o Op) Perf() dsn.Metrics { return dsn.Metrics{Ibias: o.Ibias} }

func (o Op) Key() string {
	return fmt.Sprintf("vn=%.4f vp=%.4f vr=%.4f nf=%d/%d/%d", o.VN, o.VP, o.VR, o.NfN1, o.NfN2, o.NfP)
}

// Branch is the current of one branch.
func (o Op) Branch() float64 { return o.Ibias / 2 }

// loop breaks the mirror at the gate of p2 (the device feeding n1) and
// returns v(vp)/v(test).
func (o Op) loop() (poly.TF, error) {
	gnd := circuit.Gnd
	ckt := circuit.New(Block + "_loop")
	ckt.AddTransistor(o.N1, "vn", "vn", gnd, gnd, float64(o.NfN1))
	ckt.AddTransistor(o.N2, "vp", "vn", "vr", gnd, float64(o.NfN2))
	ckt.AddResistor(o.R, "vr", gnd)
	ckt.AddTransistor(o.P1, "vp", "vp", gnd, gnd, float64(o.NfP))
	ckt.AddTransistor(o.P2, "vn", "test", gnd, gnd, float64(o.NfP))
	// the broken gate still loads vp
	ckt.AddCapacitor(float64(o.NfP)*o.P2.Cgg, "vp", gnd)
	return ckt.TransferFunction("test", "vp", circuit.Voltage)
}

type Designer struct {
	env dsn.Env
}

func New(env dsn.Env) *Designer { return &Designer{env: env} }

func (d *Designer) validate(spec Spec) error {
	switch {
	case spec.VDD <= 0:
		return dsn.Invalid(Block, "vdd", "%g must be positive", spec.VDD)
	case spec.IbiasMax <= 0:
		return dsn.Invalid(Block, "ibias_max", "%g must be positive", spec.IbiasMax)
	case spec.IbiasMin > spec.IbiasMax:
		return dsn.Invalid(Block, "ibias_min", "%g above ibias_max %g", spec.IbiasMin, spec.IbiasMax)
	case spec.VBNTarget < 0 || spec.VBNTarget >= spec.VDD:
		return dsn.Invalid(Block, "vbn_target", "%g outside [0, vdd)", spec.VBNTarget)
	case spec.LoopGainMax < 0 || spec.LoopGainMax >= 1:
		return dsn.Invalid(Block, "loop_gain_max", "%g outside [0, 1)", spec.LoopGainMax)
	}
	return nil
}

func (d *Designer) Search(spec Spec) ([]Op, error) {
	if err := d.validate(spec); err != nil {
		return nil, err
	}
	if spec.LoopGainMax == 0 {
		spec.LoopGainMax = DefaultLoopGainMax
	}
	env := d.env

	dbN1, err := env.DB("n1", opdb.NMOS)
	if err != nil {
		return nil, err
	}
	dbN2, err := env.DB("n2", opdb.NMOS)
	if err != nil {
		return nil, err
	}
	dbP, err := env.DB("p", opdb.PMOS)
	if err != nil {
		return nil, err
	}

	step := env.Step()
	vthN, err := dsn.EstimateVthAt(dbN1, opdb.NMOS, spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}
	vthP, err := dsn.EstimateVthAt(dbP, opdb.PMOS, -spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}

	vnGrid := dsn.Span(vthN+step, spec.VDD-step, step)
	if spec.VBNTarget > 0 {
		vnGrid = dsn.Point(spec.VBNTarget)
	}

	var cands []Op
	for vn := range vnGrid.Values() {
		opN1, err := dbN1.Query(vn, vn, 0)
		if err != nil {
			return nil, err
		}
		if opN1.Ibias == 0 {
			continue
		}
		// vr stops before n2 leaves the on region
		for vr := range dsn.Span(step, vn-vthN, step).Values() {
			for vp := range dsn.Span(spec.VDD+vthP-step, vr+step, step).Values() {
				opN2, err := dbN2.Query(vn-vr, vp-vr, -vr)
				if err != nil {
					return nil, err
				}
				opP1, err := dbP.Query(vp-spec.VDD, vp-spec.VDD, 0)
				if err != nil {
					return nil, err
				}
				opP2, err := dbP.Query(vp-spec.VDD, vn-spec.VDD, 0)
				if err != nil {
					return nil, err
				}
				if opN2.Ibias == 0 || opP1.Ibias == 0 || opP2.Ibias == 0 {
					continue
				}

				base := Op{VDD: spec.VDD, VN: vn, VP: vp, VR: vr, N1: opN1, N2: opN2, P1: opP1, P2: opP2}
				nfMax := int(spec.IbiasMax / (2 * math.Abs(opN1.Ibias)))
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

	if len(cands) == 0 {
		return nil, dsn.NoSolution(Block, "no bias point with ibias %g..%g", spec.IbiasMin, spec.IbiasMax)
	}
	return cands, nil
}

func (d *Designer) size(op Op, nf int, spec Spec) (Op, dsn.Verdict) {
	env := d.env
	tol := env.Tol()

	nfP, ok := dsn.VerifyRatio(op.N1.Ibias, op.P2.Ibias, nf, tol)
	if !ok {
		return op, dsn.Skip
	}
	nfN2, ok := dsn.VerifyRatio(op.N1.Ibias, op.N2.Ibias, nf, tol)
	if !ok || nfN2 <= nf {
		// the degenerated device must be the wider one
		return op, dsn.Skip
	}
	if nfP1, ok := dsn.VerifyRatio(op.N2.Ibias, op.P1.Ibias, nfN2, tol); !ok || nfP1 != nfP {
		return op, dsn.Skip
	}
	op.NfN1, op.NfN2, op.NfP = nf, nfN2, nfP

	i2 := math.Abs(op.N2.Ibias) * float64(nfN2)
	op.R = op.VR / i2
	op.Ibias = math.Abs(op.N1.Ibias)*float64(nf) + i2

	if v := env.Judge(Block,
		dsn.MaxRising("ibias", op.Ibias, spec.IbiasMax),
		dsn.Min("ibias", op.Ibias, spec.IbiasMin),
		dsn.Max("r", op.R, spec.RMax),
	); v != dsn.Accept {
		return op, v
	}

	loop, err := op.loop()
	if err != nil {
		env.Logf("%s: %s: %v", Block, op.Key(), err)
		return op, dsn.Skip
	}
	op.Loop = loop
	op.LoopGain = math.Abs(analysis.DCGain(loop))
	return op, env.Judge(Block, dsn.Max("loop gain", op.LoopGain, spec.LoopGainMax))
}

func (d *Designer) Compare(a, b Op) Op { return dsn.MinIbias(a, b) }

func (d *Designer) SchParams(op Op) dsn.SchParams {
	p := d.env.Sch(map[string]int{"n1": op.NfN1, "n2": op.NfN2, "p": op.NfP})
	p.Values["res"] = op.R
	p.Values["vbn"] = op.VN
	p.Values["vbp"] = op.VP
	p.Values["ibias"] = op.Ibias
	return p
}

func (d *Designer) Design(spec Spec) (dsn.Result[Op], error) {
	cands, err := d.Search(spec)
	if err != nil {
		return dsn.Result[Op]{}, err
	}
	tb := map[string]float64{"vdd": spec.VDD}
	return dsn.Finish(d.env, Block, cands, d.Compare, d.SchParams, tb)
}
