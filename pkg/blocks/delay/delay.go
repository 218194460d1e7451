// Package delay designs an analog delay line: N RC sections, each buffered
// by a source follower. Follower types alternate so the DC level shifts
// down and back up along the chain.
package delay

import (
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/blocks/ampsf"
	"github.com/edp1096/toy-dsn/pkg/circuit"
	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/opdb"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

const (
	Block = "delay"

	DefaultStages  = 2
	DefaultRPoints = 8
)

type Spec struct {
	InType string  `yaml:"in_type"` // first follower
	VDD    float64 `yaml:"vdd"`
	VIn    float64 `yaml:"vin"` // chain input DC level

	Stages  int     `yaml:"stages"`
	C       float64 `yaml:"c"` // per section
	RMin    float64 `yaml:"r_min"`
	RMax    float64 `yaml:"r_max"`
	RPoints int     `yaml:"r_points"` // log-spaced
	CLoad   float64 `yaml:"cload"`    // at the chain output

	DelayMin      float64 `yaml:"delay_min"`
	DelayMax      float64 `yaml:"delay_max"`
	GainMin       float64 `yaml:"gain_min"`
	BWMin         float64 `yaml:"bw_min"`
	IbiasMax      float64 `yaml:"ibias_max"`
	StageIbiasMax float64 `yaml:"stage_ibias_max"`
}

func (s Spec) withDefaults() Spec {
	if s.Stages == 0 {
		s.Stages = DefaultStages
	}
	if s.RPoints == 0 {
		s.RPoints = DefaultRPoints
	}
	if s.StageIbiasMax == 0 {
		s.StageIbiasMax = s.IbiasMax
	}
	return s
}

type Op struct {
	R, C   float64
	Stages []ampsf.Op

	Delay float64 // group delay at DC
	Gain  float64
	BW    float64
	TF    poly.TF
	Ibias float64
}

func (o Op) Perf() dsn.Metrics { return dsn.Metrics{Ibias: o.Ibias, Gain: o.Gain, BW: o.BW} }

func (o Op) Key() string {
	keys := make([]string, len(o.Stages))
	for i, s := range o.Stages {
		keys[i] = "[" + s.Key() + "]"
	}
	return fmt.Sprintf("r=%.4g %s", o.R, strings.Join(keys, " "))
}

// VOut is the DC level at the chain output.
func (o Op) VOut() float64 { return o.Stages[len(o.Stages)-1].VOut }

func (o Op) transfer(cload float64) (poly.TF, error) {
	gnd := circuit.Gnd
	ckt := circuit.New(Block)
	prev := "in"
	for i, s := range o.Stages {
		x, y := fmt.Sprintf("x%d", i+1), fmt.Sprintf("y%d", i+1)
		ckt.AddResistor(o.R, prev, x)
		ckt.AddCapacitor(o.C, x, gnd)
		s.Stamp(ckt, x, y)
		prev = y
	}
	if cload > 0 {
		ckt.AddCapacitor(cload, prev, gnd)
	}
	return ckt.TransferFunction("in", prev, circuit.Voltage)
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
	case spec.Stages < 1:
		return pol, dsn.Invalid(Block, "stages", "%d must be at least 1", spec.Stages)
	case spec.C <= 0:
		return pol, dsn.Invalid(Block, "c", "%g must be positive", spec.C)
	case spec.RMin <= 0 || spec.RMax < spec.RMin:
		return pol, dsn.Invalid(Block, "r_min", "resistor range %g..%g", spec.RMin, spec.RMax)
	case spec.RMax > spec.RMin && spec.RPoints < 2:
		return pol, dsn.Invalid(Block, "r_points", "%d must be at least 2", spec.RPoints)
	case spec.DelayMax > 0 && spec.DelayMax < spec.DelayMin:
		return pol, dsn.Invalid(Block, "delay_max", "%g below delay_min %g", spec.DelayMax, spec.DelayMin)
	case spec.IbiasMax <= 0:
		return pol, dsn.Invalid(Block, "ibias_max", "%g must be positive", spec.IbiasMax)
	}
	return pol, nil
}

// resistors is the log-spaced section resistor grid, ascending.
func resistors(spec Spec) []float64 {
	if spec.RMax == spec.RMin {
		return []float64{spec.RMin}
	}
	return floats.LogSpan(make([]float64, spec.RPoints), spec.RMin, spec.RMax)
}

func (d *Designer) Search(spec Spec) ([]Op, error) {
	spec = spec.withDefaults()
	pol, err := d.validate(spec)
	if err != nil {
		return nil, err
	}
	env := d.env
	rs := resistors(spec)
	bufs := newBufferCache(ampsf.New(env))

	var cands []Op
	var chain []ampsf.Op
	var extend func(stage int, vin float64)
	extend = func(stage int, vin float64) {
		if stage == spec.Stages {
			cands = append(cands, d.sweepR(chain, rs, spec)...)
			return
		}
		p := pol
		if stage%2 == 1 {
			p = pol.Opposite()
		}
		cload := spec.C
		if stage == spec.Stages-1 {
			cload = spec.CLoad
		}
		ops, err := bufs.search(ampsf.Spec{
			InType: p.String(), VDD: spec.VDD, VIn: vin, CLoad: cload, IbiasMax: spec.StageIbiasMax,
		})
		if err != nil {
			if !dsn.IsNoSolution(err) {
				env.Logf("%s: stage %d: %v", Block, stage+1, err)
			}
			return
		}
		for _, o := range ops {
			if dsn.TotalIbias(ibias(chain), o.Ibias) > spec.IbiasMax {
				continue
			}
			chain = append(chain, o)
			extend(stage+1, o.VOut)
			chain = chain[:len(chain)-1]
		}
	}
	extend(0, spec.VIn)

	if len(cands) == 0 {
		return nil, dsn.NoSolution(Block, "no %d-stage chain meets delay %g..%g gain %g ibias %g",
			spec.Stages, spec.DelayMin, spec.DelayMax, spec.GainMin, spec.IbiasMax)
	}
	env.Logf("%s: %d viable chains", Block, len(cands))
	return cands, nil
}

func ibias(chain []ampsf.Op) float64 {
	var total float64
	for _, o := range chain {
		total += o.Ibias
	}
	return total
}

// sweepR evaluates one buffer chain over the resistor grid. Delay only
// grows with R, so the sweep stops at the first point past delay_max.
func (d *Designer) sweepR(chain []ampsf.Op, rs []float64, spec Spec) []Op {
	env := d.env
	base := Op{C: spec.C, Stages: append([]ampsf.Op(nil), chain...), Ibias: ibias(chain)}

	var out []Op
	dsn.Sweep(slices.Values(rs), func(r float64) dsn.Verdict {
		op := base
		op.R = r
		tf, err := op.transfer(spec.CLoad)
		if err != nil {
			env.Logf("%s: %s: %v", Block, op.Key(), err)
			return dsn.Skip
		}
		op.TF = tf
		op.Delay = analysis.GroupDelayDC(tf)
		op.Gain = analysis.DCGain(tf)
		op.BW = analysis.Bandwidth3dB(tf)

		v := env.Judge(Block,
			dsn.MaxRising("delay", op.Delay, spec.DelayMax),
			dsn.Min("delay", op.Delay, spec.DelayMin),
			dsn.Min("gain", op.Gain, spec.GainMin),
			dsn.Min("bw", op.BW, spec.BWMin),
		)
		if v == dsn.Accept {
			out = append(out, op)
		}
		return v
	})
	return out
}

func (d *Designer) Compare(a, b Op) Op { return dsn.MinIbias(a, b) }

func (d *Designer) SchParams(op Op) dsn.SchParams {
	p := d.env.Sch(nil)
	p.Values["r"] = op.R
	p.Values["c"] = op.C
	p.Values["vout"] = op.VOut()
	p.Values["ibias"] = op.Ibias
	p.Sub = make(map[string]dsn.SchParams, len(op.Stages))
	sf := ampsf.New(d.env)
	for i, s := range op.Stages {
		p.Sub[fmt.Sprintf("buf%d", i)] = sf.SchParams(s)
	}
	return p
}

func (d *Designer) Design(spec Spec) (dsn.Result[Op], error) {
	cands, err := d.Search(spec)
	if err != nil {
		return dsn.Result[Op]{}, err
	}
	spec = spec.withDefaults()
	tb := map[string]float64{"vdd": spec.VDD, "vin": spec.VIn, "cload": spec.CLoad}
	if spec.DelayMax > 0 {
		tb["delay_max"] = spec.DelayMax
	}
	return dsn.Finish(d.env, Block, cands, d.Compare, d.SchParams, tb)
}

// bufferCache memoizes follower searches by type, input level and load.
// Every viable follower is kept: the chain response depends on each
// stage's conductances and capacitances, not only on its current and gain.
type bufferCache struct {
	d    *ampsf.Designer
	done map[string]bufferEntry
}

type bufferEntry struct {
	ops []ampsf.Op
	err error
}

func newBufferCache(d *ampsf.Designer) *bufferCache {
	return &bufferCache{d: d, done: make(map[string]bufferEntry)}
}

func (c *bufferCache) search(spec ampsf.Spec) ([]ampsf.Op, error) {
	key := fmt.Sprintf("%s/%.6f/%.6g", spec.InType, spec.VIn, spec.CLoad)
	if e, ok := c.done[key]; ok {
		return e.ops, e.err
	}
	ops, err := c.d.Search(spec)
	c.done[key] = bufferEntry{ops: ops, err: err}
	return ops, err
}
