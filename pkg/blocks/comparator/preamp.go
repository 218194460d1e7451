package comparator

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

const PreampBlock = "comparator_preamp"

type PreampSpec struct {
	InType string  `yaml:"in_type"`
	VDD    float64 `yaml:"vdd"`
	VInCM  float64 `yaml:"vincm"`
	VOutCM float64 `yaml:"voutcm"`

	CLoad    float64 `yaml:"cload"` // per output
	GainMin  float64 `yaml:"gain_min"`
	GainMax  float64 `yaml:"gain_max"`
	BWMin    float64 `yaml:"bw_min"`
	IbiasMax float64 `yaml:"ibias_max"`
}

// Preamp is a fully differential pair with current-source loads of the
// opposite type. The load gates are the common-mode control input.
type Preamp struct {
	InType opdb.Polarity
	VDD    float64
	VInCM  float64
	VOutCM float64

	VTail     float64
	VLoad     float64 // |vgs| of the loads
	VTailBias float64 // |vgs| of the tail

	NfIn, NfLoad, NfTail int
	In, Load, Tail       opdb.OperatingPoint

	CLoad float64
	Ibias float64
	Gain  float64
	BW    float64
	TF    poly.TF
}

func (p Preamp) Perf() dsn.Metrics { return dsn.Metrics{Ibias: p.Ibias, Gain: p.Gain, BW: p.BW} }

func (p Preamp) Key() string {
	return fmt.Sprintf("%s vtail=%.4f vload=%.4f vbias=%.4f nf=%d/%d/%d",
		p.InType, p.VTail, p.VLoad, p.VTailBias, p.NfIn, p.NfLoad, p.NfTail)
}

// LoadGate is the absolute gate voltage of the loads.
func (p Preamp) LoadGate() float64 {
	if p.InType == opdb.PMOS {
		return p.VLoad
	}
	return p.VDD - p.VLoad
}

// TailGate is the absolute gate voltage of the tail.
func (p Preamp) TailGate() float64 {
	if p.InType == opdb.PMOS {
		return p.VDD - p.VTailBias
	}
	return p.VTailBias
}

// Rout is the differential-mode resistance at one output.
func (p Preamp) Rout() float64 {
	return dsn.Parallel(1/(float64(p.NfIn)*p.In.Gds), 1/(float64(p.NfLoad)*p.Load.Gds))
}

// LoadGateCap is the capacitance both load gates present to whatever
// drives them.
func (p Preamp) LoadGateCap() float64 { return 2 * float64(p.NfLoad) * p.Load.Cgg }

type PreampNets struct {
	Prefix     string
	InP, InN   string
	OutP, OutN string
	Bias       string // tail gate
	LoadGate   string
}

// Stamp adds the preamp to ckt. InP drives the device on OutN, so
// OutP-OutN follows InP-InN.
func (p Preamp) Stamp(ckt *circuit.Circuit, n PreampNets) {
	gnd := circuit.Gnd
	bias, lg := n.Bias, n.LoadGate
	if bias == "" {
		bias = gnd
	}
	if lg == "" {
		lg = gnd
	}
	tail := n.Prefix + "tail"

	ckt.AddTransistor(p.Tail, tail, bias, gnd, gnd, float64(p.NfTail))
	ckt.AddTransistor(p.In, n.OutN, n.InP, tail, gnd, float64(p.NfIn))
	ckt.AddTransistor(p.In, n.OutP, n.InN, tail, gnd, float64(p.NfIn))
	ckt.AddTransistor(p.Load, n.OutN, lg, gnd, gnd, float64(p.NfLoad))
	ckt.AddTransistor(p.Load, n.OutP, lg, gnd, gnd, float64(p.NfLoad))
	if p.CLoad > 0 {
		ckt.AddCapacitor(p.CLoad, n.OutP, gnd)
		ckt.AddCapacitor(p.CLoad, n.OutN, gnd)
	}
}

// differential excites each input in turn through stamp and superposes
// the halves measured across outp/outn.
func differential(name string, stamp func(ckt *circuit.Circuit, inP, inN string)) (poly.TF, error) {
	var halves [2]poly.TF
	for i, side := range []string{"p", "n"} {
		ckt := circuit.New(name + "_" + side)
		in := "in" + side
		if side == "p" {
			stamp(ckt, in, circuit.Gnd)
		} else {
			stamp(ckt, circuit.Gnd, in)
		}
		tf, err := ckt.TransferFunctionDiff(in, "outp", "outn", circuit.Voltage)
		if err != nil {
			return poly.TF{}, errors.Wrapf(err, "%s side", side)
		}
		halves[i] = tf
	}
	return dsn.Superpose(halves[0], halves[1]), nil
}

func (p Preamp) Differential() (poly.TF, error) {
	return differential(PreampBlock, func(ckt *circuit.Circuit, inP, inN string) {
		p.Stamp(ckt, PreampNets{InP: inP, InN: inN, OutP: "outp", OutN: "outn"})
	})
}

// PreampDesigner prefers bandwidth: the preamp sets comparator speed.
type PreampDesigner struct {
	env dsn.Env
}

func NewPreamp(env dsn.Env) *PreampDesigner { return &PreampDesigner{env: env} }

func (d *PreampDesigner) validate(spec PreampSpec) (opdb.Polarity, error) {
	pol, err := opdb.ParsePolarity(spec.InType)
	if err != nil {
		return pol, dsn.Invalid(PreampBlock, "in_type", "%q must be n or p", spec.InType)
	}
	switch {
	case spec.VDD <= 0:
		return pol, dsn.Invalid(PreampBlock, "vdd", "%g must be positive", spec.VDD)
	case spec.VInCM <= 0 || spec.VInCM >= spec.VDD:
		return pol, dsn.Invalid(PreampBlock, "vincm", "%g outside (0, vdd)", spec.VInCM)
	case spec.VOutCM <= 0 || spec.VOutCM >= spec.VDD:
		return pol, dsn.Invalid(PreampBlock, "voutcm", "%g outside (0, vdd)", spec.VOutCM)
	case spec.IbiasMax <= 0:
		return pol, dsn.Invalid(PreampBlock, "ibias_max", "%g must be positive", spec.IbiasMax)
	}
	return pol, nil
}

func (d *PreampDesigner) Search(spec PreampSpec) ([]Preamp, error) {
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
	vthLoad, err := dsn.EstimateVthAt(dbLoad, pol.Opposite(), -s*spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}
	vthTail, err := dsn.EstimateVthAt(dbTail, pol, s*spec.VDD/2, 0)
	if err != nil {
		return nil, err
	}

	tailGrid := dsn.Span(railIn+s*step, spec.VInCM-vthIn, step)
	loadGrid := dsn.Span(math.Abs(vthLoad)+step, spec.VDD, step)
	biasGrid := dsn.Span(math.Abs(vthTail)+step, spec.VDD, step)

	var cands []Preamp
	for vtail := range tailGrid.Values() {
		opIn, err := dbIn.Query(spec.VInCM-vtail, spec.VOutCM-vtail, railIn-vtail)
		if err != nil {
			return nil, err
		}
		if opIn.Ibias == 0 {
			continue
		}
		nfMax := int(spec.IbiasMax / (2 * math.Abs(opIn.Ibias)))

		for vload := range loadGrid.Values() {
			opLoad, err := dbLoad.Query(-s*vload, spec.VOutCM-railLoad, 0)
			if err != nil {
				return nil, err
			}
			if opLoad.Ibias == 0 {
				continue
			}
			for vbias := range biasGrid.Values() {
				opTail, err := dbTail.Query(s*vbias, vtail-railIn, 0)
				if err != nil {
					return nil, err
				}
				if opTail.Ibias == 0 {
					continue
				}
				base := Preamp{
					InType: pol, VDD: spec.VDD, VInCM: spec.VInCM, VOutCM: spec.VOutCM,
					VTail: vtail, VLoad: vload, VTailBias: vbias,
					In: opIn, Load: opLoad, Tail: opTail, CLoad: spec.CLoad,
				}
				dsn.Sweep(dsn.Sizes(2, nfMax, 2), func(nf int) dsn.Verdict {
					p, v := d.size(base, nf, spec)
					if v == dsn.Accept {
						cands = append(cands, p)
					}
					return v
				})
			}
		}
	}

	if len(cands) == 0 {
		return nil, dsn.NoSolution(PreampBlock, "no operating point meets gain %g..%g bw %g ibias %g",
			spec.GainMin, spec.GainMax, spec.BWMin, spec.IbiasMax)
	}
	env.Logf("%s: %d viable operating points", PreampBlock, len(cands))
	return cands, nil
}

func (d *PreampDesigner) size(p Preamp, nf int, spec PreampSpec) (Preamp, dsn.Verdict) {
	env := d.env
	tol := env.Tol()

	nfLoad, ok := dsn.VerifyRatio(p.In.Ibias, p.Load.Ibias, nf, tol)
	if !ok {
		return p, dsn.Skip
	}
	nfTail, ok := dsn.VerifyRatio(p.In.Ibias, p.Tail.Ibias, 2*nf, tol)
	if !ok {
		return p, dsn.Skip
	}
	p.NfIn, p.NfLoad, p.NfTail = nf, nfLoad, nfTail
	p.Ibias = math.Abs(p.Tail.Ibias) * float64(nfTail)
	if v := env.Judge(PreampBlock, dsn.MaxRising("ibias", p.Ibias, spec.IbiasMax)); v != dsn.Accept {
		return p, v
	}

	tf, err := p.Differential()
	if err != nil {
		env.Logf("%s: %s: %v", PreampBlock, p.Key(), err)
		return p, dsn.Skip
	}
	p.TF = tf
	p.Gain = math.Abs(analysis.DCGain(tf))
	p.BW = analysis.Bandwidth3dB(tf)

	return p, env.Judge(PreampBlock,
		dsn.Min("gain", p.Gain, spec.GainMin),
		dsn.MaxRising("gain", p.Gain, spec.GainMax),
		dsn.Min("bw", p.BW, spec.BWMin),
	)
}

func (d *PreampDesigner) Compare(a, b Preamp) Preamp { return dsn.MaxBandwidth(a, b) }

func (d *PreampDesigner) SchParams(p Preamp) dsn.SchParams {
	sp := d.env.Sch(map[string]int{"in": p.NfIn, "load": p.NfLoad, "tail": p.NfTail})
	sp.Values["vtail"] = p.VTail
	sp.Values["voutcm"] = p.VOutCM
	sp.Values["vload"] = p.LoadGate()
	sp.Values["vbias"] = p.TailGate()
	sp.Values["ibias"] = p.Ibias
	return sp
}

func (d *PreampDesigner) Design(spec PreampSpec) (dsn.Result[Preamp], error) {
	cands, err := d.Search(spec)
	if err != nil {
		return dsn.Result[Preamp]{}, err
	}
	tb := map[string]float64{"vdd": spec.VDD, "vincm": spec.VInCM, "cload": spec.CLoad}
	return dsn.Finish(d.env, PreampBlock, cands, d.Compare, d.SchParams, tb)
}
