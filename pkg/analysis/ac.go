package analysis

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/circuit"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

// ACAnalysis sweeps a transfer function over frequency, either numerically
// through the circuit solver or from its polynomial form.
type ACAnalysis struct {
	BaseAnalysis
	startFreq   float64
	stopFreq    float64
	numPoints   int
	pointsType  string // "DEC", "OCT", "LIN"
	frequencies []float64
}

func NewAC(fStart, fStop float64, nPoints int, pType string) *ACAnalysis {
	return &ACAnalysis{
		BaseAnalysis: *NewBaseAnalysis(),
		startFreq:    fStart,
		stopFreq:     fStop,
		numPoints:    nPoints,
		pointsType:   pType,
	}
}

func (ac *ACAnalysis) Frequencies() []float64 {
	if ac.frequencies == nil {
		ac.generateFrequencyPoints()
	}
	return ac.frequencies
}

// Execute solves ckt at every frequency and stores V(out).
func (ac *ACAnalysis) Execute(ckt *circuit.Circuit, in, out string, kind circuit.InputKind) error {
	if ckt == nil {
		return errors.New("circuit not set")
	}
	freqs := ac.Frequencies()
	if len(freqs) == 0 {
		return errors.Errorf("invalid sweep %s %d %g %g", ac.pointsType, ac.numPoints, ac.startFreq, ac.stopFreq)
	}

	values, err := ckt.Response(in, out, kind, freqs)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("V(%s)", out)
	for i, freq := range freqs {
		ac.StoreACResult(freq, map[string]complex128{name: values[i]})
	}
	return nil
}

// ExecuteTF evaluates tf at every frequency and stores it under name.
func (ac *ACAnalysis) ExecuteTF(name string, tf poly.TF) {
	for _, freq := range ac.Frequencies() {
		s := complex(0, 2*math.Pi*freq)
		ac.StoreACResult(freq, map[string]complex128{name: tf.Eval(s)})
	}
}

func (ac *ACAnalysis) generateFrequencyPoints() {
	if ac.numPoints < 1 || ac.startFreq <= 0 || ac.stopFreq <= ac.startFreq {
		ac.frequencies = []float64{}
		return
	}

	switch ac.pointsType {
	case "DEC": // Decade, numPoints per decade
		decades := math.Log10(ac.stopFreq / ac.startFreq)
		total := int(math.Ceil(decades*float64(ac.numPoints))) + 1
		step := decades / float64(total-1)
		ac.frequencies = make([]float64, total)
		for i := range total {
			ac.frequencies[i] = ac.startFreq * math.Pow(10, float64(i)*step)
		}

	case "OCT": // Octave, numPoints per octave
		octaves := math.Log2(ac.stopFreq / ac.startFreq)
		total := int(math.Ceil(octaves*float64(ac.numPoints))) + 1
		step := octaves / float64(total-1)
		ac.frequencies = make([]float64, total)
		for i := range total {
			ac.frequencies[i] = ac.startFreq * math.Pow(2, float64(i)*step)
		}

	case "LIN": // Linear
		if ac.numPoints < 2 {
			ac.frequencies = []float64{ac.startFreq}
			return
		}
		step := (ac.stopFreq - ac.startFreq) / float64(ac.numPoints-1)
		ac.frequencies = make([]float64, ac.numPoints)
		for i := range ac.numPoints {
			ac.frequencies[i] = ac.startFreq + float64(i)*step
		}

	default:
		ac.frequencies = []float64{}
	}
}
