package circuit_test

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/circuit"
	"github.com/edp1096/toy-dsn/pkg/opdb"
)

func commonSource() *circuit.Circuit {
	ckt := circuit.New("cs")
	op := opdb.OperatingPoint{Gm: 1e-3, Gds: 1e-6}
	ckt.AddTransistor(op, "out", "in", circuit.Gnd, circuit.Gnd, 1)
	ckt.AddCapacitor(1e-12, "out", circuit.Gnd)
	return ckt
}

func TestCommonSource(t *testing.T) {
	tf, err := commonSource().TransferFunction("in", "out", circuit.Voltage)
	if err != nil {
		t.Fatalf("TransferFunction error: %v", err)
	}
	if g := analysis.DCGain(tf); math.Abs(g+1000) > 1e-9 {
		t.Fatalf("dc gain %g, want -1000", g)
	}
	want := 1e-6 / (2 * math.Pi * 1e-12)
	if bw := analysis.Bandwidth3dB(tf); math.Abs(bw-want)/want > 1e-6 {
		t.Fatalf("bandwidth %g, want %g", bw, want)
	}
}

func TestResponseMatchesTF(t *testing.T) {
	ckt := commonSource()
	ckt.AddResistor(1e4, "in", "mid")
	ckt.AddCapacitor(2e-13, "mid", "out")
	tf, err := ckt.TransferFunction("in", "out", circuit.Voltage)
	if err != nil {
		t.Fatalf("TransferFunction error: %v", err)
	}

	freqs := []float64{1, 1e3, 1e5, 1e7, 1e9}
	got, err := ckt.Response("in", "out", circuit.Voltage, freqs)
	if err != nil {
		t.Fatalf("Response error: %v", err)
	}
	for i, f := range freqs {
		want := tf.Eval(complex(0, 2*math.Pi*f))
		if cmplx.Abs(got[i]-want) > 1e-6*cmplx.Abs(want) {
			t.Fatalf("f=%g: solver %v, polynomial %v", f, got[i], want)
		}
	}
}

func TestResponseSweep(t *testing.T) {
	ckt := circuit.New("rc")
	ckt.AddResistor(1e3, "in", "out")
	ckt.AddCapacitor(1e-9, "out", circuit.Gnd)

	freqs := []float64{1e3, 1e6, 1e3}
	got, err := ckt.Response("in", "out", circuit.Voltage, freqs)
	if err != nil {
		t.Fatalf("Response error: %v", err)
	}
	for i, f := range freqs {
		want := 1 / complex(1, 2*math.Pi*f*1e3*1e-9)
		if cmplx.Abs(got[i]-want) > 1e-9 {
			t.Fatalf("f=%g: got %v, want %v", f, got[i], want)
		}
	}
}

func TestCurrentInput(t *testing.T) {
	ckt := circuit.New("r")
	ckt.AddResistor(4.7e3, "a", circuit.Gnd)
	tf, err := ckt.TransferFunction("a", "a", circuit.Current)
	if err != nil {
		t.Fatalf("TransferFunction error: %v", err)
	}
	if z := analysis.DCGain(tf); math.Abs(z-4.7e3) > 1e-9 {
		t.Fatalf("impedance %g", z)
	}

	// nothing is left to solve once the only net is driven
	tf, err = ckt.TransferFunction("a", "a", circuit.Voltage)
	if err == nil {
		t.Fatalf("voltage-driven net with no unknowns accepted: %+v", tf)
	}
}

func TestDivider(t *testing.T) {
	ckt := circuit.New("div")
	ckt.AddResistor(3e3, "in", "out")
	ckt.AddConductance(1e-3, "out", "0")
	tf, err := ckt.TransferFunction("in", "out", circuit.Voltage)
	if err != nil {
		t.Fatalf("TransferFunction error: %v", err)
	}
	if g := analysis.DCGain(tf); math.Abs(g-0.25) > 1e-12 {
		t.Fatalf("divider ratio %g", g)
	}
	self, err := ckt.TransferFunction("in", "in", circuit.Voltage)
	if err != nil || analysis.DCGain(self) != 1 {
		t.Fatalf("driven net gain %v err %v", self, err)
	}
}

func TestLookupErrors(t *testing.T) {
	ckt := commonSource()
	for _, in := range []string{circuit.Gnd, "missing"} {
		if _, err := ckt.TransferFunction(in, "out", circuit.Voltage); err == nil {
			t.Fatalf("input %q accepted", in)
		}
	}
	if _, err := ckt.TransferFunction("in", "missing", circuit.Voltage); err == nil {
		t.Fatalf("unknown output accepted")
	}
}
