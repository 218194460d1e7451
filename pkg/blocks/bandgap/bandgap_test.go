package bandgap_test

import (
	"math"
	"testing"

	"github.com/edp1096/toy-dsn/internal/consts"
	"github.com/edp1096/toy-dsn/internal/dsntest"
	"github.com/edp1096/toy-dsn/pkg/blocks/bandgap"
	"github.com/edp1096/toy-dsn/pkg/dsn"
)

func spec() bandgap.Spec {
	return bandgap.Spec{
		VDD: 1.8, VRef: 1.2,
		IMin: 10e-6, IMax: 10e-6,
		AmpGainMin: 10, PMMin: 20, LoopGainMin: 1,
		IbiasMax: 150e-6,
	}
}

func TestBandgap(t *testing.T) {
	s := spec()
	res, err := bandgap.New(dsntest.Env()).Design(s)
	if err != nil {
		t.Fatalf("Design error: %v", err)
	}
	op := res.Best
	vt := consts.ThermalVoltage(consts.TNOM)

	if want := vt * math.Log(bandgap.DefaultRatio) / op.I; math.Abs(op.R1-want)/want > 1e-12 {
		t.Fatalf("R1 %g, want %g", op.R1, want)
	}
	if want := vt * math.Log(op.I/bandgap.DefaultIs); math.Abs(op.VBE-want) > 1e-12 {
		t.Fatalf("VBE %g, want %g", op.VBE, want)
	}
	if math.Abs(op.VBE+op.I*op.R2-s.VRef) > 1e-9 {
		t.Fatalf("output branch gives %g, want %g", op.VBE+op.I*op.R2, s.VRef)
	}

	if op.Amp.VOut != op.VPG {
		t.Fatalf("amplifier output %g not pinned to mirror gate %g", op.Amp.VOut, op.VPG)
	}
	if op.Amp.VInCM != op.VBE {
		t.Fatalf("amplifier input cm %g, want vbe %g", op.Amp.VInCM, op.VBE)
	}
	if math.Abs(op.Bias.VN-op.Amp.TailGate()) > 1e-12 {
		t.Fatalf("bias vbn %g, amplifier tail gate %g", op.Bias.VN, op.Amp.TailGate())
	}

	for _, c := range res.Candidates {
		if c.LoopGain < s.LoopGainMin || c.PM < s.PMMin {
			t.Fatalf("%s: loop gain %g pm %g", c.Key(), c.LoopGain, c.PM)
		}
		if c.Ibias > s.IbiasMax {
			t.Fatalf("%s: ibias %g", c.Key(), c.Ibias)
		}
		if c.Ibias < op.Ibias {
			t.Fatalf("best ibias %g beaten by %s (%g)", op.Ibias, c.Key(), c.Ibias)
		}
	}

	if _, ok := res.Params.Sub["amp"]; !ok {
		t.Fatalf("missing amplifier parameters: %+v", res.Params)
	}
	if res.Params.Sub["bias"].Values["vbn"] != op.Bias.VN {
		t.Fatalf("bias parameters %+v", res.Params.Sub["bias"])
	}
}

func TestBandgapInfeasible(t *testing.T) {
	s := spec()
	s.VRef = 0.5 // below vbe
	_, err := bandgap.New(dsntest.Env()).Search(s)
	if !dsn.IsNoSolution(err) {
		t.Fatalf("expected no solution, got %v", err)
	}

	s = spec()
	s.IbiasMax = 20e-6 // three branches alone need 30uA
	_, err = bandgap.New(dsntest.Env()).Search(s)
	if !dsn.IsNoSolution(err) {
		t.Fatalf("expected no solution, got %v", err)
	}
}
