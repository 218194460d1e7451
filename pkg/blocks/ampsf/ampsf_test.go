package ampsf_test

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/internal/dsntest"
	"github.com/edp1096/toy-dsn/pkg/blocks/ampsf"
	"github.com/edp1096/toy-dsn/pkg/dsn"
)

func TestFollowerGain(t *testing.T) {
	spec := ampsf.Spec{InType: "n", VDD: 1.2, VIn: 0.8, CLoad: 10e-15, GainMin: 0.7, IbiasMax: 40e-6}
	res, err := ampsf.New(dsntest.Env()).Design(spec)
	if err != nil {
		t.Fatalf("Design error: %v", err)
	}
	for _, c := range res.Candidates {
		nf, nfb := float64(c.NfIn), float64(c.NfBias)
		g := c.In.Gm * nf
		want := g / (g + c.In.Gmb*nf + c.In.Gds*nf + c.Bias.Gds*nfb)
		if math.Abs(c.Gain-want) > 1e-6 {
			t.Fatalf("%s: gain %g, want %g", c.Key(), c.Gain, want)
		}
		if c.Gain >= 1 || c.Gain < spec.GainMin {
			t.Fatalf("%s: gain %g out of range", c.Key(), c.Gain)
		}
		if c.VOut >= spec.VIn {
			t.Fatalf("%s: nmos follower output above input", c.Key())
		}
		if cin := c.InputCap(); cin <= 0 || cin >= nf*c.In.Cgg {
			t.Fatalf("%s: input cap %g not bootstrapped below %g", c.Key(), cin, nf*c.In.Cgg)
		}
	}
	if res.Best.BiasGate() != res.Best.VBias {
		t.Fatalf("bias gate %g", res.Best.BiasGate())
	}
}

func TestFollowerPMOS(t *testing.T) {
	spec := ampsf.Spec{InType: "p", VDD: 1.2, VIn: 0.4, GainMin: 0.7, IbiasMax: 40e-6}
	cands, err := ampsf.New(dsntest.Env()).Search(spec)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	for _, c := range cands {
		if c.VOut <= spec.VIn {
			t.Fatalf("%s: pmos follower output below input", c.Key())
		}
	}
}

func TestFollowerRejectsGainAboveOne(t *testing.T) {
	spec := ampsf.Spec{InType: "n", VDD: 1.2, VIn: 0.8, GainMin: 1.2, IbiasMax: 40e-6}
	_, err := ampsf.New(dsntest.Env()).Search(spec)
	var se *dsn.SpecError
	if !errors.As(err, &se) || se.Field != "gain_min" {
		t.Fatalf("expected gain_min SpecError, got %v", err)
	}
}
