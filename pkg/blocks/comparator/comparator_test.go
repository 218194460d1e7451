package comparator_test

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/internal/dsntest"
	"github.com/edp1096/toy-dsn/pkg/blocks/comparator"
	"github.com/edp1096/toy-dsn/pkg/dsn"
)

func coarseEnv() dsn.Env {
	env := dsntest.Env()
	env.Vstep = 0.1
	return env
}

func spec() comparator.Spec {
	return comparator.Spec{
		InType: "n", VDD: 1.2, VInCM: 0.7, VOutCM: 0.6, CLoad: 10e-15,
		GainMin: 20, IbiasMax: 60e-6, CMFBGainMin: 2,
	}
}

func TestPreamp(t *testing.T) {
	s := spec()
	ps := comparator.PreampSpec{
		InType: s.InType, VDD: s.VDD, VInCM: s.VInCM, VOutCM: s.VOutCM,
		CLoad: s.CLoad, GainMin: s.GainMin, IbiasMax: s.IbiasMax,
	}
	res, err := comparator.NewPreamp(coarseEnv()).Design(ps)
	if err != nil {
		t.Fatalf("Design error: %v", err)
	}
	for _, c := range res.Candidates {
		want := float64(c.NfIn) * c.In.Gm / (float64(c.NfIn)*c.In.Gds + float64(c.NfLoad)*c.Load.Gds)
		if math.Abs(c.Gain-want)/want > 1e-6 {
			t.Fatalf("%s: gain %g, want %g", c.Key(), c.Gain, want)
		}
		if c.Gain < ps.GainMin || c.Ibias > ps.IbiasMax {
			t.Fatalf("%s: gain %g ibias %g", c.Key(), c.Gain, c.Ibias)
		}
		if c.BW > res.Best.BW {
			t.Fatalf("best bw %g beaten by %s (%g)", res.Best.BW, c.Key(), c.BW)
		}
	}
	if res.Params.Values["vload"] != res.Best.LoadGate() {
		t.Fatalf("schematic values %v", res.Params.Values)
	}
}

func TestComparator(t *testing.T) {
	s := spec()
	res, err := comparator.New(coarseEnv()).Design(s)
	if err != nil {
		t.Fatalf("Design error: %v", err)
	}
	best := res.Best
	for _, c := range res.Candidates {
		if c.LoopGain <= 0 {
			t.Fatalf("%s: common-mode loop gain %g", c.Key(), c.LoopGain)
		}
		if c.CMFB.VOut != c.Preamp.LoadGate() || c.CMFB.VInCM != s.VOutCM {
			t.Fatalf("%s: cmfb not tied to the load gate", c.Key())
		}
		if c.CMFB.TailGate() != c.Preamp.TailGate() || c.Bias.VN != c.Preamp.TailGate() {
			t.Fatalf("%s: tail gates differ", c.Key())
		}
		if c.Ibias < best.Ibias {
			t.Fatalf("best ibias %g beaten by %s (%g)", best.Ibias, c.Key(), c.Ibias)
		}
	}

	// the averaging resistors load each output by rcm
	if want := comparator.DefaultRcmRatio * best.Preamp.Rout(); math.Abs(best.Rcm-want)/want > 1e-12 {
		t.Fatalf("rcm %g, want %g", best.Rcm, want)
	}
	want := best.Preamp.Gain * comparator.DefaultRcmRatio / (comparator.DefaultRcmRatio + 1)
	if math.Abs(best.Gain-want)/want > 1e-6 {
		t.Fatalf("loaded gain %g, want %g", best.Gain, want)
	}
	if want := best.Preamp.Ibias + best.CMFB.Ibias + best.Bias.Ibias; math.Abs(best.Ibias-want) > 1e-15 {
		t.Fatalf("ibias %g, want %g", best.Ibias, want)
	}

	for _, sub := range []string{"preamp", "cmfb", "bias"} {
		if _, ok := res.Params.Sub[sub]; !ok {
			t.Fatalf("missing %s parameters", sub)
		}
	}
}

func TestComparatorErrors(t *testing.T) {
	s := spec()
	s.SysGainMin = 1e6 // above any preamp
	if _, err := comparator.New(coarseEnv()).Search(s); !dsn.IsNoSolution(err) {
		t.Fatalf("expected no solution, got %v", err)
	}

	s = spec()
	s.InType = "p"
	_, err := comparator.New(coarseEnv()).Search(s)
	var se *dsn.SpecError
	if !errors.As(err, &se) || se.Field != "in_type" {
		t.Fatalf("expected in_type spec error, got %v", err)
	}
}
