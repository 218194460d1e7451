package ldo_test

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/internal/dsntest"
	"github.com/edp1096/toy-dsn/pkg/blocks/ldo"
	"github.com/edp1096/toy-dsn/pkg/dsn"
)

func spec() ldo.Spec {
	return ldo.Spec{
		VDD: 1.8, VOut: 1.2, VRef: 0.6, ILoad: 100e-6, CLoad: 1e-9,
		AmpGainMin: 10, LoopGainMin: 10, PMMin: 45, IbiasMax: 60e-6,
	}
}

func TestLDO(t *testing.T) {
	s := spec()
	env := dsntest.Env()
	res, err := ldo.New(env).Design(s)
	if err != nil {
		t.Fatalf("Design error: %v", err)
	}

	ifb := ldo.DefaultFeedbackRatio * s.ILoad
	rload := s.VOut / s.ILoad
	for _, c := range res.Candidates {
		if !c.Stable || c.LoopGain < s.LoopGainMin || c.PM < s.PMMin {
			t.Fatalf("%s: stable %v loop gain %g pm %g", c.Key(), c.Stable, c.LoopGain, c.PM)
		}
		if c.Amp.VOut != c.VPG || c.Amp.VInCM != s.VRef {
			t.Fatalf("%s: amplifier not tied to pass gate and reference", c.Key())
		}
		if math.Abs(c.Ibias-(c.Amp.Ibias+ifb)) > 1e-15 || c.Ibias > s.IbiasMax {
			t.Fatalf("%s: ibias %g", c.Key(), c.Ibias)
		}
		ipass := float64(c.NfPass) * math.Abs(c.Pass.Ibias)
		if math.Abs(ipass-(s.ILoad+ifb))/(s.ILoad+ifb) > env.Tol() {
			t.Fatalf("%s: pass current %g", c.Key(), ipass)
		}
		if c.Dropout() > s.VDD-s.VOut {
			t.Fatalf("%s: dropout %g", c.Key(), c.Dropout())
		}
		if c.Ibias < res.Best.Ibias {
			t.Fatalf("best ibias %g beaten by %s", res.Best.Ibias, c.Key())
		}
	}

	best := res.Best
	if math.Abs(best.RTop-(s.VOut-s.VRef)/ifb) > 1e-6 || math.Abs(best.RBot-s.VRef/ifb) > 1e-6 {
		t.Fatalf("divider %g/%g", best.RTop, best.RBot)
	}

	// loop gain by hand: amplifier, pass transconductance into the output
	// node, divider ratio
	nf := float64(best.NfPass)
	rout := dsn.Parallel(rload, best.RTop+best.RBot, 1/(nf*best.Pass.Gds))
	want := best.Amp.Gain * nf * best.Pass.Gm * rout * best.RBot / (best.RTop + best.RBot)
	if math.Abs(best.LoopGain-want)/want > 0.05 {
		t.Fatalf("loop gain %g, hand estimate %g", best.LoopGain, want)
	}
	if _, ok := res.Params.Sub["amp"]; !ok || res.Params.Seg["pass"] != best.NfPass {
		t.Fatalf("schematic params %+v", res.Params)
	}
}

func TestLDOErrors(t *testing.T) {
	s := spec()
	s.LoopGainMin = 1e9
	if _, err := ldo.New(dsntest.Env()).Search(s); !dsn.IsNoSolution(err) {
		t.Fatalf("expected no solution, got %v", err)
	}

	s = spec()
	s.VRef = s.VOut
	_, err := ldo.New(dsntest.Env()).Search(s)
	var se *dsn.SpecError
	if !errors.As(err, &se) || se.Field != "vref" {
		t.Fatalf("expected vref spec error, got %v", err)
	}
}
