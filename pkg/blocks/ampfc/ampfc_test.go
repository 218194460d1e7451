package ampfc_test

import (
	"math"
	"testing"

	"github.com/edp1096/toy-dsn/internal/dsntest"
	"github.com/edp1096/toy-dsn/pkg/blocks/ampfc"
	"github.com/edp1096/toy-dsn/pkg/dsn"
)

func spec() ampfc.Spec {
	return ampfc.Spec{
		InType: "n", VDD: 1.2, VInCM: 0.7, VOutCM: 0.6,
		CLoad: 20e-15, GainMin: 100, PMMin: 45, IbiasMax: 200e-6,
	}
}

func coarseEnv() dsn.Env {
	env := dsntest.Env()
	env.Vstep = 0.1
	return env
}

func TestFoldedCascode(t *testing.T) {
	s := spec()
	res, err := ampfc.New(coarseEnv()).Design(s)
	if err != nil {
		t.Fatalf("Design error: %v", err)
	}
	for _, c := range res.Candidates {
		if c.Gain < s.GainMin || c.PM < s.PMMin {
			t.Fatalf("%s: gain %g pm %g", c.Key(), c.Gain, c.PM)
		}
		if c.UGF <= c.BW {
			t.Fatalf("%s: ugf %g not above bw %g", c.Key(), c.UGF, c.BW)
		}
		if c.NfTop != 2*c.NfIn {
			t.Fatalf("%s: top fingers", c.Key())
		}
		for _, leg := range []ampfc.Leg{c.Top, c.CascTop, c.CascBot, c.Bot} {
			if math.Abs(math.Abs(leg.Op.Ibias)-math.Abs(c.In.Ibias))/math.Abs(c.In.Ibias) > 1e-3 {
				t.Fatalf("%s: leg current %g, input %g", c.Key(), leg.Op.Ibias, c.In.Ibias)
			}
			if leg.Gate < 0 || leg.Gate > s.VDD {
				t.Fatalf("%s: gate %g outside supply", c.Key(), leg.Gate)
			}
		}
	}

	// fold devices hang from the supply for an nmos input
	best := res.Best
	if best.Top.Op.Ibias >= 0 || best.VFold <= s.VOutCM {
		t.Fatalf("top current %g, fold %g", best.Top.Op.Ibias, best.VFold)
	}
	for _, name := range []string{"vbias_top", "vbias_casc_top", "vbias_casc_bot", "vbias_bot"} {
		if v := res.Params.Values[name]; v < 0 || v > s.VDD {
			t.Fatalf("%s = %g outside supply", name, v)
		}
	}
	if res.Params.Seg["top"] != best.NfTop || res.Params.Values["vbias_bot"] != best.Bot.Gate {
		t.Fatalf("schematic params %+v", res.Params)
	}
}

func TestFoldedCascodeUnreachable(t *testing.T) {
	s := spec()
	s.UGFMin = 1e14
	_, err := ampfc.New(coarseEnv()).Search(s)
	if !dsn.IsNoSolution(err) {
		t.Fatalf("expected no solution, got %v", err)
	}
}
