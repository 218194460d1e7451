package delay

import (
	"testing"

	"github.com/edp1096/toy-dsn/internal/dsntest"
	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/blocks/ampsf"
	"github.com/edp1096/toy-dsn/pkg/dsn"
)

func chainSpec() Spec {
	return Spec{
		InType: "n", VDD: 1.2, VIn: 0.9,
		Stages: 2, C: 1e-12, RMin: 1e3, RMax: 1e6, RPoints: 4,
		DelayMin: 20e-9, DelayMax: 500e-9, GainMin: 0.5,
		IbiasMax: 40e-6, StageIbiasMax: 20e-6,
	}
}

// allChains evaluates every n/p follower pair at every section resistor.
func allChains(t *testing.T, env dsn.Env, spec Spec) []Op {
	t.Helper()
	sf := ampsf.New(env)
	first, err := sf.Search(ampsf.Spec{
		InType: "n", VDD: spec.VDD, VIn: spec.VIn, CLoad: spec.C, IbiasMax: spec.StageIbiasMax,
	})
	if err != nil {
		t.Fatalf("first stage: %v", err)
	}

	var out []Op
	for _, a := range first {
		second, err := sf.Search(ampsf.Spec{
			InType: "p", VDD: spec.VDD, VIn: a.VOut, CLoad: spec.CLoad, IbiasMax: spec.StageIbiasMax,
		})
		if dsn.IsNoSolution(err) {
			continue
		}
		if err != nil {
			t.Fatalf("second stage: %v", err)
		}
		for _, b := range second {
			total := dsn.TotalIbias(a.Ibias, b.Ibias)
			if total > spec.IbiasMax {
				continue
			}
			for _, r := range resistors(spec) {
				op := Op{R: r, C: spec.C, Stages: []ampsf.Op{a, b}, Ibias: total}
				tf, err := op.transfer(spec.CLoad)
				if err != nil {
					t.Fatalf("%s: %v", op.Key(), err)
				}
				op.Delay = analysis.GroupDelayDC(tf)
				op.Gain = analysis.DCGain(tf)
				op.BW = analysis.Bandwidth3dB(tf)
				if op.Delay >= spec.DelayMin && op.Delay <= spec.DelayMax &&
					op.Gain >= spec.GainMin && op.BW >= spec.BWMin {
					out = append(out, op)
				}
			}
		}
	}
	return out
}

func TestSearchKeepsEveryChain(t *testing.T) {
	env := dsntest.Env()
	env.Vstep = 0.1
	spec := chainSpec()

	want := allChains(t, env, spec)
	if len(want) == 0 {
		t.Fatalf("no feasible chain in the test space")
	}
	got, err := New(env).Search(spec)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	keys := make(map[string]bool, len(got))
	for _, c := range got {
		keys[c.Key()] = true
	}
	if len(got) != len(want) {
		t.Fatalf("Search kept %d chains, enumeration has %d", len(got), len(want))
	}
	for _, c := range want {
		if !keys[c.Key()] {
			t.Fatalf("Search dropped %s", c.Key())
		}
	}

	// the widest chain must survive a bandwidth bound only it meets
	widest := want[0]
	for _, c := range want[1:] {
		if c.BW > widest.BW {
			widest = c
		}
	}
	spec.BWMin = widest.BW * (1 - 1e-9)
	got, err = New(env).Search(spec)
	if err != nil {
		t.Fatalf("bw %g reachable by %s, Search: %v", widest.BW, widest.Key(), err)
	}
	found := false
	for _, c := range got {
		if c.BW < spec.BWMin {
			t.Fatalf("%s: bw %g below %g", c.Key(), c.BW, spec.BWMin)
		}
		found = found || c.Key() == widest.Key()
	}
	if !found {
		t.Fatalf("widest chain %s missing", widest.Key())
	}
}
