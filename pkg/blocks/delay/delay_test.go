package delay_test

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/internal/dsntest"
	"github.com/edp1096/toy-dsn/pkg/blocks/delay"
	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/opdb"
)

func spec() delay.Spec {
	return delay.Spec{
		InType: "n", VDD: 1.2, VIn: 0.9,
		Stages: 2, C: 1e-12, RMin: 1e3, RMax: 1e6, RPoints: 7,
		DelayMin: 20e-9, DelayMax: 500e-9, GainMin: 0.5,
		IbiasMax: 40e-6, StageIbiasMax: 20e-6,
	}
}

func coarseEnv() dsn.Env {
	env := dsntest.Env()
	env.Vstep = 0.1
	return env
}

func TestDelay(t *testing.T) {
	s := spec()
	res, err := delay.New(coarseEnv()).Design(s)
	if err != nil {
		t.Fatalf("Design error: %v", err)
	}

	for _, c := range res.Candidates {
		if c.Delay < s.DelayMin || c.Delay > s.DelayMax {
			t.Fatalf("%s: delay %g", c.Key(), c.Delay)
		}
		if rc := float64(s.Stages) * c.R * c.C; c.Delay < 0.99*rc {
			t.Fatalf("%s: delay %g below the bare sections %g", c.Key(), c.Delay, rc)
		}
		if len(c.Stages) != s.Stages {
			t.Fatalf("%s: %d stages", c.Key(), len(c.Stages))
		}
		if c.Stages[0].InType != opdb.NMOS || c.Stages[1].InType != opdb.PMOS {
			t.Fatalf("%s: follower types do not alternate", c.Key())
		}
		if c.Stages[1].VIn != c.Stages[0].VOut {
			t.Fatalf("%s: stage 2 input %g, stage 1 output %g", c.Key(), c.Stages[1].VIn, c.Stages[0].VOut)
		}

		gain, ibias := 1.0, 0.0
		for _, st := range c.Stages {
			gain *= st.Gain
			ibias += st.Ibias
		}
		if math.Abs(c.Gain-gain)/gain > 1e-6 {
			t.Fatalf("%s: chain gain %g, stage product %g", c.Key(), c.Gain, gain)
		}
		if math.Abs(c.Ibias-ibias) > 1e-15 || c.Ibias > s.IbiasMax {
			t.Fatalf("%s: ibias %g, stages %g", c.Key(), c.Ibias, ibias)
		}
		if c.Ibias < res.Best.Ibias {
			t.Fatalf("best ibias %g beaten by %s", res.Best.Ibias, c.Key())
		}
	}

	if len(res.Params.Sub) != s.Stages || res.Params.Values["r"] != res.Best.R {
		t.Fatalf("schematic params %+v", res.Params)
	}
}

func TestDelayErrors(t *testing.T) {
	s := spec()
	s.DelayMin, s.DelayMax = 1e-3, 2e-3
	if _, err := delay.New(coarseEnv()).Search(s); !dsn.IsNoSolution(err) {
		t.Fatalf("expected no solution, got %v", err)
	}

	for name, mut := range map[string]func(*delay.Spec){
		"r_min":   func(s *delay.Spec) { s.RMax = s.RMin / 2 },
		"c":       func(s *delay.Spec) { s.C = 0 },
		"in_type": func(s *delay.Spec) { s.InType = "x" },
	} {
		s := spec()
		mut(&s)
		_, err := delay.New(coarseEnv()).Search(s)
		var se *dsn.SpecError
		if !errors.As(err, &se) || se.Field != name {
			t.Fatalf("%s: expected spec error, got %v", name, err)
		}
	}
}
