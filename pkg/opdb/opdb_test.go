package opdb

import (
	"math"
	"testing"

	"github.com/pkg/errors"
)

func near(a, b float64) bool { return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b)) }

func TestLevel1(t *testing.T) {
	tests := []struct {
		name           string
		pol            Polarity
		vgs, vds, vbs  float64
		ibias, gm, gds float64
		region         int
	}{
		{"nmos sat", NMOS, 0.8, 0.8, 0, 1.392e-4, 6.96e-4, 2.4e-5, SATURATION},
		{"pmos sat", PMOS, -0.8, -0.8, 0, -5.568e-5, 2.784e-4, 9.6e-6, SATURATION},
		{"nmos linear", NMOS, 0.8, 0.1, 0, 1.5e-3 * (0.4*0.1 - 0.005) * 1.02, 1.5e-3 * 0.1 * 1.02, 0, LINEAR},
	}
	for _, tt := range tests {
		op, err := NewMosfet(tt.pol).Query(tt.vgs, tt.vds, tt.vbs)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if op.Region != tt.region || !near(op.Ibias, tt.ibias) || !near(op.Gm, tt.gm) {
			t.Fatalf("%s: %v region %d", tt.name, op, op.Region)
		}
		if tt.gds > 0 && !near(op.Gds, tt.gds) {
			t.Fatalf("%s: gds %g, want %g", tt.name, op.Gds, tt.gds)
		}
		if want := 2 * math.Abs(op.Ibias) / op.Gm; !near(op.Vstar, want) {
			t.Fatalf("%s: vstar %g, want %g", tt.name, op.Vstar, want)
		}
		if op.Cgg <= 0 || op.Cgg != op.Cgs+op.Cgd+op.Cgb {
			t.Fatalf("%s: cgg %g", tt.name, op.Cgg)
		}
	}
}

func TestCutoffAndBody(t *testing.T) {
	m := NewMosfet(NMOS)
	off, _ := m.Query(0.3, 0.8, 0)
	// gmin keeps the small-signal matrix regular in cutoff
	if off.Region != CUTOFF || off.Ibias != 0 || off.Gm <= 0 || off.Gds <= 0 {
		t.Fatalf("cutoff op %v region %d", off, off.Region)
	}

	on, _ := m.Query(0.8, 0.8, 0)
	back, _ := m.Query(0.8, 0.8, -0.5)
	if back.Ibias >= on.Ibias {
		t.Fatalf("reverse body bias did not raise the threshold: %g >= %g", back.Ibias, on.Ibias)
	}
	if want := on.Gm * m.GAMMA / (2 * math.Sqrt(m.PHI)); !near(on.Gmb, want) {
		t.Fatalf("gmb %g, want %g", on.Gmb, want)
	}

	long, _ := m.WithLength(200e-9).Query(0.8, 0.8, 0)
	if !near(long.Ibias, on.Ibias/2) || m.L != 100e-9 {
		t.Fatalf("doubled length: %g vs %g, base length %g", long.Ibias, on.Ibias, m.L)
	}
}

func TestSetModelParameters(t *testing.T) {
	m := NewMosfet(NMOS)
	m.SetModelParameters(map[string]float64{"level": 3, "vto": 0.5, "kappa": 0, "bogus": 1})
	if m.Level != 3 || m.VTO != 0.5 || m.KAPPA != 0 {
		t.Fatalf("parameters not applied: %+v", m)
	}
	op, err := m.Query(0.9, 0.9, 0)
	if err != nil || op.Region != SATURATION || op.Gm <= 0 {
		t.Fatalf("level 3 op %v err %v", op, err)
	}
}

func TestParsePolarity(t *testing.T) {
	tests := []struct {
		in   string
		want Polarity
		ok   bool
	}{
		{"n", NMOS, true},
		{"nch", NMOS, true},
		{" PMOS ", PMOS, true},
		{"p", PMOS, true},
		{"x", NMOS, false},
	}
	for _, tt := range tests {
		got, err := ParsePolarity(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Fatalf("ParsePolarity(%q) = %v, %v", tt.in, got, err)
		}
	}
	var p Polarity
	if err := p.UnmarshalText([]byte("p")); err != nil || p != PMOS || p.Opposite() != NMOS || p.Sign() != -1 {
		t.Fatalf("UnmarshalText: %v %v", p, err)
	}
}

func TestCached(t *testing.T) {
	c := NewCached(NewMosfet(NMOS))
	a, _ := c.Query(0.8, 0.8, 0)
	b, _ := c.Query(0.8+1e-9, 0.8, 0)
	if c.Len() != 1 || a != b {
		t.Fatalf("sub-microvolt query missed the cache: %d entries", c.Len())
	}
	c.Query(0.801, 0.8, 0)
	if c.Len() != 2 {
		t.Fatalf("%d entries", c.Len())
	}
}

func TestSolveVgs(t *testing.T) {
	db := NewMosfet(NMOS)
	vgs, op, err := SolveVgs(db, NMOS, 0.8, 0, 1.392e-4, 1.8)
	if err != nil || math.Abs(vgs-0.8) > 1e-6 {
		t.Fatalf("vgs %g err %v", vgs, err)
	}
	if math.Abs(op.Ibias-1.392e-4)/1.392e-4 > 1e-5 {
		t.Fatalf("solved current %g", op.Ibias)
	}

	pvgs, _, err := SolveVgs(NewMosfet(PMOS), PMOS, -0.8, 0, 5.568e-5, 1.8)
	if err != nil || math.Abs(pvgs+0.8) > 1e-6 {
		t.Fatalf("pmos vgs %g err %v", pvgs, err)
	}

	if _, _, err := SolveVgs(db, NMOS, 0.8, 0, 1, 1.8); !errors.Is(err, ErrNoBias) {
		t.Fatalf("expected ErrNoBias, got %v", err)
	}
}

func TestModels(t *testing.T) {
	lib := DefaultModels()
	if _, err := lib.Database(NMOS, "lvt", 0); err == nil {
		t.Fatalf("unknown intent accepted")
	}
	a, err := lib.Database(NMOS, "", 0)
	if err != nil {
		t.Fatalf("Database error: %v", err)
	}
	b, _ := lib.Database(NMOS, DefaultIntent, 0)
	if a != b {
		t.Fatalf("default intent served a second database")
	}
	c, _ := lib.Database(NMOS, DefaultIntent, 200e-9)
	if c == a {
		t.Fatalf("channel length ignored")
	}

	op, err := QueryTerm(a, 1.0, 1.2, 0.2, 0)
	if err != nil || !near(op.VGS, 0.8) || !near(op.VDS, 1.0) || !near(op.VBS, -0.2) {
		t.Fatalf("QueryTerm op %v err %v", op, err)
	}
}
