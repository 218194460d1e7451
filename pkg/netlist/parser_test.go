package netlist

import (
	"math"
	"testing"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/circuit"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1k", 1e3, true},
		{"2.2u", 2.2e-6, true},
		{"10f", 1e-14, true},
		{"1meg", 1e6, true},
		{"3Meg", 3e6, true},
		{"5M", 5e-3, true},
		{"1e-3", 1e-3, true},
		{"1g", 1e9, true},
		{"-0.8", -0.8, true},
		{"100ns", 1e-7, true},
		{"abc", 0, false},
		{"1x", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseValue(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("ParseValue(%q) error %v", tt.in, err)
		}
		if tt.ok && math.Abs(got-tt.want) > 1e-12*math.Abs(tt.want) {
			t.Fatalf("ParseValue(%q) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

const csAmp = `* common source
.model nch nmos (level=1 vto=0.4
+ kp=300u lambda=0.2)
M1 out in 0 0 nch vgs=0.8 vds=0.8 nf=2 ; biased in saturation
R1 out 0 1meg
C1 out 0 1p
.tf v(out) in
.ac dec 10 1 1g
.end
`

func TestParse(t *testing.T) {
	data, err := Parse(csAmp)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if data.Title != "common source" || len(data.Elements) != 3 || len(data.Models) != 1 {
		t.Fatalf("parsed %+v", data)
	}
	m1 := data.Elements[0]
	if m1.Type != "M" || m1.Model != "nch" || m1.Params["nf"] != 2 || len(m1.Nodes) != 4 {
		t.Fatalf("M1 = %+v", m1)
	}
	if data.Models["nch"].LAMBDA != 0.2 {
		t.Fatalf("continuation line lost: %+v", data.Models["nch"])
	}
	if !data.HasTF || data.TFParam.OutP != "out" || data.TFParam.In != "in" || data.TFParam.Kind != circuit.Voltage {
		t.Fatalf("tf %+v", data.TFParam)
	}
	if !data.HasAC || data.ACParam.Sweep != "DEC" || data.ACParam.Points != 10 || data.ACParam.FStop != 1e9 {
		t.Fatalf("ac %+v", data.ACParam)
	}
	if _, ok := data.Nodes["0"]; ok || len(data.Nodes) != 2 {
		t.Fatalf("nodes %v", data.Nodes)
	}
}

func TestBuild(t *testing.T) {
	data, err := Parse(csAmp)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	ckt, err := data.Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	tf, err := ckt.TransferFunction("in", "out", circuit.Voltage)
	if err != nil {
		t.Fatalf("TransferFunction error: %v", err)
	}

	// level 1 at vgs=vds=0.8: gm=6.96e-4, gds=2.4e-5 per finger
	gm, gds := 2*6.96e-4, 2*2.4e-5
	want := -gm / (gds + 1/1e6)
	if g := analysis.DCGain(tf); math.Abs(g-want)/math.Abs(want) > 1e-6 {
		t.Fatalf("gain %g, want %g", g, want)
	}
}

func TestInlineOperatingPoint(t *testing.T) {
	data, err := Parse(`* inline
M1 out in 0 0 gm=1m gds=1u
C1 out 0 1p
G1 out 0 in 0 0
`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	ckt, err := data.Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	tf, err := ckt.TransferFunction("in", "out", circuit.Voltage)
	if err != nil {
		t.Fatalf("TransferFunction error: %v", err)
	}
	if g := analysis.DCGain(tf); math.Abs(g+1000) > 1e-6 {
		t.Fatalf("gain %g", g)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name, src string
	}{
		{"unknown element", "* t\nQ1 c b e npn\n"},
		{"bad value", "* t\nR1 a 0 1x\n"},
		{"short resistor", "* t\nR1 a 0\n"},
		{"bad model type", "* t\n.model q1 npn (bf=100)\n"},
		{"bad tf", "* t\n.tf i(out) in\n"},
		{"bad sweep", "* t\n.ac log 10 1 1g\n"},
		{"bad control", "* t\n.tran 1n 1u\n"},
		{"bad param", "* t\nM1 d g 0 0 nch gm\n"},
	}
	for _, tt := range tests {
		if _, err := Parse(tt.src); err == nil {
			t.Fatalf("%s: accepted", tt.name)
		}
	}

	data, err := Parse("* t\nM1 d g 0 0 pch vgs=-1\n")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if _, err := data.Build(); err == nil {
		t.Fatalf("unknown model accepted")
	}
}

func TestDifferentialProbe(t *testing.T) {
	data, err := Parse("* t\nR1 a b 1k\n.tf V(a,b) a current\n")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	tf := data.TFParam
	if tf.OutP != "a" || tf.OutN != "b" || tf.Kind != circuit.Current {
		t.Fatalf("tf %+v", tf)
	}
}
