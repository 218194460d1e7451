package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edp1096/toy-dsn/pkg/blocks/ampdiff"
	"github.com/edp1096/toy-dsn/pkg/opdb"
)

const sample = `
block: amp_diff_mirr
sweep:
  vstep: 0.02
  ratio_tol: 0.1
models:
  - type: n
    intent: lvt
    params: {level: 1, vto: 0.3, kp: 350e-6}
  - type: pmos
    params: {vto: -0.45}
roles:
  in: {intent: lvt, lch: 200e-9, w: 1e-6}
spec:
  in_type: n
  vdd: 1.2
  vincm: 0.7
  vtail_bias: 0.6
  gain_min: 20
  ibias_max: 50e-6
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if f.Block != ampdiff.Block || len(f.Models) != 2 || f.Models[1].Type != opdb.PMOS {
		t.Fatalf("parsed %+v", f)
	}

	var spec ampdiff.Spec
	if err := f.DecodeSpec(&spec); err != nil {
		t.Fatalf("DecodeSpec error: %v", err)
	}
	if spec.InType != "n" || spec.VDD != 1.2 || spec.VTailBias != 0.6 || spec.IbiasMax != 50e-6 {
		t.Fatalf("spec %+v", spec)
	}

	env := f.Env(nil)
	if env.Step() != 0.02 || env.Tol() != 0.1 || env.Intents["in"] != "lvt" || env.Lch["in"] != 200e-9 {
		t.Fatalf("env %+v", env)
	}
	db, err := env.DB("in", opdb.NMOS)
	if err != nil {
		t.Fatalf("DB error: %v", err)
	}
	op, _ := db.Query(0.8, 0.8, 0)
	want, _ := opdb.NewMosfet(opdb.NMOS).WithLength(200e-9).Query(0.8, 0.8, 0)
	if op.Ibias <= want.Ibias {
		t.Fatalf("lvt model not used: %g <= %g", op.Ibias, want.Ibias)
	}
	if _, err := env.DB("tail", opdb.NMOS); err != nil {
		t.Fatalf("default intent missing: %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name, src string
	}{
		{"empty", ""},
		{"unknown key", "block: x\nsweeps: {}\n"},
		{"bad polarity", "models:\n  - type: npn\n"},
		{"negative step", "sweep: {vstep: -0.01}\n"},
		{"ratio tol", "sweep: {ratio_tol: 1.5}\n"},
	}
	for _, tt := range tests {
		if _, err := Parse([]byte(tt.src)); err == nil {
			t.Fatalf("%s: accepted", tt.name)
		}
	}
}

func TestDecodeSpecErrors(t *testing.T) {
	f, err := Parse([]byte("block: amp_diff_mirr\n"))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	var spec ampdiff.Spec
	if err := f.DecodeSpec(&spec); err == nil {
		t.Fatalf("missing spec accepted")
	}

	f, err = Parse([]byte("spec: {vdd: 1.2, gain_minimum: 3}\n"))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if err := f.DecodeSpec(&spec); err == nil {
		t.Fatalf("unknown spec key accepted")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil || f.Block != ampdiff.Block {
		t.Fatalf("Load: %+v %v", f, err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}
