// Package config loads a design run from YAML: device model overrides,
// per-role device choices, sweep settings and one block spec.
//
//	block: amp_diff_mirr
//	sweep:
//	  vstep: 0.01
//	models:
//	  - type: n
//	    intent: lvt
//	    params: {vto: 0.3, kp: 350e-6}
//	roles:
//	  in: {intent: lvt, lch: 200e-9}
//	spec:
//	  in_type: n
//	  vdd: 1.2
package config

import (
	"bytes"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/opdb"
)

// Model is an analytic MOSFET registered under a threshold intent.
type Model struct {
	Type   opdb.Polarity      `yaml:"type"`
	Intent string             `yaml:"intent"`
	Params map[string]float64 `yaml:"params"` // lowercase SPICE names, level included
}

// Role picks the device flavor for one role of a block ("in", "load", ...).
type Role struct {
	Intent string  `yaml:"intent"`
	Lch    float64 `yaml:"lch"`
	W      float64 `yaml:"w"`
}

type Sweep struct {
	Vstep    float64 `yaml:"vstep"`
	RatioTol float64 `yaml:"ratio_tol"`
	VgsMax   float64 `yaml:"vgs_max"`
}

type File struct {
	Block  string          `yaml:"block"`
	Sweep  Sweep           `yaml:"sweep"`
	Models []Model         `yaml:"models"`
	Roles  map[string]Role `yaml:"roles"`
	Spec   yaml.Node       `yaml:"spec"`
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return f, nil
}

// Parse decodes a config strictly: unknown keys are errors.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty config")
		}
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	switch {
	case f.Sweep.Vstep < 0:
		return errors.Errorf("sweep.vstep %g must not be negative", f.Sweep.Vstep)
	case f.Sweep.RatioTol < 0 || f.Sweep.RatioTol >= 1:
		return errors.Errorf("sweep.ratio_tol %g outside [0, 1)", f.Sweep.RatioTol)
	case f.Sweep.VgsMax < 0:
		return errors.Errorf("sweep.vgs_max %g must not be negative", f.Sweep.VgsMax)
	}
	for role, r := range f.Roles {
		if r.Lch < 0 || r.W < 0 {
			return errors.Errorf("role %s: negative geometry", role)
		}
	}
	return nil
}

// DecodeSpec decodes the spec node into a block spec struct, rejecting keys
// the struct does not declare.
func (f *File) DecodeSpec(v any) error {
	if f.Spec.Kind == 0 {
		return errors.New("config has no spec")
	}
	raw, err := yaml.Marshal(&f.Spec)
	if err != nil {
		return errors.WithStack(err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return errors.Wrapf(dec.Decode(v), "%s spec", f.Block)
}

// Library returns the built-in models with the configured ones added.
// A model under an existing intent replaces it.
func (f *File) Library() *opdb.Models {
	lib := opdb.DefaultModels()
	for _, m := range f.Models {
		intent := m.Intent
		if intent == "" {
			intent = opdb.DefaultIntent
		}
		dev := opdb.NewMosfet(m.Type)
		dev.SetModelParameters(m.Params)
		lib.Add(intent, dev)
	}
	return lib
}

// Env builds the design environment. logger may be nil.
func (f *File) Env(logger *log.Logger) dsn.Env {
	env := dsn.Env{
		Lib:      f.Library(),
		Intents:  make(map[string]string, len(f.Roles)),
		Lch:      make(map[string]float64, len(f.Roles)),
		Width:    make(map[string]float64, len(f.Roles)),
		Vstep:    f.Sweep.Vstep,
		RatioTol: f.Sweep.RatioTol,
		VgsMax:   f.Sweep.VgsMax,
		Log:      logger,
	}
	for role, r := range f.Roles {
		env.Intents[role] = r.Intent
		env.Lch[role] = r.Lch
		env.Width[role] = r.W
	}
	return env
}
