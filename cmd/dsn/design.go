package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/blocks/ampcs"
	"github.com/edp1096/toy-dsn/pkg/blocks/ampdiff"
	"github.com/edp1096/toy-dsn/pkg/blocks/ampfc"
	"github.com/edp1096/toy-dsn/pkg/blocks/ampsf"
	"github.com/edp1096/toy-dsn/pkg/blocks/bandgap"
	"github.com/edp1096/toy-dsn/pkg/blocks/comparator"
	"github.com/edp1096/toy-dsn/pkg/blocks/constgm"
	"github.com/edp1096/toy-dsn/pkg/blocks/delay"
	"github.com/edp1096/toy-dsn/pkg/blocks/ldo"
	"github.com/edp1096/toy-dsn/pkg/config"
	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

// outcome is a design result with the block type erased.
type outcome struct {
	Block      string           `yaml:"block"`
	Best       string           `yaml:"best"`
	Candidates int              `yaml:"candidates"`
	Metrics    dsn.Metrics      `yaml:"metrics"`
	Measured   *dsn.Measurement `yaml:"measured,omitempty"`
	Params     dsn.SchParams    `yaml:"params"`

	curve string // what TF describes, "gain" or "loop"
	tf    poly.TF
}

type runner func(env dsn.Env, f *config.File) (*outcome, error)

type designer[S any, T dsn.Op] interface {
	Design(spec S) (dsn.Result[T], error)
}

// block adapts one designer constructor to the registry. view picks the
// transfer function worth plotting for a selected design.
func block[S any, T dsn.Op, D designer[S, T]](name string, newDesigner func(dsn.Env) D, view func(T) (string, poly.TF)) runner {
	return func(env dsn.Env, f *config.File) (*outcome, error) {
		var spec S
		if err := f.DecodeSpec(&spec); err != nil {
			return nil, err
		}
		res, err := newDesigner(env).Design(spec)
		if err != nil {
			return nil, err
		}
		curve, tf := view(res.Best)
		return &outcome{
			Block:      name,
			Best:       res.Best.Key(),
			Candidates: len(res.Candidates),
			Metrics:    res.Metrics,
			Measured:   res.Measured,
			Params:     res.Params,
			curve:      curve,
			tf:         tf,
		}, nil
	}
}

func gain(tf poly.TF) (string, poly.TF) { return "gain", tf }
func loop(tf poly.TF) (string, poly.TF) { return "loop", tf }

var registry = map[string]runner{
	ampcs.Block: block[ampcs.Spec, ampcs.Op](ampcs.Block, ampcs.New,
		func(o ampcs.Op) (string, poly.TF) { return gain(o.TF) }),
	ampdiff.Block: block[ampdiff.Spec, ampdiff.Op](ampdiff.Block, ampdiff.NewMirr,
		func(o ampdiff.Op) (string, poly.TF) { return gain(o.TF) }),
	ampdiff.Block + "_bias": block[ampdiff.Spec, ampdiff.Op](ampdiff.Block+"_bias", ampdiff.NewMirrBias,
		func(o ampdiff.Op) (string, poly.TF) { return gain(o.TF) }),
	ampfc.Block: block[ampfc.Spec, ampfc.Op](ampfc.Block, ampfc.New,
		func(o ampfc.Op) (string, poly.TF) { return gain(o.TF) }),
	ampsf.Block: block[ampsf.Spec, ampsf.Op](ampsf.Block, ampsf.New,
		func(o ampsf.Op) (string, poly.TF) { return gain(o.TF) }),
	bandgap.Block: block[bandgap.Spec, bandgap.Op](bandgap.Block, bandgap.New,
		func(o bandgap.Op) (string, poly.TF) { return loop(o.Loop) }),
	comparator.Block: block[comparator.Spec, comparator.Op](comparator.Block, comparator.New,
		func(o comparator.Op) (string, poly.TF) { return gain(o.TF) }),
	comparator.PreampBlock: block[comparator.PreampSpec, comparator.Preamp](comparator.PreampBlock, comparator.NewPreamp,
		func(o comparator.Preamp) (string, poly.TF) { return gain(o.TF) }),
	constgm.Block: block[constgm.Spec, constgm.Op](constgm.Block, constgm.New,
		func(o constgm.Op) (string, poly.TF) { return loop(o.Loop) }),
	delay.Block: block[delay.Spec, delay.Op](delay.Block, delay.New,
		func(o delay.Op) (string, poly.TF) { return gain(o.TF) }),
	ldo.Block: block[ldo.Spec, ldo.Op](ldo.Block, ldo.New,
		func(o ldo.Op) (string, poly.TF) { return loop(o.Loop) }),
}

func blockNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func runDesign(args []string) error {
	fs := flag.NewFlagSet("design", flag.ExitOnError)
	cfgPath := fs.String("config", "", "design YAML file")
	blockName := fs.String("block", "", "block type, overrides the config")
	bodePath := fs.String("bode", "", "write a Bode plot of the selected design (PNG)")
	verbose := fs.Bool("v", false, "log search decisions")
	fs.Parse(args)

	if *cfgPath == "" {
		fs.Usage()
		return errors.New("missing -config")
	}
	f, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *blockName != "" {
		f.Block = *blockName
	}
	run, ok := registry[f.Block]
	if !ok {
		return errors.Errorf("unknown block %q (have %v)", f.Block, blockNames())
	}

	var logger *log.Logger
	if *verbose {
		logger = log.New(os.Stderr, "["+f.Block+"] ", log.Lmicroseconds)
	}
	out, err := run(f.Env(logger), f)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return errors.Wrap(err, "writing result")
	}
	if err := enc.Close(); err != nil {
		return errors.WithStack(err)
	}

	if *bodePath == "" {
		return nil
	}
	if len(out.tf.Den) == 0 {
		return errors.Errorf("%s: no transfer function to plot", f.Block)
	}
	lo, hi := plotRange(out.tf)
	ac := analysis.NewAC(lo, hi, 20, "DEC")
	ac.ExecuteTF(out.curve, out.tf)
	title := fmt.Sprintf("%s %s", f.Block, out.curve)
	return writeBode(*bodePath, title, out.curve, ac.GetResults())
}
