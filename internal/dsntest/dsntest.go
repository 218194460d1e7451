// Package dsntest provides deterministic device databases and verifiers for
// designer tests.
package dsntest

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/opdb"
)

// Square is an ideal square-law finger: id = K*vov^2*(1+Lambda*vds) in
// saturation, zero below threshold. Caps are constant.
type Square struct {
	Pol    opdb.Polarity
	K      float64
	Vt     float64 // threshold magnitude
	Lambda float64
	Gmb    float64 // gmb/gm ratio
	Cg     float64 // gate capacitance per finger
	Cd     float64 // drain junction capacitance per finger
}

func (d Square) Query(vgs, vds, vbs float64) (opdb.OperatingPoint, error) {
	sign := d.Pol.Sign()
	op := opdb.OperatingPoint{VGS: vgs, VDS: vds, VBS: vbs}

	vov := sign*vgs - d.Vt
	vd := math.Max(0, sign*vds)

	op.Cgs = 2 * d.Cg / 3
	op.Cgd = d.Cg / 3
	op.Cgg = d.Cg
	op.Cdb = d.Cd
	op.Cdd = d.Cd + op.Cgd
	op.Css = op.Cgs

	if vov <= 0 {
		op.Region = opdb.CUTOFF
		op.Gds = 1e-12
		return op, nil
	}

	id := d.K * vov * vov * (1 + d.Lambda*vd)
	op.Ibias = sign * id
	op.Gm = 2 * d.K * vov * (1 + d.Lambda*vd)
	op.Gds = d.Lambda * d.K * vov * vov
	op.Gmb = d.Gmb * op.Gm
	op.Vstar = 2 * id / op.Gm
	op.Region = opdb.SATURATION
	if vd < vov {
		op.Region = opdb.LINEAR
	}
	return op, nil
}

// Lib serves one Square per polarity regardless of intent and length.
type Lib struct {
	N, P Square

	mu      sync.Mutex
	Queries map[string]int // "n/intent" -> database requests
}

func NewLib() *Lib {
	return &Lib{
		N: Square{Pol: opdb.NMOS, K: 200e-6, Vt: 0.35, Lambda: 0.1, Gmb: 0.2, Cg: 1e-15, Cd: 0.5e-15},
		P: Square{Pol: opdb.PMOS, K: 100e-6, Vt: 0.35, Lambda: 0.1, Gmb: 0.2, Cg: 1e-15, Cd: 0.5e-15},
	}
}

func (l *Lib) Database(pol opdb.Polarity, intent string, lch float64) (opdb.Database, error) {
	l.mu.Lock()
	if l.Queries == nil {
		l.Queries = make(map[string]int)
	}
	l.Queries[pol.String()+"/"+intent]++
	l.mu.Unlock()

	if intent == "missing" {
		return nil, errors.Errorf("no %s model for intent %q", pol, intent)
	}
	if pol == opdb.PMOS {
		return l.P, nil
	}
	return l.N, nil
}

// Env returns a quiet environment over NewLib with a coarse sweep step.
func Env() dsn.Env {
	return dsn.Env{Lib: NewLib(), Vstep: 0.05}
}

// Verifier returns a fixed measurement and records every call.
type Verifier struct {
	M   dsn.Measurement
	Err error

	mu     sync.Mutex
	Blocks []string
}

func (v *Verifier) Verify(block string, params dsn.SchParams, tb map[string]float64) (dsn.Measurement, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Blocks = append(v.Blocks, block)
	return v.M, v.Err
}
