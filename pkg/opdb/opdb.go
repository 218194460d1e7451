// Package opdb provides transistor operating-point lookups for the design
// search. A Database answers "what are the small-signal parameters of one
// unit finger biased at vgs/vds/vbs".
package opdb

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type Polarity int

const (
	NMOS Polarity = iota
	PMOS
)

func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "n", "nch", "nmos":
		return NMOS, nil
	case "p", "pch", "pmos":
		return PMOS, nil
	}
	return NMOS, errors.Errorf("invalid device type %q, must be n or p", s)
}

func (p Polarity) String() string {
	if p == PMOS {
		return "p"
	}
	return "n"
}

// Opposite returns the complementary device type (the load of an input pair).
func (p Polarity) Opposite() Polarity {
	if p == PMOS {
		return NMOS
	}
	return PMOS
}

// Sign is +1 for NMOS and -1 for PMOS.
func (p Polarity) Sign() float64 {
	if p == PMOS {
		return -1
	}
	return 1
}

func (p Polarity) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Polarity) UnmarshalText(b []byte) error {
	v, err := ParsePolarity(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Operation region
const (
	CUTOFF     = 0
	LINEAR     = 1
	SATURATION = 2
)

// OperatingPoint is the small-signal description of one finger. Ibias is
// signed (drain to source), conductances and capacitances are positive.
type OperatingPoint struct {
	VGS, VDS, VBS float64

	Ibias float64
	Gm    float64
	Gds   float64
	Gmb   float64
	Vstar float64 // 2*|Ibias|/Gm

	Cgg float64
	Cgs float64
	Cgd float64
	Cgb float64
	Cds float64
	Cdb float64
	Csb float64
	Cdd float64
	Css float64

	Region int
}

func (op OperatingPoint) String() string {
	return fmt.Sprintf("vgs=%.3f vds=%.3f vbs=%.3f id=%.3g gm=%.3g gds=%.3g", op.VGS, op.VDS, op.VBS, op.Ibias, op.Gm, op.Gds)
}

// Database is a transistor characterization source.
type Database interface {
	Query(vgs, vds, vbs float64) (OperatingPoint, error)
}

// QueryTerm queries by terminal voltages instead of relative ones.
func QueryTerm(db Database, vg, vd, vs, vb float64) (OperatingPoint, error) {
	return db.Query(vg-vs, vd-vs, vb-vs)
}
