package opdb

import (
	"math"

	"github.com/pkg/errors"
)

// ErrNoBias means no gate voltage inside the search window delivers the
// requested current.
var ErrNoBias = errors.New("no gate bias for target current")

// SolveVgs finds the vgs (device polarity) at which one finger conducts
// |ibias| for the given vds/vbs. Current is assumed monotonic in |vgs|;
// the search is a bisection over [0, vgsMax] magnitude.
func SolveVgs(db Database, pol Polarity, vds, vbs, ibias, vgsMax float64) (float64, OperatingPoint, error) {
	target := math.Abs(ibias)
	sign := pol.Sign()

	current := func(mag float64) (float64, OperatingPoint, error) {
		op, err := db.Query(sign*mag, vds, vbs)
		if err != nil {
			return 0, op, err
		}
		return math.Abs(op.Ibias), op, nil
	}

	lo, hi := 0.0, math.Abs(vgsMax)
	iHi, opHi, err := current(hi)
	if err != nil {
		return 0, opHi, err
	}
	if iHi < target {
		return 0, opHi, errors.Wrapf(ErrNoBias, "%s: %.3g A above max %.3g A", pol, target, iHi)
	}
	iLo, _, err := current(lo)
	if err != nil {
		return 0, opHi, err
	}
	if iLo > target {
		return 0, opHi, errors.Wrapf(ErrNoBias, "%s: %.3g A below leakage %.3g A", pol, target, iLo)
	}

	for range 60 {
		mid := 0.5 * (lo + hi)
		iMid, _, err := current(mid)
		if err != nil {
			return 0, opHi, err
		}
		if iMid < target {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < 1e-7 {
			break
		}
	}

	vgs := sign * hi
	op, err := db.Query(vgs, vds, vbs)
	return vgs, op, err
}
