package dsn

import (
	"math"

	"github.com/edp1096/toy-dsn/pkg/opdb"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

// EstimateVth is the quadratic-model threshold estimate from the op's vstar.
// It is an approximation, good enough to bound sweep windows.
func EstimateVth(op opdb.OperatingPoint, pol opdb.Polarity) float64 {
	if pol == opdb.PMOS {
		return op.VGS + op.Vstar
	}
	return op.VGS - op.Vstar
}

// EstimateVthAt queries a diode-connected finger at vgs and estimates vth.
func EstimateVthAt(db opdb.Database, pol opdb.Polarity, vgs, vbs float64) (float64, error) {
	op, err := db.Query(vgs, vgs, vbs)
	if err != nil {
		return 0, err
	}
	return EstimateVth(op, pol), nil
}

// VerifyRatio sizes device b so that ibaseB*nfB matches ibaseA*nfA. It fails
// when the rounded finger count is below one or the realized mismatch
// exceeds tol.
func VerifyRatio(ibaseA, ibaseB float64, nfA int, tol float64) (int, bool) {
	ia := math.Abs(ibaseA * float64(nfA))
	ib := math.Abs(ibaseB)
	if ia == 0 || ib == 0 {
		return 0, false
	}

	nfB := int(math.Round(ia / ib))
	if nfB < 1 {
		return 0, false
	}

	mismatch := (ia - ib*float64(nfB)) / ia
	if math.Abs(mismatch) > tol {
		return 0, false
	}
	return nfB, true
}

// MatchCurrent sizes a device to carry target with one finger carrying
// iunit.
func MatchCurrent(target, iunit float64, tol float64) (int, bool) {
	if target == 0 {
		return 0, false
	}
	return VerifyRatio(target, iunit, 1, tol)
}

// Parallel combines impedances in parallel; any zero term (a short) makes
// the result 0.
func Parallel(rs ...float64) float64 {
	var sum float64
	for _, r := range rs {
		if r == 0 {
			return 0
		}
		sum += 1 / r
	}
	if sum == 0 {
		return 0
	}
	return 1 / sum
}

// Superpose combines the half-circuit responses of a differential input
// into the differential transfer function 0.5*(Hp - Hn).
func Superpose(hp, hn poly.TF) poly.TF {
	return hp.Add(hn.Scale(-1)).Scale(0.5)
}
