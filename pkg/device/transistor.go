package device

import (
	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/matrix"
	"github.com/edp1096/toy-dsn/pkg/opdb"
)

// Transistor is the small-signal model of Fingers parallel unit devices
// biased at Op. Nodes are drain, gate, source, bulk.
type Transistor struct {
	BaseDevice
	Op      opdb.OperatingPoint
	Fingers float64
}

func NewTransistor(name string, nodeNames []string, op opdb.OperatingPoint, fingers float64) *Transistor {
	return &Transistor{
		BaseDevice: newBaseDevice(name, fingers, nodeNames),
		Op:         op,
		Fingers:    fingers,
	}
}

func (t *Transistor) GetType() string { return "M" }

func (t *Transistor) Stamp(matrix matrix.DeviceMatrix) error {
	if len(t.Nodes) != 4 {
		return errors.Errorf("transistor %s: requires exactly 4 nodes (drain, gate, source, bulk)", t.Name)
	}
	if t.Fingers <= 0 {
		return errors.Errorf("transistor %s: finger count %g must be positive", t.Name, t.Fingers)
	}

	nd := t.Nodes[0] // Drain
	ng := t.Nodes[1] // Gate
	ns := t.Nodes[2] // Source
	nb := t.Nodes[3] // Bulk

	k := t.Fingers
	op := t.Op

	stampVCCS(matrix, nd, ns, ng, ns, k*op.Gm)
	stampVCCS(matrix, nd, ns, nb, ns, k*op.Gmb)
	stampBranch(matrix, nd, ns, k*op.Gds, k*op.Cds)

	stampBranch(matrix, ng, ns, 0, k*op.Cgs)
	stampBranch(matrix, ng, nd, 0, k*op.Cgd)
	stampBranch(matrix, ng, nb, 0, k*op.Cgb)
	stampBranch(matrix, nd, nb, 0, k*op.Cdb)
	stampBranch(matrix, ns, nb, 0, k*op.Csb)

	return nil
}
