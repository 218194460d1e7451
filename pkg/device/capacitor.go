package device

import (
	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/matrix"
)

type Capacitor struct {
	BaseDevice
}

func NewCapacitor(name string, nodeNames []string, value float64) *Capacitor {
	return &Capacitor{BaseDevice: newBaseDevice(name, value, nodeNames)}
}

func (c *Capacitor) GetType() string { return "C" }

func (c *Capacitor) Stamp(matrix matrix.DeviceMatrix) error {
	if len(c.Nodes) != 2 {
		return errors.Errorf("capacitor %s: requires exactly 2 nodes", c.Name)
	}

	stampBranch(matrix, c.Nodes[0], c.Nodes[1], 0, c.Value) // C * s
	return nil
}

// VCCS drives gm*(v(cp)-v(cn)) from node p to node n.
type VCCS struct {
	BaseDevice
}

// NewVCCS takes nodes in SPICE order: p, n, cp, cn.
func NewVCCS(name string, nodeNames []string, gm float64) *VCCS {
	return &VCCS{BaseDevice: newBaseDevice(name, gm, nodeNames)}
}

func (v *VCCS) GetType() string { return "G" }

func (v *VCCS) Stamp(matrix matrix.DeviceMatrix) error {
	if len(v.Nodes) != 4 {
		return errors.Errorf("vccs %s: requires exactly 4 nodes", v.Name)
	}
	stampVCCS(matrix, v.Nodes[0], v.Nodes[1], v.Nodes[2], v.Nodes[3], v.Value)
	return nil
}
