package device

import (
	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/matrix"
)

type Resistor struct {
	BaseDevice
}

func NewResistor(name string, nodeNames []string, value float64) *Resistor {
	return &Resistor{BaseDevice: newBaseDevice(name, value, nodeNames)}
}

func (r *Resistor) GetType() string { return "R" }

func (r *Resistor) Stamp(matrix matrix.DeviceMatrix) error {
	if len(r.Nodes) != 2 {
		return errors.Errorf("resistor %s: requires exactly 2 nodes", r.Name)
	}
	if r.Value == 0 {
		return errors.Errorf("resistor %s: zero resistance", r.Name)
	}

	stampBranch(matrix, r.Nodes[0], r.Nodes[1], 1.0/r.Value, 0) // G = 1/R
	return nil
}

// Conductance is a resistor given as G; zero is allowed (open).
type Conductance struct {
	BaseDevice
}

func NewConductance(name string, nodeNames []string, value float64) *Conductance {
	return &Conductance{BaseDevice: newBaseDevice(name, value, nodeNames)}
}

func (g *Conductance) GetType() string { return "Y" }

func (g *Conductance) Stamp(matrix matrix.DeviceMatrix) error {
	if len(g.Nodes) != 2 {
		return errors.Errorf("conductance %s: requires exactly 2 nodes", g.Name)
	}
	stampBranch(matrix, g.Nodes[0], g.Nodes[1], g.Value, 0)
	return nil
}
