// Package device holds the small-signal elements of an LTI circuit.
package device

import (
	"github.com/edp1096/toy-dsn/pkg/matrix"
)

type Device interface {
	GetName() string
	GetType() string
	GetNodeNames() []string
	GetNodes() []int
	SetNodes(nodes []int)
	Stamp(matrix matrix.DeviceMatrix) error
}

type BaseDevice struct {
	Name      string
	Nodes     []int
	Value     float64
	NodeNames []string
}

func (d *BaseDevice) GetName() string {
	return d.Name
}

func (d *BaseDevice) GetNodes() []int {
	return d.Nodes
}

func (d *BaseDevice) GetNodeNames() []string {
	return d.NodeNames
}

func (d *BaseDevice) GetValue() float64 {
	return d.Value
}

func (d *BaseDevice) SetNodes(nodes []int) {
	d.Nodes = nodes
}

func newBaseDevice(name string, value float64, nodeNames []string) BaseDevice {
	return BaseDevice{
		Name:      name,
		Value:     value,
		NodeNames: nodeNames,
		Nodes:     make([]int, len(nodeNames)),
	}
}

// stampBranch stamps g + s*c between n1 and n2.
func stampBranch(m matrix.DeviceMatrix, n1, n2 int, g, c float64) {
	if n1 != 0 {
		m.AddAdmittance(n1, n1, g, c)
		if n2 != 0 {
			m.AddAdmittance(n1, n2, -g, -c)
		}
	}
	if n2 != 0 {
		if n1 != 0 {
			m.AddAdmittance(n2, n1, -g, -c)
		}
		m.AddAdmittance(n2, n2, g, c)
	}
}

// stampVCCS stamps a current gm*(v(cp)-v(cn)) flowing from p to n.
func stampVCCS(m matrix.DeviceMatrix, p, n, cp, cn int, gm float64) {
	if p != 0 {
		if cp != 0 {
			m.AddAdmittance(p, cp, gm, 0)
		}
		if cn != 0 {
			m.AddAdmittance(p, cn, -gm, 0)
		}
	}
	if n != 0 {
		if cp != 0 {
			m.AddAdmittance(n, cp, -gm, 0)
		}
		if cn != 0 {
			m.AddAdmittance(n, cn, gm, 0)
		}
	}
}
