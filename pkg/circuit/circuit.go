// Package circuit assembles small-signal LTI circuits from named nets and
// extracts transfer functions between them.
package circuit

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/device"
	"github.com/edp1096/toy-dsn/pkg/matrix"
	"github.com/edp1096/toy-dsn/pkg/opdb"
)

// Gnd is the reference net. "0" is accepted as well.
const Gnd = "gnd"

type InputKind int

const (
	Voltage InputKind = iota // ideal voltage source at the input net
	Current                  // unit current injected into the input net
)

func (k InputKind) String() string {
	if k == Current {
		return "current"
	}
	return "voltage"
}

type Circuit struct {
	name    string
	nodeMap map[string]int
	devices []device.Device
}

func New(name string) *Circuit {
	return &Circuit{
		name:    name,
		nodeMap: make(map[string]int),
		devices: make([]device.Device, 0),
	}
}

func IsGround(net string) bool {
	return net == "0" || net == Gnd
}

func (c *Circuit) node(net string) int {
	if IsGround(net) {
		return 0
	}
	if idx, exists := c.nodeMap[net]; exists {
		return idx
	}
	idx := len(c.nodeMap) + 1
	c.nodeMap[net] = idx
	return idx
}

func (c *Circuit) add(dev device.Device) {
	names := dev.GetNodeNames()
	nodeIndices := make([]int, len(names))
	for i, net := range names {
		nodeIndices[i] = c.node(net)
	}
	dev.SetNodes(nodeIndices)
	c.devices = append(c.devices, dev)
}

func (c *Circuit) nextName(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, len(c.devices))
}

// AddTransistor adds fingers unit devices biased at op.
func (c *Circuit) AddTransistor(op opdb.OperatingPoint, d, g, s, b string, fingers float64) {
	c.add(device.NewTransistor(c.nextName("M"), []string{d, g, s, b}, op, fingers))
}

func (c *Circuit) AddResistor(value float64, p, n string) {
	c.add(device.NewResistor(c.nextName("R"), []string{p, n}, value))
}

func (c *Circuit) AddConductance(value float64, p, n string) {
	c.add(device.NewConductance(c.nextName("Y"), []string{p, n}, value))
}

func (c *Circuit) AddCapacitor(value float64, p, n string) {
	c.add(device.NewCapacitor(c.nextName("C"), []string{p, n}, value))
}

// AddVCCS drives gm*(v(cp)-v(cn)) from p to n.
func (c *Circuit) AddVCCS(gm float64, p, n, cp, cn string) {
	c.add(device.NewVCCS(c.nextName("G"), []string{p, n, cp, cn}, gm))
}

// AddDevice adds an already built device (netlist reader).
func (c *Circuit) AddDevice(dev device.Device) {
	c.add(dev)
}

func (c *Circuit) Name() string { return c.name }

func (c *Circuit) GetNodeMap() map[string]int { return c.nodeMap }

func (c *Circuit) GetDevices() []device.Device { return c.devices }

func (c *Circuit) GetNumNodes() int { return len(c.nodeMap) }

// Nets lists non-ground nets in index order.
func (c *Circuit) Nets() []string {
	nets := make([]string, 0, len(c.nodeMap))
	for net := range c.nodeMap {
		nets = append(nets, net)
	}
	sort.Slice(nets, func(i, j int) bool { return c.nodeMap[nets[i]] < c.nodeMap[nets[j]] })
	return nets
}

func (c *Circuit) Stamp(m matrix.DeviceMatrix) error {
	for _, dev := range c.devices {
		if err := dev.Stamp(m); err != nil {
			return errors.Wrapf(err, "stamping device %s", dev.GetName())
		}
	}
	return nil
}

func (c *Circuit) lookup(net string) (int, error) {
	if IsGround(net) {
		return 0, errors.Errorf("%s: net %q is ground", c.name, net)
	}
	idx, ok := c.nodeMap[net]
	if !ok {
		return 0, errors.Errorf("%s: unknown net %q", c.name, net)
	}
	return idx, nil
}
