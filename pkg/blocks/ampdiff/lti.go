package ampdiff

import (
	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/circuit"
	"github.com/edp1096/toy-dsn/pkg/dsn"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

// Nets names the amplifier terminals inside a larger circuit. Both rails
// are small-signal ground; Bias defaults to ground as well.
type Nets struct {
	Prefix string
	InP    string
	InN    string
	Out    string
	Bias   string
}

func (n Nets) internal(name string) string { return n.Prefix + name }

// Stamp adds the sized amplifier to ckt. The positive input drives the
// diode side of the mirror, so Out is non-inverting with respect to InP.
func (o Op) Stamp(ckt *circuit.Circuit, n Nets) {
	gnd := circuit.Gnd
	tail := n.internal("tail")
	mirror := n.internal("mirror")
	bias := n.Bias
	if bias == "" {
		bias = gnd
	}

	ckt.AddTransistor(o.Tail, tail, bias, gnd, gnd, float64(o.NfTail))
	ckt.AddTransistor(o.In, mirror, n.InP, tail, gnd, float64(o.NfIn))
	ckt.AddTransistor(o.In, n.Out, n.InN, tail, gnd, float64(o.NfIn))
	ckt.AddTransistor(o.Load, mirror, mirror, gnd, gnd, float64(o.NfLoad))
	ckt.AddTransistor(o.Load, n.Out, mirror, gnd, gnd, float64(o.NfLoad))
}

// halfTF excites one input with the other grounded.
func (o Op) halfTF(side string) (poly.TF, error) {
	ckt := circuit.New(Block + "_" + side)
	n := Nets{InP: circuit.Gnd, InN: circuit.Gnd, Out: "out"}
	in := "in" + side
	if side == "p" {
		n.InP = in
	} else {
		n.InN = in
	}
	o.Stamp(ckt, n)
	if o.CLoad > 0 {
		ckt.AddCapacitor(o.CLoad, "out", circuit.Gnd)
	}
	tf, err := ckt.TransferFunction(in, "out", circuit.Voltage)
	return tf, errors.Wrapf(err, "%s side", side)
}

// Differential is the differential-input to single-ended-output transfer
// function, combined from the two half-circuit excitations.
func (o Op) Differential() (poly.TF, error) {
	hp, err := o.halfTF("p")
	if err != nil {
		return poly.TF{}, err
	}
	hn, err := o.halfTF("n")
	if err != nil {
		return poly.TF{}, err
	}
	return dsn.Superpose(hp, hn), nil
}
