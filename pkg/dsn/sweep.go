package dsn

import (
	"fmt"
	"iter"
	"math"
)

// Verdict is the outcome of checking one sweep point.
type Verdict int

const (
	Accept Verdict = iota // record the candidate
	Skip                  // reject this point, keep sweeping
	Stop                  // reject this point and every later one in this dimension
)

func (v Verdict) String() string {
	switch v {
	case Skip:
		return "skip"
	case Stop:
		return "stop"
	}
	return "accept"
}

// Grid is an inclusive voltage range walked with a fixed step. Start may be
// above Stop, in which case the walk goes downward.
type Grid struct {
	Start, Stop, Step float64
}

// Span ignores the sign of step; direction follows start and stop.
func Span(start, stop, step float64) Grid {
	return Grid{Start: start, Stop: stop, Step: math.Abs(step)}
}

// Point is a one-value grid, used to pin a dimension.
func Point(v float64) Grid { return Grid{Start: v, Stop: v, Step: 1} }

// Len is the number of points the grid produces.
func (g Grid) Len() int {
	if g.Step <= 0 {
		return 0
	}
	n := math.Floor(math.Abs(g.Stop-g.Start)/g.Step+1e-9) + 1
	return int(n)
}

// Values walks the grid. Points are computed as start + i*step so rounding
// errors do not accumulate.
func (g Grid) Values() iter.Seq[float64] {
	return func(yield func(float64) bool) {
		n := g.Len()
		step := g.Step
		if g.Stop < g.Start {
			step = -step
		}
		for i := range n {
			if !yield(g.Start + float64(i)*step) {
				return
			}
		}
	}
}

// Sizes walks integer device sizes start, start+step, ... <= stop.
func Sizes(start, stop, step int) iter.Seq[int] {
	return func(yield func(int) bool) {
		if step <= 0 {
			return
		}
		for nf := start; nf <= stop; nf += step {
			if !yield(nf) {
				return
			}
		}
	}
}

// Sweep visits seq until visit returns Stop.
func Sweep[T any](seq iter.Seq[T], visit func(T) Verdict) {
	for v := range seq {
		if visit(v) == Stop {
			return
		}
	}
}

type checkKind int

const (
	atLeast checkKind = iota
	atMost
	atMostRising
)

// Check is one figure-of-merit filter. A zero limit leaves the figure
// unconstrained.
type Check struct {
	Name  string
	Value float64
	Limit float64
	kind  checkKind
}

// Min rejects values below limit; the point is skipped because a later
// (larger) point may recover.
func Min(name string, value, limit float64) Check {
	return Check{Name: name, Value: value, Limit: limit, kind: atLeast}
}

// Max rejects values above limit with a skip.
func Max(name string, value, limit float64) Check {
	return Check{Name: name, Value: value, Limit: limit, kind: atMost}
}

// MaxRising rejects values above limit for a figure that only grows along
// the swept dimension: the rest of the dimension is abandoned.
func MaxRising(name string, value, limit float64) Check {
	return Check{Name: name, Value: value, Limit: limit, kind: atMostRising}
}

func (c Check) verdict() Verdict {
	if c.Limit == 0 {
		return Accept
	}
	switch c.kind {
	case atLeast:
		if c.Value < c.Limit || math.IsNaN(c.Value) {
			return Skip
		}
	case atMost:
		if c.Value > c.Limit || math.IsNaN(c.Value) {
			return Skip
		}
	case atMostRising:
		if c.Value > c.Limit {
			return Stop
		}
		if math.IsNaN(c.Value) {
			return Skip
		}
	}
	return Accept
}

func (c Check) String() string {
	switch c.kind {
	case atLeast:
		return fmt.Sprintf("%s %.4g < %.4g", c.Name, c.Value, c.Limit)
	default:
		return fmt.Sprintf("%s %.4g > %.4g", c.Name, c.Value, c.Limit)
	}
}

// Judge applies checks in order; the first failing check decides.
func Judge(checks ...Check) (Verdict, string) {
	for _, c := range checks {
		if v := c.verdict(); v != Accept {
			return v, c.String()
		}
	}
	return Accept, ""
}

// Judge is the package Judge that logs the rejection reason through env.
func (e Env) Judge(block string, checks ...Check) Verdict {
	v, reason := Judge(checks...)
	if v != Accept {
		e.Logf("%s: %s (%s)", block, reason, v)
	}
	return v
}
