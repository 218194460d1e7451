// Package dsn is the design-space search engine shared by every block
// designer: sweep iteration with pruning verdicts, integer device-ratio
// matching, candidate selection and the schematic-parameter contract.
package dsn

import (
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/internal/consts"
	"github.com/edp1096/toy-dsn/pkg/opdb"
)

// ErrNoSolution is returned when a sweep finishes with no viable candidate.
var ErrNoSolution = errors.New("no solution")

// NoSolution wraps ErrNoSolution with the block name and a reason.
func NoSolution(block, format string, args ...any) error {
	return errors.Wrapf(ErrNoSolution, "%s: %s", block, fmt.Sprintf(format, args...))
}

// IsNoSolution reports whether err means "this combination is infeasible".
func IsNoSolution(err error) bool {
	return errors.Is(err, ErrNoSolution)
}

// SpecError is a precondition failure detected before any sweep work.
type SpecError struct {
	Block string
	Field string
	Msg   string
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Block, e.Field, e.Msg)
}

func Invalid(block, field, format string, args ...any) error {
	return errors.WithStack(&SpecError{Block: block, Field: field, Msg: fmt.Sprintf(format, args...)})
}

const (
	DefaultRatioTol = 0.05
	DefaultWidth    = 500e-9
)

// Env is everything a designer needs besides its spec. It is read-only
// during a search, so one Env may serve concurrent designs.
type Env struct {
	Lib opdb.Library

	Intents map[string]string  // role -> threshold intent
	Lch     map[string]float64 // role -> channel length (0 = model default)
	Width   map[string]float64 // role -> finger width for schematic parameters

	Vstep    float64 // sweep resolution (V)
	RatioTol float64 // fractional current mismatch accepted by VerifyRatio
	VgsMax   float64 // bias solve window (V), defaults to the supply

	Log      *log.Logger
	Verifier Verifier
}

func (e Env) Step() float64 {
	if e.Vstep > 0 {
		return e.Vstep
	}
	return consts.VSTEP
}

func (e Env) Tol() float64 {
	if e.RatioTol > 0 {
		return e.RatioTol
	}
	return DefaultRatioTol
}

func (e Env) GateWindow(vdd float64) float64 {
	if e.VgsMax > 0 {
		return e.VgsMax
	}
	return vdd
}

func (e Env) Logger() *log.Logger {
	if e.Log != nil {
		return e.Log
	}
	return log.New(io.Discard, "", 0)
}

func (e Env) Logf(format string, args ...any) {
	if e.Log != nil {
		e.Log.Printf(format, args...)
	}
}

// DB returns the characterization database for one device role.
func (e Env) DB(role string, pol opdb.Polarity) (opdb.Database, error) {
	if e.Lib == nil {
		return nil, errors.New("no device library configured")
	}
	db, err := e.Lib.Database(pol, e.Intents[role], e.Lch[role])
	if err != nil {
		return nil, errors.Wrapf(err, "role %s", role)
	}
	return db, nil
}

// SchParams is the physical-parameter record handed to schematic
// generation: per-device length/width/intent/finger dictionaries plus
// scalar values (resistors, capacitors, bias voltages).
type SchParams struct {
	Lch    map[string]float64   `yaml:"lch_dict" json:"lch_dict"`
	W      map[string]float64   `yaml:"w_dict" json:"w_dict"`
	Intent map[string]string    `yaml:"th_dict" json:"th_dict"`
	Seg    map[string]int       `yaml:"seg_dict" json:"seg_dict"`
	Values map[string]float64   `yaml:"values,omitempty" json:"values,omitempty"`
	Sub    map[string]SchParams `yaml:"sub,omitempty" json:"sub,omitempty"`
}

// Sch fills the device dictionaries for every role in seg.
func (e Env) Sch(seg map[string]int) SchParams {
	p := SchParams{
		Lch:    make(map[string]float64, len(seg)),
		W:      make(map[string]float64, len(seg)),
		Intent: make(map[string]string, len(seg)),
		Seg:    make(map[string]int, len(seg)),
		Values: make(map[string]float64),
	}
	for role, nf := range seg {
		p.Seg[role] = nf
		p.Lch[role] = e.Lch[role]
		w := e.Width[role]
		if w == 0 {
			w = DefaultWidth
		}
		p.W[role] = w
		intent := e.Intents[role]
		if intent == "" {
			intent = opdb.DefaultIntent
		}
		p.Intent[role] = intent
	}
	return p
}

// Roles lists the device roles in a stable order.
func (p SchParams) Roles() []string {
	roles := make([]string, 0, len(p.Seg))
	for role := range p.Seg {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

func (p SchParams) String() string {
	var b strings.Builder
	for _, role := range p.Roles() {
		fmt.Fprintf(&b, "%s: nf=%d intent=%s ", role, p.Seg[role], p.Intent[role])
	}
	return strings.TrimSpace(b.String())
}

// PhaseOrSentinel maps an undefined phase margin to -1.
func PhaseOrSentinel(pm float64) float64 {
	if math.IsNaN(pm) {
		return -1
	}
	return pm
}

// Rails returns the supply a device of type pol has its source on, and the
// opposite supply.
func Rails(pol opdb.Polarity, vdd float64) (float64, float64) {
	if pol == opdb.PMOS {
		return vdd, 0
	}
	return 0, vdd
}
