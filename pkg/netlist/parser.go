// Package netlist reads a SPICE-like small-signal netlist into a circuit.
//
//   - title
//     .model nch nmos (level=1 vto=0.4 kp=300u)
//     M1 out in 0 0 nch vgs=0.8 vds=0.6 nf=4
//     M2 out bias vdd vdd gm=1m gds=20u cgs=2f
//     R1 out 0 20k
//     C1 out 0 10f
//     G1 x 0 in 0 1m
//     .tf v(out) in
//     .ac dec 10 1 10g
package netlist

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-dsn/pkg/circuit"
	"github.com/edp1096/toy-dsn/pkg/device"
	"github.com/edp1096/toy-dsn/pkg/opdb"
)

type NetlistData struct {
	Title    string
	Elements []Element               // Circuit elements
	Nodes    map[string]int          // Node name and index
	Models   map[string]*opdb.Mosfet // .model cards

	TFParam struct {
		In   string
		OutP string
		OutN string // empty for single ended
		Kind circuit.InputKind
	}
	HasTF bool

	ACParam struct {
		Sweep  string  // DEC, OCT, LIN
		FStart float64 // start frequency
		Points int     // points per decade
		FStop  float64 // stop frequency
	}
	HasAC bool
}

type Element struct {
	Type   string             // Part type (R, C, G, M)
	Name   string             // Part name
	Nodes  []string           // Node names
	Value  float64            // Part value
	Model  string             // M only, empty for inline operating points
	Params map[string]float64 // name=value fields
}

var unitMap = map[string]float64{
	"T":   1e12,  // tera
	"G":   1e9,   // giga
	"g":   1e9,   // giga
	"meg": 1e6,   // mega
	"K":   1e3,   // kilo
	"M":   1e-3,  // milli
	"k":   1e3,   // kilo
	"m":   1e-3,  // milli
	"u":   1e-6,  // micro
	"n":   1e-9,  // nano
	"p":   1e-12, // pico
	"f":   1e-15, // femto
}

var (
	valueRe = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)(meg|[TGgMKkmunpf])?s?$`)
	spaceRe = regexp.MustCompile(`\s+`)
	probeRe = regexp.MustCompile(`^([vViI])\(([^,()]+)(?:,([^,()]+))?\)$`)
)

func Parse(input string) (*NetlistData, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	netlistData := &NetlistData{
		Nodes:  make(map[string]int),
		Models: make(map[string]*opdb.Mosfet),
	}

	// Title or comment
	if scanner.Scan() {
		netlistData.Title = strings.TrimPrefix(scanner.Text(), "*")
		netlistData.Title = strings.TrimSpace(netlistData.Title)
	}

	var currentLine string
	lineNo, start := 1, 0
	flush := func() error {
		if currentLine == "" {
			return nil
		}
		err := parseLine(netlistData, currentLine)
		currentLine = ""
		return errors.Wrapf(err, "line %d", start)
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Full-line and trailing comments
		if idx := strings.IndexAny(line, "*;"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if len(line) == 0 {
			continue
		}

		if strings.HasPrefix(line, "+") { // Line continue
			currentLine += " " + strings.TrimSpace(line[1:])
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		currentLine, start = line, lineNo
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading netlist")
	}

	return netlistData, nil
}

func parseLine(netlistData *NetlistData, line string) error {
	line = spaceRe.ReplaceAllString(line, " ")

	if strings.HasPrefix(line, ".") {
		return parseDotOperator(netlistData, line)
	}

	element, err := parseElement(line)
	if err != nil {
		return err
	}

	netlistData.Elements = append(netlistData.Elements, *element)
	for _, node := range element.Nodes {
		if circuit.IsGround(node) {
			continue
		}
		if _, exists := netlistData.Nodes[node]; !exists {
			netlistData.Nodes[node] = len(netlistData.Nodes) + 1
		}
	}
	return nil
}

// Parse .model, .tf, .ac, .end
func parseDotOperator(netlistData *NetlistData, line string) error {
	var err error

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ".model":
		return parseModel(netlistData, fields[1:])

	case ".tf":
		// .tf v(out) in | .tf v(outp,outn) in | .tf v(out) in current
		if len(fields) < 3 {
			return errors.New("insufficient tf parameters, need output and input")
		}
		m := probeRe.FindStringSubmatch(fields[1])
		if m == nil || strings.ToLower(m[1]) != "v" {
			return errors.Errorf("invalid tf output %q, want v(node) or v(node,node)", fields[1])
		}
		tf := &netlistData.TFParam
		tf.OutP, tf.OutN, tf.In = m[2], m[3], fields[2]
		tf.Kind = circuit.Voltage
		if len(fields) > 3 {
			switch strings.ToLower(fields[3]) {
			case "current", "i":
				tf.Kind = circuit.Current
			case "voltage", "v":
			default:
				return errors.Errorf("invalid tf input kind %q", fields[3])
			}
		}
		netlistData.HasTF = true

	case ".ac":
		if len(fields) < 5 {
			return errors.New("insufficient AC parameters, need sweep type, points, fstart, and fstop")
		}

		// DEC, OCT, LIN
		ac := &netlistData.ACParam
		ac.Sweep = strings.ToUpper(fields[1])
		if ac.Sweep != "DEC" && ac.Sweep != "OCT" && ac.Sweep != "LIN" {
			return errors.Errorf("invalid sweep type: %s", ac.Sweep)
		}
		ac.Points, err = strconv.Atoi(fields[2])
		if err != nil {
			return errors.Wrap(err, "invalid points number")
		}
		ac.FStart, err = ParseValue(fields[3])
		if err != nil {
			return errors.Wrap(err, "invalid fstart")
		}
		ac.FStop, err = ParseValue(fields[4])
		if err != nil {
			return errors.Wrap(err, "invalid fstop")
		}
		netlistData.HasAC = true

	case ".end":

	default:
		return errors.Errorf("unsupported control line: %s", fields[0])
	}

	return nil
}

// parseModel reads ".model name nmos|pmos (k=v ...)". Parentheses are
// optional and may touch the type or the parameters.
func parseModel(netlistData *NetlistData, fields []string) error {
	if len(fields) < 2 {
		return errors.New("insufficient model parameters")
	}
	modelName := fields[0]

	rest := strings.Join(fields[1:], " ")
	rest = strings.NewReplacer("(", " ", ")", " ").Replace(rest)
	words := strings.Fields(rest)
	if len(words) == 0 {
		return errors.Errorf("model %s: missing type", modelName)
	}

	var pol opdb.Polarity
	switch strings.ToUpper(words[0]) {
	case "NMOS":
		pol = opdb.NMOS
	case "PMOS":
		pol = opdb.PMOS
	default:
		return errors.Errorf("unsupported model type: %s", words[0])
	}

	params, err := parseParams(words[1:])
	if err != nil {
		return errors.Wrapf(err, "model %s", modelName)
	}
	m := opdb.NewMosfet(pol)
	m.SetModelParameters(params)
	netlistData.Models[strings.ToLower(modelName)] = m
	return nil
}

func parseParams(words []string) (map[string]float64, error) {
	params := make(map[string]float64)
	for _, w := range words {
		name, val, ok := strings.Cut(w, "=")
		if !ok {
			return nil, errors.Errorf("expected name=value, got %q", w)
		}
		value, err := ParseValue(val)
		if err != nil {
			return nil, err
		}
		params[strings.ToLower(name)] = value
	}
	return params, nil
}

func parseElement(line string) (*Element, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, errors.Errorf("invalid element format: %s", line)
	}

	elem := &Element{
		Name: fields[0],
		Type: strings.ToUpper(string(fields[0][0])),
	}

	switch elem.Type {
	case "R", "C":
		if len(fields) != 4 {
			return nil, errors.Errorf("%s: want name n1 n2 value", elem.Name)
		}
		elem.Nodes = fields[1:3]

	case "G":
		if len(fields) != 6 {
			return nil, errors.Errorf("%s: want name p n cp cn gm", elem.Name)
		}
		elem.Nodes = fields[1:5]

	case "M":
		// M d g s b [model] [name=value ...]
		if len(fields) < 6 {
			return nil, errors.Errorf("%s: want name d g s b followed by a model or operating point", elem.Name)
		}
		elem.Nodes = fields[1:5]
		rest := fields[5:]
		if !strings.Contains(rest[0], "=") {
			elem.Model = strings.ToLower(rest[0])
			rest = rest[1:]
		}
		params, err := parseParams(rest)
		if err != nil {
			return nil, errors.Wrap(err, elem.Name)
		}
		elem.Params = params
		return elem, nil

	default:
		return nil, errors.Errorf("unsupported element %s", elem.Name)
	}

	value, err := ParseValue(fields[len(fields)-1])
	if err != nil {
		return nil, errors.Wrap(err, elem.Name)
	}
	elem.Value = value
	return elem, nil
}

// ParseValue - Parse value and factor. 1k -> 1000
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		// meg is case-insensitive in SPICE
		lower := strings.ToLower(strings.TrimSpace(val))
		if strings.HasSuffix(lower, "meg") {
			matches = valueRe.FindStringSubmatch(lower)
		}
	}
	if matches == nil {
		return 0, errors.Errorf("invalid value format: %s", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	// factor
	if matches[2] != "" {
		num *= unitMap[matches[2]]
	}

	return num, nil
}

// operatingPoint resolves an M element either through its model card or
// from inline small-signal values.
func operatingPoint(elem Element, models map[string]*opdb.Mosfet) (opdb.OperatingPoint, error) {
	p := elem.Params
	if elem.Model != "" {
		m, ok := models[elem.Model]
		if !ok {
			return opdb.OperatingPoint{}, errors.Errorf("%s: unknown model %s", elem.Name, elem.Model)
		}
		if l, ok := p["l"]; ok {
			m = m.WithLength(l)
		}
		return m.Query(p["vgs"], p["vds"], p["vbs"])
	}

	op := opdb.OperatingPoint{
		Gm: p["gm"], Gds: p["gds"], Gmb: p["gmb"],
		Cgs: p["cgs"], Cgd: p["cgd"], Cgb: p["cgb"],
		Cds: p["cds"], Cdb: p["cdb"], Csb: p["csb"],
	}
	if op.Gm == 0 && op.Gds == 0 {
		return op, errors.Errorf("%s: no model and no gm/gds", elem.Name)
	}
	op.Cgg = op.Cgs + op.Cgd + op.Cgb
	return op, nil
}

// CreateDevice builds the small-signal device for one element.
func CreateDevice(elem Element, models map[string]*opdb.Mosfet) (device.Device, error) {
	switch elem.Type {
	case "R":
		return device.NewResistor(elem.Name, elem.Nodes, elem.Value), nil

	case "C":
		return device.NewCapacitor(elem.Name, elem.Nodes, elem.Value), nil

	case "G":
		return device.NewVCCS(elem.Name, elem.Nodes, elem.Value), nil

	case "M":
		op, err := operatingPoint(elem, models)
		if err != nil {
			return nil, err
		}
		nf := 1.0
		if v, ok := elem.Params["nf"]; ok {
			nf = v
		} else if v, ok := elem.Params["m"]; ok {
			nf = v
		}
		return device.NewTransistor(elem.Name, elem.Nodes, op, nf), nil
	}
	return nil, errors.Errorf("unsupported element type %s", elem.Type)
}

// Build assembles the circuit described by the netlist.
func (d *NetlistData) Build() (*circuit.Circuit, error) {
	ckt := circuit.New(d.Title)
	for _, elem := range d.Elements {
		dev, err := CreateDevice(elem, d.Models)
		if err != nil {
			return nil, err
		}
		ckt.AddDevice(dev)
	}
	return ckt, nil
}
