package opdb

import (
	"math"

	"github.com/edp1096/toy-dsn/internal/consts"
)

// Mosfet is an analytic characterization of one unit finger, Levels 1-3.
// Voltages handed to Query follow the device polarity (negative vgs for PMOS).
type Mosfet struct {
	Type  Polarity
	Level int

	// Geometry of one finger
	L float64 // Channel length (m)
	W float64 // Channel width (m)

	// DC Parameters - Common
	VTO    float64 // Threshold voltage (negative for PMOS)
	KP     float64 // Transconductance parameter (A/V²)
	GAMMA  float64 // Body effect parameter (V^0.5)
	PHI    float64 // Surface potential (V)
	LAMBDA float64 // Channel length modulation (1/V)

	// Capacitance Parameters
	CGSO float64 // Gate-Source overlap capacitance per unit width (F/m)
	CGDO float64 // Gate-Drain overlap capacitance per unit width (F/m)
	CGBO float64 // Gate-Bulk overlap capacitance per unit length (F/m)
	CJ   float64 // Bulk junction capacitance (F/m²)
	MJ   float64 // Bulk junction grading coefficient
	CJSW float64 // Bulk junction sidewall capacitance (F/m)
	PB   float64 // Bulk junction potential (V)
	HDIF float64 // Diffusion length used for junction area (m)
	TOX  float64 // Oxide thickness (m)

	// Level 2 Parameters
	UO    float64 // Surface mobility (cm²/V·s)
	UCRIT float64 // Critical field for mobility degradation (V/cm)
	UEXP  float64 // Critical field exponent
	VMAX  float64 // Maximum drift velocity (m/s)

	// Level 3 Parameters
	DELTA float64 // Width effect on threshold voltage
	THETA float64 // Mobility modulation
	ETA   float64 // Static feedback
	KAPPA float64 // Saturation field factor
}

func NewMosfet(pol Polarity) *Mosfet {
	m := &Mosfet{Type: pol, Level: 1}
	m.setDefaultParameters()
	return m
}

func (m *Mosfet) setDefaultParameters() {
	m.L = 100e-9
	m.W = 500e-9

	m.VTO = 0.4
	m.KP = 300e-6
	if m.Type == PMOS {
		m.VTO = -0.4
		m.KP = 120e-6
	}
	m.GAMMA = 0.3
	m.PHI = 0.8
	m.LAMBDA = 0.2

	m.CGSO = 2e-10
	m.CGDO = 2e-10
	m.CGBO = 0.0
	m.CJ = 1e-3
	m.MJ = 0.5
	m.CJSW = 1e-10
	m.PB = 0.8
	m.HDIF = 100e-9
	m.TOX = 2e-9

	m.UO = 400.0
	m.UCRIT = 1e4
	m.UEXP = 0.0
	m.VMAX = 0.0

	m.DELTA = 0.0
	m.THETA = 0.0
	m.ETA = 0.0
	m.KAPPA = 0.2
}

// SetModelParameters overrides parameters by lowercase SPICE name.
func (m *Mosfet) SetModelParameters(params map[string]float64) {
	if levelVal, ok := params["level"]; ok {
		m.Level = int(levelVal)
	}

	paramsSet := map[string]*float64{
		"l":      &m.L,
		"w":      &m.W,
		"vto":    &m.VTO,
		"kp":     &m.KP,
		"gamma":  &m.GAMMA,
		"phi":    &m.PHI,
		"lambda": &m.LAMBDA,
		"cgso":   &m.CGSO,
		"cgdo":   &m.CGDO,
		"cgbo":   &m.CGBO,
		"cj":     &m.CJ,
		"mj":     &m.MJ,
		"cjsw":   &m.CJSW,
		"pb":     &m.PB,
		"hdif":   &m.HDIF,
		"tox":    &m.TOX,
		"uo":     &m.UO,
		"ucrit":  &m.UCRIT,
		"uexp":   &m.UEXP,
		"vmax":   &m.VMAX,
		"delta":  &m.DELTA,
		"theta":  &m.THETA,
		"eta":    &m.ETA,
		"kappa":  &m.KAPPA,
	}

	for name, value := range params {
		if ptr, ok := paramsSet[name]; ok {
			*ptr = value
		}
	}
}

// WithLength returns a copy with a different channel length.
func (m *Mosfet) WithLength(lch float64) *Mosfet {
	c := *m
	if lch > 0 {
		c.L = lch
	}
	return &c
}

// Query implements Database.
func (m *Mosfet) Query(vgs, vds, vbs float64) (OperatingPoint, error) {
	sign := m.Type.Sign()
	op := OperatingPoint{VGS: vgs, VDS: vds, VBS: vbs}

	// Work in the NMOS frame from here on
	vgs, vds, vbs = sign*vgs, sign*vds, sign*vbs

	id, region := m.calculateCurrents(vgs, vds, vbs)
	gm, gds, gmb := m.calculateConductances(vgs, vds, vbs, id, region)
	m.calculateCapacitances(&op, vds, vbs, region)

	op.Ibias = sign * id
	op.Gm = gm
	op.Gds = gds
	op.Gmb = gmb
	op.Region = region
	if gm > 0 {
		op.Vstar = 2 * math.Abs(id) / gm
	}
	return op, nil
}

// Threshold voltage with body effect, NMOS frame
func (m *Mosfet) calculateVth(vbs float64) float64 {
	vt0 := m.Type.Sign() * m.VTO
	if m.GAMMA > 0 {
		return vt0 + m.GAMMA*(math.Sqrt(math.Max(0, m.PHI-vbs))-math.Sqrt(m.PHI))
	}
	return vt0
}

func (m *Mosfet) calculateCurrents(vgs, vds, vbs float64) (float64, int) {
	vth := m.calculateVth(vbs)
	vgst := vgs - vth

	if vgst <= 0 {
		return 0.0, CUTOFF
	}

	switch m.Level {
	case 2:
		return m.calculateLevel2Current(vgs, vds, vth)
	case 3:
		return m.calculateLevel3Current(vgs, vds, vth)
	default:
		return m.calculateLevel1Current(vgs, vds, vth)
	}
}

// Level 1 (Shockley)
func (m *Mosfet) calculateLevel1Current(vgs, vds, vth float64) (float64, int) {
	vgst := vgs - vth
	beta := m.KP * m.W / m.L

	if vds < vgst {
		id := beta * (vgst*vds - 0.5*vds*vds) * (1.0 + m.LAMBDA*vds)
		return id, LINEAR
	}
	id := 0.5 * beta * vgst * vgst * (1.0 + m.LAMBDA*vds)
	return id, SATURATION
}

// Level 2 (Grove-Frohman)
func (m *Mosfet) calculateLevel2Current(vgs, vds, vth float64) (float64, int) {
	vgst := vgs - vth

	cox := consts.EPSOX / (m.TOX * 100) // F/cm²
	eeff := vgst / (m.TOX * 100)        // V/cm

	ueff := m.UO
	if m.UCRIT > 0 && eeff > 0 && m.UEXP > 0 {
		ueff /= (1.0 + math.Pow(eeff/m.UCRIT, m.UEXP))
	}

	vdsat := vgst
	if m.VMAX > 0 {
		ecrit := m.VMAX / ueff * 100 // V/cm
		vdsat = math.Min(vgst, ecrit*m.L*100)
	}

	beta := ueff * cox * m.W / m.L

	if vds < vdsat {
		return beta * (vgst*vds - 0.5*vds*vds) * (1.0 + m.LAMBDA*vds), LINEAR
	}
	return 0.5 * beta * vdsat * vdsat * (1.0 + m.LAMBDA*vds), SATURATION
}

// Level 3 (Semi-empirical)
func (m *Mosfet) calculateLevel3Current(vgs, vds, vth float64) (float64, int) {
	if m.ETA > 0 {
		vth += m.ETA * vds
	}
	vgst := vgs - vth
	if vgst <= 0 {
		return 0.0, CUTOFF
	}

	vgstEff := vgst
	if m.THETA > 0 {
		vgstEff = vgst / (1.0 + m.THETA*vgst)
	}

	vdsat := vgstEff
	if m.KAPPA > 0 {
		vdsat = vgstEff / math.Sqrt(1.0+m.KAPPA*vgstEff)
	}

	beta := m.KP * m.W / m.L
	if m.DELTA > 0 {
		beta /= (1.0 + m.DELTA/m.W)
	}

	if vds < vdsat {
		id := beta * (vgstEff*vds - 0.5*vds*vds/(1.0+m.KAPPA*vgstEff)) * (1.0 + m.LAMBDA*vds)
		return id, LINEAR
	}
	return 0.5 * beta * vdsat * vdsat * (1.0 + m.LAMBDA*vds), SATURATION
}

func (m *Mosfet) calculateConductances(vgs, vds, vbs, id float64, region int) (gm, gds, gmb float64) {
	// Minimum conductance for numerical stability
	gmin := 1e-12

	if region == CUTOFF {
		return gmin, gmin, gmin
	}

	switch m.Level {
	case 2, 3:
		delta := 1e-6

		idg, _ := m.calculateCurrents(vgs+delta, vds, vbs)
		gm = math.Max((idg-id)/delta, gmin)

		idd, _ := m.calculateCurrents(vgs, vds+delta, vbs)
		gds = math.Max((idd-id)/delta, gmin)

	default:
		vgst := vgs - m.calculateVth(vbs)
		beta := m.KP * m.W / m.L
		if region == LINEAR {
			gm = beta * vds * (1.0 + m.LAMBDA*vds)
			gds = beta*(vgst-vds)*(1.0+m.LAMBDA*vds) + beta*m.LAMBDA*(vgst*vds-0.5*vds*vds)
		} else {
			gm = beta * vgst * (1.0 + m.LAMBDA*vds)
			gds = 0.5 * beta * vgst * vgst * m.LAMBDA
		}
		gds = math.Max(gds, gmin)
	}

	gmb = gmin
	if m.GAMMA > 0 && m.PHI > vbs {
		gmb = math.Max(gm*m.GAMMA/(2.0*math.Sqrt(m.PHI-vbs)), gmin)
	}
	return gm, gds, gmb
}

// Meyer capacitances plus bias dependent junctions
func (m *Mosfet) calculateCapacitances(op *OperatingPoint, vds, vbs float64, region int) {
	cox := consts.EPSOX * 100 / m.TOX // F/m²
	cgate := cox * m.W * m.L

	cgso := m.CGSO * m.W
	cgdo := m.CGDO * m.W
	cgbo := m.CGBO * m.L

	var cgs, cgd, cgb float64
	switch region {
	case CUTOFF:
		cgb = 2.0*cgate/3.0 + cgbo
		cgs = cgso
		cgd = cgdo
	case LINEAR:
		cgs = cgate/2.0 + cgso
		cgd = cgate/2.0 + cgdo
		cgb = cgbo
	case SATURATION:
		cgs = 2.0*cgate/3.0 + cgso
		cgd = cgdo
		cgb = cgbo + cgate/3.0
	}

	area := m.W * m.HDIF
	perim := 2*m.HDIF + m.W
	cj0 := m.CJ*area + m.CJSW*perim

	vbd := vbs - vds
	op.Csb = m.junction(cj0, vbs)
	op.Cdb = m.junction(cj0, vbd)

	op.Cgs = cgs
	op.Cgd = cgd
	op.Cgb = cgb
	op.Cds = 0
	op.Cgg = cgs + cgd + cgb
	op.Cdd = cgd + op.Cdb + op.Cds
	op.Css = cgs + op.Csb + op.Cds
}

func (m *Mosfet) junction(cj0, v float64) float64 {
	if cj0 == 0 {
		return 0
	}
	if v < 0 {
		// Reverse bias
		return cj0 / math.Pow(1.0-v/m.PB, m.MJ)
	}
	// Forward bias
	return cj0 * (1.0 + m.MJ*v/m.PB)
}
