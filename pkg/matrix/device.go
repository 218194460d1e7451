package matrix

// DeviceMatrix receives small-signal stamps. An entry accumulates g + s*c.
type DeviceMatrix interface {
	AddAdmittance(i, j int, g, c float64) // 1-based indexing, 0 is ground
}
