// Package analysis extracts figures of merit from small-signal transfer
// functions and runs frequency sweeps over LTI circuits.
package analysis

import (
	"math"
	"math/cmplx"
)

type BaseAnalysis struct {
	results map[string][]float64 // key: variable name, value: result by frequency
}

func NewBaseAnalysis() *BaseAnalysis {
	return &BaseAnalysis{results: make(map[string][]float64)}
}

func (a *BaseAnalysis) StoreACResult(freq float64, solution map[string]complex128) {
	a.results["FREQ"] = append(a.results["FREQ"], freq)

	for name, value := range solution {
		// Magnitude
		magName := name + "_MAG"
		magnitude := cmplx.Abs(value)
		a.results[magName] = append(a.results[magName], magnitude)

		// Magnitude in dB
		dbName := name + "_DB"
		a.results[dbName] = append(a.results[dbName], 20*math.Log10(magnitude))

		// Phase - degree
		phaseName := name + "_PHASE"
		phase := cmplx.Phase(value) * 180.0 / math.Pi
		a.results[phaseName] = append(a.results[phaseName], phase)
	}
}

func (a *BaseAnalysis) GetResults() map[string][]float64 {
	return a.results
}
