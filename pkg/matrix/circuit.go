package matrix

import (
	"log"

	"github.com/edp1096/sparse"
	"github.com/pkg/errors"
)

// CircuitMatrix is the complex nodal system Y(jw) x = b at one frequency.
type CircuitMatrix struct {
	Size         int
	matrix       *sparse.Matrix
	omega        float64
	rhs          []float64
	rhsImag      []float64
	solution     []float64
	solutionImag []float64
	config       *sparse.Configuration
}

var _ DeviceMatrix = (*CircuitMatrix)(nil)

func NewMatrix(size int) (*CircuitMatrix, error) {
	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 true,
		SeparatedComplexVectors: true,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, errors.Wrap(err, "creating sparse matrix")
	}

	return &CircuitMatrix{
		Size:         size,
		matrix:       mat,
		rhs:          make([]float64, size+1), // 1-based indexing
		rhsImag:      make([]float64, size+1),
		solution:     make([]float64, size+1),
		solutionImag: make([]float64, size+1),
		config:       config,
	}, nil
}

// SetupElements allocates every entry so the fill pattern is fixed before stamping.
func (m *CircuitMatrix) SetupElements() {
	for i := 1; i <= m.Size; i++ {
		for j := 1; j <= m.Size; j++ {
			m.matrix.GetElement(int64(i), int64(j))
		}
	}
}

// SetOmega selects the angular frequency used by AddAdmittance.
func (m *CircuitMatrix) SetOmega(omega float64) { m.omega = omega }

func (m *CircuitMatrix) AddAdmittance(i, j int, g, c float64) {
	if i <= 0 || j <= 0 || i > m.Size || j > m.Size {
		log.Printf("Warning: Matrix index out of bounds (i=%d, j=%d, size=%d)", i, j, m.Size)
		return
	}

	element := m.matrix.GetElement(int64(i), int64(j))
	element.Real += g
	element.Imag += m.omega * c
}

func (m *CircuitMatrix) AddComplexRHS(i int, real, imag float64) {
	if i <= 0 || i > m.Size {
		log.Printf("Warning: RHS index out of bounds (i=%d, size=%d)", i, m.Size)
		return
	}
	m.rhs[i] += real
	m.rhsImag[i] += imag
}

func (m *CircuitMatrix) Solve() error {
	var err error

	err = m.matrix.Factor()
	if err != nil {
		return errors.Wrap(err, "matrix factorization failed")
	}

	m.solution, m.solutionImag, err = m.matrix.SolveComplex(m.rhs, m.rhsImag)
	if err != nil {
		return errors.Wrap(err, "matrix solve failed")
	}

	return nil
}

func (m *CircuitMatrix) GetComplexSolution(i int) complex128 {
	if i <= 0 || i > m.Size {
		return 0
	}
	return complex(m.solution[i], m.solutionImag[i])
}

func (m *CircuitMatrix) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
	}
}
