// Package matrix wraps the sparse LU solver behind 0-based indexing and gonum
// dense matrices.
package matrix

import (
	"errors"
	"fmt"
	"math"

	"github.com/edp1096/sparse"
	"gonum.org/v1/gonum/mat"
)

var ErrSingular = errors.New("matrix: singular system")

// System is a square sparse linear system. It is factored once and then
// solved for any number of right-hand sides.
type System struct {
	Size     int
	matrix   *sparse.Matrix
	config   *sparse.Configuration
	factored bool
}

func NewSystem(size int) (*System, error) {
	if size < 1 {
		return nil, fmt.Errorf("matrix: bad size %d", size)
	}

	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 false,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	m, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("matrix: create %dx%d: %w", size, size, err)
	}
	return &System{Size: size, matrix: m, config: config}, nil
}

// NewSystemFrom creates and factors a system holding a.
func NewSystemFrom(a mat.Matrix) (*System, error) {
	r, c := a.Dims()
	if r != c {
		return nil, fmt.Errorf("matrix: %dx%d is not square", r, c)
	}
	s, err := NewSystem(r)
	if err != nil {
		return nil, err
	}
	s.Load(a)
	if err := s.Factor(); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// Clear zeroes the matrix and drops its factorization.
func (s *System) Clear() {
	s.matrix.Clear()
	s.factored = false
}

// AddElement adds value at row i, column j (0-based).
func (s *System) AddElement(i, j int, value float64) {
	if i < 0 || j < 0 || i >= s.Size || j >= s.Size {
		panic(fmt.Sprintf("matrix: index (%d,%d) out of range for size %d", i, j, s.Size))
	}
	s.matrix.GetElement(int64(i+1), int64(j+1)).Real += value
	s.factored = false
}

// Load clears the system and stamps the non-zero entries of a. Diagonal
// elements are always allocated so pivoting sees the full structure.
func (s *System) Load(a mat.Matrix) {
	s.Clear()
	r, c := a.Dims()
	for i := range r {
		s.matrix.GetElement(int64(i+1), int64(i+1))
		for j := range c {
			if v := a.At(i, j); v != 0 {
				s.matrix.GetElement(int64(i+1), int64(j+1)).Real += v
			}
		}
	}
}

func (s *System) Factor() error {
	if err := s.matrix.Factor(); err != nil {
		return fmt.Errorf("%w: %v", ErrSingular, err)
	}
	s.factored = true
	return nil
}

// Solve returns x with A·x = b. The system must be factored.
func (s *System) Solve(b []float64) ([]float64, error) {
	if !s.factored {
		return nil, errors.New("matrix: solve before factor")
	}
	if len(b) != s.Size {
		return nil, fmt.Errorf("matrix: rhs length %d, want %d", len(b), s.Size)
	}

	rhs := make([]float64, s.Size+1) // 1-based
	copy(rhs[1:], b)
	sol, err := s.matrix.Solve(rhs)
	if err != nil {
		return nil, fmt.Errorf("matrix: solve: %w", err)
	}

	x := make([]float64, s.Size)
	copy(x, sol[1:s.Size+1])
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite solution at %d", ErrSingular, i)
		}
	}
	return x, nil
}

// SolveDense solves A·X = B column by column.
func (s *System) SolveDense(b mat.Matrix) (*mat.Dense, error) {
	r, c := b.Dims()
	if r != s.Size {
		return nil, fmt.Errorf("matrix: rhs has %d rows, want %d", r, s.Size)
	}
	x := mat.NewDense(r, c, nil)
	col := make([]float64, r)
	for j := range c {
		mat.Col(col, j, b)
		sol, err := s.Solve(col)
		if err != nil {
			return nil, err
		}
		x.SetCol(j, sol)
	}
	return x, nil
}

func (s *System) Destroy() {
	if s.matrix != nil {
		s.matrix.Destroy()
		s.matrix = nil
	}
}
