package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestVoltageDivider(t *testing.T) {
	const (
		r1, r2 = 1e3, 2e3
		vin    = 9.0
		g1, g2 = 1 / r1, 1 / r2
	)
	s, err := NewSystem(2)
	require.NoError(t, err)
	defer s.Destroy()

	s.AddElement(0, 0, g1)
	s.AddElement(0, 1, -g1)
	s.AddElement(1, 0, -g1)
	s.AddElement(1, 1, g1+g2)
	require.NoError(t, s.Factor())

	x, err := s.Solve([]float64{vin / (r1 + r2), 0})
	require.NoError(t, err)
	assert.InDelta(t, vin*r2/(r1+r2), x[1], 1e-9)
}

func TestSolveDenseMatchesGonum(t *testing.T) {
	a := mat.NewDense(3, 3, []float64{
		4, -1, 0,
		-1, 4, -1,
		0, -1, 3,
	})
	b := mat.NewDense(3, 2, []float64{
		1, 0,
		2, 1,
		3, 0,
	})

	s, err := NewSystemFrom(a)
	require.NoError(t, err)
	defer s.Destroy()

	got, err := s.SolveDense(b)
	require.NoError(t, err)

	var want mat.Dense
	require.NoError(t, want.Solve(a, b))
	assert.True(t, mat.EqualApprox(&want, got, 1e-12))
}

func TestZeroDiagonalPivot(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{
		0, 1,
		1, 0,
	})
	s, err := NewSystemFrom(a)
	require.NoError(t, err)
	defer s.Destroy()

	x, err := s.Solve([]float64{2, 3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3, 2}, x, 1e-12)
}

func TestSolveBeforeFactor(t *testing.T) {
	s, err := NewSystem(1)
	require.NoError(t, err)
	defer s.Destroy()

	s.AddElement(0, 0, 1)
	_, err = s.Solve([]float64{1})
	assert.Error(t, err)
}
