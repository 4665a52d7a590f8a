package cstep

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// f(x) = e^x / sqrt(sin³x + cos³x), the classic complex-step benchmark.
func squireTrapp(x complex128) complex128 {
	s, c := Sin(x), Cos(x)
	return Exp(x) / Sqrt(s*s*s+c*c*c)
}

func squireTrappReal(x float64) float64 {
	s, c := math.Sin(x), math.Cos(x)
	return math.Exp(x) / math.Sqrt(s*s*s+c*c*c)
}

func TestDerivativeMatchesCentralDifference(t *testing.T) {
	x := 1.5
	cs := Derivative(squireTrapp, x)
	fd := CentralDifference(squireTrappReal, x, 1e-6)
	assert.InEpsilon(t, fd, cs, 1e-6)
}

func TestDerivativeAtTinyStep(t *testing.T) {
	x := 1.5
	ref := Derivative(squireTrapp, x)

	for _, h := range []float64{1e-10, 1e-20, 1e-100} {
		got := DerivativeStep(squireTrapp, x, h)
		assert.InEpsilon(t, ref, got, 1e-13, "h=%g", h)
	}

	// Forward differences collapse once x+h rounds to x.
	assert.Equal(t, 0.0, ForwardDifference(squireTrappReal, x, 1e-20))
}

func TestPow(t *testing.T) {
	tests := []struct {
		name string
		x, p float64
		want float64
	}{
		{"square of negative", -2, 2, -4},
		{"cube", 3, 3, 27},
		{"fractional", 2, 2.085, 2.085 * math.Pow(2, 1.085)},
		{"inverse", 4, -1, -1.0 / 16},
		{"sqrt", 9, 0.5, 1.0 / 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derivative(func(z complex128) complex128 { return Pow(z, tt.p) }, tt.x)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}

	assert.True(t, math.IsNaN(real(Pow(complex(-2, 0), 1.5))))
}

func TestAbsKeepsDerivative(t *testing.T) {
	assert.Equal(t, -1.0, Derivative(Abs, -3))
	assert.Equal(t, 1.0, Derivative(Abs, 3))
}

func TestJacobian(t *testing.T) {
	f := func(x, y []complex128) error {
		y[0] = x[0] * x[1]
		y[1] = Sqrt(x[0]) + 3*x[1]
		y[2] = Exp(x[1])
		return nil
	}
	jac, value, err := Jacobian(f, []float64{4, 2}, 3)
	require.NoError(t, err)

	assert.Equal(t, []float64{8, 8, math.Exp(2)}, value)
	want := [][]float64{{2, 4}, {0.25, 3}, {0, math.Exp(2)}}
	for i := range want {
		for j := range want[i] {
			assert.InDelta(t, want[i][j], jac.At(i, j), 1e-14, "(%d,%d)", i, j)
		}
	}
}

func TestJacobianNonFinite(t *testing.T) {
	f := func(x, y []complex128) error {
		y[0] = 1 / x[0]
		return nil
	}
	_, _, err := Jacobian(f, []float64{0}, 1)
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestCheck(t *testing.T) {
	f := func(x, y []complex128) error {
		y[0] = 0.5 * x[0] * x[0] * x[1]
		y[1] = Pow(x[2], 2.085) * x[0]
		return nil
	}
	rep, err := Check(f, []float64{1.3, 0.025, 487e-9}, 2, DefaultCheckStep)
	require.NoError(t, err)
	assert.Less(t, rep.MaxRel, 1e-6)
}
