// Package cstep computes derivatives by the complex-step method.
//
// A real function written in complex arithmetic is evaluated at x + ih. The
// imaginary part of the result divided by h is the derivative, exact to
// machine precision because no subtraction of nearby values takes place.
// Leaf formulas must use the helpers of this package wherever the plain
// math/cmplx functions would mix the perturbation with the value.
package cstep

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultStep is the imaginary perturbation. Any value far below the square
// root of machine epsilon works, so it is not tuned per problem.
const DefaultStep = 1e-30

var ErrNonFinite = errors.New("cstep: non-finite value")

// Func is a scalar function in extended arithmetic.
type Func func(x complex128) complex128

// VectorFunc writes f(x) into y. It must not retain x or y.
type VectorFunc func(x, y []complex128) error

// Derivative returns df/dx at x.
func Derivative(f Func, x float64) float64 {
	return DerivativeStep(f, x, DefaultStep)
}

// DerivativeStep returns df/dx at x with step h.
func DerivativeStep(f Func, x, h float64) float64 {
	return imag(f(complex(x, h))) / h
}

// Jacobian returns the m×len(x) Jacobian of f at x together with f(x).
func Jacobian(f VectorFunc, x []float64, m int) (*mat.Dense, []float64, error) {
	return JacobianStep(f, x, m, DefaultStep)
}

// JacobianStep is Jacobian with an explicit step.
func JacobianStep(f VectorFunc, x []float64, m int, h float64) (*mat.Dense, []float64, error) {
	n := len(x)
	xc := make([]complex128, n)
	y := make([]complex128, m)

	for i, v := range x {
		xc[i] = complex(v, 0)
	}
	if err := f(xc, y); err != nil {
		return nil, nil, err
	}
	value := make([]float64, m)
	for i, v := range y {
		if !IsFinite(v) {
			return nil, nil, fmt.Errorf("%w: output %d", ErrNonFinite, i)
		}
		value[i] = real(v)
	}

	if n == 0 || m == 0 {
		return &mat.Dense{}, value, nil
	}
	jac := mat.NewDense(m, n, nil)
	for j := range n {
		xc[j] = complex(x[j], h)
		if err := f(xc, y); err != nil {
			return nil, nil, err
		}
		xc[j] = complex(x[j], 0)

		for i, v := range y {
			d := imag(v) / h
			if math.IsNaN(d) || math.IsInf(d, 0) {
				return nil, nil, fmt.Errorf("%w: d(out %d)/d(in %d)", ErrNonFinite, i, j)
			}
			jac.Set(i, j, d)
		}
	}
	return jac, value, nil
}

// CentralDifference approximates df/dx at x with a central difference. The
// step is relative to |x|, or absolute at x = 0.
func CentralDifference(f func(float64) float64, x, step float64) float64 {
	h := relStep(x, step)
	return (f(x+h) - f(x-h)) / (2 * h)
}

func relStep(x, step float64) float64 {
	if x == 0 {
		return step
	}
	return step * math.Abs(x)
}

// ForwardDifference approximates df/dx at x with a forward difference of the
// given absolute step.
func ForwardDifference(f func(float64) float64, x, h float64) float64 {
	return (f(x+h) - f(x)) / h
}

// Real evaluates f on real arguments.
func (f Func) Real(x float64) float64 {
	return real(f(complex(x, 0)))
}
