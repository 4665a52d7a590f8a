package cstep

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultCheckStep is the relative central-difference step used by Check.
const DefaultCheckStep = 1e-6

// Report compares a complex-step Jacobian against central differences.
type Report struct {
	CS     *mat.Dense
	FD     *mat.Dense
	MaxAbs float64
	MaxRel float64
}

// Check evaluates the Jacobian of f at x both ways. Relative error is taken
// against the complex-step value; entries where that value is exactly zero
// contribute their absolute error instead.
func Check(f VectorFunc, x []float64, m int, step float64) (Report, error) {
	cs, _, err := Jacobian(f, x, m)
	if err != nil {
		return Report{}, err
	}

	n := len(x)
	fd := mat.NewDense(max(m, 1), max(n, 1), nil)
	xc := make([]complex128, n)
	y := make([]complex128, m)

	eval := func(j int, v float64) ([]float64, error) {
		for i := range x {
			xc[i] = complex(x[i], 0)
		}
		xc[j] = complex(v, 0)
		if err := f(xc, y); err != nil {
			return nil, err
		}
		out := make([]float64, m)
		for i := range y {
			out[i] = real(y[i])
		}
		return out, nil
	}

	rep := Report{CS: cs, FD: fd}
	for j := range n {
		h := relStep(x[j], step)
		hi, err := eval(j, x[j]+h)
		if err != nil {
			return Report{}, err
		}
		lo, err := eval(j, x[j]-h)
		if err != nil {
			return Report{}, err
		}
		for i := range m {
			d := (hi[i] - lo[i]) / (2 * h)
			fd.Set(i, j, d)

			diff := math.Abs(cs.At(i, j) - d)
			rep.MaxAbs = math.Max(rep.MaxAbs, diff)
			if ref := math.Abs(cs.At(i, j)); ref > 0 {
				rep.MaxRel = math.Max(rep.MaxRel, diff/ref)
			} else {
				rep.MaxRel = math.Max(rep.MaxRel, diff)
			}
		}
	}
	return rep, nil
}
