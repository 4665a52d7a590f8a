package cstep

import (
	"math"
	"math/cmplx"
)

// Sqrt is the principal square root. For a positive real part the phase of
// the perturbed argument is tiny and the result is exact.
func Sqrt(z complex128) complex128 {
	return cmplx.Sqrt(z)
}

// Pow returns z**p for a real exponent. Integer exponents are expanded by
// repeated multiplication so a negative base keeps a clean imaginary part.
// A negative base with a fractional exponent has no real value and yields NaN.
func Pow(z complex128, p float64) complex128 {
	if p == math.Trunc(p) && math.Abs(p) <= 64 {
		return powInt(z, int(p))
	}
	if real(z) < 0 {
		return cmplx.NaN()
	}
	if z == 0 {
		if p > 0 {
			return 0
		}
		return cmplx.Inf()
	}
	return cmplx.Exp(complex(p, 0) * cmplx.Log(z))
}

func powInt(z complex128, n int) complex128 {
	if n < 0 {
		return 1 / powInt(z, -n)
	}
	r := complex128(1)
	for n > 0 {
		if n&1 == 1 {
			r *= z
		}
		z *= z
		n >>= 1
	}
	return r
}

// Abs flips the sign by the real part so the derivative survives.
// cmplx.Abs would return the modulus and discard it.
func Abs(z complex128) complex128 {
	if real(z) < 0 {
		return -z
	}
	return z
}

func Exp(z complex128) complex128 { return cmplx.Exp(z) }
func Log(z complex128) complex128 { return cmplx.Log(z) }
func Sin(z complex128) complex128 { return cmplx.Sin(z) }
func Cos(z complex128) complex128 { return cmplx.Cos(z) }

// Max picks by real part.
func Max(a, b complex128) complex128 {
	if real(a) >= real(b) {
		return a
	}
	return b
}

// Min picks by real part.
func Min(a, b complex128) complex128 {
	if real(a) <= real(b) {
		return a
	}
	return b
}

// Gt compares real parts.
func Gt(a, b complex128) bool { return real(a) > real(b) }

// Lt compares real parts.
func Lt(a, b complex128) bool { return real(a) < real(b) }

// IsFinite reports whether both parts are finite.
func IsFinite(z complex128) bool {
	return !cmplx.IsNaN(z) && !cmplx.IsInf(z)
}

// Real converts a float64 constant into extended arithmetic.
func Real(x float64) complex128 {
	return complex(x, 0)
}
