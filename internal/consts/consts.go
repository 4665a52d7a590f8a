package consts

import "math"

const (
	KELVIN = 273.15             // Kelvin temperature (K)
	MU0    = 4e-7 * math.Pi     // Vacuum permeability (H/m)
	SQRT2  = math.Sqrt2         // Peak to RMS ratio of a sinusoid
	SQRT3  = 1.7320508075688772 // Line to phase ratio
)
