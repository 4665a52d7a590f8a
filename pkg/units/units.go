// Package units parses physical unit expressions and computes the conversion
// between two units of the same dimension.
//
// A unit expression is a product or quotient of symbols with optional integer
// exponents, for example "kg/m**3", "ohm*m", "K/W" or "mH". SI prefixes are
// accepted on every symbol except the offset temperature scales.
package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/edp1096/invertermodel/internal/consts"
)

var (
	ErrUnknownUnit  = errors.New("units: unknown unit")
	ErrIncompatible = errors.New("units: incompatible dimensions")
)

// Dimension holds the exponents of the base quantities kg, m, s, A and K.
type Dimension [5]int8

const (
	mass = iota
	length
	timeDim
	current
	temperature
)

// Unit is a parsed unit expression. A value v expressed in the unit equals
// v*Scale + Offset in SI base units.
type Unit struct {
	Symbol string
	Dim    Dimension
	Scale  float64
	Offset float64
}

// Dimensionless is the unit of ratios, indices and counts.
var Dimensionless = Unit{Symbol: "unitless", Scale: 1}

func dim(kg, m, s, a, k int8) Dimension { return Dimension{kg, m, s, a, k} }

var symbols = map[string]Unit{
	"unitless": {Dim: dim(0, 0, 0, 0, 0), Scale: 1},
	"1":        {Dim: dim(0, 0, 0, 0, 0), Scale: 1},
	"percent":  {Dim: dim(0, 0, 0, 0, 0), Scale: 0.01},
	"rad":      {Dim: dim(0, 0, 0, 0, 0), Scale: 1},
	"kg":       {Dim: dim(1, 0, 0, 0, 0), Scale: 1},
	"g":        {Dim: dim(1, 0, 0, 0, 0), Scale: 1e-3},
	"m":        {Dim: dim(0, 1, 0, 0, 0), Scale: 1},
	"s":        {Dim: dim(0, 0, 1, 0, 0), Scale: 1},
	"min":      {Dim: dim(0, 0, 1, 0, 0), Scale: 60},
	"h":        {Dim: dim(0, 0, 1, 0, 0), Scale: 3600},
	"A":        {Dim: dim(0, 0, 0, 1, 0), Scale: 1},
	"K":        {Dim: dim(0, 0, 0, 0, 1), Scale: 1},
	"degR":     {Dim: dim(0, 0, 0, 0, 1), Scale: 5.0 / 9.0},
	"degC":     {Dim: dim(0, 0, 0, 0, 1), Scale: 1, Offset: consts.KELVIN},
	"degF":     {Dim: dim(0, 0, 0, 0, 1), Scale: 5.0 / 9.0, Offset: (consts.KELVIN - 32*5.0/9.0)},
	"Hz":       {Dim: dim(0, 0, -1, 0, 0), Scale: 1},
	"N":        {Dim: dim(1, 1, -2, 0, 0), Scale: 1},
	"Pa":       {Dim: dim(1, -1, -2, 0, 0), Scale: 1},
	"J":        {Dim: dim(1, 2, -2, 0, 0), Scale: 1},
	"W":        {Dim: dim(1, 2, -3, 0, 0), Scale: 1},
	"C":        {Dim: dim(0, 0, 1, 1, 0), Scale: 1},
	"V":        {Dim: dim(1, 2, -3, -1, 0), Scale: 1},
	"ohm":      {Dim: dim(1, 2, -3, -2, 0), Scale: 1},
	"S":        {Dim: dim(-1, -2, 3, 2, 0), Scale: 1},
	"F":        {Dim: dim(-1, -2, 4, 2, 0), Scale: 1},
	"H":        {Dim: dim(1, 2, -2, -2, 0), Scale: 1},
	"Wb":       {Dim: dim(1, 2, -2, -1, 0), Scale: 1},
	"T":        {Dim: dim(1, 0, -2, -1, 0), Scale: 1},
}

// prefixes are tried longest first, "meg" before "m".
var prefixes = []struct {
	symbol string
	factor float64
}{
	{"meg", 1e6},
	{"T", 1e12},
	{"G", 1e9},
	{"M", 1e6},
	{"k", 1e3},
	{"K", 1e3},
	{"c", 1e-2},
	{"m", 1e-3},
	{"u", 1e-6},
	{"n", 1e-9},
	{"p", 1e-12},
	{"f", 1e-15},
}

var families = map[Dimension]string{
	dim(0, 0, 0, 0, 0):   "dimensionless",
	dim(1, 0, 0, 0, 0):   "mass",
	dim(0, 1, 0, 0, 0):   "length",
	dim(0, 0, 1, 0, 0):   "time",
	dim(0, 0, 0, 1, 0):   "current",
	dim(0, 0, 0, 0, 1):   "temperature",
	dim(0, 0, -1, 0, 0):  "frequency",
	dim(1, 2, -3, 0, 0):  "power",
	dim(1, 2, -2, 0, 0):  "energy",
	dim(0, 0, 1, 1, 0):   "charge",
	dim(1, 2, -3, -1, 0): "voltage",
	dim(1, 2, -3, -2, 0): "resistance",
	dim(-1, -2, 4, 2, 0): "capacitance",
	dim(1, 2, -2, -2, 0): "inductance",
	dim(1, 0, -2, -1, 0): "flux density",
	dim(1, 1, -2, -2, 0): "permeability",
	dim(-1, -2, 3, 0, 1): "thermal resistance",
	dim(1, 3, -3, -2, 0): "resistivity",
	dim(1, -3, 0, 0, 0):  "density",
	dim(-2, -2, 4, 2, 0): "specific capacitance",
}

// Parse parses a unit expression. The empty string and "1" are dimensionless.
func Parse(expr string) (Unit, error) {
	s := strings.ReplaceAll(strings.TrimSpace(expr), " ", "")
	if s == "" || s == "1" || s == "unitless" {
		return Dimensionless, nil
	}
	s = strings.ReplaceAll(s, "**", "^")

	u := Unit{Symbol: expr, Scale: 1}
	factors := 0
	var offset float64

	divide := false
	for len(s) > 0 {
		end := strings.IndexAny(s, "*/")
		if end < 0 {
			end = len(s)
		}
		term := s[:end]
		if term == "" {
			return Unit{}, fmt.Errorf("%w: empty factor in %q", ErrUnknownUnit, expr)
		}

		f, exp, err := parseFactor(term)
		if err != nil {
			return Unit{}, fmt.Errorf("%w in %q", err, expr)
		}
		if divide {
			exp = -exp
		}
		for i := range u.Dim {
			if d := int(u.Dim[i]) + int(f.Dim[i])*exp; d < math.MinInt8 || d > math.MaxInt8 {
				return Unit{}, fmt.Errorf("%w: exponent out of range in %q", ErrUnknownUnit, expr)
			}
		}
		for i := range u.Dim {
			u.Dim[i] += f.Dim[i] * int8(exp)
		}
		u.Scale *= pow(f.Scale, exp)
		if f.Offset != 0 && exp == 1 {
			offset = f.Offset
		}
		factors++

		if end == len(s) {
			break
		}
		divide = s[end] == '/'
		s = s[end+1:]
		if s == "" {
			return Unit{}, fmt.Errorf("%w: trailing operator in %q", ErrUnknownUnit, expr)
		}
	}

	// An offset only makes sense for a lone absolute temperature. In compound
	// units (K/W, degC/s) the temperature is a difference.
	if factors == 1 {
		u.Offset = offset
	}
	return u, nil
}

// MustParse is like Parse but panics on error. It is meant for unit strings
// fixed at compile time.
func MustParse(expr string) Unit {
	u, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return u
}

func parseFactor(term string) (Unit, int, error) {
	name, exp := term, 1
	if i := strings.IndexByte(term, '^'); i >= 0 {
		name = term[:i]
		raw := strings.Trim(term[i+1:], "()")
		n, err := strconv.Atoi(raw)
		if err != nil || n < math.MinInt8 || n > math.MaxInt8 {
			return Unit{}, 0, fmt.Errorf("%w: bad exponent %q", ErrUnknownUnit, term[i+1:])
		}
		exp = n
	}

	if u, ok := symbols[name]; ok {
		return u, exp, nil
	}
	for _, p := range prefixes {
		rest, ok := strings.CutPrefix(name, p.symbol)
		if !ok || rest == "" {
			continue
		}
		if u, ok := symbols[rest]; ok && u.Offset == 0 {
			u.Scale *= p.factor
			return u, exp, nil
		}
	}
	return Unit{}, 0, fmt.Errorf("%w: %q", ErrUnknownUnit, name)
}

func pow(x float64, n int) float64 {
	if n < 0 {
		return 1 / pow(x, -n)
	}
	r := 1.0
	for range n {
		r *= x
	}
	return r
}

// String returns the expression the unit was parsed from.
func (u Unit) String() string {
	if u.Symbol == "" {
		return "unitless"
	}
	return u.Symbol
}

// Family names the physical quantity measured by the unit, or a formula of
// base dimensions when the quantity has no common name.
func (u Unit) Family() string {
	if name, ok := families[u.Dim]; ok {
		return name
	}
	base := [...]string{"kg", "m", "s", "A", "K"}
	var parts []string
	for i, e := range u.Dim {
		switch {
		case e == 1:
			parts = append(parts, base[i])
		case e != 0:
			parts = append(parts, fmt.Sprintf("%s^%d", base[i], e))
		}
	}
	return strings.Join(parts, "*")
}

// Compatible reports whether values can be converted between u and v.
func (u Unit) Compatible(v Unit) bool {
	return u.Dim == v.Dim
}

// Conversion maps a value in one unit to another: to = from*Scale + Offset.
type Conversion struct {
	Scale  float64
	Offset float64
}

// Identity is the conversion between a unit and itself.
var Identity = Conversion{Scale: 1}

// Convert returns the conversion from unit from to unit to.
func Convert(from, to Unit) (Conversion, error) {
	if !from.Compatible(to) {
		return Conversion{}, fmt.Errorf("%w: %s (%s) to %s (%s)",
			ErrIncompatible, from, from.Family(), to, to.Family())
	}
	return Conversion{
		Scale:  from.Scale / to.Scale,
		Offset: (from.Offset - to.Offset) / to.Scale,
	}, nil
}

// Apply converts x. The offset only shifts the real part, so a complex-step
// perturbation carried in the imaginary part is scaled like a derivative.
func (c Conversion) Apply(x complex128) complex128 {
	return x*complex(c.Scale, 0) + complex(c.Offset, 0)
}

// Float converts a real value.
func (c Conversion) Float(x float64) float64 {
	return x*c.Scale + c.Offset
}

// IsIdentity reports whether the conversion leaves values unchanged.
func (c Conversion) IsIdentity() bool {
	return c.Scale == 1 && c.Offset == 0
}
