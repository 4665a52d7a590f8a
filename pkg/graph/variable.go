package graph

import (
	"fmt"

	"github.com/edp1096/invertermodel/pkg/units"
)

type Role int

const (
	Input Role = iota
	Output
	Independent
)

func (r Role) String() string {
	switch r {
	case Input:
		return "input"
	case Output:
		return "output"
	case Independent:
		return "independent"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Handle locates a variable inside the local input or output vector of the
// component that declared it.
type Handle struct {
	offset int
	size   int
}

func (h Handle) Offset() int { return h.offset }
func (h Handle) Size() int   { return h.size }

// Vector is a component-local value vector in complex-step arithmetic.
type Vector []complex128

func (v Vector) Get(h Handle) complex128 { return v[h.offset] }

func (v Vector) Set(h Handle, x complex128) { v[h.offset] = x }

// Slice returns the elements of an array variable. It aliases v.
func (v Vector) Slice(h Handle) []complex128 { return v[h.offset : h.offset+h.size] }

// Variable is a declared input or output, or an independent input created at
// build time for a name nothing produces.
type Variable struct {
	Name     string
	Path     string
	Promoted string
	Unit     units.Unit
	Size     int
	Default  []float64
	Desc     string
	Role     Role

	owner  *Node
	handle Handle
	slot   int
	source *Variable
	conv   units.Conversion
}

// Owner is the node that declared the variable, nil for independents.
func (v *Variable) Owner() *Node { return v.owner }

func (v *Variable) Handle() Handle { return v.handle }

// Slot is the offset of the variable in the global value store. Inputs have
// no slot of their own and return -1.
func (v *Variable) Slot() int { return v.slot }

// Source is the producer of an input after Build.
func (v *Variable) Source() *Variable { return v.source }

// Conversion maps the source unit to the input unit.
func (v *Variable) Conversion() units.Conversion { return v.conv }

func (v *Variable) String() string {
	return fmt.Sprintf("%s %s [%s]", v.Role, v.Path, v.Unit)
}

type varConfig struct {
	size int
	def  []float64
	desc string
}

// VarOption configures a declaration.
type VarOption func(*varConfig)

// Shape declares a fixed-size array variable.
func Shape(n int) VarOption {
	return func(c *varConfig) { c.size = n }
}

// Default sets the initial value. A single value is broadcast over arrays.
// Without it variables start at 1.
func Default(v ...float64) VarOption {
	return func(c *varConfig) { c.def = append([]float64(nil), v...) }
}

func Desc(s string) VarOption {
	return func(c *varConfig) { c.desc = s }
}
