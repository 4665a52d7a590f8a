package device

import (
	"github.com/edp1096/invertermodel/pkg/graph"
)

// Var declares a scalar variable of a Formula. Without Default the
// variable starts at 1.
type Var struct {
	Name    string
	Unit    string
	Default []float64
	Desc    string
}

// FormulaFunc computes outputs y from inputs x, both in declaration order.
type FormulaFunc func(x, y []complex128) error

// Formula is an explicit component defined by a closure, for the glue
// arithmetic between devices.
type Formula struct {
	BaseDevice
	inputs  []Var
	outputs []Var
	fn      FormulaFunc
}

func NewFormula(name string, inputs, outputs []Var, fn FormulaFunc) *Formula {
	return &Formula{
		BaseDevice: BaseDevice{Name: name, Type: "formula"},
		inputs:     inputs,
		outputs:    outputs,
		fn:         fn,
	}
}

func (f *Formula) Setup(d *graph.Declarer) error {
	for _, v := range f.inputs {
		d.Input(v.Name, v.Unit, varOpts(v)...)
	}
	for _, v := range f.outputs {
		d.Output(v.Name, v.Unit, varOpts(v)...)
	}
	return nil
}

func varOpts(v Var) []graph.VarOption {
	opts := []graph.VarOption{graph.Desc(v.Desc)}
	if len(v.Default) > 0 {
		opts = append(opts, graph.Default(v.Default...))
	}
	return opts
}

func (f *Formula) Compute(in, out graph.Vector) error {
	return f.fn(in, out)
}
