package analysis

import (
	"github.com/edp1096/invertermodel/pkg/graph"
)

type decl struct{ name, unit string }

// explicitFunc is a scalar explicit component backed by a closure over its
// input and output vectors in declaration order.
type explicitFunc struct {
	name string
	ins  []decl
	outs []decl
	fn   func(x, y []complex128) error
}

func (c *explicitFunc) GetName() string { return c.name }
func (c *explicitFunc) GetType() string { return "func" }

func (c *explicitFunc) Setup(d *graph.Declarer) error {
	for _, v := range c.ins {
		d.Input(v.name, v.unit)
	}
	for _, v := range c.outs {
		d.Output(v.name, v.unit)
	}
	return nil
}

func (c *explicitFunc) Compute(in, out graph.Vector) error { return c.fn(in, out) }

type implicitFunc struct {
	name   string
	ins    []decl
	states []decl
	guess  float64
	fn     func(x, s, r []complex128) error
}

func (c *implicitFunc) GetName() string { return c.name }
func (c *implicitFunc) GetType() string { return "residual" }

func (c *implicitFunc) Setup(d *graph.Declarer) error {
	for _, v := range c.ins {
		d.Input(v.name, v.unit)
	}
	for _, v := range c.states {
		d.Output(v.name, v.unit, graph.Default(c.guess))
	}
	return nil
}

func (c *implicitFunc) Residual(in, states, res graph.Vector) error { return c.fn(in, states, res) }

// network is a junction-case-sink-ambient thermal ladder.
type network struct{}

func (network) GetName() string { return "net" }
func (network) GetType() string { return "thermal" }

func (network) Setup(d *graph.Declarer) error {
	d.Input("P", "W")
	d.Input("R_jc", "K/W")
	d.Input("R_cs", "K/W")
	d.Input("R_sa", "K/W")
	d.Input("T_amb", "K")
	d.Output("T_j", "K")
	d.Output("T_c", "K")
	d.Output("T_s", "K")
	return nil
}

func (network) Residual(in, s, r graph.Vector) error {
	p, rjc, rcs, rsa, ta := in[0], in[1], in[2], in[3], in[4]
	tj, tc, ts := s[0], s[1], s[2]
	r[0] = p - (tj-tc)/rjc
	r[1] = (tj-tc)/rjc - (tc-ts)/rcs
	r[2] = (tc-ts)/rcs - (ts-ta)/rsa
	return nil
}

func (network) Guess(in, s graph.Vector) {
	for i := range s {
		s[i] = in[4]
	}
}
