package device

import (
	"github.com/edp1096/invertermodel/internal/consts"
	"github.com/edp1096/invertermodel/pkg/graph"
)

// RippleCurrent is the peak-to-peak switching ripple of the phase current.
type RippleCurrent struct {
	BaseDevice
	m, l, fSw, vBus graph.Handle
	iRipple         graph.Handle
}

func NewRippleCurrent(name string, opts map[string]any) (*RippleCurrent, error) {
	base, err := newBaseDevice(name, "ripple_current", nil, opts)
	if err != nil {
		return nil, err
	}
	return &RippleCurrent{BaseDevice: base}, nil
}

func (r *RippleCurrent) Setup(d *graph.Declarer) error {
	r.m = d.Input("modulation_index", "unitless")
	r.l = d.Input("L", "H", graph.Desc("phase inductance"))
	r.fSw = d.Input("f_sw", "Hz", graph.Desc("switching frequency"))
	r.vBus = d.Input("V_bus", "V", graph.Desc("DC link voltage"))
	r.iRipple = d.Output("I_ripple", "A")
	return nil
}

func (r *RippleCurrent) Compute(in, out graph.Vector) error {
	out.Set(r.iRipple, 0.5*in.Get(r.vBus)*in.Get(r.m)/(2*consts.SQRT3*in.Get(r.l)*in.Get(r.fSw)))
	return nil
}
