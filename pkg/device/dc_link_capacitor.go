package device

import (
	"math"

	"github.com/edp1096/invertermodel/internal/consts"
	"github.com/edp1096/invertermodel/pkg/cstep"
	"github.com/edp1096/invertermodel/pkg/graph"
)

var dcLinkCapacitorOptions = []graph.OptionSpec{
	{Name: "peak_phase_current", Default: false,
		Desc: "take the DC input average current from the peak rather than the RMS phase current"},
}

// DCLinkCapacitor lumps the parallel DC link capacitors. The RMS capacitor
// current follows from the RMS and average DC input current of a sinusoidal
// PWM bridge.
type DCLinkCapacitor struct {
	BaseDevice
	avgScale float64

	iPhase, m, pf, fSw, cap, df, specCap graph.Handle
	vRipple, pLoss, mass, iCapRMS        graph.Handle
}

func NewDCLinkCapacitor(name string, opts map[string]any) (*DCLinkCapacitor, error) {
	base, err := newBaseDevice(name, "dc_link_capacitor", dcLinkCapacitorOptions, opts)
	if err != nil {
		return nil, err
	}
	d := &DCLinkCapacitor{BaseDevice: base, avgScale: 0.75}
	if base.Options.Bool("peak_phase_current") {
		d.avgScale *= consts.SQRT2
	}
	return d, nil
}

func (d *DCLinkCapacitor) Setup(dc *graph.Declarer) error {
	d.iPhase = dc.Input("I_phase_rms", "A", graph.Desc("motor phase RMS current"))
	d.m = dc.Input("modulation_index", "unitless")
	d.pf = dc.Input("power_factor", "unitless")
	d.fSw = dc.Input("switching_frequency", "Hz")
	d.cap = dc.Input("C", "F", graph.Desc("total DC link capacitance"))
	d.df = dc.Input("dissipation_factor", "unitless")
	d.specCap = dc.Input("specific_capacitance", "F/kg")

	d.vRipple = dc.Output("V_ripple", "V", graph.Desc("capacitor voltage ripple"))
	d.pLoss = dc.Output("P_loss", "W", graph.Desc("ripple current loss of all capacitors"))
	d.mass = dc.Output("mass", "kg")
	d.iCapRMS = dc.Output("I_cap_rms", "A", graph.Desc("capacitor RMS ripple current"))
	return nil
}

func (d *DCLinkCapacitor) Compute(in, out graph.Vector) error {
	i := in.Get(d.iPhase)
	m := in.Get(d.m)
	pf := in.Get(d.pf)
	fsw := in.Get(d.fSw)
	cp := in.Get(d.cap)

	rmsArg := 2 * consts.SQRT3 / math.Pi * m * (pf*pf + 0.25)
	if real(rmsArg) < 0 {
		return graph.Infeasible(d.Name, "negative modulation index (%g)", real(m))
	}
	iInRMS := i * cstep.Sqrt(rmsArg)
	iInAvg := c(d.avgScale) * i * m * pf
	if cstep.Gt(iInAvg, iInRMS) {
		return graph.Infeasible(d.Name,
			"modulation index (%g) too high: insufficient bus voltage for given load", real(m))
	}

	iCap := cstep.Sqrt(iInRMS*iInRMS - iInAvg*iInAvg)
	esr := in.Get(d.df) / (2 * math.Pi * fsw * cp)

	out.Set(d.iCapRMS, iCap)
	out.Set(d.vRipple, iCap/(cp*fsw))
	out.Set(d.pLoss, iCap*iCap*esr)
	out.Set(d.mass, cp/in.Get(d.specCap))
	return nil
}
