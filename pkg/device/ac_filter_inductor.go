package device

import (
	"math"

	"github.com/edp1096/invertermodel/internal/consts"
	"github.com/edp1096/invertermodel/pkg/cstep"
	"github.com/edp1096/invertermodel/pkg/graph"
)

var acFilterInductorOptions = []graph.OptionSpec{
	{Name: "n_phases", Default: 3, Check: graph.Positive},
	{Name: "steinmetz_k", Default: 0.3004, Check: graph.Positive},
	{Name: "steinmetz_alpha", Default: 1.602, Check: graph.Positive},
	{Name: "steinmetz_beta", Default: 2.085, Check: graph.Positive},
}

// ACFilterInductor sizes one toroidal filter inductor per phase. Core loss
// uses the Steinmetz equation with frequency in kHz; copper loss is DC
// resistive.
type ACFilterInductor struct {
	BaseDevice
	nPhases float64

	iPhase, fe, rho, wireDensity, nTurns, rWire graph.Handle
	rMajor, rMinor, muR, coreDensity            graph.Handle

	bMax, fill, inductance, mass, pCore, pCopper, pLoss, radiusDiff graph.Handle
}

func NewACFilterInductor(name string, opts map[string]any) (*ACFilterInductor, error) {
	base, err := newBaseDevice(name, "ac_filter_inductor", acFilterInductorOptions, opts)
	if err != nil {
		return nil, err
	}
	return &ACFilterInductor{BaseDevice: base, nPhases: float64(base.Options.Int("n_phases"))}, nil
}

func (a *ACFilterInductor) Setup(d *graph.Declarer) error {
	a.iPhase = d.Input("I_phase_rms", "A")
	a.fe = d.Input("electrical_frequency", "Hz")
	a.rho = d.Input("resistivity", "ohm*m", graph.Desc("conductor resistivity"))
	a.wireDensity = d.Input("wire_density", "kg/m**3")
	a.nTurns = d.Input("n_turns", "unitless")
	a.rWire = d.Input("r_wire", "m", graph.Desc("wire radius"))
	a.rMajor = d.Input("R_core", "m", graph.Desc("major radius of the toroid"))
	a.rMinor = d.Input("r_core", "m", graph.Desc("minor radius of the toroid"))
	a.muR = d.Input("mu_r", "unitless", graph.Desc("relative permeability of the core"))
	a.coreDensity = d.Input("core_density", "kg/m**3")

	a.bMax = d.Output("max_flux_density", "T")
	a.fill = d.Output("fill_factor", "unitless")
	a.inductance = d.Output("inductance", "H")
	a.mass = d.Output("mass", "kg")
	a.pCore = d.Output("P_loss_core", "W", graph.Desc("core loss of all phases"))
	a.pCopper = d.Output("P_loss_copper", "W", graph.Desc("copper loss of all phases"))
	a.pLoss = d.Output("P_loss", "W", graph.Desc("total loss of all phases"))
	a.radiusDiff = d.Output("radius_difference", "m", graph.Desc("R_core - r_core, positive for a valid toroid"))
	return nil
}

func (a *ACFilterInductor) Compute(in, out graph.Vector) error {
	i := in.Get(a.iPhase)
	n := in.Get(a.nTurns)
	rw := in.Get(a.rWire)
	R := in.Get(a.rMajor)
	r := in.Get(a.rMinor)
	phases := c(a.nPhases)

	wireArea := math.Pi * rw * rw
	copperArea := n * wireArea
	availableArea := math.Pi * (R*R - R*r + r*r)
	coreArea := math.Pi * r * r
	lPath := 2 * math.Pi * R

	mu := in.Get(a.muR) * consts.MU0
	wireMass := copperArea * lPath * in.Get(a.wireDensity)
	coreMass := coreArea * lPath * in.Get(a.coreDensity)

	b := consts.SQRT2 * i * lPath / (n * coreArea)
	if real(b) < 0 {
		return graph.Infeasible(a.Name, "negative flux density (%g T)", real(b))
	}
	o := a.Options
	steinmetz := c(o.Float("steinmetz_k")) *
		cstep.Pow(in.Get(a.fe)/1000, o.Float("steinmetz_alpha")) *
		cstep.Pow(b, o.Float("steinmetz_beta"))
	pCore := phases * steinmetz * coreMass
	pCopper := phases * n * in.Get(a.rho) * (2 * math.Pi * r) * i * i / wireArea

	out.Set(a.fill, copperArea/availableArea)
	out.Set(a.inductance, mu*coreArea*n/lPath)
	out.Set(a.mass, phases*wireMass+coreMass)
	out.Set(a.bMax, b)
	out.Set(a.pCore, pCore)
	out.Set(a.pCopper, pCopper)
	out.Set(a.pLoss, pCore+pCopper)
	out.Set(a.radiusDiff, R-r)
	return nil
}
