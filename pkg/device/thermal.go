package device

import (
	"github.com/edp1096/invertermodel/pkg/graph"
)

// The thermal networks are ladders of thermal resistances from the heat
// source to ambient air. Each residual is the heat balance of one node, so
// the solved temperatures carry the dissipated power through every stage.

type MOSFETThermalNetwork struct {
	BaseDevice
	p, rJC, rCS, rSA, tAmb graph.Handle
	tJ, tC, tS             graph.Handle
}

func NewMOSFETThermalNetwork(name string, opts map[string]any) (*MOSFETThermalNetwork, error) {
	base, err := newBaseDevice(name, "mosfet_thermal", nil, opts)
	if err != nil {
		return nil, err
	}
	return &MOSFETThermalNetwork{BaseDevice: base}, nil
}

func (t *MOSFETThermalNetwork) Setup(d *graph.Declarer) error {
	t.p = d.Input("P_loss", "W", graph.Desc("loss of a single switch"))
	t.rJC = d.Input("resistance_junction_to_case", "K/W")
	t.rCS = d.Input("resistance_case_to_sink", "K/W")
	t.rSA = d.Input("resistance_sink_to_air", "K/W")
	t.tAmb = d.Input("temperature_ambient", "K", graph.Default(298.15))

	t.tJ = d.Output("temperature_junction", "K", graph.Default(298.15))
	t.tC = d.Output("temperature_case", "K", graph.Default(298.15))
	t.tS = d.Output("temperature_sink", "K", graph.Default(298.15))
	return nil
}

func (t *MOSFETThermalNetwork) Residual(in, s, res graph.Vector) error {
	qJC := (s.Get(t.tJ) - s.Get(t.tC)) / in.Get(t.rJC)
	qCS := (s.Get(t.tC) - s.Get(t.tS)) / in.Get(t.rCS)
	qSA := (s.Get(t.tS) - in.Get(t.tAmb)) / in.Get(t.rSA)

	res.Set(t.tJ, in.Get(t.p)-qJC)
	res.Set(t.tC, qJC-qCS)
	res.Set(t.tS, qCS-qSA)
	return nil
}

// Guess stacks the temperature rises on ambient, the exact solution of the
// series ladder.
func (t *MOSFETThermalNetwork) Guess(in, s graph.Vector) {
	p := in.Get(t.p)
	ts := in.Get(t.tAmb) + p*in.Get(t.rSA)
	tc := ts + p*in.Get(t.rCS)
	s.Set(t.tS, ts)
	s.Set(t.tC, tc)
	s.Set(t.tJ, tc+p*in.Get(t.rJC))
}

var dcLinkThermalOptions = []graph.OptionSpec{
	{Name: "heatsink", Default: false, Desc: "capacitor case is mounted on a heatsink"},
}

type DCLinkCapacitorThermalNetwork struct {
	BaseDevice
	heatsink bool

	p, rHC, rCS, rSA, rCA, tAmb graph.Handle
	tH, tC, tS                  graph.Handle
}

func NewDCLinkCapacitorThermalNetwork(name string, opts map[string]any) (*DCLinkCapacitorThermalNetwork, error) {
	base, err := newBaseDevice(name, "dc_link_capacitor_thermal", dcLinkThermalOptions, opts)
	if err != nil {
		return nil, err
	}
	return &DCLinkCapacitorThermalNetwork{BaseDevice: base, heatsink: base.Options.Bool("heatsink")}, nil
}

func (t *DCLinkCapacitorThermalNetwork) Setup(d *graph.Declarer) error {
	t.p = d.Input("P_loss", "W")
	t.rHC = d.Input("resistance_hotspot_to_case", "K/W")
	if t.heatsink {
		t.rCS = d.Input("resistance_case_to_sink", "K/W")
		t.rSA = d.Input("resistance_sink_to_air", "K/W")
	} else {
		t.rCA = d.Input("resistance_case_to_air", "K/W")
	}
	t.tAmb = d.Input("temperature_ambient", "K", graph.Default(298.15))

	t.tH = d.Output("temperature_hotspot", "K", graph.Default(298.15))
	t.tC = d.Output("temperature_case", "K", graph.Default(298.15))
	if t.heatsink {
		t.tS = d.Output("temperature_sink", "K", graph.Default(298.15))
	}
	return nil
}

func (t *DCLinkCapacitorThermalNetwork) Residual(in, s, res graph.Vector) error {
	qHC := (s.Get(t.tH) - s.Get(t.tC)) / in.Get(t.rHC)
	res.Set(t.tH, in.Get(t.p)-qHC)

	if !t.heatsink {
		qCA := (s.Get(t.tC) - in.Get(t.tAmb)) / in.Get(t.rCA)
		res.Set(t.tC, qHC-qCA)
		return nil
	}
	qCS := (s.Get(t.tC) - s.Get(t.tS)) / in.Get(t.rCS)
	qSA := (s.Get(t.tS) - in.Get(t.tAmb)) / in.Get(t.rSA)
	res.Set(t.tC, qHC-qCS)
	res.Set(t.tS, qCS-qSA)
	return nil
}

type ACFilterInductorThermalNetwork struct {
	BaseDevice
	pCore, pCopper, rCW, rWS, rSA, tAmb graph.Handle
	tCore, tW, tS                       graph.Handle
}

func NewACFilterInductorThermalNetwork(name string, opts map[string]any) (*ACFilterInductorThermalNetwork, error) {
	base, err := newBaseDevice(name, "ac_filter_inductor_thermal", nil, opts)
	if err != nil {
		return nil, err
	}
	return &ACFilterInductorThermalNetwork{BaseDevice: base}, nil
}

func (t *ACFilterInductorThermalNetwork) Setup(d *graph.Declarer) error {
	t.pCore = d.Input("P_loss_core", "W", graph.Desc("core loss of the filter inductors of all phases, lumped"))
	t.pCopper = d.Input("P_loss_copper", "W", graph.Desc("copper loss of the filter inductors of all phases, lumped"))
	t.rCW = d.Input("resistance_core_to_windings", "K/W")
	t.rWS = d.Input("resistance_windings_to_sink", "K/W")
	t.rSA = d.Input("resistance_sink_to_air", "K/W")
	t.tAmb = d.Input("temperature_ambient", "K", graph.Default(298.15))

	t.tCore = d.Output("temperature_core", "K", graph.Default(298.15))
	t.tW = d.Output("temperature_windings", "K", graph.Default(298.15))
	t.tS = d.Output("temperature_sink", "K", graph.Default(298.15))
	return nil
}

func (t *ACFilterInductorThermalNetwork) Residual(in, s, res graph.Vector) error {
	qCW := (s.Get(t.tCore) - s.Get(t.tW)) / in.Get(t.rCW)
	qWS := (s.Get(t.tW) - s.Get(t.tS)) / in.Get(t.rWS)
	qSA := (s.Get(t.tS) - in.Get(t.tAmb)) / in.Get(t.rSA)

	res.Set(t.tCore, in.Get(t.pCore)-qCW)
	res.Set(t.tW, in.Get(t.pCopper)+qCW-qWS)
	res.Set(t.tS, qWS-qSA)
	return nil
}
