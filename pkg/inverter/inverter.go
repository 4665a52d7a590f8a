// Package inverter assembles the device models into a motor drive inverter
// with a closed modulation index loop.
package inverter

import (
	"fmt"
	"math"

	"github.com/edp1096/invertermodel/internal/consts"
	"github.com/edp1096/invertermodel/pkg/cstep"
	"github.com/edp1096/invertermodel/pkg/device"
	"github.com/edp1096/invertermodel/pkg/graph"
)

// Datasheet values of the Wolfspeed C2M0025120D.
const (
	EOnTest  = 2.18e-3
	EOffTest = 0.68e-3
	ITest    = 63.0
	VTest    = 1200.0
)

var optionSpecs = []graph.OptionSpec{
	{Name: "use_filter_inductor", Default: true},
	{Name: "thermal", Default: false, Desc: "add the MOSFET, capacitor and inductor thermal networks"},
	{Name: "capacitor_heatsink", Default: false},
	{Name: "n_phases", Default: 3, Check: graph.Positive},
	{Name: "switches_per_phase", Default: 2, Check: graph.Positive},
	{Name: "E_on_test", Default: EOnTest, Check: graph.Positive},
	{Name: "E_off_test", Default: EOffTest, Check: graph.Positive},
	{Name: "I_test", Default: ITest, Check: graph.Positive},
	{Name: "V_test", Default: VTest, Check: graph.Positive},
	{Name: "peak_phase_current", Default: false},
	{Name: "modulation_index_guess", Default: 0.9, Check: graph.Positive},
}

// Options lists the option names New accepts.
func Options() []graph.OptionSpec { return optionSpecs }

type builder struct {
	g   *graph.Graph
	o   graph.Options
	err error
}

func (b *builder) add(c graph.Component, promotes ...graph.Promotion) {
	if b.err == nil {
		b.err = b.g.Add(c, promotes...)
	}
}

func (b *builder) device(c graph.Component, err error, promotes ...graph.Promotion) {
	if b.err == nil && err != nil {
		b.err = err
	}
	b.add(c, promotes...)
}

func (b *builder) connect(pairs ...string) {
	for i := 0; i+1 < len(pairs) && b.err == nil; i += 2 {
		b.err = b.g.Connect(pairs[i], pairs[i+1])
	}
}

func v(name, unit string) device.Var { return device.Var{Name: name, Unit: unit} }

func zero(name, unit string) device.Var {
	return device.Var{Name: name, Unit: unit, Default: []float64{0}}
}

// New builds the inverter graph. The loop closes through the DC link
// capacitor: its voltage ripple lowers the effective bus voltage, which sets
// the modulation index fed back to the capacitor and ripple models.
func New(name string, opts map[string]any) (*graph.Graph, error) {
	o, err := graph.ParseOptions(optionSpecs, opts)
	if err != nil {
		return nil, fmt.Errorf("inverter %s: %w", name, err)
	}
	b := &builder{g: graph.New(name), o: o}
	nPhases := o.Int("n_phases")

	mosfet, err := device.NewMOSFETLoss("mosfet", map[string]any{
		"E_on_test":          o.Float("E_on_test"),
		"E_off_test":         o.Float("E_off_test"),
		"I_test":             o.Float("I_test"),
		"V_test":             o.Float("V_test"),
		"n_phases":           nPhases,
		"switches_per_phase": o.Int("switches_per_phase"),
	})
	b.device(mosfet, err, graph.Promote("I_phase_rms", "switching_frequency", "bus_voltage")...)

	filter := o.Bool("use_filter_inductor")
	if filter {
		ind, err := device.NewACFilterInductor("ac_filter_inductor", map[string]any{"n_phases": nPhases})
		b.device(ind, err, graph.Promote("I_phase_rms", "r_wire", "electrical_frequency")...)
	}

	b.add(device.NewFormula("combined_inductance",
		[]device.Var{v("load_inductance", "H"), zero("filter_inductance", "H")},
		[]device.Var{v("L", "H")},
		func(x, y []complex128) error {
			y[0] = x[0] + x[1]
			return nil
		}), graph.Promote("load_inductance", "L")...)

	b.add(device.NewFormula("phase_voltage",
		[]device.Var{
			v("load_phase_back_emf", "V"), v("load_phase_resistance", "ohm"),
			v("I_phase_rms", "A"), v("L", "H"), v("electrical_frequency", "Hz"),
		},
		[]device.Var{v("phase_voltage", "V")},
		func(x, y []complex128) error {
			peak := consts.SQRT2 * x[2]
			re := x[0] + x[1]*peak
			im := 2 * math.Pi * x[3] * x[4] * peak
			y[0] = cstep.Sqrt(re*re + im*im)
			return nil
		}), graph.PromoteAll())

	b.add(device.NewFormula("power_factor",
		[]device.Var{v("load_phase_back_emf", "V"), v("phase_voltage", "V")},
		[]device.Var{v("power_factor", "unitless")},
		func(x, y []complex128) error {
			y[0] = x[0] / x[1]
			return nil
		}), graph.PromoteAll())

	capOpts := map[string]any{"peak_phase_current": o.Bool("peak_phase_current")}
	dcLink, err := device.NewDCLinkCapacitor("dc_link_cap", capOpts)
	b.device(dcLink, err, append(graph.Promote("I_phase_rms", "power_factor", "switching_frequency"),
		graph.PromoteAs("modulation_index", "modulation_index_slack"))...)

	b.add(device.NewFormula("effective_bus_voltage",
		[]device.Var{v("bus_voltage", "V"), zero("V_ripple", "V")},
		[]device.Var{v("effective_bus_voltage", "V")},
		func(x, y []complex128) error {
			y[0] = x[0] - 0.5*x[1]
			return nil
		}), graph.Promote("bus_voltage", "effective_bus_voltage")...)

	b.add(device.NewFormula("modulation_index",
		[]device.Var{v("phase_voltage", "V"), v("effective_bus_voltage", "V")},
		[]device.Var{v("modulation_index", "unitless")},
		func(x, y []complex128) error {
			y[0] = 2 * x[0] / x[1]
			return nil
		}), graph.PromoteAll())

	b.add(graph.NewBalance("modulation_index_balance", "modulation_index_slack", "modulation_index",
		"unitless", o.Float("modulation_index_guess")), graph.PromoteAll())

	ripple, err := device.NewRippleCurrent("ripple_current", nil)
	b.device(ripple, err, append(graph.Promote("L"),
		graph.PromoteAs("modulation_index", "modulation_index_slack"),
		graph.PromoteAs("f_sw", "switching_frequency"),
		graph.PromoteAs("V_bus", "bus_voltage"))...)

	b.add(device.NewFormula("ripple",
		[]device.Var{
			v("current_ripple", "A"), v("I_phase_rms", "A"),
			v("voltage_ripple", "V"), v("bus_voltage", "V"),
		},
		[]device.Var{v("I_ripple", "unitless"), v("V_ripple", "unitless")},
		func(x, y []complex128) error {
			y[0] = x[0] / x[1]
			y[1] = x[2] / x[3]
			return nil
		}), graph.Promote("I_phase_rms", "bus_voltage", "I_ripple", "V_ripple")...)

	b.add(device.NewFormula("total_loss",
		[]device.Var{v("mosfet_loss", "W"), zero("inductor_loss", "W"), v("capacitor_loss", "W")},
		[]device.Var{v("total_loss", "W")},
		func(x, y []complex128) error {
			y[0] = x[0] + x[1] + x[2]
			return nil
		}), graph.Promote("total_loss")...)

	b.add(device.NewFormula("power_out",
		[]device.Var{v("I_phase_rms", "A"), v("phase_voltage", "V")},
		[]device.Var{v("power_out", "W")},
		func(x, y []complex128) error {
			y[0] = x[0] * x[1]
			return nil
		}), graph.PromoteAll())

	b.add(device.NewFormula("efficiency",
		[]device.Var{v("power_out", "W"), v("total_loss", "W")},
		[]device.Var{v("efficiency", "unitless")},
		func(x, y []complex128) error {
			y[0] = x[0] / (x[0] + x[1])
			return nil
		}), graph.PromoteAll())

	b.add(device.NewFormula("mass",
		[]device.Var{zero("inductor_mass", "kg"), v("cap_mass", "kg")},
		[]device.Var{v("mass", "kg")},
		func(x, y []complex128) error {
			y[0] = x[0] + x[1]
			return nil
		}), graph.Promote("mass")...)

	b.connect(
		"dc_link_cap.V_ripple", "effective_bus_voltage.V_ripple",
		"ripple_current.I_ripple", "ripple.current_ripple",
		"dc_link_cap.V_ripple", "ripple.voltage_ripple",
		"mosfet.P_loss", "total_loss.mosfet_loss",
		"dc_link_cap.P_loss", "total_loss.capacitor_loss",
		"dc_link_cap.mass", "mass.cap_mass",
	)
	if filter {
		b.connect(
			"ac_filter_inductor.inductance", "combined_inductance.filter_inductance",
			"ac_filter_inductor.mass", "mass.inductor_mass",
			"ac_filter_inductor.P_loss", "total_loss.inductor_loss",
		)
	}
	if o.Bool("thermal") {
		b.thermal(filter)
	}

	if b.err != nil {
		return nil, fmt.Errorf("inverter %s: %w", name, b.err)
	}
	return b.g, nil
}

// thermal attaches a network to each loss source. The MOSFET network sees
// the loss of a single switch.
func (b *builder) thermal(filter bool) {
	switches := float64(b.o.Int("n_phases") * b.o.Int("switches_per_phase"))
	b.add(device.NewFormula("switch_loss",
		[]device.Var{v("P_total", "W")},
		[]device.Var{v("P_switch", "W")},
		func(x, y []complex128) error {
			y[0] = x[0] / complex(switches, 0)
			return nil
		}))

	mt, err := device.NewMOSFETThermalNetwork("mosfet_thermal", nil)
	b.device(mt, err, graph.Promote("temperature_ambient", "temperature_junction")...)

	ct, err := device.NewDCLinkCapacitorThermalNetwork("dc_link_cap_thermal",
		map[string]any{"heatsink": b.o.Bool("capacitor_heatsink")})
	b.device(ct, err, append(graph.Promote("temperature_ambient"),
		graph.PromoteAs("temperature_hotspot", "temperature_capacitor_hotspot"))...)

	b.connect(
		"mosfet.P_loss", "switch_loss.P_total",
		"switch_loss.P_switch", "mosfet_thermal.P_loss",
		"dc_link_cap.P_loss", "dc_link_cap_thermal.P_loss",
	)

	if filter {
		lt, err := device.NewACFilterInductorThermalNetwork("ac_filter_inductor_thermal", nil)
		b.device(lt, err, graph.Promote("temperature_ambient", "temperature_windings")...)
		b.connect(
			"ac_filter_inductor.P_loss_core", "ac_filter_inductor_thermal.P_loss_core",
			"ac_filter_inductor.P_loss_copper", "ac_filter_inductor_thermal.P_loss_copper",
		)
	}
}
