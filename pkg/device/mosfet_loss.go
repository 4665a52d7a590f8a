package device

import (
	"math"

	"github.com/edp1096/invertermodel/internal/consts"
	"github.com/edp1096/invertermodel/pkg/graph"
)

var mosfetLossOptions = []graph.OptionSpec{
	{Name: "E_on_test", Default: 0.0, Required: true, Check: graph.Positive,
		Desc: "datasheet turn-on energy at I_test, V_test"},
	{Name: "E_off_test", Default: 0.0, Required: true, Check: graph.Positive,
		Desc: "datasheet turn-off energy at I_test, V_test"},
	{Name: "I_test", Default: 0.0, Required: true, Check: graph.Positive},
	{Name: "V_test", Default: 0.0, Required: true, Check: graph.Positive},
	{Name: "n_phases", Default: 3, Check: graph.Positive},
	{Name: "switches_per_phase", Default: 2, Check: graph.Positive},
}

// MOSFETLoss sums conduction, switching and reverse recovery losses of all
// switches of the bridge. Switching energy scales linearly from the
// datasheet test point.
type MOSFETLoss struct {
	BaseDevice

	energyScale float64
	nSwitches   float64

	iPhase, rDsOn, fSw, vBus, qRR graph.Handle
	pLoss, pCond, pOn, pOff, pRR  graph.Handle
}

func NewMOSFETLoss(name string, opts map[string]any) (*MOSFETLoss, error) {
	base, err := newBaseDevice(name, "mosfet_loss", mosfetLossOptions, opts)
	if err != nil {
		return nil, err
	}
	o := base.Options
	return &MOSFETLoss{
		BaseDevice:  base,
		energyScale: 1 / (o.Float("I_test") * o.Float("V_test")),
		nSwitches:   float64(o.Int("n_phases") * o.Int("switches_per_phase")),
	}, nil
}

func (m *MOSFETLoss) Setup(d *graph.Declarer) error {
	m.iPhase = d.Input("I_phase_rms", "A", graph.Desc("motor phase RMS current"))
	m.rDsOn = d.Input("R_ds_on", "ohm", graph.Desc("drain-source on-state resistance"))
	m.fSw = d.Input("switching_frequency", "Hz")
	m.vBus = d.Input("bus_voltage", "V", graph.Desc("DC link voltage"))
	m.qRR = d.Input("Q_rr", "C", graph.Desc("reverse recovery charge"))

	m.pLoss = d.Output("P_loss", "W", graph.Desc("total loss of all switches"))
	m.pCond = d.Output("P_cond", "W", graph.Desc("conduction loss per switch"))
	m.pOn = d.Output("P_on", "W", graph.Desc("turn-on loss per switch"))
	m.pOff = d.Output("P_off", "W", graph.Desc("turn-off loss per switch"))
	m.pRR = d.Output("P_rr", "W", graph.Desc("reverse recovery loss per switch"))
	return nil
}

func (m *MOSFETLoss) Compute(in, out graph.Vector) error {
	i := in.Get(m.iPhase)
	fsw := in.Get(m.fSw)
	vbus := in.Get(m.vBus)

	pCond := 0.5 * i * i * in.Get(m.rDsOn)
	pSwitch := fsw * (consts.SQRT2 / math.Pi * i) * vbus
	pOn := pSwitch * c(m.Options.Float("E_on_test")*m.energyScale)
	pOff := pSwitch * c(m.Options.Float("E_off_test")*m.energyScale)
	pRR := 0.25 * in.Get(m.qRR) * vbus * fsw

	out.Set(m.pCond, pCond)
	out.Set(m.pOn, pOn)
	out.Set(m.pOff, pOff)
	out.Set(m.pRR, pRR)
	out.Set(m.pLoss, c(m.nSwitches)*(pCond+pOn+pOff+pRR))
	return nil
}
