// Package device holds the leaf physics of the inverter model as graph
// components, and a registry that builds them by type name.
package device

import (
	"errors"
	"fmt"
	"sort"

	"github.com/edp1096/invertermodel/pkg/graph"
)

var ErrUnknownType = errors.New("unknown component type")

type BaseDevice struct {
	Name    string
	Type    string
	Options graph.Options
}

func (d *BaseDevice) GetName() string { return d.Name }
func (d *BaseDevice) GetType() string { return d.Type }

func newBaseDevice(name, typ string, specs []graph.OptionSpec, opts map[string]any) (BaseDevice, error) {
	o, err := graph.ParseOptions(specs, opts)
	if err != nil {
		return BaseDevice{}, fmt.Errorf("%s %s: %w", typ, name, err)
	}
	return BaseDevice{Name: name, Type: typ, Options: o}, nil
}

// Factory builds a component from validated options.
type Factory func(name string, opts map[string]any) (graph.Component, error)

var factories = map[string]Factory{
	"mosfet_loss":        func(n string, o map[string]any) (graph.Component, error) { return NewMOSFETLoss(n, o) },
	"dc_link_capacitor":  func(n string, o map[string]any) (graph.Component, error) { return NewDCLinkCapacitor(n, o) },
	"ripple_current":     func(n string, o map[string]any) (graph.Component, error) { return NewRippleCurrent(n, o) },
	"ac_filter_inductor": func(n string, o map[string]any) (graph.Component, error) { return NewACFilterInductor(n, o) },
	"mosfet_thermal":     func(n string, o map[string]any) (graph.Component, error) { return NewMOSFETThermalNetwork(n, o) },
	"dc_link_capacitor_thermal": func(n string, o map[string]any) (graph.Component, error) {
		return NewDCLinkCapacitorThermalNetwork(n, o)
	},
	"ac_filter_inductor_thermal": func(n string, o map[string]any) (graph.Component, error) {
		return NewACFilterInductorThermalNetwork(n, o)
	},
	"balance": newBalance,
}

// Register adds a component type. It panics on a duplicate, like
// http.Handle, since registration happens at init.
func Register(typ string, f Factory) {
	if _, ok := factories[typ]; ok {
		panic("device: duplicate type " + typ)
	}
	factories[typ] = f
}

// New builds a component of a registered type.
func New(typ, name string, opts map[string]any) (graph.Component, error) {
	f, ok := factories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return f(name, opts)
}

// Types lists the registered type names.
func Types() []string {
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

var balanceOptions = []graph.OptionSpec{
	{Name: "slack", Default: "", Required: true, Desc: "name of the adjusted output"},
	{Name: "value", Default: "", Required: true, Desc: "name of the fed-back input"},
	{Name: "unit", Default: ""},
	{Name: "guess", Default: 1.0},
}

func newBalance(name string, opts map[string]any) (graph.Component, error) {
	o, err := graph.ParseOptions(balanceOptions, opts)
	if err != nil {
		return nil, fmt.Errorf("balance %s: %w", name, err)
	}
	return graph.NewBalance(name, o.String("slack"), o.String("value"), o.String("unit"), o.Float("guess")), nil
}

func c(x float64) complex128 { return complex(x, 0) }
