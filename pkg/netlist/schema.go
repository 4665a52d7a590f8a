package netlist

import (
	"github.com/zclconf/go-cty/cty"
)

// Config is the decoded form of a model file.
type Config struct {
	Name       string       `hcl:"name,optional"`
	Components []*Component `hcl:"component,block"`
	Connects   []*Connect   `hcl:"connect,block"`
	Inputs     *cty.Value   `hcl:"inputs,optional"`
	Solver     *Solver      `hcl:"solver,block"`
	Totals     *Totals      `hcl:"totals,block"`
}

// Component places a device, or a whole inverter when Type is "inverter".
// Promotes lists variable names or patterns exposed unchanged; "*" exposes
// everything. Aliases maps an inner variable name to its exposed name.
type Component struct {
	Name     string            `hcl:"name,label"`
	Type     string            `hcl:"type"`
	Options  *cty.Value        `hcl:"options,optional"`
	Promotes []string          `hcl:"promotes,optional"`
	Aliases  map[string]string `hcl:"aliases,optional"`
}

type Connect struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// Solver overrides the Newton settings. Zero fields keep their defaults.
type Solver struct {
	MaxIter          int     `hcl:"max_iter,optional"`
	AbsTol           float64 `hcl:"abs_tol,optional"`
	RelTol           float64 `hcl:"rel_tol,optional"`
	MaxBacktrack     int     `hcl:"max_backtrack,optional"`
	StallLimit       int     `hcl:"stall_limit,optional"`
	DivergenceFactor float64 `hcl:"divergence_factor,optional"`
	Step             float64 `hcl:"step,optional"`
}

// Totals requests total derivatives after the evaluation.
type Totals struct {
	Of  []string `hcl:"of"`
	Wrt []string `hcl:"wrt"`
}
