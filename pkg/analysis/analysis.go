// Package analysis evaluates a built model plan: explicit components in
// order, implicit blocks by Newton iteration, and total derivatives of any
// output with respect to the independent inputs.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/edp1096/invertermodel/internal/ctxlog"
	"github.com/edp1096/invertermodel/pkg/cstep"
	"github.com/edp1096/invertermodel/pkg/graph"
)

var ErrStaleEvaluation = errors.New("inputs changed since the last successful evaluation")

// Convergence configures the Newton solver of implicit blocks.
type Convergence struct {
	MaxIter          int
	AbsTol           float64
	RelTol           float64
	MaxBacktrack     int
	StallLimit       int
	DivergenceFactor float64
	Step             float64
}

func DefaultConvergence() Convergence {
	return Convergence{
		MaxIter:          50,
		AbsTol:           1e-10,
		RelTol:           1e-12,
		MaxBacktrack:     4,
		StallLimit:       5,
		DivergenceFactor: 1e6,
		Step:             cstep.DefaultStep,
	}
}

// merge overrides the receiver with the positive fields of c.
func (conv *Convergence) merge(c Convergence) {
	if c.MaxIter > 0 {
		conv.MaxIter = c.MaxIter
	}
	if c.AbsTol > 0 {
		conv.AbsTol = c.AbsTol
	}
	if c.RelTol > 0 {
		conv.RelTol = c.RelTol
	}
	if c.MaxBacktrack > 0 {
		conv.MaxBacktrack = c.MaxBacktrack
	}
	if c.StallLimit > 0 {
		conv.StallLimit = c.StallLimit
	}
	if c.DivergenceFactor > 0 {
		conv.DivergenceFactor = c.DivergenceFactor
	}
	if c.Step > 0 {
		conv.Step = c.Step
	}
}

type Option func(*Problem)

// WithConvergence overrides solver settings. Zero fields keep their defaults.
func WithConvergence(c Convergence) Option {
	return func(p *Problem) { p.convergence.merge(c) }
}

// Problem owns the input point and the solve state of one model evaluation
// sequence. It is not safe for concurrent use; Clone gives an independent
// instance over the same plan.
type Problem struct {
	plan        *graph.Plan
	convergence Convergence
	inputs      map[*graph.Variable][]float64
	state       *SolveState
	results     map[string][]float64

	version uint64
	solved  uint64
}

func NewProblem(plan *graph.Plan, opts ...Option) *Problem {
	p := &Problem{
		plan:        plan,
		convergence: DefaultConvergence(),
		inputs:      make(map[*graph.Variable][]float64),
		version:     1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Problem) Plan() *graph.Plan             { return p.plan }
func (p *Problem) Convergence() Convergence      { return p.convergence }
func (p *Problem) State() *SolveState            { return p.state }
func (p *Problem) Results() map[string][]float64 { return maps.Clone(p.results) }

// Clone returns a problem with a copy of the input point and no evaluation.
func (p *Problem) Clone() *Problem {
	c := &Problem{
		plan:        p.plan,
		convergence: p.convergence,
		inputs:      make(map[*graph.Variable][]float64, len(p.inputs)),
		version:     1,
	}
	for v, val := range p.inputs {
		c.inputs[v] = append([]float64(nil), val...)
	}
	return c
}

// SetInputs assigns scalar independent inputs. Either all values are applied
// or none.
func (p *Problem) SetInputs(values map[string]float64) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := make([]*graph.Variable, len(names))
	for i, name := range names {
		v, err := p.plan.Independent(name)
		if err != nil {
			return err
		}
		if v.Size != 1 {
			return fmt.Errorf("%s has %d elements: %w", name, v.Size, graph.ErrShapeMismatch)
		}
		vars[i] = v
	}
	for i, v := range vars {
		p.inputs[v] = []float64{values[names[i]]}
	}
	p.version++
	return nil
}

// SetInput assigns an independent input in the unit of its consumers. A
// single value is broadcast over array inputs.
func (p *Problem) SetInput(name string, value []float64) error {
	v, err := p.plan.Independent(name)
	if err != nil {
		return err
	}
	val := make([]float64, v.Size)
	switch len(value) {
	case 1:
		for i := range val {
			val[i] = value[0]
		}
	case v.Size:
		copy(val, value)
	default:
		return fmt.Errorf("%s: %d values for %d elements: %w", name, len(value), v.Size, graph.ErrShapeMismatch)
	}
	p.inputs[v] = val
	p.version++
	return nil
}

// Input returns the current value of an independent input.
func (p *Problem) Input(name string) ([]float64, error) {
	v, err := p.plan.Independent(name)
	if err != nil {
		return nil, err
	}
	if val, ok := p.inputs[v]; ok {
		return append([]float64(nil), val...), nil
	}
	return append([]float64(nil), v.Default...), nil
}

// Value returns a value of the last successful evaluation by promoted name
// or path.
func (p *Problem) Value(name string) ([]float64, error) {
	if p.solved == 0 || p.solved != p.version {
		return nil, fmt.Errorf("%s: %w", name, ErrStaleEvaluation)
	}
	v, err := p.plan.Lookup(name)
	if err != nil {
		return nil, err
	}
	return p.state.Value(v), nil
}

// Evaluate runs every step of the plan from a fresh state. The result maps
// each promoted name to its value.
func (p *Problem) Evaluate(ctx context.Context) (map[string][]float64, error) {
	log := ctxlog.FromContext(ctx)

	if p.state != nil {
		p.state.Release()
	}
	s := newSolveState(p.plan, p.inputs)
	p.state = s
	p.solved = 0
	p.results = nil

	for _, step := range p.plan.Steps() {
		var err error
		switch step.Kind {
		case graph.ExplicitStep:
			err = runNode(step.Node, s.values)
		case graph.BlockStep:
			err = p.solveBlock(ctx, s, step.Block)
		}
		if err != nil {
			log.Debug("evaluation failed", "step", step.Name(), "err", err)
			return nil, err
		}
	}

	p.results = make(map[string][]float64)
	for _, name := range p.plan.Names() {
		v, _ := p.plan.Lookup(name)
		p.results[name] = s.Value(v)
	}
	p.solved = p.version

	log.Debug("evaluation done", "plan", p.plan.Name(), "steps", len(p.plan.Steps()))
	return maps.Clone(p.results), nil
}

// runNode evaluates one explicit component against the global store.
func runNode(n *graph.Node, store []complex128) error {
	in := n.NewInputs()
	out := n.NewOutputs()
	n.Gather(store, in)
	if err := n.Compute(in, out); err != nil {
		return err
	}
	for _, v := range n.Outputs() {
		for _, x := range out.Slice(v.Handle()) {
			if !cstep.IsFinite(x) {
				return graph.Infeasible(n.Path(), "non-finite %s", v.Name)
			}
		}
	}
	n.Scatter(out, store)
	return nil
}
