package graph

import (
	"fmt"
	"sort"
)

type StepKind int

const (
	ExplicitStep StepKind = iota
	BlockStep
)

// Step is one unit of the evaluation order: a single explicit component or
// an implicit block.
type Step struct {
	Kind  StepKind
	Node  *Node
	Block *Block
}

func (s Step) Name() string {
	if s.Kind == BlockStep {
		return s.Block.name
	}
	return s.Node.path
}

// Block is a strongly connected group containing at least one implicit
// component. Its states are the outputs of the implicit members; its params
// are the values it reads from outside.
type Block struct {
	name     string
	explicit []*Node
	implicit []*Node
	states   []*Variable
	outputs  []*Variable
	params   []*Variable
	nState   int
	nOut     int
	nParam   int
}

func (b *Block) Name() string { return b.name }

// Explicit members in evaluation order.
func (b *Block) Explicit() []*Node    { return b.explicit }
func (b *Block) Implicit() []*Node    { return b.implicit }
func (b *Block) States() []*Variable  { return b.states }
func (b *Block) Outputs() []*Variable { return b.outputs }
func (b *Block) Params() []*Variable  { return b.params }
func (b *Block) StateSize() int       { return b.nState }
func (b *Block) OutputSize() int      { return b.nOut }
func (b *Block) ParamSize() int       { return b.nParam }

// Plan is the immutable result of Build. It may be shared between any number
// of evaluations.
type Plan struct {
	name         string
	nodes        []*Node
	steps        []Step
	blocks       []*Block
	outputs      []*Variable
	independents []*Variable
	byName       map[string]*Variable
	byPath       map[string]*Variable
	size         int
}

func (p *Plan) Name() string { return p.name }

// Size is the length of the global value store.
func (p *Plan) Size() int                 { return p.size }
func (p *Plan) Steps() []Step             { return p.steps }
func (p *Plan) Blocks() []*Block          { return p.blocks }
func (p *Plan) Nodes() []*Node            { return p.nodes }
func (p *Plan) Outputs() []*Variable      { return p.outputs }
func (p *Plan) Independents() []*Variable { return p.independents }

// Lookup resolves a promoted name or an absolute path to the variable that
// holds its value. Input names resolve to their producer.
func (p *Plan) Lookup(name string) (*Variable, error) {
	if v, ok := p.byName[name]; ok {
		return v, nil
	}
	if v, ok := p.byPath[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
}

// Independent resolves name to an independent input.
func (p *Plan) Independent(name string) (*Variable, error) {
	v, err := p.Lookup(name)
	if err != nil {
		return nil, err
	}
	if v.Role != Independent {
		return nil, fmt.Errorf("%w: %q is produced by %s, not an independent input",
			ErrUnknownVariable, name, v.Path)
	}
	return v, nil
}

// Names lists every promoted name, sorted.
func (p *Plan) Names() []string {
	names := make([]string, 0, len(p.byName))
	for name := range p.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defaults returns a value store holding the declared defaults.
func (p *Plan) Defaults() []complex128 {
	store := make([]complex128, p.size)
	for _, v := range p.outputs {
		for i, d := range v.Default {
			store[v.slot+i] = complex(d, 0)
		}
	}
	for _, v := range p.independents {
		for i, d := range v.Default {
			store[v.slot+i] = complex(d, 0)
		}
	}
	return store
}
