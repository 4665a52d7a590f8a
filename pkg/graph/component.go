package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/edp1096/invertermodel/pkg/units"
)

// Component is a leaf of the model graph.
type Component interface {
	GetName() string
	GetType() string
	Setup(d *Declarer) error
}

// Explicit components compute their outputs directly from their inputs.
type Explicit interface {
	Component
	Compute(in, out Vector) error
}

// Implicit components define their outputs as the root of a residual. The
// residual vector has the layout of the outputs.
type Implicit interface {
	Component
	Residual(in, states, res Vector) error
}

// Guesser lets an implicit component seed the Newton iterate from its inputs.
type Guesser interface {
	Guess(in, states Vector)
}

// Declarer registers the variables of one component during Setup.
type Declarer struct {
	node *Node
	err  error
}

// Input declares an input and returns its handle.
func (d *Declarer) Input(name, unit string, opts ...VarOption) Handle {
	return d.declare(Input, name, unit, opts)
}

// Output declares an output and returns its handle.
func (d *Declarer) Output(name, unit string, opts ...VarOption) Handle {
	return d.declare(Output, name, unit, opts)
}

// Err returns the first declaration error.
func (d *Declarer) Err() error { return d.err }

func (d *Declarer) declare(role Role, name, unit string, opts []VarOption) Handle {
	if d.err != nil {
		return Handle{}
	}
	n := d.node
	if name == "" || strings.ContainsAny(name, ". :") {
		d.err = fmt.Errorf("%s: bad variable name %q: %w", n.path, name, ErrInvalidComponent)
		return Handle{}
	}
	if _, ok := n.byName[name]; ok {
		d.err = &DuplicateVariableError{Name: n.path + "." + name}
		return Handle{}
	}
	u, err := units.Parse(unit)
	if err != nil {
		d.err = fmt.Errorf("%s.%s: %w", n.path, name, err)
		return Handle{}
	}

	cfg := varConfig{size: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.size < 1 {
		d.err = fmt.Errorf("%s.%s: size %d: %w", n.path, name, cfg.size, ErrShapeMismatch)
		return Handle{}
	}
	def, err := broadcast(cfg.def, cfg.size)
	if err != nil {
		d.err = fmt.Errorf("%s.%s: %w", n.path, name, err)
		return Handle{}
	}

	v := &Variable{
		Name:    name,
		Unit:    u,
		Size:    cfg.size,
		Default: def,
		Desc:    cfg.desc,
		Role:    role,
		owner:   n,
		slot:    -1,
		conv:    units.Identity,
	}
	if role == Input {
		v.handle = Handle{offset: n.inSize, size: cfg.size}
		n.inSize += cfg.size
		n.inputs = append(n.inputs, v)
	} else {
		v.handle = Handle{offset: n.outSize, size: cfg.size}
		n.outSize += cfg.size
		n.outputs = append(n.outputs, v)
	}
	n.byName[name] = v
	return v.handle
}

func broadcast(def []float64, size int) ([]float64, error) {
	out := make([]float64, size)
	switch len(def) {
	case 0:
		for i := range out {
			out[i] = 1
		}
	case 1:
		for i := range out {
			out[i] = def[0]
		}
	case size:
		copy(out, def)
	default:
		return nil, fmt.Errorf("%d default values for size %d: %w", len(def), size, ErrShapeMismatch)
	}
	return out, nil
}

// Node is a component instance placed in a graph.
type Node struct {
	comp     Component
	path     string
	index    int
	implicit bool

	inputs  []*Variable
	outputs []*Variable
	byName  map[string]*Variable
	inSize  int
	outSize int
}

// Inspect runs Setup on a component outside any graph. Paths are relative to
// the component.
func Inspect(c Component) (*Node, error) {
	if c == nil {
		return nil, fmt.Errorf("nil component: %w", ErrInvalidComponent)
	}
	name := c.GetName()
	if name == "" || strings.ContainsAny(name, ". :") {
		return nil, fmt.Errorf("bad component name %q: %w", name, ErrInvalidComponent)
	}

	n := &Node{comp: c, path: name, byName: make(map[string]*Variable)}
	switch c.(type) {
	case Implicit:
		n.implicit = true
	case Explicit:
	default:
		return nil, fmt.Errorf("%s: %T is neither explicit nor implicit: %w", name, c, ErrInvalidComponent)
	}

	d := &Declarer{node: n}
	if err := c.Setup(d); err != nil {
		return nil, fmt.Errorf("%s: setup: %w", name, err)
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	if n.implicit && n.outSize == 0 {
		return nil, fmt.Errorf("%s: implicit component without outputs: %w", name, ErrInvalidComponent)
	}
	n.rename(name)
	return n, nil
}

func (n *Node) rename(path string) {
	n.path = path
	for _, v := range n.inputs {
		v.Path = path + "." + v.Name
	}
	for _, v := range n.outputs {
		v.Path = path + "." + v.Name
	}
}

func (n *Node) Component() Component { return n.comp }
func (n *Node) Path() string         { return n.path }
func (n *Node) IsImplicit() bool     { return n.implicit }
func (n *Node) Inputs() []*Variable  { return n.inputs }
func (n *Node) Outputs() []*Variable { return n.outputs }
func (n *Node) InputSize() int       { return n.inSize }
func (n *Node) OutputSize() int      { return n.outSize }

// Variable looks up a local variable by name.
func (n *Node) Variable(name string) (*Variable, bool) {
	v, ok := n.byName[name]
	return v, ok
}

func (n *Node) NewInputs() Vector  { return make(Vector, n.inSize) }
func (n *Node) NewOutputs() Vector { return make(Vector, n.outSize) }

// DefaultInputs returns the declared input defaults as a local vector.
func (n *Node) DefaultInputs() Vector {
	in := n.NewInputs()
	for _, v := range n.inputs {
		s := in.Slice(v.handle)
		for i, d := range v.Default {
			s[i] = complex(d, 0)
		}
	}
	return in
}

// DefaultOutputs returns the declared output defaults as a local vector.
func (n *Node) DefaultOutputs() Vector {
	out := n.NewOutputs()
	for _, v := range n.outputs {
		s := out.Slice(v.handle)
		for i, d := range v.Default {
			s[i] = complex(d, 0)
		}
	}
	return out
}

// Gather fills in from the global store, converting each input from its
// producer's unit.
func (n *Node) Gather(store []complex128, in Vector) {
	for _, v := range n.inputs {
		src := v.source
		dst := in.Slice(v.handle)
		for i := range dst {
			dst[i] = v.conv.Apply(store[src.slot+i])
		}
	}
}

// Scatter writes the local outputs into the global store.
func (n *Node) Scatter(out Vector, store []complex128) {
	for _, v := range n.outputs {
		copy(store[v.slot:v.slot+v.Size], out.Slice(v.handle))
	}
}

// Collect reads the node's outputs back from the global store.
func (n *Node) Collect(store []complex128, out Vector) {
	for _, v := range n.outputs {
		copy(out.Slice(v.handle), store[v.slot:v.slot+v.Size])
	}
}

// Compute runs an explicit node.
func (n *Node) Compute(in, out Vector) error {
	c, ok := n.comp.(Explicit)
	if !ok || n.implicit {
		return fmt.Errorf("%s: not explicit: %w", n.path, ErrInvalidComponent)
	}
	return wrapLeaf(n.path, c.Compute(in, out))
}

// Residual evaluates an implicit node.
func (n *Node) Residual(in, states, res Vector) error {
	c, ok := n.comp.(Implicit)
	if !ok {
		return fmt.Errorf("%s: not implicit: %w", n.path, ErrInvalidComponent)
	}
	return wrapLeaf(n.path, c.Residual(in, states, res))
}

// Guess seeds states when the component implements Guesser.
func (n *Node) Guess(in, states Vector) {
	if g, ok := n.comp.(Guesser); ok {
		g.Guess(in, states)
	}
}

// wrapLeaf attaches the instance path to leaf errors. Domain errors keep
// their type and gain the path in place of the bare component name.
func wrapLeaf(path string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return &DomainError{Component: path, Reason: de.Reason}
	}
	return fmt.Errorf("%s: %w", path, err)
}
