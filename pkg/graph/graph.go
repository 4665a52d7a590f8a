// Package graph declares model components, wires them through promotion and
// explicit connections, and builds an immutable evaluation plan with the
// strongly connected parts grouped into implicit blocks.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/edp1096/invertermodel/pkg/units"
)

// entry is one name of a graph namespace: at most one producer and any
// number of inputs sharing its value.
type entry struct {
	name   string
	output *Variable
	source *Variable
	inputs []*Variable
}

func (e *entry) producer() *Variable {
	if e.output != nil {
		return e.output
	}
	return e.source
}

// Graph is a group of components and sub-graphs under one namespace.
type Graph struct {
	name     string
	nodes    []*Node
	children map[string]bool
	entries  map[string]*entry
	order    []string
	frozen   bool
	err      error
}

func New(name string) *Graph {
	return &Graph{
		name:     name,
		children: make(map[string]bool),
		entries:  make(map[string]*entry),
	}
}

func (g *Graph) GetName() string { return g.name }

// Add places a component in the graph. Variables not covered by promotes are
// reachable as "<component>.<variable>". After a failed Add, AddGroup or
// Connect the graph keeps the error and refuses to build.
func (g *Graph) Add(c Component, promotes ...Promotion) error {
	return g.fail(g.add(c, promotes))
}

func (g *Graph) fail(err error) error {
	if err != nil && g.err == nil && !errors.Is(err, ErrGraphFrozen) {
		g.err = err
	}
	return err
}

func (g *Graph) add(c Component, promotes []Promotion) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	n, err := Inspect(c)
	if err != nil {
		return err
	}
	if err := g.claim(n.path); err != nil {
		return err
	}

	p := newPromoter(promotes)
	for _, v := range n.inputs {
		name := p.resolve(n.path, v.Name)
		if err := g.merge(&entry{name: name, inputs: []*Variable{v}}); err != nil {
			return err
		}
	}
	for _, v := range n.outputs {
		name := p.resolve(n.path, v.Name)
		if err := g.merge(&entry{name: name, output: v}); err != nil {
			return err
		}
	}
	if err := p.unmatched(n.path); err != nil {
		return err
	}

	n.index = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return nil
}

// AddGroup nests sub under its name. The sub-graph is consumed and cannot be
// built or nested again.
func (g *Graph) AddGroup(sub *Graph, promotes ...Promotion) error {
	return g.fail(g.addGroup(sub, promotes))
}

func (g *Graph) addGroup(sub *Graph, promotes []Promotion) error {
	if sub.err != nil {
		return fmt.Errorf("group %s: %w", sub.name, sub.err)
	}
	if g.frozen || sub.frozen {
		return ErrGraphFrozen
	}
	if sub == g {
		return fmt.Errorf("%s: group added to itself: %w", g.name, ErrInvalidComponent)
	}
	if sub.name == "" || strings.ContainsAny(sub.name, ". :") {
		return fmt.Errorf("bad group name %q: %w", sub.name, ErrInvalidComponent)
	}
	if err := g.claim(sub.name); err != nil {
		return err
	}

	p := newPromoter(promotes)
	for _, name := range sub.order {
		e := sub.entries[name]
		e.name = p.resolve(sub.name, name)
		if err := g.merge(e); err != nil {
			return err
		}
	}
	if err := p.unmatched(sub.name); err != nil {
		return err
	}

	for _, n := range sub.nodes {
		n.rename(sub.name + "." + n.path)
		n.index = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}
	sub.frozen = true
	return nil
}

func (g *Graph) claim(child string) error {
	if g.children[child] {
		return &DuplicateVariableError{Name: child, Existing: g.name}
	}
	g.children[child] = true
	return nil
}

// merge folds src into the entry of the same name.
func (g *Graph) merge(src *entry) error {
	dst, ok := g.entries[src.name]
	if !ok {
		dst = &entry{name: src.name}
	}

	switch p, q := dst.producer(), src.producer(); {
	case p != nil && q != nil && dst.output != nil && src.output != nil:
		return &DuplicateVariableError{Name: src.name, Existing: p.Path}
	case p != nil && q != nil:
		return &AlreadyConnectedError{Consumer: src.name, Existing: p.Path, Producer: q.Path}
	}

	merged := &entry{
		name:   src.name,
		output: firstVar(dst.output, src.output),
		source: firstVar(dst.source, src.source),
		inputs: append(append([]*Variable(nil), dst.inputs...), src.inputs...),
	}
	if err := merged.check(); err != nil {
		return err
	}

	if !ok {
		g.order = append(g.order, src.name)
	}
	g.entries[src.name] = merged
	return nil
}

func firstVar(a, b *Variable) *Variable {
	if a != nil {
		return a
	}
	return b
}

// check verifies that every input of the entry accepts the producer's value,
// or for unfed entries, that all inputs agree with each other.
func (e *entry) check() error {
	ref := e.producer()
	if ref == nil {
		if len(e.inputs) == 0 {
			return nil
		}
		ref = e.inputs[0]
	}
	for _, in := range e.inputs {
		if in == ref {
			continue
		}
		if _, err := units.Convert(ref.Unit, in.Unit); err != nil {
			return &UnitMismatchError{Producer: ref.Path, Consumer: in.Path, From: ref.Unit, To: in.Unit}
		}
		if in.Size != ref.Size {
			return fmt.Errorf("%s (%d) -> %s (%d): %w", ref.Path, ref.Size, in.Path, in.Size, ErrShapeMismatch)
		}
	}
	return nil
}

// Connect feeds the inputs known as consumer from the output known as
// producer. Both are names in this graph's namespace.
func (g *Graph) Connect(producer, consumer string) error {
	return g.fail(g.connect(producer, consumer))
}

func (g *Graph) connect(producer, consumer string) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	pe, ok := g.entries[producer]
	if !ok || pe.output == nil {
		return fmt.Errorf("connect source %q: no such output: %w", producer, ErrUnknownVariable)
	}
	ce, ok := g.entries[consumer]
	if !ok || len(ce.inputs) == 0 {
		return fmt.Errorf("connect target %q: no such input: %w", consumer, ErrUnknownVariable)
	}
	if p := ce.producer(); p != nil {
		return &AlreadyConnectedError{Consumer: consumer, Existing: p.Path, Producer: pe.output.Path}
	}

	next := &entry{name: ce.name, source: pe.output, inputs: ce.inputs}
	if err := next.check(); err != nil {
		return err
	}
	g.entries[consumer] = next
	return nil
}

// Names lists the namespace in insertion order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.order...)
}
