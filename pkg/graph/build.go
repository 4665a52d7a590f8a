package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/edp1096/invertermodel/internal/ctxlog"
	"github.com/edp1096/invertermodel/pkg/units"
)

// Build resolves the namespace into producer links, creates an independent
// input for every name nothing produces, assigns storage and orders the
// evaluation. The graph cannot be modified afterwards.
func (g *Graph) Build(ctx context.Context) (*Plan, error) {
	if g.err != nil {
		return nil, fmt.Errorf("graph %s: %w", g.name, g.err)
	}
	if g.frozen {
		return nil, ErrGraphFrozen
	}
	g.frozen = true

	p := &Plan{
		name:   g.name,
		nodes:  g.nodes,
		byName: make(map[string]*Variable),
		byPath: make(map[string]*Variable),
	}

	for _, n := range g.nodes {
		for _, v := range n.outputs {
			v.slot = p.size
			p.size += v.Size
			p.outputs = append(p.outputs, v)
			p.byPath[v.Path] = v
		}
	}

	for _, name := range g.order {
		e := g.entries[name]
		src := e.producer()
		if src == nil {
			ref := e.inputs[0]
			src = &Variable{
				Name:     name,
				Path:     name,
				Promoted: name,
				Unit:     ref.Unit,
				Size:     ref.Size,
				Default:  append([]float64(nil), ref.Default...),
				Desc:     ref.Desc,
				Role:     Independent,
				slot:     p.size,
				conv:     units.Identity,
			}
			p.size += src.Size
			p.independents = append(p.independents, src)
		}
		if e.output != nil {
			e.output.Promoted = name
		}
		for _, in := range e.inputs {
			conv, err := units.Convert(src.Unit, in.Unit)
			if err != nil {
				return nil, &UnitMismatchError{Producer: src.Path, Consumer: in.Path, From: src.Unit, To: in.Unit}
			}
			in.source = src
			in.conv = conv
			in.Promoted = name
			p.byPath[in.Path] = src
		}
		p.byName[name] = src
	}

	if err := p.order(); err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Debug("graph built",
		"graph", g.name,
		"components", len(p.nodes),
		"independents", len(p.independents),
		"blocks", len(p.blocks),
		"size", p.size)
	return p, nil
}

func (p *Plan) order() error {
	deps := make([][]int, len(p.nodes))
	for i, n := range p.nodes {
		for _, in := range n.inputs {
			if o := in.source.owner; o != nil && !slices.Contains(deps[i], o.index) {
				deps[i] = append(deps[i], o.index)
			}
		}
		slices.Sort(deps[i])
	}

	comps := stronglyConnected(deps)
	compOf := make([]int, len(p.nodes))
	for c, members := range comps {
		for _, v := range members {
			compOf[v] = c
		}
	}

	// Kahn over the condensation; among ready components the one declared
	// first runs first.
	pending := make([]int, len(comps))
	users := make([][]int, len(comps))
	for c, members := range comps {
		var seen []int
		for _, v := range members {
			for _, d := range deps[v] {
				dc := compOf[d]
				if dc != c && !slices.Contains(seen, dc) {
					seen = append(seen, dc)
					users[dc] = append(users[dc], c)
				}
			}
		}
		pending[c] = len(seen)
	}

	done := make([]bool, len(comps))
	for range comps {
		next := -1
		for c := range comps {
			if done[c] || pending[c] > 0 {
				continue
			}
			if next < 0 || comps[c][0] < comps[next][0] {
				next = c
			}
		}
		done[next] = true
		for _, u := range users[next] {
			pending[u]--
		}

		members := comps[next]
		v := members[0]
		cyclic := len(members) > 1 || slices.Contains(deps[v], v)
		if !cyclic && !p.nodes[v].implicit {
			p.steps = append(p.steps, Step{Kind: ExplicitStep, Node: p.nodes[v]})
			continue
		}

		nodes := make([]*Node, len(members))
		for i, m := range members {
			nodes[i] = p.nodes[m]
		}
		b, err := newBlock(nodes)
		if err != nil {
			return err
		}
		p.blocks = append(p.blocks, b)
		p.steps = append(p.steps, Step{Kind: BlockStep, Block: b})
	}
	return nil
}

// stronglyConnected returns the strongly connected components of the graph
// given by adjacency lists, each sorted ascending, using Tarjan's algorithm.
func stronglyConnected(adj [][]int) [][]int {
	n := len(adj)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	var (
		stack   []int
		counter int
		comps   [][]int
	)
	var visit func(v int)
	visit = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if index[w] < 0 {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			slices.Sort(comp)
			comps = append(comps, comp)
		}
	}

	for v := range n {
		if index[v] < 0 {
			visit(v)
		}
	}
	return comps
}

func newBlock(members []*Node) (*Block, error) {
	b := &Block{}
	in := make(map[*Node]bool, len(members))
	for _, n := range members {
		in[n] = true
		if n.implicit {
			b.implicit = append(b.implicit, n)
		} else {
			b.explicit = append(b.explicit, n)
		}
	}
	if len(b.implicit) == 0 {
		cycle := make([]string, len(members))
		for i, n := range members {
			cycle[i] = n.path
		}
		return nil, &GraphCycleError{Components: append(cycle, cycle[0])}
	}
	b.name = b.implicit[0].path

	// Implicit outputs are known during a residual evaluation, so only
	// explicit-to-explicit edges constrain the order of explicit members.
	var ordered []*Node
	placed := make(map[*Node]bool, len(b.explicit))
	for len(ordered) < len(b.explicit) {
		progress := false
		for _, n := range b.explicit {
			if placed[n] || !ready(n, in, placed) {
				continue
			}
			placed[n] = true
			ordered = append(ordered, n)
			progress = true
			break
		}
		if !progress {
			var cycle []string
			for _, n := range b.explicit {
				if !placed[n] {
					cycle = append(cycle, n.path)
				}
			}
			return nil, &GraphCycleError{Components: append(cycle, cycle[0])}
		}
	}
	b.explicit = ordered

	for _, n := range b.implicit {
		for _, v := range n.outputs {
			b.states = append(b.states, v)
			b.nState += v.Size
		}
	}
	for _, n := range b.explicit {
		for _, v := range n.outputs {
			b.outputs = append(b.outputs, v)
			b.nOut += v.Size
		}
	}
	for _, n := range members {
		for _, v := range n.inputs {
			src := v.source
			if (src.owner == nil || !in[src.owner]) && !slices.Contains(b.params, src) {
				b.params = append(b.params, src)
				b.nParam += src.Size
			}
		}
	}
	return b, nil
}

func ready(n *Node, in map[*Node]bool, placed map[*Node]bool) bool {
	for _, v := range n.inputs {
		o := v.source.owner
		if o != nil && o != n && in[o] && !o.implicit && !placed[o] {
			return false
		}
		if o == n {
			return false
		}
	}
	return true
}
