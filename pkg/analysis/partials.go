package analysis

import (
	"fmt"
	"math"

	"github.com/edp1096/invertermodel/pkg/cstep"
	"github.com/edp1096/invertermodel/pkg/graph"
	"gonum.org/v1/gonum/mat"
)

// Pair names one block of a local Jacobian: an output (or residual) and an
// input (or state).
type Pair struct {
	Of  string
	Wrt string
}

// leaf is a component detached from any graph. Its columns are the inputs,
// followed by the states for implicit components.
type leaf struct {
	node *graph.Node
	cols []*graph.Variable
	rows []*graph.Variable
	x    []float64
}

func newLeaf(c graph.Component, point map[string][]float64) (*leaf, error) {
	n, err := graph.Inspect(c)
	if err != nil {
		return nil, err
	}
	l := &leaf{node: n, rows: n.Outputs()}
	l.cols = append(l.cols, n.Inputs()...)
	if n.IsImplicit() {
		l.cols = append(l.cols, n.Outputs()...)
	}

	seen := 0
	for _, v := range l.cols {
		val := v.Default
		if p, ok := point[v.Name]; ok {
			seen++
			switch len(p) {
			case v.Size:
				val = p
			case 1:
				val = make([]float64, v.Size)
				for i := range val {
					val[i] = p[0]
				}
			default:
				return nil, fmt.Errorf("%s: %d values for %d elements: %w", v.Path, len(p), v.Size, graph.ErrShapeMismatch)
			}
		}
		l.x = append(l.x, val...)
	}
	if seen != len(point) {
		for name := range point {
			if _, ok := n.Variable(name); !ok {
				return nil, fmt.Errorf("%s: %w: %q", n.Path(), graph.ErrUnknownVariable, name)
			}
		}
	}
	return l, nil
}

func (l *leaf) eval(x, y []complex128) error {
	n := l.node
	in := graph.Vector(x[:n.InputSize()])
	if n.IsImplicit() {
		return n.Residual(in, graph.Vector(x[n.InputSize():]), graph.Vector(y))
	}
	return n.Compute(in, graph.Vector(y))
}

func (l *leaf) split(m *mat.Dense) map[Pair]*mat.Dense {
	out := make(map[Pair]*mat.Dense, len(l.rows)*len(l.cols))
	r := 0
	for _, of := range l.rows {
		c := 0
		for _, wrt := range l.cols {
			out[Pair{of.Name, wrt.Name}] = mat.DenseCopyOf(m.Slice(r, r+of.Size, c, c+wrt.Size))
			c += wrt.Size
		}
		r += of.Size
	}
	return out
}

// Partials returns the local Jacobian of a component at point, keyed by
// variable name. Variables missing from point take their defaults.
func Partials(c graph.Component, point map[string][]float64) (map[Pair]*mat.Dense, error) {
	l, err := newLeaf(c, point)
	if err != nil {
		return nil, err
	}
	jac, _, err := cstep.Jacobian(l.eval, l.x, l.node.OutputSize())
	if err != nil {
		return nil, err
	}
	return l.split(jac), nil
}

// CheckPartials compares the complex-step partials of a component with
// central differences at point.
func CheckPartials(c graph.Component, point map[string][]float64) (map[Pair]cstep.Report, error) {
	l, err := newLeaf(c, point)
	if err != nil {
		return nil, err
	}
	rep, err := cstep.Check(l.eval, l.x, l.node.OutputSize(), cstep.DefaultCheckStep)
	if err != nil {
		return nil, err
	}

	cs, fd := l.split(rep.CS), l.split(rep.FD)
	out := make(map[Pair]cstep.Report, len(cs))
	for key, a := range cs {
		b := fd[key]
		r := cstep.Report{CS: a, FD: b}
		rows, cols := a.Dims()
		for i := range rows {
			for j := range cols {
				diff := math.Abs(a.At(i, j) - b.At(i, j))
				r.MaxAbs = math.Max(r.MaxAbs, diff)
				if ref := math.Abs(a.At(i, j)); ref > 0 {
					r.MaxRel = math.Max(r.MaxRel, diff/ref)
				} else {
					r.MaxRel = math.Max(r.MaxRel, diff)
				}
			}
		}
		out[key] = r
	}
	return out, nil
}
