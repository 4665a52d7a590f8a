package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relay is a test component copying the sum of its inputs to every output.
type relay struct {
	name string
	ins  []string
	outs []string
	unit string

	hin, hout []Handle
}

func newRelay(name string, ins, outs []string) *relay {
	return &relay{name: name, ins: ins, outs: outs, unit: "V"}
}

func (r *relay) GetName() string { return r.name }
func (r *relay) GetType() string { return "relay" }

func (r *relay) Setup(d *Declarer) error {
	for _, name := range r.ins {
		r.hin = append(r.hin, d.Input(name, r.unit))
	}
	for _, name := range r.outs {
		r.hout = append(r.hout, d.Output(name, r.unit))
	}
	return nil
}

func (r *relay) Compute(in, out Vector) error {
	var sum complex128
	for _, h := range r.hin {
		sum += in.Get(h)
	}
	for _, h := range r.hout {
		out.Set(h, sum)
	}
	return nil
}

func stepNames(p *Plan) []string {
	var names []string
	for _, s := range p.Steps() {
		names = append(names, s.Name())
	}
	return names
}

func TestBuildOrdersProducersFirst(t *testing.T) {
	g := New("model")
	require.NoError(t, g.Add(newRelay("c", []string{"b"}, []string{"c"}), PromoteAll()))
	require.NoError(t, g.Add(newRelay("b", []string{"a"}, []string{"b"}), PromoteAll()))
	require.NoError(t, g.Add(newRelay("a", []string{"x"}, []string{"a"}), PromoteAll()))
	require.NoError(t, g.Add(newRelay("d", []string{"x", "a"}, []string{"d"}), PromoteAll()))

	p, err := g.Build(context.Background())
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, stepNames(p)); diff != "" {
		t.Errorf("step order (-want +got):\n%s", diff)
	}

	pos := make(map[*Node]int)
	for i, s := range p.Steps() {
		pos[s.Node] = i
	}
	for _, s := range p.Steps() {
		for _, in := range s.Node.Inputs() {
			if o := in.Source().Owner(); o != nil {
				assert.Less(t, pos[o], pos[s.Node], "%s reads %s", s.Node.Path(), o.Path())
			}
		}
	}

	x, err := p.Independent("x")
	require.NoError(t, err)
	assert.Equal(t, Independent, x.Role)
	require.Len(t, p.Independents(), 1)
}

func TestBuildDetectsExplicitCycle(t *testing.T) {
	g := New("model")
	require.NoError(t, g.Add(newRelay("a", []string{"y"}, []string{"x"}), PromoteAll()))
	require.NoError(t, g.Add(newRelay("b", []string{"x"}, []string{"y"}), PromoteAll()))

	_, err := g.Build(context.Background())
	require.ErrorIs(t, err, ErrGraphCycle)

	var ce *GraphCycleError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Components, "a")
	assert.Contains(t, ce.Components, "b")
}

func TestBuildDetectsSelfLoop(t *testing.T) {
	g := New("model")
	require.NoError(t, g.Add(newRelay("a", []string{"in"}, []string{"out"})))
	require.NoError(t, g.Connect("a.out", "a.in"))

	_, err := g.Build(context.Background())
	assert.ErrorIs(t, err, ErrGraphCycle)
}

func TestBuildGroupsLoopThroughBalance(t *testing.T) {
	g := New("model")
	require.NoError(t, g.Add(newRelay("a", []string{"slack", "p"}, []string{"x"}), PromoteAll()))
	require.NoError(t, g.Add(newRelay("b", []string{"x"}, []string{"value"}), PromoteAll()))
	require.NoError(t, g.Add(NewBalance("bal", "slack", "value", "V", 0), PromoteAll()))
	require.NoError(t, g.Add(newRelay("after", []string{"x"}, []string{"z"}), PromoteAll()))

	p, err := g.Build(context.Background())
	require.NoError(t, err)

	require.Len(t, p.Blocks(), 1)
	b := p.Blocks()[0]
	assert.Equal(t, "bal", b.Name())

	var explicit []string
	for _, n := range b.Explicit() {
		explicit = append(explicit, n.Path())
	}
	assert.Equal(t, []string{"a", "b"}, explicit)
	require.Len(t, b.States(), 1)
	assert.Equal(t, "bal.slack", b.States()[0].Path)
	require.Len(t, b.Params(), 1)
	assert.Equal(t, "p", b.Params()[0].Path)

	assert.Equal(t, []string{"bal", "after"}, stepNames(p))
}

func TestDuplicateVariable(t *testing.T) {
	g := New("model")
	err := g.Add(newRelay("a", []string{"x", "x"}, nil))
	assert.ErrorIs(t, err, ErrDuplicateVariable)

	g = New("model")
	require.NoError(t, g.Add(newRelay("a", nil, []string{"y"}), PromoteAll()))
	err = g.Add(newRelay("b", nil, []string{"y"}), PromoteAll())
	assert.ErrorIs(t, err, ErrDuplicateVariable)

	_, err = g.Build(context.Background())
	assert.ErrorIs(t, err, ErrDuplicateVariable)

	g = New("model")
	require.NoError(t, g.Add(newRelay("a", nil, nil)))
	assert.ErrorIs(t, g.Add(newRelay("a", nil, nil)), ErrDuplicateVariable)
}

type amps struct{ relay }

func (a *amps) Setup(d *Declarer) error {
	a.hin = append(a.hin, d.Input("i", "A"))
	return nil
}

func TestConnectUnitMismatch(t *testing.T) {
	g := New("model")
	require.NoError(t, g.Add(newRelay("v", nil, []string{"out"})))
	require.NoError(t, g.Add(&amps{relay{name: "load"}}))

	err := g.Connect("v.out", "load.i")
	require.ErrorIs(t, err, ErrUnitMismatch)
	assert.Contains(t, err.Error(), "voltage")
	assert.Contains(t, err.Error(), "current")
}

func TestConnectAlreadyConnected(t *testing.T) {
	g := New("model")
	require.NoError(t, g.Add(newRelay("a", nil, []string{"out"})))
	require.NoError(t, g.Add(newRelay("b", nil, []string{"out"})))
	require.NoError(t, g.Add(newRelay("c", []string{"in"}, nil)))

	require.NoError(t, g.Connect("a.out", "c.in"))
	err := g.Connect("b.out", "c.in")
	assert.ErrorIs(t, err, ErrAlreadyConnected)

	g = New("model")
	require.NoError(t, g.Add(newRelay("a", nil, []string{"v"}), PromoteAll()))
	require.NoError(t, g.Add(newRelay("b", nil, []string{"out"})))
	require.NoError(t, g.Add(newRelay("c", []string{"v"}, nil), PromoteAll()))
	assert.ErrorIs(t, g.Connect("b.out", "v"), ErrAlreadyConnected)
}

func TestConnectUnknown(t *testing.T) {
	g := New("model")
	require.NoError(t, g.Add(newRelay("a", []string{"in"}, []string{"out"})))
	assert.ErrorIs(t, g.Connect("a.nope", "a.in"), ErrUnknownVariable)
	assert.ErrorIs(t, g.Connect("a.out", "a.nope"), ErrUnknownVariable)
}

type scaled struct {
	name, unit string
	h          Handle
}

func (s *scaled) GetName() string { return s.name }
func (s *scaled) GetType() string { return "scaled" }
func (s *scaled) Setup(d *Declarer) error {
	s.h = d.Input("i", s.unit)
	return nil
}
func (s *scaled) Compute(in, out Vector) error { return nil }

func TestPromotedInputsShareIndependent(t *testing.T) {
	g := New("model")
	require.NoError(t, g.Add(&scaled{name: "a", unit: "A"}, PromoteAs("i", "current")))
	require.NoError(t, g.Add(&scaled{name: "b", unit: "mA"}, PromoteAs("i", "current")))

	p, err := g.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, p.Independents(), 1)

	iv := p.Independents()[0]
	assert.Equal(t, "current", iv.Promoted)
	assert.Equal(t, "A", iv.Unit.String())

	b := p.Nodes()[1].Inputs()[0]
	assert.Same(t, iv, b.Source())
	assert.InDelta(t, 1000.0, b.Conversion().Scale, 1e-9)

	store := p.Defaults()
	store[iv.Slot()] = 2
	in := p.Nodes()[1].NewInputs()
	p.Nodes()[1].Gather(store, in)
	assert.InDelta(t, 2000.0, real(in[0]), 1e-9)
}

func TestPromotedInputsMismatch(t *testing.T) {
	g := New("model")
	require.NoError(t, g.Add(&scaled{name: "a", unit: "A"}, PromoteAs("i", "x")))
	err := g.Add(&scaled{name: "b", unit: "V"}, PromoteAs("i", "x"))
	assert.ErrorIs(t, err, ErrUnitMismatch)
}

func TestPromotionMatchesNothing(t *testing.T) {
	g := New("model")
	err := g.Add(newRelay("a", []string{"in"}, nil), Promote("missing")...)
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestAddGroup(t *testing.T) {
	sub := New("stage")
	require.NoError(t, sub.Add(newRelay("a", []string{"in"}, []string{"mid"}), PromoteAll()))
	require.NoError(t, sub.Add(newRelay("b", []string{"mid"}, []string{"out"}), PromoteAll()))

	g := New("model")
	require.NoError(t, g.Add(newRelay("src", nil, []string{"v"})))
	require.NoError(t, g.AddGroup(sub, Promote("out")...))
	require.NoError(t, g.Connect("src.v", "stage.in"))
	assert.ErrorIs(t, g.AddGroup(sub), ErrGraphFrozen)

	p, err := g.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "stage.a", "stage.b"}, stepNames(p))

	out, err := p.Lookup("out")
	require.NoError(t, err)
	assert.Equal(t, "stage.b.out", out.Path)

	mid, err := p.Lookup("stage.mid")
	require.NoError(t, err)
	assert.Equal(t, "stage.a.mid", mid.Path)

	assert.Empty(t, p.Independents())
	_, err = p.Independent("out")
	assert.ErrorIs(t, err, ErrUnknownVariable)

	_, err = g.Build(context.Background())
	assert.ErrorIs(t, err, ErrGraphFrozen)
}

func TestDeclareBadUnit(t *testing.T) {
	g := New("model")
	err := g.Add(&scaled{name: "a", unit: "parsec"})
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	n, err := Inspect(newRelay("a", []string{"in"}, []string{"out"}))
	require.NoError(t, err)
	assert.Equal(t, Vector{1}, n.DefaultInputs())
	assert.Equal(t, Vector{1}, n.DefaultOutputs())
}
