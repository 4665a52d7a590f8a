package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/edp1096/invertermodel/pkg/cstep"
	"github.com/edp1096/invertermodel/pkg/graph"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, g *graph.Graph) *graph.Plan {
	t.Helper()
	p, err := g.Build(context.Background())
	require.NoError(t, err)
	return p
}

func thermalProblem(t *testing.T) *Problem {
	t.Helper()
	g := graph.New("thermal")
	require.NoError(t, g.Add(&explicitFunc{
		name: "ambient",
		ins:  []decl{{"t_celsius", "degC"}},
		outs: []decl{{"t", "degC"}},
		fn: func(x, y []complex128) error {
			y[0] = x[0]
			return nil
		},
	}, graph.Promote("t_celsius")...))
	require.NoError(t, g.Add(network{}, graph.Promote("P", "R_*")...))
	require.NoError(t, g.Connect("ambient.t", "net.T_amb"))

	p := NewProblem(build(t, g))
	require.NoError(t, p.SetInputs(map[string]float64{
		"P":         10,
		"R_jc":      0.5,
		"R_cs":      0.2,
		"R_sa":      1.0,
		"t_celsius": 25,
	}))
	return p
}

func TestThermalNetwork(t *testing.T) {
	p := thermalProblem(t)
	res, err := p.Evaluate(context.Background())
	require.NoError(t, err)

	ts := 298.15 + 10*1.0
	tc := ts + 10*0.2
	tj := tc + 10*0.5
	assert.InDelta(t, tj, res["net.T_j"][0], 1e-9)
	assert.InDelta(t, tc, res["net.T_c"][0], 1e-9)
	assert.InDelta(t, ts, res["net.T_s"][0], 1e-9)

	// Heat through each stage equals the dissipated power.
	q1 := (res["net.T_j"][0] - res["net.T_c"][0]) / 0.5
	q2 := (res["net.T_c"][0] - res["net.T_s"][0]) / 0.2
	q3 := (res["net.T_s"][0] - 298.15) / 1.0
	for _, q := range []float64{q1, q2, q3} {
		assert.InDelta(t, 10.0, q, 1e-9)
	}

	blocks := p.State().Blocks()
	require.Equal(t, []string{"net"}, blocks)
	hist := p.State().History("net")
	assert.Less(t, hist[len(hist)-1], 1e-10)
	assert.Positive(t, p.State().Iterations("net"))
}

func TestThermalNetworkTotals(t *testing.T) {
	p := thermalProblem(t)
	_, err := p.Evaluate(context.Background())
	require.NoError(t, err)

	jac, err := p.TotalDerivatives(context.Background(),
		[]string{"net.T_j"}, []string{"P", "R_jc", "t_celsius"})
	require.NoError(t, err)

	assert.InDelta(t, 0.5+0.2+1.0, jac.At("net.T_j", "P"), 1e-8)
	assert.InDelta(t, 10.0, jac.At("net.T_j", "R_jc"), 1e-8)
	assert.InDelta(t, 1.0, jac.At("net.T_j", "t_celsius"), 1e-10)
}

// loopProblem closes s = p1 / (p2 - s/2) with a balance, then y = s².
func loopProblem(t *testing.T, opts ...Option) *Problem {
	t.Helper()
	g := graph.New("loop")
	require.NoError(t, g.Add(&explicitFunc{
		name: "feedback",
		ins:  []decl{{"s", ""}, {"p1", ""}, {"p2", ""}},
		outs: []decl{{"value", ""}},
		fn: func(x, y []complex128) error {
			y[0] = x[1] / (x[2] - 0.5*x[0])
			return nil
		},
	}, graph.PromoteAll()))
	require.NoError(t, g.Add(graph.NewBalance("bal", "s", "value", "", 0.5), graph.PromoteAll()))
	require.NoError(t, g.Add(&explicitFunc{
		name: "square",
		ins:  []decl{{"s", ""}},
		outs: []decl{{"y", ""}},
		fn: func(x, y []complex128) error {
			y[0] = x[0] * x[0]
			return nil
		},
	}, graph.PromoteAll()))

	p := NewProblem(build(t, g), opts...)
	require.NoError(t, p.SetInputs(map[string]float64{"p1": 1, "p2": 3}))
	return p
}

func TestLoopClosure(t *testing.T) {
	p := loopProblem(t)
	res, err := p.Evaluate(context.Background())
	require.NoError(t, err)

	s := 3 - math.Sqrt(7)
	assert.InDelta(t, s, res["s"][0], 1e-10)
	assert.InDelta(t, s*s, res["y"][0], 1e-10)
	assert.InDelta(t, res["s"][0], res["value"][0], 1e-10)

	y, err := p.Value("square.y")
	require.NoError(t, err)
	assert.Equal(t, res["y"], y)
}

func TestLoopTotalsMatchImplicitFunctionTheorem(t *testing.T) {
	p := loopProblem(t)
	_, err := p.Evaluate(context.Background())
	require.NoError(t, err)

	jac, err := p.TotalDerivatives(context.Background(), []string{"s", "y"}, []string{"p1", "p2"})
	require.NoError(t, err)

	root := math.Sqrt(7)
	s := 3 - root
	dsdp1 := 1 / root
	dsdp2 := 1 - 3/root
	assert.InDelta(t, dsdp1, jac.At("s", "p1"), 1e-9)
	assert.InDelta(t, dsdp2, jac.At("s", "p2"), 1e-9)
	assert.InDelta(t, 2*s*dsdp1, jac.At("y", "p1"), 1e-9)
	assert.InDelta(t, 2*s*dsdp2, jac.At("y", "p2"), 1e-9)

	r, c := jac.Dense().Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
}

func TestLoopTotalsMatchResolve(t *testing.T) {
	ctx := context.Background()
	p := loopProblem(t, WithConvergence(Convergence{AbsTol: 1e-14}))
	_, err := p.Evaluate(ctx)
	require.NoError(t, err)
	jac, err := p.TotalDerivatives(ctx, []string{"y"}, []string{"p2"})
	require.NoError(t, err)

	y := func(p2 float64) float64 {
		q := p.Clone()
		require.NoError(t, q.SetInputs(map[string]float64{"p2": p2}))
		res, err := q.Evaluate(ctx)
		require.NoError(t, err)
		return res["y"][0]
	}
	fd := cstep.CentralDifference(y, 3, 1e-5)
	assert.InEpsilon(t, fd, jac.At("y", "p2"), 1e-6)
}

func TestStaleTotals(t *testing.T) {
	ctx := context.Background()
	p := loopProblem(t)

	_, err := p.TotalDerivatives(ctx, []string{"y"}, []string{"p1"})
	assert.ErrorIs(t, err, ErrStaleEvaluation)

	_, err = p.Evaluate(ctx)
	require.NoError(t, err)
	require.NoError(t, p.SetInput("p1", []float64{1.1}))

	_, err = p.TotalDerivatives(ctx, []string{"y"}, []string{"p1"})
	assert.ErrorIs(t, err, ErrStaleEvaluation)
}

func TestUnknownNames(t *testing.T) {
	p := loopProblem(t)
	assert.ErrorIs(t, p.SetInputs(map[string]float64{"p3": 1}), graph.ErrUnknownVariable)
	assert.ErrorIs(t, p.SetInput("y", []float64{1}), graph.ErrUnknownVariable)

	_, err := p.Evaluate(context.Background())
	require.NoError(t, err)
	_, err = p.TotalDerivatives(context.Background(), []string{"nope"}, []string{"p1"})
	assert.ErrorIs(t, err, graph.ErrUnknownVariable)
	_, err = p.TotalDerivatives(context.Background(), []string{"y"}, []string{"s"})
	assert.ErrorIs(t, err, graph.ErrUnknownVariable)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	ctx := context.Background()
	p := loopProblem(t)
	first, err := p.Evaluate(ctx)
	require.NoError(t, err)
	second, err := p.Evaluate(ctx)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated evaluation differs (-first +second):\n%s", diff)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	ctx := context.Background()
	p := loopProblem(t)
	q := p.Clone()
	require.NoError(t, q.SetInputs(map[string]float64{"p1": 0.5}))

	a, err := p.Evaluate(ctx)
	require.NoError(t, err)
	b, err := q.Evaluate(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, a["s"][0], b["s"][0])
	in, err := p.Input("p1")
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, in)
}

func TestNonconvergence(t *testing.T) {
	g := graph.New("model")
	require.NoError(t, g.Add(&implicitFunc{
		name:   "noroot",
		ins:    []decl{{"c", ""}},
		states: []decl{{"x", ""}},
		guess:  0.7,
		fn: func(x, s, r []complex128) error {
			r[0] = s[0]*s[0] + x[0]
			return nil
		},
	}, graph.PromoteAll()))

	p := NewProblem(build(t, g), WithConvergence(Convergence{MaxIter: 20}))
	assert.Equal(t, 20, p.Convergence().MaxIter)
	assert.Equal(t, 1e-10, p.Convergence().AbsTol)

	_, err := p.Evaluate(context.Background())
	require.ErrorIs(t, err, graph.ErrNonconvergence)

	var ne *graph.NonconvergenceError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "noroot", ne.Block)
	assert.Len(t, ne.Iterate, 1)
	assert.GreaterOrEqual(t, ne.Norm, 1.0)

	_, err = p.TotalDerivatives(context.Background(), []string{"x"}, []string{"c"})
	assert.ErrorIs(t, err, ErrStaleEvaluation)
	_, err = p.Value("x")
	assert.ErrorIs(t, err, ErrStaleEvaluation)
}

func TestRoundingFloorAboveTolerance(t *testing.T) {
	// No double squares to exactly 2, so |r| stops near 4e-16.
	g := graph.New("model")
	require.NoError(t, g.Add(&implicitFunc{
		name:   "root2",
		ins:    []decl{{"c", ""}},
		states: []decl{{"x", ""}},
		guess:  1,
		fn: func(x, s, r []complex128) error {
			r[0] = s[0]*s[0] - 2*x[0]
			return nil
		},
	}, graph.PromoteAll()))

	p := NewProblem(build(t, g), WithConvergence(Convergence{AbsTol: 1e-300, RelTol: 1e-300}))
	require.NoError(t, p.SetInputs(map[string]float64{"c": 1}))
	res, err := p.Evaluate(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, math.Sqrt2, res["x"][0], 1e-15)
	assert.Less(t, p.State().Iterations("root2"), 10)
	hist := p.State().History("root2")
	assert.Less(t, hist[len(hist)-1], 1e-14)
}

func TestSingularJacobianAtSolution(t *testing.T) {
	// Both residuals constrain only a+b, so the guess is a root with a
	// rank-one Jacobian.
	g := graph.New("model")
	require.NoError(t, g.Add(&implicitFunc{
		name:   "sum",
		ins:    []decl{{"c", ""}},
		states: []decl{{"a", ""}, {"b", ""}},
		guess:  0,
		fn: func(x, s, r []complex128) error {
			r[0] = s[0] + s[1] - x[0]
			r[1] = 2*(s[0]+s[1]) - 2*x[0]
			return nil
		},
	}, graph.PromoteAll()))

	p := NewProblem(build(t, g))
	require.NoError(t, p.SetInputs(map[string]float64{"c": 0}))
	res, err := p.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, res["a"])
	assert.Equal(t, 0, p.State().Iterations("sum"))

	_, err = p.TotalDerivatives(context.Background(), []string{"a"}, []string{"c"})
	require.ErrorIs(t, err, ErrSingularJacobian)
	var se *SingularJacobianError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "sum", se.Block)
}

func TestDomainInfeasible(t *testing.T) {
	g := graph.New("model")
	require.NoError(t, g.Add(&explicitFunc{
		name: "root",
		ins:  []decl{{"a", ""}},
		outs: []decl{{"b", ""}},
		fn: func(x, y []complex128) error {
			if real(x[0]) < 0 {
				return graph.Infeasible("root", "negative argument %g", real(x[0]))
			}
			y[0] = cstep.Sqrt(x[0])
			return nil
		},
	}, graph.PromoteAll()))
	require.NoError(t, g.Add(&explicitFunc{
		name: "inv",
		ins:  []decl{{"b", ""}},
		outs: []decl{{"c", ""}},
		fn: func(x, y []complex128) error {
			y[0] = 1 / x[0]
			return nil
		},
	}, graph.PromoteAll()))
	p := NewProblem(build(t, g))

	require.NoError(t, p.SetInputs(map[string]float64{"a": -1}))
	_, err := p.Evaluate(context.Background())
	require.ErrorIs(t, err, graph.ErrDomainInfeasible)
	var de *graph.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "root", de.Component)

	require.NoError(t, p.SetInputs(map[string]float64{"a": 0}))
	_, err = p.Evaluate(context.Background())
	require.ErrorIs(t, err, graph.ErrDomainInfeasible)
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "inv", de.Component)
}

func TestExplicitTotalsFoldConversion(t *testing.T) {
	g := graph.New("model")
	require.NoError(t, g.Add(&explicitFunc{
		name: "heater",
		ins:  []decl{{"i", "A"}},
		outs: []decl{{"p", "W"}},
		fn: func(x, y []complex128) error {
			y[0] = x[0] * x[0]
			return nil
		},
	}, graph.PromoteAll()))
	require.NoError(t, g.Add(&explicitFunc{
		name: "meter",
		ins:  []decl{{"p", "kW"}},
		outs: []decl{{"reading", "kW"}},
		fn: func(x, y []complex128) error {
			y[0] = 3 * x[0]
			return nil
		},
	}, graph.PromoteAll()))

	p := NewProblem(build(t, g))
	require.NoError(t, p.SetInputs(map[string]float64{"i": 20}))
	res, err := p.Evaluate(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.2, res["reading"][0], 1e-12)

	jac, err := p.TotalDerivatives(context.Background(), []string{"reading", "p"}, []string{"i"})
	require.NoError(t, err)
	assert.InDelta(t, 3*2*20/1000.0, jac.At("reading", "i"), 1e-12)
	assert.InDelta(t, 40.0, jac.At("p", "i"), 1e-12)
}

func TestPartials(t *testing.T) {
	parts, err := Partials(network{}, map[string][]float64{
		"P": {10}, "R_jc": {0.5}, "R_cs": {0.2}, "R_sa": {1}, "T_amb": {300},
		"T_j": {317}, "T_c": {312}, "T_s": {310},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, parts[Pair{"T_j", "P"}].At(0, 0), 1e-12)
	assert.InDelta(t, -2.0, parts[Pair{"T_j", "T_j"}].At(0, 0), 1e-12)
	assert.InDelta(t, (317.0-312.0)/(0.5*0.5), parts[Pair{"T_j", "R_jc"}].At(0, 0), 1e-9)

	_, err = Partials(network{}, map[string][]float64{"bogus": {1}})
	assert.ErrorIs(t, err, graph.ErrUnknownVariable)
}

func TestCheckPartials(t *testing.T) {
	reports, err := CheckPartials(network{}, map[string][]float64{
		"P": {10}, "R_jc": {0.5}, "R_cs": {0.2}, "R_sa": {1}, "T_amb": {300},
		"T_j": {317}, "T_c": {312}, "T_s": {310},
	})
	require.NoError(t, err)
	require.Len(t, reports, 3*8)
	for key, rep := range reports {
		assert.Less(t, rep.MaxRel, 1e-6, "%s wrt %s", key.Of, key.Wrt)
	}
}
