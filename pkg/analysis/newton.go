package analysis

import (
	"context"
	"errors"
	"math"
	"slices"

	"github.com/edp1096/invertermodel/internal/ctxlog"
	"github.com/edp1096/invertermodel/pkg/cstep"
	"github.com/edp1096/invertermodel/pkg/graph"
	"github.com/edp1096/invertermodel/pkg/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// blockFunc evaluates the residuals of an implicit block for a given state
// vector. Explicit members run first so the implicit residuals see their
// outputs.
type blockFunc struct {
	block *graph.Block
}

func (f blockFunc) eval(store, x, r []complex128) error {
	k := 0
	for _, v := range f.block.States() {
		copy(store[v.Slot():v.Slot()+v.Size], x[k:k+v.Size])
		k += v.Size
	}
	for _, n := range f.block.Explicit() {
		if err := runNode(n, store); err != nil {
			return err
		}
	}

	k = 0
	for _, n := range f.block.Implicit() {
		in := n.NewInputs()
		states := n.NewOutputs()
		n.Gather(store, in)
		n.Collect(store, states)
		if err := n.Residual(in, states, graph.Vector(r[k:k+n.OutputSize()])); err != nil {
			return err
		}
		k += n.OutputSize()
	}
	return nil
}

// residual evaluates at a real point and leaves the block's values in store.
func (f blockFunc) residual(store []complex128, x []float64) ([]float64, error) {
	xc := make([]complex128, len(x))
	for i, v := range x {
		xc[i] = complex(v, 0)
	}
	rc := make([]complex128, f.block.StateSize())
	if err := f.eval(store, xc, rc); err != nil {
		return nil, err
	}

	r := make([]float64, len(rc))
	for i, v := range rc {
		if !cstep.IsFinite(v) {
			return nil, graph.Infeasible(f.block.Name(), "non-finite residual %d", i)
		}
		r[i] = real(v)
	}
	return r, nil
}

// jacobian returns dR/dx by complex step. Each column runs on a scratch copy
// of store so perturbed values never leak into the evaluation.
func (f blockFunc) jacobian(store []complex128, x []float64, h float64) (*mat.Dense, error) {
	work := make([]complex128, len(store))
	fn := func(xc, rc []complex128) error {
		copy(work, store)
		return f.eval(work, xc, rc)
	}
	jac, _, err := cstep.JacobianStep(fn, x, f.block.StateSize(), h)
	if errors.Is(err, cstep.ErrNonFinite) {
		return nil, graph.Infeasible(f.block.Name(), "jacobian: %v", err)
	}
	return jac, err
}

// initial reads the state vector from the store after letting implicit
// members with a Guess method seed it.
func (f blockFunc) initial(store []complex128) []float64 {
	for _, n := range f.block.Implicit() {
		in := n.NewInputs()
		states := n.NewOutputs()
		n.Gather(store, in)
		n.Collect(store, states)
		n.Guess(in, states)
		n.Scatter(states, store)
	}

	x := make([]float64, 0, f.block.StateSize())
	for _, v := range f.block.States() {
		for i := range v.Size {
			x = append(x, real(store[v.Slot()+i]))
		}
	}
	return x
}

// roundoff bounds a Newton step that only moves x within rounding error.
const roundoff = 1024 * 0x1p-52

// solveBlock drives the residuals of b to zero by Newton-Raphson with step
// halving.
func (p *Problem) solveBlock(ctx context.Context, s *SolveState, b *graph.Block) error {
	log := ctxlog.FromContext(ctx).With("block", b.Name())
	conv := p.convergence
	f := blockFunc{block: b}
	bs := &blockState{}
	s.blocks[b.Name()] = bs

	x := f.initial(s.values)
	r, err := f.residual(s.values, x)
	if err != nil {
		return err
	}
	norm := floats.Norm(r, 2)
	norm0 := norm
	bs.history = append(bs.history, norm)

	fail := func(diverged bool) error {
		return &graph.NonconvergenceError{
			Block:      b.Name(),
			Iterations: bs.iterations,
			Norm:       norm,
			Iterate:    slices.Clone(x),
			Diverged:   diverged,
		}
	}

	stalls := 0
	for !converged(norm, norm0, conv) {
		if bs.iterations >= conv.MaxIter {
			return fail(false)
		}

		jac, err := f.jacobian(s.values, x, conv.Step)
		if err != nil {
			return err
		}
		dx, err := newtonStep(jac, r)
		if err != nil {
			log.Debug("linear solve failed", "iter", bs.iterations, "err", err)
			return fail(true)
		}
		// The residual sits at its rounding floor above AbsTol.
		if floats.Norm(dx, math.Inf(1)) <= roundoff*(1+floats.Norm(x, math.Inf(1))) {
			log.Debug("newton step below rounding", "iter", bs.iterations, "norm", norm)
			break
		}

		alpha := 1.0
		var xt, rt []float64
		var nt float64
		for bt := 0; ; bt++ {
			xt = slices.Clone(x)
			floats.AddScaled(xt, alpha, dx)
			rt, err = f.residual(s.values, xt)
			switch {
			case err == nil:
				nt = floats.Norm(rt, 2)
			case !errors.Is(err, graph.ErrDomainInfeasible) || bt >= conv.MaxBacktrack:
				return err
			}
			if err == nil && (nt < norm || bt >= conv.MaxBacktrack) {
				break
			}
			alpha /= 2
		}

		if nt >= norm {
			stalls++
		} else {
			stalls = 0
		}
		x, r, norm = xt, rt, nt
		bs.iterations++
		bs.history = append(bs.history, norm)
		log.Debug("newton iteration", "iter", bs.iterations, "norm", norm, "alpha", alpha)

		if norm > conv.DivergenceFactor*math.Max(norm0, conv.AbsTol) {
			return fail(true)
		}
		if stalls >= conv.StallLimit {
			return fail(false)
		}
	}

	// The last residual call left the store at x. Linearize there so the
	// total derivative solve uses the Jacobian at the solution.
	jac, err := f.jacobian(s.values, x, conv.Step)
	if err != nil {
		return err
	}
	bs.jac = jac
	bs.converged = true

	// The values are a root either way; only the totals need an invertible
	// Jacobian.
	var lu mat.LU
	lu.Factorize(jac)
	if cond := lu.Cond(); math.IsNaN(cond) || cond > mat.ConditionTolerance {
		log.Warn("singular jacobian at solution", "cond", cond)
		bs.singular = true
		return nil
	}
	sys, err := matrix.NewSystemFrom(jac)
	if err != nil {
		log.Warn("jacobian at solution not factored", "err", err)
		bs.singular = true
		return nil
	}
	bs.system = sys

	log.Debug("block converged", "iterations", bs.iterations, "norm", norm)
	return nil
}

func converged(norm, norm0 float64, conv Convergence) bool {
	if norm < conv.AbsTol {
		return true
	}
	return norm0 > 0 && norm/norm0 < conv.RelTol
}

// newtonStep solves J·dx = -r.
func newtonStep(jac *mat.Dense, r []float64) ([]float64, error) {
	sys, err := matrix.NewSystemFrom(jac)
	if err != nil {
		return nil, err
	}
	defer sys.Destroy()

	neg := slices.Clone(r)
	floats.Scale(-1, neg)
	return sys.Solve(neg)
}
