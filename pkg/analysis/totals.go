package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/edp1096/invertermodel/internal/ctxlog"
	"github.com/edp1096/invertermodel/pkg/cstep"
	"github.com/edp1096/invertermodel/pkg/graph"
	"github.com/edp1096/invertermodel/pkg/matrix"
	"gonum.org/v1/gonum/mat"
)

var ErrSingularJacobian = errors.New("singular jacobian at solution")

// SingularJacobianError reports a block whose residual Jacobian cannot be
// inverted at the converged point, so its total derivatives do not exist.
type SingularJacobianError struct {
	Block string
	Err   error
}

func (e *SingularJacobianError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: block %s: %v", ErrSingularJacobian, e.Block, e.Err)
	}
	return fmt.Sprintf("%v: block %s", ErrSingularJacobian, e.Block)
}

func (e *SingularJacobianError) Unwrap() error { return ErrSingularJacobian }

// Jacobian holds total derivatives d(of)/d(wrt) at one evaluation point.
type Jacobian struct {
	Of  []string
	Wrt []string

	blocks map[string]map[string]*mat.Dense
	full   *mat.Dense
}

// Get returns the block d(of)/d(wrt), sized len(of) × len(wrt).
func (j *Jacobian) Get(of, wrt string) (*mat.Dense, bool) {
	b, ok := j.blocks[of][wrt]
	return b, ok
}

// At returns the scalar derivative of two scalar variables. It panics when
// the pair was not requested, like an out-of-range mat.Dense.At.
func (j *Jacobian) At(of, wrt string) float64 {
	b, ok := j.Get(of, wrt)
	if !ok {
		panic(fmt.Sprintf("analysis: d%s/d%s not in jacobian", of, wrt))
	}
	return b.At(0, 0)
}

// Dense returns the full matrix, rows in Of order and columns in Wrt order.
func (j *Jacobian) Dense() *mat.Dense { return mat.DenseCopyOf(j.full) }

// TotalDerivatives returns the derivatives of the outputs of with respect to
// the independent inputs wrt at the point of the last Evaluate. Explicit
// steps are chained forward; each implicit block is differentiated through
// its residuals: dx/dp = -R_x⁻¹·R_p, dy/dp = Y_x·dx/dp + Y_p.
func (p *Problem) TotalDerivatives(ctx context.Context, of, wrt []string) (*Jacobian, error) {
	if p.solved == 0 || p.solved != p.version {
		return nil, ErrStaleEvaluation
	}
	if len(of) == 0 || len(wrt) == 0 {
		return nil, errors.New("analysis: empty of or wrt")
	}

	ofVars := make([]*graph.Variable, len(of))
	for i, name := range of {
		v, err := p.plan.Lookup(name)
		if err != nil {
			return nil, err
		}
		ofVars[i] = v
	}
	wrtVars := make([]*graph.Variable, len(wrt))
	cols := make([]int, len(wrt)+1)
	for i, name := range wrt {
		v, err := p.plan.Independent(name)
		if err != nil {
			return nil, err
		}
		wrtVars[i] = v
		cols[i+1] = cols[i] + v.Size
	}
	ncol := cols[len(wrt)]

	// Row k of the tangent holds d(store[k])/d(wrt).
	s := p.state
	tangent := mat.NewDense(p.plan.Size(), ncol, nil)
	for i, v := range wrtVars {
		for k := range v.Size {
			tangent.Set(v.Slot()+k, cols[i]+k, 1)
		}
	}

	h := p.convergence.Step
	for _, step := range p.plan.Steps() {
		var err error
		switch step.Kind {
		case graph.ExplicitStep:
			err = propagateNode(step.Node, s.values, tangent, h)
		case graph.BlockStep:
			err = propagateBlock(step.Block, s, tangent, h)
		}
		if err != nil {
			return nil, fmt.Errorf("totals: %s: %w", step.Name(), err)
		}
	}

	nrow := 0
	for _, v := range ofVars {
		nrow += v.Size
	}
	j := &Jacobian{
		Of:     slices.Clone(of),
		Wrt:    slices.Clone(wrt),
		blocks: make(map[string]map[string]*mat.Dense, len(of)),
		full:   mat.NewDense(nrow, ncol, nil),
	}
	row := 0
	for i, v := range ofVars {
		rows := tangent.Slice(v.Slot(), v.Slot()+v.Size, 0, ncol)
		j.full.Slice(row, row+v.Size, 0, ncol).(*mat.Dense).Copy(rows)
		row += v.Size

		j.blocks[of[i]] = make(map[string]*mat.Dense, len(wrt))
		for k, name := range wrt {
			j.blocks[of[i]][name] = mat.DenseCopyOf(rows.(*mat.Dense).Slice(0, v.Size, cols[k], cols[k+1]))
		}
	}

	ctxlog.FromContext(ctx).Debug("total derivatives", "of", len(of), "wrt", len(wrt))
	return j, nil
}

// sourceRows lists the store rows of the distinct producers read by n.
func sourceRows(n *graph.Node) []int {
	var vars []*graph.Variable
	for _, in := range n.Inputs() {
		if src := in.Source(); !slices.Contains(vars, src) {
			vars = append(vars, src)
		}
	}
	return slotRows(vars)
}

func slotRows(vars []*graph.Variable) []int {
	var rows []int
	for _, v := range vars {
		for k := range v.Size {
			rows = append(rows, v.Slot()+k)
		}
	}
	return rows
}

func gatherRows(t *mat.Dense, rows []int) *mat.Dense {
	_, c := t.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		out.SetRow(i, t.RawRowView(r))
	}
	return out
}

func scatterRows(t *mat.Dense, rows []int, src mat.Matrix) {
	for i, r := range rows {
		for j := range t.RawRowView(r) {
			t.Set(r, j, src.At(i, j))
		}
	}
}

func readSlots(store []complex128, rows []int) []float64 {
	x := make([]float64, len(rows))
	for i, r := range rows {
		x[i] = real(store[r])
	}
	return x
}

// propagateNode applies the chain rule across one explicit component. The
// local Jacobian is taken with respect to the producers' slots, so unit
// conversions are part of it.
func propagateNode(n *graph.Node, store []complex128, tangent *mat.Dense, h float64) error {
	srcRows := sourceRows(n)
	outRows := slotRows(n.Outputs())
	if len(srcRows) == 0 || len(outRows) == 0 {
		return nil
	}

	work := slices.Clone(store)
	fn := func(x, y []complex128) error {
		copy(work, store)
		for i, r := range srcRows {
			work[r] = x[i]
		}
		in := n.NewInputs()
		n.Gather(work, in)
		return n.Compute(in, graph.Vector(y))
	}
	local, _, err := cstep.JacobianStep(fn, readSlots(store, srcRows), n.OutputSize(), h)
	if err != nil {
		return err
	}

	var out mat.Dense
	out.Mul(local, gatherRows(tangent, srcRows))
	scatterRows(tangent, outRows, &out)
	return nil
}

// propagateBlock differentiates an implicit block through its residuals.
func propagateBlock(b *graph.Block, s *SolveState, tangent *mat.Dense, h float64) error {
	bs := s.blocks[b.Name()]
	if bs == nil || !bs.converged {
		return fmt.Errorf("block %s was not solved", b.Name())
	}
	if bs.singular {
		return &SingularJacobianError{Block: b.Name()}
	}

	nx, ny := b.StateSize(), b.OutputSize()
	paramRows := slotRows(b.Params())
	stateRows := slotRows(b.States())
	outRows := slotRows(b.Outputs())
	np := len(paramRows)
	if np == 0 {
		return nil
	}

	// Linearize [r; y] with respect to [x; p].
	f := blockFunc{block: b}
	work := slices.Clone(s.values)
	fn := func(z, out []complex128) error {
		copy(work, s.values)
		for i, r := range paramRows {
			work[r] = z[nx+i]
		}
		if err := f.eval(work, z[:nx], out[:nx]); err != nil {
			return err
		}
		for i, r := range outRows {
			out[nx+i] = work[r]
		}
		return nil
	}
	z := append(readSlots(s.values, stateRows), readSlots(s.values, paramRows)...)
	lin, _, err := cstep.JacobianStep(fn, z, nx+ny, h)
	if err != nil {
		return err
	}

	tp := gatherRows(tangent, paramRows)
	rp := lin.Slice(0, nx, nx, nx+np)

	var rhs mat.Dense
	rhs.Mul(rp, tp)
	dx, err := bs.system.SolveDense(&rhs)
	if errors.Is(err, matrix.ErrSingular) {
		return &SingularJacobianError{Block: b.Name(), Err: err}
	}
	if err != nil {
		return err
	}
	dx.Scale(-1, dx)
	scatterRows(tangent, stateRows, dx)

	if ny > 0 {
		var dy, yp mat.Dense
		dy.Mul(lin.Slice(nx, nx+ny, 0, nx), dx)
		yp.Mul(lin.Slice(nx, nx+ny, nx, nx+np), tp)
		dy.Add(&dy, &yp)
		scatterRows(tangent, outRows, &dy)
	}
	return nil
}
