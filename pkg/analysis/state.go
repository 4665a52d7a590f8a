package analysis

import (
	"slices"

	"github.com/edp1096/invertermodel/pkg/graph"
	"github.com/edp1096/invertermodel/pkg/matrix"
	"gonum.org/v1/gonum/mat"
)

// SolveState is the value store and solver record of one evaluation.
type SolveState struct {
	values []complex128
	blocks map[string]*blockState
}

type blockState struct {
	iterations int
	history    []float64
	converged  bool
	singular   bool

	// Jacobian of the residuals at the converged iterate and its
	// factorization, reused by the total derivative solve.
	jac    *mat.Dense
	system *matrix.System
}

func newSolveState(plan *graph.Plan, inputs map[*graph.Variable][]float64) *SolveState {
	s := &SolveState{
		values: plan.Defaults(),
		blocks: make(map[string]*blockState),
	}
	for v, val := range inputs {
		for i, x := range val {
			s.values[v.Slot()+i] = complex(x, 0)
		}
	}
	return s
}

// Value returns the real value of a variable with a slot.
func (s *SolveState) Value(v *graph.Variable) []float64 {
	out := make([]float64, v.Size)
	for i := range out {
		out[i] = real(s.values[v.Slot()+i])
	}
	return out
}

// Blocks names the implicit blocks solved so far, sorted.
func (s *SolveState) Blocks() []string {
	names := make([]string, 0, len(s.blocks))
	for name := range s.blocks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Iterations returns the Newton iteration count of a block.
func (s *SolveState) Iterations(block string) int {
	if b, ok := s.blocks[block]; ok {
		return b.iterations
	}
	return 0
}

// History returns the residual norm of each iterate of a block, starting
// with the initial guess.
func (s *SolveState) History(block string) []float64 {
	if b, ok := s.blocks[block]; ok {
		return slices.Clone(b.history)
	}
	return nil
}

// Histories returns the residual norm history of every block.
func (s *SolveState) Histories() map[string][]float64 {
	out := make(map[string][]float64, len(s.blocks))
	for name, b := range s.blocks {
		out[name] = slices.Clone(b.history)
	}
	return out
}

// Release frees the sparse factorizations held by the state.
func (s *SolveState) Release() {
	for _, b := range s.blocks {
		if b.system != nil {
			b.system.Destroy()
			b.system = nil
		}
	}
}
