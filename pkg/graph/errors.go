package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/edp1096/invertermodel/pkg/units"
)

var (
	ErrGraphCycle        = errors.New("cycle among explicit components")
	ErrUnitMismatch      = errors.New("unit mismatch")
	ErrShapeMismatch     = errors.New("shape mismatch")
	ErrDuplicateVariable = errors.New("duplicate variable")
	ErrAlreadyConnected  = errors.New("input already connected")
	ErrUnknownVariable   = errors.New("unknown variable")
	ErrUnknownOption     = errors.New("unknown option")
	ErrInvalidOption     = errors.New("invalid option")
	ErrInvalidComponent  = errors.New("invalid component")
	ErrGraphFrozen       = errors.New("graph already built or nested")
	ErrDomainInfeasible  = errors.New("domain infeasible")
	ErrNonconvergence    = errors.New("nonlinear solve did not converge")
)

// GraphCycleError lists the explicit components forming a cycle with no
// implicit component to close it.
type GraphCycleError struct {
	Components []string
}

func (e *GraphCycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrGraphCycle, strings.Join(e.Components, " -> "))
}

func (e *GraphCycleError) Unwrap() error { return ErrGraphCycle }

// UnitMismatchError is returned when a connection joins units of different
// dimension.
type UnitMismatchError struct {
	Producer string
	Consumer string
	From     units.Unit
	To       units.Unit
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("%v: %s [%s, %s] -> %s [%s, %s]", ErrUnitMismatch,
		e.Producer, e.From, e.From.Family(), e.Consumer, e.To, e.To.Family())
}

func (e *UnitMismatchError) Unwrap() error { return ErrUnitMismatch }

type DuplicateVariableError struct {
	Name     string
	Existing string
}

func (e *DuplicateVariableError) Error() string {
	if e.Existing == "" {
		return fmt.Sprintf("%v: %s", ErrDuplicateVariable, e.Name)
	}
	return fmt.Sprintf("%v: %s already declared by %s", ErrDuplicateVariable, e.Name, e.Existing)
}

func (e *DuplicateVariableError) Unwrap() error { return ErrDuplicateVariable }

type AlreadyConnectedError struct {
	Consumer string
	Existing string
	Producer string
}

func (e *AlreadyConnectedError) Error() string {
	return fmt.Sprintf("%v: %s is fed by %s, cannot connect %s",
		ErrAlreadyConnected, e.Consumer, e.Existing, e.Producer)
}

func (e *AlreadyConnectedError) Unwrap() error { return ErrAlreadyConnected }

// DomainError reports inputs outside the physical validity region of a leaf
// formula, or a non-finite value produced during evaluation.
type DomainError struct {
	Component string
	Reason    string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrDomainInfeasible, e.Component, e.Reason)
}

func (e *DomainError) Unwrap() error { return ErrDomainInfeasible }

// Infeasible builds a DomainError for component.
func Infeasible(component, format string, args ...any) error {
	return &DomainError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

// NonconvergenceError carries the last Newton iterate of an implicit block.
type NonconvergenceError struct {
	Block      string
	Iterations int
	Norm       float64
	Iterate    []float64
	Diverged   bool
}

func (e *NonconvergenceError) Error() string {
	what := "iteration limit reached"
	if e.Diverged {
		what = "diverged"
	}
	return fmt.Sprintf("%v: block %s %s after %d iterations, |r| = %.3e",
		ErrNonconvergence, e.Block, what, e.Iterations, e.Norm)
}

func (e *NonconvergenceError) Unwrap() error { return ErrNonconvergence }
