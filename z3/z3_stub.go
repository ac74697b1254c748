//go:build !z3

// Without the z3 build tag (and a system libz3 to link against), z3.go is
// excluded from the build and this file stands in its place: same exported
// surface (Solver, NewSolver, Stats), but every query fails closed with
// ErrNotBuilt rather than silently returning Unknown/unsatisfiable, so a
// default `go build ./...` still produces a runnable binary, it just
// cannot symbolically execute anything until rebuilt with -tags z3.
package z3

import (
	"errors"
	"time"

	"github.com/gleelang/glee"
)

// Ensure solver implements interface.
var _ glee.Solver = (*Solver)(nil)

// ErrNotBuilt is returned by every Solver method when glee was built
// without the z3 tag.
var ErrNotBuilt = errors.New("z3: not built with -tags z3; rebuild with libz3 installed")

// Solver is a stand-in for the cgo-backed z3.Solver, present so packages
// that reference z3.Solver/z3.NewSolver still compile without the z3 tag.
type Solver struct{}

// NewSolver returns a Solver that refuses every query with ErrNotBuilt.
func NewSolver() *Solver {
	return &Solver{}
}

// Close is a no-op; there is no Z3 context to release.
func (s *Solver) Close() error { return nil }

// Stats always reports zero, since no query ever ran.
func (s *Solver) Stats() Stats { return Stats{} }

func (s *Solver) ComputeInitialValues(constraints []glee.Expr, arrays []*glee.Array) (bool, [][]byte, error) {
	return false, nil, ErrNotBuilt
}

func (s *Solver) ComputeTruth(constraints []glee.Expr, q glee.Expr) (bool, error) {
	return false, ErrNotBuilt
}

func (s *Solver) ComputeValidity(constraints []glee.Expr, q glee.Expr) (glee.Validity, error) {
	return glee.ValidityUnknown, ErrNotBuilt
}

func (s *Solver) ComputeValue(constraints []glee.Expr, q glee.Expr) (*glee.ConstantExpr, error) {
	return nil, ErrNotBuilt
}

// Stats mirrors z3.go's Stats so callers (e.g. cmd/glee) compile unchanged
// regardless of which file backs the package.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
}
