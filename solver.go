package glee

import (
	"fmt"
	"time"
)

// Validity is the three-valued answer to "is q true under constraints,
// false under constraints, or does it depend on the assignment" (§4.4).
type Validity int

const (
	ValidityUnknown = Validity(0)
	ValidityTrue    = Validity(1)
	ValidityFalse   = Validity(-1)
)

func (v Validity) String() string {
	switch v {
	case ValidityTrue:
		return "true"
	case ValidityFalse:
		return "false"
	default:
		return "unknown"
	}
}

// Solver is the four-operation contract every layer of the solver chain
// speaks, and the only thing Executor depends on to reason about path
// conditions. Grounded on KLEE's klee::Solver (include/klee/Solver.h),
// which exposes the same four queries (there named evaluate/mustBeTrue/
// getValue/getInitialValues) over any backend.
type Solver interface {
	// ComputeValidity reports whether q is entailed, refuted, or neither by
	// constraints.
	ComputeValidity(constraints []Expr, q Expr) (Validity, error)

	// ComputeTruth reports whether q must be true under constraints.
	ComputeTruth(constraints []Expr, q Expr) (bool, error)

	// ComputeValue returns the (unique, under constraints) constant value of
	// q, evaluated against any one satisfying assignment.
	ComputeValue(constraints []Expr, q Expr) (*ConstantExpr, error)

	// ComputeInitialValues returns, if constraints is satisfiable, one
	// assignment of concrete bytes to each array in arrays.
	ComputeInitialValues(constraints []Expr, arrays []*Array) (bool, [][]byte, error)
}

// computeValidityFromTruth derives ComputeValidity from two ComputeTruth
// calls, for backends that have no cheaper direct path to it.
func computeValidityFromTruth(s Solver, constraints []Expr, q Expr) (Validity, error) {
	isTrue, err := s.ComputeTruth(constraints, q)
	if err != nil {
		return ValidityUnknown, err
	}
	if isTrue {
		return ValidityTrue, nil
	}

	isFalse, err := s.ComputeTruth(constraints, NewNotExpr(q))
	if err != nil {
		return ValidityUnknown, err
	}
	if isFalse {
		return ValidityFalse, nil
	}

	return ValidityUnknown, nil
}

// computeTruthFromInitialValues derives ComputeTruth the slow way, by
// checking whether NOT(q) has no satisfying assignment under constraints.
// Used by backends whose only native primitive is satisfiability.
func computeTruthFromInitialValues(s Solver, constraints []Expr, q Expr) (bool, error) {
	negated := append(append([]Expr{}, constraints...), NewNotExpr(q))
	satisfiable, _, err := s.ComputeInitialValues(negated, nil)
	if err != nil {
		return false, err
	}
	return !satisfiable, nil
}

// witness reports whether values, bound to arrays in order, satisfies every
// constraint in constraints. Grounded on KLEE's
// Executor::assertCreatedPointEvaluatesToTrue / the ValidatingSolver's
// witness check in Solver.cpp.
func witness(constraints []Expr, arrays []*Array, values [][]byte) bool {
	ee := NewExprEvaluator(arrays, values)
	for _, c := range constraints {
		v, err := ee.Evaluate(c)
		if err != nil || !v.IsTrue() {
			return false
		}
	}
	return true
}

// NewSolverChain wraps backend with the standard stack of solver layers
// (§4.4), innermost to outermost: timeoutSolver (per-call deadline against
// the raw backend, toggled by solverTimeout), ValidatingSolver (witness
// checks backend answers, toggled by debugCheckWitness), ConstantArrayHandler
// (lowers constant-array reads out of array theory), IndependentSolver
// (query decomposition by array footprint), CachingSolver (per-query
// memoization), CexCache (per-constraint-set counterexample reuse). Matches
// the teacher's convention of composing solvers by wrapping, generalized
// from the single Z3Solver it started with to the full KLEE-style chain.
func NewSolverChain(backend Solver, debugCheckWitness bool, solverTimeout time.Duration) Solver {
	s := backend
	s = newTimeoutSolver(s, solverTimeout)
	s = newValidatingSolver(s, debugCheckWitness)
	s = newConstantArrayHandler(s)
	s = newIndependentSolver(s)
	s = newCachingSolver(s)
	s = newCexCache(s)
	return s
}

// timeoutSolver bounds every call to inner by timeout (§5 "Failure of
// solver"), reporting ErrSolverTimeout if it's exceeded. The in-flight call
// to inner is not actually canceled — the Solver interface has no
// cancellation hook, and the z3 backend's blocking cgo call can't be
// interrupted from here — so this only bounds how long the caller waits,
// not how long the backend keeps working; see DESIGN.md.
type timeoutSolver struct {
	inner   Solver
	timeout time.Duration
}

func newTimeoutSolver(inner Solver, timeout time.Duration) Solver {
	if timeout <= 0 {
		return inner
	}
	return &timeoutSolver{inner: inner, timeout: timeout}
}

func (s *timeoutSolver) ComputeValidity(constraints []Expr, q Expr) (Validity, error) {
	type result struct {
		v   Validity
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := s.inner.ComputeValidity(constraints, q)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-time.After(s.timeout):
		return ValidityUnknown, ErrSolverTimeout
	}
}

func (s *timeoutSolver) ComputeTruth(constraints []Expr, q Expr) (bool, error) {
	type result struct {
		v   bool
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := s.inner.ComputeTruth(constraints, q)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-time.After(s.timeout):
		return false, ErrSolverTimeout
	}
}

func (s *timeoutSolver) ComputeValue(constraints []Expr, q Expr) (*ConstantExpr, error) {
	type result struct {
		v   *ConstantExpr
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := s.inner.ComputeValue(constraints, q)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-time.After(s.timeout):
		return nil, ErrSolverTimeout
	}
}

func (s *timeoutSolver) ComputeInitialValues(constraints []Expr, arrays []*Array) (bool, [][]byte, error) {
	type result struct {
		sat    bool
		values [][]byte
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		sat, values, err := s.inner.ComputeInitialValues(constraints, arrays)
		ch <- result{sat, values, err}
	}()
	select {
	case r := <-ch:
		return r.sat, r.values, r.err
	case <-time.After(s.timeout):
		return false, nil, ErrSolverTimeout
	}
}

// constantArrayHandler rewrites every SelectExpr in a query's constraints
// and goal that reads from a non-symbolic array (one whose every byte is
// already a known constant) into an arithmetic mux over those constants,
// so the backend never has to reason about array theory just to read a
// lookup table with a symbolic index. Only applied below
// maxConstantArrayRewriteSize, since the mux grows one term per array byte
// and a large constant array is cheaper left as array theory. Grounded on
// §4.4 item 4 ("lowers reads from constant arrays into Select chains when
// beneficial"); KLEE's equivalent is ConstantArrayOptimizationPass.
type constantArrayHandler struct {
	inner Solver
}

const maxConstantArrayRewriteSize = 64

func newConstantArrayHandler(inner Solver) Solver {
	return &constantArrayHandler{inner: inner}
}

func (s *constantArrayHandler) rewriteAll(constraints []Expr, q Expr) ([]Expr, Expr) {
	v := &constantArrayVisitor{}
	rewritten := make([]Expr, len(constraints))
	changed := false
	for i, c := range constraints {
		rc := WalkExpr(v, c)
		rewritten[i] = rc
		changed = changed || rc != c
	}
	rq := WalkExpr(v, q)
	if !changed && rq == q {
		return constraints, q
	}
	return rewritten, rq
}

func (s *constantArrayHandler) ComputeValidity(constraints []Expr, q Expr) (Validity, error) {
	c, rq := s.rewriteAll(constraints, q)
	return s.inner.ComputeValidity(c, rq)
}

func (s *constantArrayHandler) ComputeTruth(constraints []Expr, q Expr) (bool, error) {
	c, rq := s.rewriteAll(constraints, q)
	return s.inner.ComputeTruth(c, rq)
}

func (s *constantArrayHandler) ComputeValue(constraints []Expr, q Expr) (*ConstantExpr, error) {
	c, rq := s.rewriteAll(constraints, q)
	return s.inner.ComputeValue(c, rq)
}

func (s *constantArrayHandler) ComputeInitialValues(constraints []Expr, arrays []*Array) (bool, [][]byte, error) {
	v := &constantArrayVisitor{}
	rewritten := make([]Expr, len(constraints))
	for i, c := range constraints {
		rewritten[i] = WalkExpr(v, c)
	}
	return s.inner.ComputeInitialValues(rewritten, arrays)
}

type constantArrayVisitor struct{}

func (v *constantArrayVisitor) Visit(expr Expr) (Expr, ExprVisitor) {
	sel, ok := expr.(*SelectExpr)
	if !ok || sel.Array.IsSymbolic() || sel.Array.Size == 0 || sel.Array.Size > maxConstantArrayRewriteSize {
		return expr, v
	}
	return constantArrayMux(sel), nil
}

// constantArrayMux builds a mutually-exclusive sum mux(idx) = Σᵢ (idx==i) *
// array[i] over a constant array's bytes, equivalent to sel but expressed
// purely in bitvector arithmetic.
func constantArrayMux(sel *SelectExpr) Expr {
	idx := newZExtExpr(sel.Index, Width64)

	var sum Expr
	for i := uint(0); i < sel.Array.Size; i++ {
		byteValue := sel.Array.selectByte(NewConstantExpr64(uint64(i)))
		indicator := newZExtExpr(NewBinaryExpr(EQ, idx, NewConstantExpr64(uint64(i))), Width8)
		term := NewBinaryExpr(MUL, indicator, byteValue)
		if sum == nil {
			sum = term
		} else {
			sum = NewBinaryExpr(ADD, sum, term)
		}
	}
	return sum
}

// cexCache memoizes ComputeInitialValues by the full constraint set, so a
// state that re-queries for the same path condition (e.g. after a Clone)
// reuses a previously found counterexample instead of re-invoking the
// backend. Grounded on KLEE's CexCachingSolver (lib/Solver/CexCachingSolver.cpp).
type cexCache struct {
	inner   Solver
	entries map[uint64]*cexCacheEntry
}

type cexCacheEntry struct {
	satisfiable bool
	arrayIDs    []uint64
	values      [][]byte
}

func newCexCache(inner Solver) Solver {
	return &cexCache{inner: inner, entries: make(map[uint64]*cexCacheEntry)}
}

func constraintSetHash(constraints []Expr) uint64 {
	h := uint64(kindConstant) // arbitrary nonzero seed
	for _, c := range constraints {
		h = mixHash(h, exprHash(c))
	}
	return h
}

func arrayIDs(arrays []*Array) []uint64 {
	ids := make([]uint64, len(arrays))
	for i, a := range arrays {
		ids[i] = a.ID
	}
	return ids
}

func sameArrayIDs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *cexCache) ComputeInitialValues(constraints []Expr, arrays []*Array) (bool, [][]byte, error) {
	key := constraintSetHash(constraints)
	ids := arrayIDs(arrays)
	if entry, ok := s.entries[key]; ok && sameArrayIDs(entry.arrayIDs, ids) {
		return entry.satisfiable, entry.values, nil
	}

	satisfiable, values, err := s.inner.ComputeInitialValues(constraints, arrays)
	if err != nil {
		return false, nil, err
	}
	s.entries[key] = &cexCacheEntry{satisfiable: satisfiable, arrayIDs: ids, values: values}
	return satisfiable, values, nil
}

func (s *cexCache) ComputeValidity(constraints []Expr, q Expr) (Validity, error) {
	return s.inner.ComputeValidity(constraints, q)
}
func (s *cexCache) ComputeTruth(constraints []Expr, q Expr) (bool, error) {
	return s.inner.ComputeTruth(constraints, q)
}
func (s *cexCache) ComputeValue(constraints []Expr, q Expr) (*ConstantExpr, error) {
	return s.inner.ComputeValue(constraints, q)
}

// cachingSolver memoizes ComputeTruth/ComputeValidity/ComputeValue by the
// pair (constraint set, query), independent of CexCache's per-constraint-set
// granularity. Grounded on KLEE's CachingSolver (lib/Solver/CachingSolver.cpp).
type cachingSolver struct {
	inner         Solver
	truthCache    map[[2]uint64]bool
	validityCache map[[2]uint64]Validity
	valueCache    map[[2]uint64]*ConstantExpr
}

func newCachingSolver(inner Solver) Solver {
	return &cachingSolver{
		inner:         inner,
		truthCache:    make(map[[2]uint64]bool),
		validityCache: make(map[[2]uint64]Validity),
		valueCache:    make(map[[2]uint64]*ConstantExpr),
	}
}

func (s *cachingSolver) key(constraints []Expr, q Expr) [2]uint64 {
	return [2]uint64{constraintSetHash(constraints), exprHash(q)}
}

func (s *cachingSolver) ComputeTruth(constraints []Expr, q Expr) (bool, error) {
	key := s.key(constraints, q)
	if v, ok := s.truthCache[key]; ok {
		return v, nil
	}
	v, err := s.inner.ComputeTruth(constraints, q)
	if err != nil {
		return false, err
	}
	s.truthCache[key] = v
	return v, nil
}

func (s *cachingSolver) ComputeValidity(constraints []Expr, q Expr) (Validity, error) {
	key := s.key(constraints, q)
	if v, ok := s.validityCache[key]; ok {
		return v, nil
	}
	v, err := s.inner.ComputeValidity(constraints, q)
	if err != nil {
		return ValidityUnknown, err
	}
	s.validityCache[key] = v
	return v, nil
}

func (s *cachingSolver) ComputeValue(constraints []Expr, q Expr) (*ConstantExpr, error) {
	key := s.key(constraints, q)
	if v, ok := s.valueCache[key]; ok {
		return v, nil
	}
	v, err := s.inner.ComputeValue(constraints, q)
	if err != nil {
		return nil, err
	}
	s.valueCache[key] = v
	return v, nil
}

func (s *cachingSolver) ComputeInitialValues(constraints []Expr, arrays []*Array) (bool, [][]byte, error) {
	return s.inner.ComputeInitialValues(constraints, arrays)
}

// independentSolver decomposes a query against the independent-element-set
// partition of its constraints (§4.3), so a state with many unrelated
// symbolic arrays never pays for a monolithic query spanning all of them.
// Grounded on KLEE's IndependentSolver (lib/Solver/IndependentSolver.cpp).
type independentSolver struct {
	inner Solver
}

func newIndependentSolver(inner Solver) Solver {
	return &independentSolver{inner: inner}
}

// factorContaining returns the constraints of whichever factor q's own
// footprint belongs to, once q is folded into the partition alongside
// constraints. If q touches no array, q forms a factor of its own and the
// result is empty; if q touches an array shared by every factor, the
// result is the full constraint list.
func (s *independentSolver) factorContaining(constraints []Expr, q Expr) []Expr {
	all := append(append([]Expr{}, constraints...), q)
	factors := partitionIndependentElementSets(all)

	for _, f := range factors {
		for _, c := range f.constraints {
			if c != q {
				continue
			}
			out := make([]Expr, 0, len(f.constraints)-1)
			for _, c2 := range f.constraints {
				if c2 != q {
					out = append(out, c2)
				}
			}
			return out
		}
	}
	return constraints
}

func (s *independentSolver) ComputeValidity(constraints []Expr, q Expr) (Validity, error) {
	return s.inner.ComputeValidity(s.factorContaining(constraints, q), q)
}

func (s *independentSolver) ComputeTruth(constraints []Expr, q Expr) (bool, error) {
	return s.inner.ComputeTruth(s.factorContaining(constraints, q), q)
}

func (s *independentSolver) ComputeValue(constraints []Expr, q Expr) (*ConstantExpr, error) {
	return s.inner.ComputeValue(s.factorContaining(constraints, q), q)
}

func (s *independentSolver) ComputeInitialValues(constraints []Expr, arrays []*Array) (bool, [][]byte, error) {
	if len(arrays) <= 1 {
		return s.inner.ComputeInitialValues(constraints, arrays)
	}

	factors := partitionIndependentElementSets(constraints)
	values := make([][]byte, len(arrays))
	resolved := make([]bool, len(arrays))

	for _, factor := range factors {
		factorArrays, indexes := arraysTouchedByFactor(factor, arrays)
		if len(factorArrays) == 0 {
			continue
		}
		satisfiable, factorValues, err := s.inner.ComputeInitialValues(factor.constraints, factorArrays)
		if err != nil {
			return false, nil, err
		}
		if !satisfiable {
			return false, nil, nil
		}
		for i, idx := range indexes {
			values[idx] = factorValues[i]
			resolved[idx] = true
		}
	}

	// Arrays touched by no constraint at all are unconstrained by definition;
	// any value satisfies, so they default to all-zero bytes.
	for i, array := range arrays {
		if !resolved[i] {
			values[i] = make([]byte, array.Size)
		}
	}

	return true, values, nil
}

// arraysTouchedByFactor returns the subset (and original indexes) of arrays
// that factor's footprint touches, whole or by byte.
func arraysTouchedByFactor(factor *independentElementSet, arrays []*Array) (touched []*Array, indexes []int) {
	for i, array := range arrays {
		if _, ok := factor.whole[array.ID]; ok {
			touched = append(touched, array)
			indexes = append(indexes, i)
			continue
		}
		if _, ok := factor.bytes[array.ID]; ok {
			touched = append(touched, array)
			indexes = append(indexes, i)
		}
	}
	return touched, indexes
}

// partitionIndependentElementSets partitions a flat constraint list into
// independent-element-set factors from scratch. Used by components (like
// independentSolver) that only ever see the flat list a query hands them,
// as opposed to ConstraintManager's incrementally maintained partition.
func partitionIndependentElementSets(exprs []Expr) []*independentElementSet {
	var factors []*independentElementSet
	for _, e := range exprs {
		next := newIndependentElementSet(e)

		remaining := make([]*independentElementSet, 0, len(factors))
		for _, f := range factors {
			if f.intersects(next) {
				next.merge(f)
			} else {
				remaining = append(remaining, f)
			}
		}
		factors = append(remaining, next)
	}
	return factors
}

// validatingSolver cross-checks the backend's own answers when
// debugCheckWitness is enabled: a SAT result is verified by evaluating
// every constraint against the returned assignment, a validity result is
// checked against computeValidityFromTruth, and a ComputeValue result is
// checked with ComputeTruth. UNSAT results and ComputeTruth answers pass
// through unchecked. A mismatch indicates a backend bug (or a bug in the
// expression evaluator) rather than anything the running program did, so
// it panics instead of returning an error. Grounded on KLEE's
// ValidatingSolver (lib/Solver/ValidatingSolver.cpp).
type validatingSolver struct {
	inner Solver
	debug bool
}

func newValidatingSolver(inner Solver, debug bool) Solver {
	return &validatingSolver{inner: inner, debug: debug}
}

func (s *validatingSolver) ComputeValidity(constraints []Expr, q Expr) (Validity, error) {
	v, err := s.inner.ComputeValidity(constraints, q)
	if err != nil || !s.debug {
		return v, err
	}

	want, err := computeValidityFromTruth(s.inner, constraints, q)
	if err != nil {
		return v, err
	}
	if want != ValidityUnknown && want != v {
		panic(fmt.Sprintf("glee: solver validity mismatch: backend=%s derived=%s", v, want))
	}
	return v, nil
}

func (s *validatingSolver) ComputeTruth(constraints []Expr, q Expr) (bool, error) {
	return s.inner.ComputeTruth(constraints, q)
}

func (s *validatingSolver) ComputeValue(constraints []Expr, q Expr) (*ConstantExpr, error) {
	v, err := s.inner.ComputeValue(constraints, q)
	if err != nil || !s.debug {
		return v, err
	}
	if ok, valErr := s.inner.ComputeTruth(constraints, NewBinaryExpr(EQ, q, v)); valErr == nil && !ok {
		panic(fmt.Sprintf("glee: solver value %s does not hold under its own constraints", v))
	}
	return v, nil
}

func (s *validatingSolver) ComputeInitialValues(constraints []Expr, arrays []*Array) (bool, [][]byte, error) {
	satisfiable, values, err := s.inner.ComputeInitialValues(constraints, arrays)
	if err != nil || !s.debug || !satisfiable {
		return satisfiable, values, err
	}
	if !witness(constraints, arrays, values) {
		panic("glee: solver returned a witness that does not satisfy its own constraints")
	}
	return satisfiable, values, nil
}
