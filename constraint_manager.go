package glee

// ConstraintManager owns the ordered set of path constraints for one
// ExecutionState (§4.2). Beyond the plain append-only list the teacher
// started with, it maintains:
//
//   - an equality map learned from constraints of the shape `k == x` for a
//     constant k, used to substitute x away in every constraint added
//     afterward (EqualitySubstitution gates learning it at all;
//     RewriteEqualities additionally gates whether a learned equality is
//     ever substituted back into the existing constraint set — see
//     rewriteConstraints)
//   - an independent-element-set partition of the constraints by array
//     footprint (§4.3), incrementally maintained as constraints are added
//     or rewritten away, so the solver chain's IndependentSolver layer
//     never has to recompute it from scratch per query.
//
// Grounded on KLEE's Constraints.cpp.
type ConstraintManager struct {
	// EqualitySubstitution gates whether Add ever learns a new equality
	// from a `k == x` constraint.
	EqualitySubstitution bool

	// RewriteEqualities gates whether a learned equality is substituted
	// back into constraints already in the set. Defaults to true, matching
	// KLEE's cl::opt of the same name.
	RewriteEqualities bool

	constraints []Expr
	equalities  map[Expr]*ConstantExpr
	factors     []*independentElementSet
}

// NewConstraintManager returns an empty constraint manager with both
// equality options on, matching KLEE's defaults.
func NewConstraintManager() *ConstraintManager {
	return &ConstraintManager{
		EqualitySubstitution: true,
		RewriteEqualities:    true,
		equalities:           make(map[Expr]*ConstantExpr),
	}
}

// All returns every constraint currently in the set, in the order added
// (after any in-place rewrites from later-learned equalities).
func (m *ConstraintManager) All() []Expr {
	return m.constraints
}

// Factors returns the independent-element-set partition of the current
// constraint set, one []Expr per factor.
func (m *ConstraintManager) Factors() [][]Expr {
	out := make([][]Expr, len(m.factors))
	for i, f := range m.factors {
		out[i] = f.constraints
	}
	return out
}

// Clone returns a deep copy of m suitable for an ExecutionState.Clone.
func (m *ConstraintManager) Clone() *ConstraintManager {
	constraints := make([]Expr, len(m.constraints))
	copy(constraints, m.constraints)

	equalities := make(map[Expr]*ConstantExpr, len(m.equalities))
	for k, v := range m.equalities {
		equalities[k] = v
	}

	factors := make([]*independentElementSet, len(m.factors))
	for i, f := range m.factors {
		factors[i] = f.clone()
	}

	return &ConstraintManager{
		EqualitySubstitution: m.EqualitySubstitution,
		RewriteEqualities:    m.RewriteEqualities,
		constraints:          constraints,
		equalities:           equalities,
		factors:              factors,
	}
}

// Add adds expr to the constraint set. A conjunction is split into its two
// conjuncts (each independently simplified and independent-set-tracked,
// matching the teacher's original AddConstraint behavior); a constraint
// that simplifies to constant-true is dropped as trivially satisfied.
func (m *ConstraintManager) Add(expr Expr) {
	if c, ok := expr.(*ConstantExpr); ok {
		assert(c.IsTrue(), "glee.ConstraintManager: cannot add constant-false constraint")
		return
	}
	if b, ok := expr.(*BinaryExpr); ok && b.Op == AND {
		m.Add(b.LHS)
		m.Add(b.RHS)
		return
	}

	expr = m.simplify(expr)
	if c, ok := expr.(*ConstantExpr); ok {
		assert(c.IsTrue(), "glee.ConstraintManager: constraint simplified to false")
		return
	}

	if m.EqualitySubstitution {
		if from, to, ok := m.tryLearnEquality(expr); ok {
			m.rewriteConstraints(from, to)
		}
	}

	m.constraints = append(m.constraints, expr)
	m.updateIndependentSet(expr)
}

// tryLearnEquality records expr as a newly learned equality if it has the
// shape `k == x` for a constant k and x not already known equal to some
// constant, returning x and k so the caller can decide whether to
// substitute it back into the rest of the constraint set. Never learns
// k == (x == y): substituting an Eq expression back into the rest of the
// constraint set would rewrite a boolean comparison as if it were the
// value being compared, which is not sound and would break replay
// determinism.
func (m *ConstraintManager) tryLearnEquality(expr Expr) (Expr, *ConstantExpr, bool) {
	eq, ok := expr.(*BinaryExpr)
	if !ok || eq.Op != EQ {
		return nil, nil, false
	}
	rhs, rhsIsBinary := eq.RHS.(*BinaryExpr)
	if rhsIsBinary && rhs.Op == EQ {
		return nil, nil, false
	}
	lhs, ok := eq.LHS.(*ConstantExpr)
	if !ok {
		return nil, nil, false
	}
	if _, exists := m.equalities[eq.RHS]; exists {
		return nil, nil, false
	}

	m.equalities[eq.RHS] = lhs
	if !m.RewriteEqualities {
		return nil, nil, false
	}
	return eq.RHS, lhs, true
}

// simplify rewrites expr against every equality learned so far, to a fixed
// point, via WalkExpr.
func (m *ConstraintManager) simplify(expr Expr) Expr {
	if len(m.equalities) == 0 {
		return expr
	}
	return WalkExpr(&equalitySubstitutionVisitor{m: m}, expr)
}

// Simplify is the exported form of simplify, used by the executor's
// --simplify-sym-indices (§4.5 "simplify address") to fold a symbolic
// array/slice index against learned equalities before bounds-checking it.
func (m *ConstraintManager) Simplify(expr Expr) Expr {
	return m.simplify(expr)
}

// rewriteConstraints substitutes from with to throughout every constraint
// already in the set, as a newly learned equality. Constraints whose
// rewritten form differs from the original are staged and drained through
// deleteConstraints/updateIndependentSet so the factor they belonged to is
// repaired rather than left pointing at a stale expression (§4.3).
//
// A single substitution pass is not enough to reach the spec's required
// fixed point: WalkExpr's Rebuild re-runs the canonicalizing smart
// constructors (constant folding, and Invariant 4's constant-on-the-left
// ordering), so substituting to into from can turn an unrelated constraint
// into a brand new `k == x` equality that itself needs to be learned and
// substituted. rewriteConstraints therefore checks every rewritten
// constraint for a freshly introduced equality and recurses, matching
// KLEE's checkConstraintChange/updateEqualities cycle
// (Constraints.cpp lines 228-289): it keeps going until a pass learns
// nothing new.
func (m *ConstraintManager) rewriteConstraints(from Expr, to *ConstantExpr) {
	v := &equalitySubstitutionVisitor{m: m}

	var removed, added []Expr
	for i, c := range m.constraints {
		rewritten := WalkExpr(v, c)
		if rewritten == c {
			continue
		}
		m.constraints[i] = rewritten
		removed = append(removed, c)
		added = append(added, rewritten)
	}
	if len(removed) == 0 {
		return
	}

	m.deleteConstraints(removed)
	for _, c := range added {
		m.updateIndependentSet(c)
	}

	for _, c := range added {
		if nextFrom, nextTo, ok := m.tryLearnEquality(c); ok {
			m.rewriteConstraints(nextFrom, nextTo)
		}
	}
}

// deleteConstraints removes every constraint in removed from whichever
// factor currently holds it, then re-partitions that factor's surviving
// members from scratch: each survivor starts life as a fresh singleton
// factor and those singletons are folded back together by
// updateIndependentSet's usual intersects/merge logic. A factor that only
// held together because of a now-deleted bridging constraint can
// therefore split back into multiple independent factors.
//
// Grounded on KLEE's ConstraintManager::updateDelete
// (lib/Expr/Constraints.cpp lines 231-280): it builds a fresh
// IndependentElementSet per surviving expression of each touched factor
// and re-merges them pairwise, rather than trusting the old partition to
// still hold.
func (m *ConstraintManager) deleteConstraints(removed []Expr) {
	toDelete := make(map[Expr]bool, len(removed))
	for _, c := range removed {
		toDelete[c] = true
	}

	var survivors []Expr
	remaining := make([]*independentElementSet, 0, len(m.factors))
	for _, f := range m.factors {
		touched := false
		for _, c := range f.constraints {
			if toDelete[c] {
				touched = true
				break
			}
		}
		if !touched {
			remaining = append(remaining, f)
			continue
		}
		for _, c := range f.constraints {
			if !toDelete[c] {
				survivors = append(survivors, c)
			}
		}
	}

	m.factors = remaining
	for _, c := range survivors {
		m.updateIndependentSet(c)
	}
}

// updateIndependentSet folds expr's footprint into the partition: it
// starts a new singleton factor for expr, merges in every existing factor
// that intersects it (there may be several, each bridged together by
// expr's own footprint), and replaces them with the single merged result.
func (m *ConstraintManager) updateIndependentSet(expr Expr) {
	next := newIndependentElementSet(expr)

	remaining := make([]*independentElementSet, 0, len(m.factors))
	for _, f := range m.factors {
		if f.intersects(next) {
			next.merge(f)
		} else {
			remaining = append(remaining, f)
		}
	}
	m.factors = append(remaining, next)
}

// equalitySubstitutionVisitor replaces every occurrence of a
// previously-learned equality's RHS with its known constant value.
// Matching relies on interning: a structurally-equal subexpression
// elsewhere in the DAG is the same pointer as the map key, so lookup is a
// plain map hit rather than a structural compare.
type equalitySubstitutionVisitor struct {
	m *ConstraintManager
}

func (v *equalitySubstitutionVisitor) Visit(expr Expr) (Expr, ExprVisitor) {
	if c, ok := v.m.equalities[expr]; ok {
		return c, nil
	}
	return expr, v
}
