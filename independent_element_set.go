package glee

// independentElementSet is one factor of the constraint set's
// independent-element-set partition (§4.3): a group of constraints that
// read or write a common array footprint, together with that footprint.
// Two factors sharing any part of their footprint must be merged into one,
// since a solver assignment for one necessarily constrains the other.
//
// Grounded on KLEE's IndependentElementSet (lib/Solver/IndependentSolver.cpp):
// "whole" arrays are ones touched through a symbolic index anywhere in the
// factor (the entire array must be treated as one unit), "bytes" arrays are
// ones touched only at constant offsets, tracked per offset so two factors
// that write disjoint constant bytes of the same array stay independent.
type independentElementSet struct {
	constraints []Expr
	whole       map[uint64]*Array
	bytes       map[uint64]map[uint64]bool
}

// arrayFootprintVisitor records, for every SelectExpr reachable from the
// walked expression, whether the array it reads is accessed at a constant
// offset or a symbolic one.
type arrayFootprintVisitor struct {
	whole map[uint64]*Array
	bytes map[uint64]map[uint64]bool
}

func newArrayFootprintVisitor() *arrayFootprintVisitor {
	return &arrayFootprintVisitor{
		whole: make(map[uint64]*Array),
		bytes: make(map[uint64]map[uint64]bool),
	}
}

func (v *arrayFootprintVisitor) Visit(expr Expr) (Expr, ExprVisitor) {
	sel, ok := expr.(*SelectExpr)
	if !ok {
		return expr, v
	}

	id := sel.Array.ID
	if _, isWhole := v.whole[id]; isWhole {
		return expr, v
	}

	c, ok := sel.Index.(*ConstantExpr)
	if !ok {
		v.whole[id] = sel.Array
		delete(v.bytes, id)
		return expr, v
	}

	set, ok := v.bytes[id]
	if !ok {
		set = make(map[uint64]bool)
		v.bytes[id] = set
	}
	set[c.Value] = true
	return expr, v
}

// newIndependentElementSet returns a singleton factor containing only expr.
func newIndependentElementSet(expr Expr) *independentElementSet {
	v := newArrayFootprintVisitor()
	WalkExpr(v, expr)
	return &independentElementSet{
		constraints: []Expr{expr},
		whole:       v.whole,
		bytes:       v.bytes,
	}
}

func (ies *independentElementSet) clone() *independentElementSet {
	constraints := make([]Expr, len(ies.constraints))
	copy(constraints, ies.constraints)

	whole := make(map[uint64]*Array, len(ies.whole))
	for id, array := range ies.whole {
		whole[id] = array
	}

	bytes := make(map[uint64]map[uint64]bool, len(ies.bytes))
	for id, set := range ies.bytes {
		clonedSet := make(map[uint64]bool, len(set))
		for b := range set {
			clonedSet[b] = true
		}
		bytes[id] = clonedSet
	}

	return &independentElementSet{constraints: constraints, whole: whole, bytes: bytes}
}

// intersects reports whether ies and other touch a common array byte.
func (ies *independentElementSet) intersects(other *independentElementSet) bool {
	for id := range ies.whole {
		if _, ok := other.whole[id]; ok {
			return true
		}
		if _, ok := other.bytes[id]; ok {
			return true
		}
	}
	for id, set := range ies.bytes {
		if _, ok := other.whole[id]; ok {
			return true
		}
		if otherSet, ok := other.bytes[id]; ok {
			for b := range set {
				if otherSet[b] {
					return true
				}
			}
		}
	}
	return false
}

// merge folds other's constraints and footprint into ies.
func (ies *independentElementSet) merge(other *independentElementSet) {
	ies.constraints = append(ies.constraints, other.constraints...)

	for id, array := range other.whole {
		ies.whole[id] = array
		delete(ies.bytes, id)
	}
	for id, set := range other.bytes {
		if _, isWhole := ies.whole[id]; isWhole {
			continue
		}
		existing, ok := ies.bytes[id]
		if !ok {
			existing = make(map[uint64]bool)
			ies.bytes[id] = existing
		}
		for b := range set {
			existing[b] = true
		}
	}
}

// footprintArrays returns every array this factor's footprint touches,
// whole or by byte, used to decide which symbolic arrays a
// per-factor ComputeInitialValues call needs to solve for.
func (ies *independentElementSet) footprintArrays() []*Array {
	arrays := make([]*Array, 0, len(ies.whole)+len(ies.bytes))
	seen := make(map[uint64]bool)
	for id, array := range ies.whole {
		if !seen[id] {
			seen[id] = true
			arrays = append(arrays, array)
		}
	}
	for id := range ies.bytes {
		if seen[id] {
			continue
		}
		// A byte-only factor still needs the array object itself to solve
		// for; recover it from the first constraint that mentions it.
		for _, c := range ies.constraints {
			found := false
			for _, array := range FindArrays(c) {
				if array.ID == id {
					seen[id] = true
					arrays = append(arrays, array)
					found = true
					break
				}
			}
			if found {
				break
			}
		}
	}
	return arrays
}
