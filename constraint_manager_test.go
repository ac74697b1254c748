package glee_test

import (
	"testing"

	"github.com/gleelang/glee"
	"github.com/stretchr/testify/require"
)

func TestConstraintManager_LearnsSimpleEquality(t *testing.T) {
	cm := glee.NewConstraintManager()

	a := glee.NewArray(1, 4)
	x := a.Select(glee.NewConstantExpr32(0), 32, true)

	cm.Add(glee.NewBinaryExpr(glee.EQ, glee.NewConstantExpr32(7), x))
	require.Len(t, cm.All(), 1)

	// A later constraint referencing x should come back rewritten in terms
	// of the learned constant.
	y := a.Select(glee.NewConstantExpr32(4), 32, true)
	cm.Add(glee.NewBinaryExpr(glee.EQ, x, y))

	found := false
	for _, c := range cm.All() {
		if b, ok := c.(*glee.BinaryExpr); ok && b.Op == glee.EQ {
			if _, ok := b.LHS.(*glee.ConstantExpr); ok {
				found = true
			}
		}
	}
	require.True(t, found, "constraint referencing a learned equality should be rewritten in terms of its constant")
}

func TestConstraintManager_ChainedRewriteReachesFixedPoint(t *testing.T) {
	cm := glee.NewConstraintManager()

	a := glee.NewArray(1, 4)
	b := glee.NewArray(2, 4)
	c := glee.NewArray(3, 4)
	x := a.Select(glee.NewConstantExpr32(0), 32, true)
	y := b.Select(glee.NewConstantExpr32(0), 32, true)
	z := c.Select(glee.NewConstantExpr32(0), 32, true)

	cm.Add(glee.NewBinaryExpr(glee.EQ, glee.NewConstantExpr32(7), x))

	// y == x + 1 simplifies against the x == 7 equality, and the
	// canonicalizing constructors fold the result into a fresh y == 8
	// equality. That new equality must itself be learned and substituted,
	// without requiring a second Add call.
	cm.Add(glee.NewBinaryExpr(glee.EQ, y, glee.NewBinaryExpr(glee.ADD, x, glee.NewConstantExpr32(1))))

	// A constraint referencing y, added afterward, should come back already
	// rewritten in terms of the chained-through constant 8.
	cm.Add(glee.NewBinaryExpr(glee.EQ, y, z))

	found := false
	for _, c := range cm.All() {
		if b, ok := c.(*glee.BinaryExpr); ok && b.Op == glee.EQ {
			if lhs, ok := b.LHS.(*glee.ConstantExpr); ok && lhs.Value == 8 {
				found = true
			}
		}
	}
	require.True(t, found, "chained substitution through y == x+1 should learn y == 8 and rewrite later constraints with it")
}

func TestConstraintManager_DeleteRepartitionsSplitFactor(t *testing.T) {
	cm := glee.NewConstraintManager()

	arrA := glee.NewArray(1, 4)
	arrB := glee.NewArray(2, 4)
	arrIdxA := glee.NewArray(3, 4)
	arrIdxB := glee.NewArray(4, 4)

	// idxA/idxB are themselves symbolic (read through another array), which
	// makes extraA/extraB's access to arrA/arrB a whole-array footprint
	// rather than a single constant byte, so each one alone intersects
	// whatever the bridge below touches on its side.
	idxA := arrIdxA.Select(glee.NewConstantExpr32(0), 32, true)
	idxB := arrIdxB.Select(glee.NewConstantExpr32(0), 32, true)
	extraA := glee.NewBinaryExpr(glee.NE, arrA.Select(idxA, 32, true), glee.NewConstantExpr32(3))
	extraB := glee.NewBinaryExpr(glee.NE, arrB.Select(idxB, 32, true), glee.NewConstantExpr32(7))

	x := arrA.Select(glee.NewConstantExpr32(0), 32, true)
	y := arrB.Select(glee.NewConstantExpr32(0), 32, true)

	cm.Add(extraA)
	cm.Add(extraB)
	cm.Add(glee.NewBinaryExpr(glee.EQ, x, y)) // bridges arrA and arrB into one factor
	require.Len(t, cm.Factors(), 1, "the x == y bridge should merge extraA's and extraB's otherwise-independent factors")

	// Learning x == 9 rewrites the bridge to 9 == y (and on, by the same
	// fixed point, to whatever that folds to); either way x's array and y's
	// array no longer share a constraint once the bridge is gone, so
	// extraA and extraB must end up in separate factors rather than stuck
	// together in the stale pre-rewrite partition.
	cm.Add(glee.NewBinaryExpr(glee.EQ, glee.NewConstantExpr32(9), x))

	factors := cm.Factors()
	factorOf := func(target glee.Expr) int {
		for i, f := range factors {
			for _, c := range f {
				if c == target {
					return i
				}
			}
		}
		return -1
	}
	require.NotEqual(t, -1, factorOf(extraA))
	require.NotEqual(t, -1, factorOf(extraB))
	require.NotEqual(t, factorOf(extraA), factorOf(extraB),
		"extraA and extraB no longer share a bridging constraint and must be re-partitioned into separate factors")
}

func TestConstraintManager_DoesNotLearnThroughNestedEquality(t *testing.T) {
	cm := glee.NewConstraintManager()

	arrA := glee.NewArray(1, 4)
	arrB := glee.NewArray(2, 4)
	a := arrA.Select(glee.NewConstantExpr32(0), 32, true)
	b := arrB.Select(glee.NewConstantExpr32(0), 32, true)

	inner := glee.NewBinaryExpr(glee.EQ, a, b)
	outer := glee.NewBinaryExpr(glee.EQ, glee.NewConstantExpr(0, glee.WidthBool), inner)

	cm.Add(outer)

	// outer's RHS is itself an Eq expression (a == b): the guard must skip
	// learning it as a substitutable equality. A later constraint mentioning
	// `inner` should therefore survive untouched rather than being rewritten
	// away to a boolean constant.
	cm.Add(glee.NewBinaryExpr(glee.AND, inner, glee.NewConstantExpr(1, glee.WidthBool)))

	for _, c := range cm.All() {
		if c == inner {
			return
		}
	}
	t.Fatalf("expected the nested equality to survive unsubstituted, got: %v", cm.All())
}
