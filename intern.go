package glee

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// kindTag distinguishes expression kinds when mixing structural hashes.
// Values are arbitrary but must stay stable for a given process run.
type kindTag uint64

const (
	kindConstant     = kindTag(1)
	kindNotOptimized = kindTag(2)
	kindSelect       = kindTag(3)
	kindConcat       = kindTag(4)
	kindExtract      = kindTag(5)
	kindNot          = kindTag(6)
	kindCast         = kindTag(7)
	kindBinary       = kindTag(8)
	kindArray        = kindTag(9)
	kindArrayUpdate  = kindTag(10)
)

// mixHash folds a running hash with an additional 64-bit word, xxhash-style.
// Grounded on borzacchiello-gosmt's per-kind xxhash.New() digesters: rather
// than allocate a fresh hash.Hash64 per node, this feeds each node's
// constituent words through a single xxhash.Sum64 call over their bytes.
func mixHash(seed uint64, words ...uint64) uint64 {
	buf := make([]byte, 8*(len(words)+1))
	putUint64(buf[0:8], seed)
	for i, w := range words {
		putUint64(buf[8*(i+1):8*(i+2)], w)
	}
	return xxhash.Sum64(buf)
}

func putUint64(b []byte, v uint64) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}

// hasher is implemented by every Expr node to support hash-consing.
type hasher interface {
	Expr
	hash() uint64
	setHash(uint64)
}

// exprHash returns the structural hash of any expression node, used by
// parent nodes to mix their children's hashes into their own.
func exprHash(e Expr) uint64 {
	if e == nil {
		return 0
	}
	h, ok := e.(hasher)
	if !ok {
		panic("glee: expression does not implement hasher")
	}
	return h.hash()
}

// ExprHash exposes the structural hash of an expression (see Property 1,
// "for every two expressions a, b that are structurally equal, hash(a) =
// hash(b)").
func ExprHash(e Expr) uint64 { return exprHash(e) }

// internTable deduplicates structurally-equal expression nodes. Entries are
// keyed by structural hash with a bucket per hash to resolve collisions by
// a full structural compare (CompareExpr), exactly as the interning table
// described in the expression algebra is specified to behave: content
// equivalence implies pointer identity after interning.
//
// The engine runs single-threaded cooperative (one state stepped at a time),
// so this table carries no lock of its own; callers that step concurrently
// must serialize around it.
type internTable struct {
	buckets map[uint64][]Expr
}

var globalInternTable = &internTable{buckets: make(map[uint64][]Expr)}

func internExpr[T hasher](e T) T {
	h := e.hash()
	bucket := globalInternTable.buckets[h]
	for _, cand := range bucket {
		if cand, ok := cand.(T); ok && CompareExpr(cand, e) == 0 {
			return cand
		}
	}
	globalInternTable.buckets[h] = append(bucket, e)
	return e
}

// compareCacheKey identifies an ordered pair of already-interned nodes.
type compareCacheKey struct {
	a, b Expr
}

// compareCache memoizes CompareExpr results for interned pairs. Its
// lifetime is bracketed by a reference-counted semaphore: entries are only
// trustworthy while at least one caller holds the semaphore open, because
// once it drops to zero the cache is cleared and any pointers a caller
// squirreled away become meaningless. Open Question 2 of the design notes
// permits an id-keyed alternative instead; this implementation picks the
// bracketed-semaphore variant because it matches the teacher's preference
// for explicit, caller-visible lifetimes over a background GC pass.
type compareCache struct {
	sem     int32
	entries map[compareCacheKey]int
}

var globalCompareCache = &compareCache{entries: make(map[compareCacheKey]int)}

// AcquireCompareCache opens the compare-cache for the duration of a scope.
// Callers must call the returned release function exactly once.
func AcquireCompareCache() (release func()) {
	atomic.AddInt32(&globalCompareCache.sem, 1)
	return func() {
		if atomic.AddInt32(&globalCompareCache.sem, -1) == 0 {
			globalCompareCache.entries = make(map[compareCacheKey]int)
		}
	}
}

func (c *compareCache) lookup(a, b Expr) (int, bool) {
	if atomic.LoadInt32(&c.sem) == 0 {
		return 0, false
	}
	v, ok := c.entries[compareCacheKey{a, b}]
	return v, ok
}

func (c *compareCache) store(a, b Expr, result int) {
	if atomic.LoadInt32(&c.sem) == 0 {
		return
	}
	c.entries[compareCacheKey{a, b}] = result
}
