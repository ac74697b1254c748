package main

import "github.com/gleelang/glee"

// derefOneOfTwo loads a pointer out of one of two slots picked by a
// symbolic index, then dereferences it. The address isn't known until the
// index is, so the engine has to resolve it against every live allocation
// rather than a single constant target.
func derefOneOfTwo() byte {
	a := new(byte)
	b := new(byte)
	*a = 7
	*b = 9

	ptrs := [2]*byte{a, b}
	i := glee.Int()
	p := ptrs[i]
	return *p
}

// derefMaybeNil leaves the second slot unset, so the same symbolic choice
// can also produce a nil pointer that names no live allocation at all.
func derefMaybeNil() byte {
	a := new(byte)
	*a = 7

	var ptrs [2]*byte
	ptrs[0] = a
	i := glee.Int()
	p := ptrs[i]
	return *p
}
