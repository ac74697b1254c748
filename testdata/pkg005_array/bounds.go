package main

import (
	"github.com/gleelang/glee"
)

func arrayBoundsCheck() {
	var a [4]byte
	a[0], a[1], a[2], a[3] = 10, 20, 30, 40

	i := glee.Int()
	if a[i] == 30 {
		return
	}
	return
}
