//go:build !linux || !amd64

package jit

import "github.com/KromDaniel/rejit/internal/asm"

const supported = false

func install(*asm.Code) ([]byte, error) { return nil, ErrUnsupported }

func release([]byte) error { return nil }

func callNative(stub, frame, stack, entry uintptr) uint64 {
	panic("jit: native code is not supported on this platform")
}
