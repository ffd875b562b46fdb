//go:build linux && amd64

package jit

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/KromDaniel/rejit/internal/asm"
)

const supported = true

// install maps fresh memory, links code into it and makes it executable.
func install(code *asm.Code) ([]byte, error) {
	page := unix.Getpagesize()
	size := (code.Len() + page - 1) &^ (page - 1)
	if size == 0 {
		size = page
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	if err := code.Finalize(mem); err != nil {
		_ = unix.Munmap(mem)
		return nil, err
	}
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("mprotect: %w", err)
	}
	return mem, nil
}

func release(mem []byte) error {
	if mem == nil {
		return nil
	}
	return unix.Munmap(mem)
}

// callNative switches to the native stack, calls stub with the frame in RDI
// and the entry in RSI, and returns RAX.
//
//go:noescape
func callNative(stub, frame, stack, entry uintptr) uint64
