// Package asm is an append-only machine code buffer with labels and
// deferred relocations, plus x86-64 instruction encoders on top of it.
// Nothing here maps memory; Finalize links into any byte slice.
package asm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

// ErrUnresolved is returned by Finalize when a referenced label was never
// marked.
var ErrUnresolved = errors.New("unresolved label")

// Label is a position in a Code buffer. Its offset is unknown until Mark.
type Label struct {
	name   string
	offset int
	abs    []int
	rel    []int
}

// Offset returns the marked offset, or -1.
func (l *Label) Offset() int { return l.offset }

func (l *Label) String() string {
	if l.name != "" {
		return l.name
	}
	return fmt.Sprintf("L@%d", l.offset)
}

// Code accumulates instructions and the labels they reference.
type Code struct {
	buf    []byte
	labels []*Label
}

// NewLabel creates an unmarked label. The name is used in errors only.
func (c *Code) NewLabel(name string) *Label {
	l := &Label{name: name, offset: -1}
	c.labels = append(c.labels, l)
	return l
}

// Mark binds l to the current offset. A label can be marked once.
func (c *Code) Mark(l *Label) {
	if l.offset >= 0 {
		panic(fmt.Sprintf("asm: label %s marked twice", l))
	}
	l.offset = len(c.buf)
}

// Len returns the number of bytes emitted so far.
func (c *Code) Len() int { return len(c.buf) }

// Bytes returns the unlinked buffer.
func (c *Code) Bytes() []byte { return c.buf }

// Emit appends raw bytes.
func (c *Code) Emit(b ...byte) { c.buf = append(c.buf, b...) }

// Imm8 appends a byte immediate.
func (c *Code) Imm8(v int8) { c.buf = append(c.buf, byte(v)) }

// Imm32 appends a little-endian 32-bit immediate.
func (c *Code) Imm32(v uint32) { c.buf = binary.LittleEndian.AppendUint32(c.buf, v) }

// Imm64 appends a little-endian 64-bit immediate.
func (c *Code) Imm64(v uint64) { c.buf = binary.LittleEndian.AppendUint64(c.buf, v) }

// Abs64 appends a placeholder for the absolute address of l.
func (c *Code) Abs64(l *Label) {
	l.abs = append(l.abs, len(c.buf))
	c.Imm64(0)
}

// Rel32 appends a placeholder for the displacement from the end of the
// placeholder to l.
func (c *Code) Rel32(l *Label) {
	l.rel = append(l.rel, len(c.buf))
	c.Imm32(0)
}

// Finalize copies the code into dst and patches every relocation as if dst
// were loaded at its own address.
func (c *Code) Finalize(dst []byte) error {
	if len(dst) < len(c.buf) {
		return fmt.Errorf("asm: destination holds %d bytes, need %d", len(dst), len(c.buf))
	}
	var base uintptr
	if len(dst) > 0 {
		base = uintptr(unsafe.Pointer(&dst[0]))
	}
	return c.Link(dst, base)
}

// Link copies the code into dst and patches relocations for a load
// address of base.
func (c *Code) Link(dst []byte, base uintptr) error {
	if len(dst) < len(c.buf) {
		return fmt.Errorf("asm: destination holds %d bytes, need %d", len(dst), len(c.buf))
	}
	for _, l := range c.labels {
		if l.offset < 0 && (len(l.abs) > 0 || len(l.rel) > 0) {
			return fmt.Errorf("%w: %s", ErrUnresolved, l)
		}
	}
	copy(dst, c.buf)
	for _, l := range c.labels {
		for _, site := range l.abs {
			binary.LittleEndian.PutUint64(dst[site:], uint64(base)+uint64(l.offset))
		}
		for _, site := range l.rel {
			binary.LittleEndian.PutUint32(dst[site:], uint32(int32(l.offset-site-4)))
		}
	}
	return nil
}
