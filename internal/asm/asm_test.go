package asm

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodings(t *testing.T) {
	tests := []struct {
		name string
		emit func(c *Code)
		want []byte
	}{
		{"mov rsi, [rdi]", func(c *Code) { c.MovLoad(RSI, RDI, 0) }, []byte{0x48, 0x8B, 0x37}},
		{"mov rax, [rsp+8]", func(c *Code) { c.MovLoad(RAX, RSP, 8) }, []byte{0x48, 0x8B, 0x44, 0x24, 0x08}},
		{"mov rax, [r13]", func(c *Code) { c.MovLoad(RAX, R13, 0) }, []byte{0x49, 0x8B, 0x45, 0x00}},
		{"mov rax, [rdi+0x200]", func(c *Code) { c.MovLoad(RAX, RDI, 0x200) }, []byte{0x48, 0x8B, 0x87, 0x00, 0x02, 0x00, 0x00}},
		{"mov eax, [rdi+24]", func(c *Code) { c.MovLoad32(RAX, RDI, 24) }, []byte{0x8B, 0x47, 0x18}},
		{"mov [rdx], r8", func(c *Code) { c.MovStore(RDX, 0, R8) }, []byte{0x4C, 0x89, 0x02}},
		{"mov qword [rdi+88], 1", func(c *Code) { c.MovStoreImm(RDI, 88, 1) }, []byte{0x48, 0xC7, 0x47, 0x58, 0x01, 0x00, 0x00, 0x00}},
		{"mov r10, rdi", func(c *Code) { c.Mov(R10, RDI) }, []byte{0x49, 0x89, 0xFA}},
		{"mov rdi, r10", func(c *Code) { c.Mov(RDI, R10) }, []byte{0x4C, 0x89, 0xD7}},
		{"mov r8d, 1", func(c *Code) { c.MovImm32(R8, 1) }, []byte{0x41, 0xB8, 0x01, 0x00, 0x00, 0x00}},
		{"lea edx, [rcx-0x41]", func(c *Code) { c.Lea32(RDX, RCX, -'A') }, []byte{0x8D, 0x51, 0xBF}},
		{"lea rdi, [rdx+24]", func(c *Code) { c.Lea(RDI, RDX, 24) }, []byte{0x48, 0x8D, 0x7A, 0x18}},
		{"movzx ecx, byte [rsi+2]", func(c *Code) { c.MovzxLoad8(RCX, RSI, 2) }, []byte{0x0F, 0xB6, 0x4E, 0x02}},
		{"cmp qword [rdi+8], 3", func(c *Code) { c.CmpMemImm(RDI, 8, 3) }, []byte{0x48, 0x83, 0x7F, 0x08, 0x03}},
		{"cmp qword [rdi+8], 300", func(c *Code) { c.CmpMemImm(RDI, 8, 300) }, []byte{0x48, 0x81, 0x7F, 0x08, 0x2C, 0x01, 0x00, 0x00}},
		{"cmp rdx, [rdi+72]", func(c *Code) { c.CmpLoad(RDX, RDI, 72) }, []byte{0x48, 0x3B, 0x57, 0x48}},
		{"cmp rcx, rax", func(c *Code) { c.Cmp(RCX, RAX) }, []byte{0x48, 0x39, 0xC1}},
		{"test rax, rax", func(c *Code) { c.Test(RAX, RAX) }, []byte{0x48, 0x85, 0xC0}},
		{"test eax, eax", func(c *Code) { c.Test32(RAX, RAX) }, []byte{0x85, 0xC0}},
		{"test eax, imm32", func(c *Code) { c.TestImm32(RAX, 0x10) }, []byte{0xA9, 0x10, 0x00, 0x00, 0x00}},
		{"test ecx, imm32", func(c *Code) { c.TestImm32(RCX, 0x10) }, []byte{0xF7, 0xC1, 0x10, 0x00, 0x00, 0x00}},
		{"test byte [rsi+1], 4", func(c *Code) { c.TestMem8(RSI, 1, 4) }, []byte{0xF6, 0x46, 0x01, 0x04}},
		{"or byte [rsi+1], 4", func(c *Code) { c.OrMem8(RSI, 1, 4) }, []byte{0x80, 0x4E, 0x01, 0x04}},
		{"cmp cl, 'a'", func(c *Code) { c.CmpImm8(RCX, 'a') }, []byte{0x80, 0xF9, 0x61}},
		{"sub cl, '0'", func(c *Code) { c.SubImm8(RCX, '0') }, []byte{0x80, 0xE9, 0x30}},
		{"cmp edx, 26", func(c *Code) { c.CmpImm32(RDX, 26) }, []byte{0x83, 0xFA, 0x1A}},
		{"and edx, 0x20", func(c *Code) { c.AndImm32(RDX, 0x20) }, []byte{0x83, 0xE2, 0x20}},
		{"sbb edx, edx", func(c *Code) { c.Sbb32(RDX, RDX) }, []byte{0x19, 0xD2}},
		{"or ecx, edx", func(c *Code) { c.Or32(RCX, RDX) }, []byte{0x09, 0xD1}},
		{"xor eax, eax", func(c *Code) { c.Xor32(RAX, RAX) }, []byte{0x31, 0xC0}},
		{"xor r9d, r9d", func(c *Code) { c.Xor32(R9, R9) }, []byte{0x45, 0x31, 0xC9}},
		{"not eax", func(c *Code) { c.Not32(RAX) }, []byte{0xF7, 0xD0}},
		{"sub rsp, rcx", func(c *Code) { c.Sub(RSP, RCX) }, []byte{0x48, 0x29, 0xCC}},
		{"add rsp, [rdi+80]", func(c *Code) { c.AddLoad(RSP, RDI, 80) }, []byte{0x48, 0x03, 0x67, 0x50}},
		{"shr rcx, 3", func(c *Code) { c.ShrImm(RCX, 3) }, []byte{0x48, 0xC1, 0xE9, 0x03}},
		{"push rdi", func(c *Code) { c.Push(RDI) }, []byte{0x57}},
		{"pop rdi", func(c *Code) { c.Pop(RDI) }, []byte{0x5F}},
		{"push r12", func(c *Code) { c.Push(R12) }, []byte{0x41, 0x54}},
		{"jmp rsi", func(c *Code) { c.JmpReg(RSI) }, []byte{0xFF, 0xE6}},
		{"ret", func(c *Code) { c.Ret() }, []byte{0xC3}},
		{"rep movsq", func(c *Code) { c.RepMovsq() }, []byte{0xF3, 0x48, 0xA5}},
		{"rep stosq", func(c *Code) { c.RepStosq() }, []byte{0xF3, 0x48, 0xAB}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Code{}
			tt.emit(c)
			assert.Equal(t, tt.want, c.Bytes())
		})
	}
}

func TestLinkRelative(t *testing.T) {
	c := &Code{}
	back := c.NewLabel("back")
	fwd := c.NewLabel("fwd")

	c.Mark(back)
	c.Jcc(CondNE, fwd) // 0..5, rel at 2
	c.Call(back)       // 6..10, rel at 7
	c.Jmp(fwd)         // 11..15, rel at 12
	c.Mark(fwd)        // 16
	c.Ret()

	dst := make([]byte, c.Len())
	require.NoError(t, c.Link(dst, 0x1000))

	rel := func(site int) int32 { return int32(binary.LittleEndian.Uint32(dst[site:])) }
	assert.Equal(t, []byte{0x0F, 0x85}, dst[0:2])
	assert.Equal(t, int32(16-2-4), rel(2))
	assert.Equal(t, byte(0xE8), dst[6])
	assert.Equal(t, int32(0-7-4), rel(7))
	assert.Equal(t, int32(0), rel(12), "jump to the next instruction")
	assert.Equal(t, 16, fwd.Offset())
}

func TestLinkAbsolute(t *testing.T) {
	c := &Code{}
	target := c.NewLabel("target")
	c.MovAddr(RSI, target)
	c.Ret()
	c.Mark(target)
	c.Ret()

	dst := make([]byte, c.Len())
	require.NoError(t, c.Link(dst, 0x7000_0000))
	assert.Equal(t, []byte{0x48, 0xBE}, dst[:2])
	assert.Equal(t, uint64(0x7000_0000+11), binary.LittleEndian.Uint64(dst[2:]))

	// Finalize uses the destination's own address.
	fin := make([]byte, c.Len()+16)
	require.NoError(t, c.Finalize(fin))
	assert.NotEqual(t, uint64(0x7000_0000+11), binary.LittleEndian.Uint64(fin[2:]))
	assert.Equal(t, c.Bytes()[10:], fin[10:c.Len()])
}

func TestLinkErrors(t *testing.T) {
	c := &Code{}
	unused := c.NewLabel("unused")
	missing := c.NewLabel("missing")
	c.Jmp(missing)

	err := c.Link(make([]byte, c.Len()), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolved))
	assert.Contains(t, err.Error(), "missing")
	assert.Equal(t, -1, unused.Offset())

	c.Mark(missing)
	assert.Error(t, c.Link(make([]byte, 1), 0), "short destination")
	assert.NoError(t, c.Link(make([]byte, c.Len()), 0))
	assert.Panics(t, func() { c.Mark(missing) })
}
