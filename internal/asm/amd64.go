package asm

// Reg is an x86-64 general purpose register number.
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// Cond is a condition code for Jcc.
type Cond uint8

const (
	CondB  Cond = 0x2 // unsigned <
	CondAE Cond = 0x3 // unsigned >=
	CondE  Cond = 0x4
	CondNE Cond = 0x5
	CondBE Cond = 0x6 // unsigned <=
	CondA  Cond = 0x7 // unsigned >
	CondS  Cond = 0x8
	CondL  Cond = 0xC // signed <
	CondGE Cond = 0xD
	CondLE Cond = 0xE
	CondG  Cond = 0xF
)

const rexW = 0x48

// rex emits a REX prefix when one is needed. w selects 64-bit operands.
func (c *Code) rex(w bool, reg, base Reg) {
	p := byte(0x40)
	if w {
		p |= 0x08
	}
	if reg >= R8 {
		p |= 0x04
	}
	if base >= R8 {
		p |= 0x01
	}
	if p != 0x40 {
		c.Emit(p)
	}
}

// modrmReg encodes a register-direct operand.
func (c *Code) modrmReg(reg, rm Reg) {
	c.Emit(0xC0 | byte(reg&7)<<3 | byte(rm&7))
}

// modrmMem encodes [base+disp], picking the shortest displacement.
func (c *Code) modrmMem(reg, base Reg, disp int32) {
	r, b := byte(reg&7)<<3, byte(base&7)
	switch {
	case disp == 0 && b != 5:
		c.Emit(r | b)
		if b == 4 {
			c.Emit(0x24)
		}
	case disp >= -128 && disp <= 127:
		c.Emit(0x40 | r | b)
		if b == 4 {
			c.Emit(0x24)
		}
		c.Imm8(int8(disp))
	default:
		c.Emit(0x80 | r | b)
		if b == 4 {
			c.Emit(0x24)
		}
		c.Imm32(uint32(disp))
	}
}

// MovLoad emits mov dst, qword [base+disp].
func (c *Code) MovLoad(dst, base Reg, disp int32) {
	c.rex(true, dst, base)
	c.Emit(0x8B)
	c.modrmMem(dst, base, disp)
}

// MovLoad32 emits mov dst32, dword [base+disp].
func (c *Code) MovLoad32(dst, base Reg, disp int32) {
	c.rex(false, dst, base)
	c.Emit(0x8B)
	c.modrmMem(dst, base, disp)
}

// MovStore emits mov qword [base+disp], src.
func (c *Code) MovStore(base Reg, disp int32, src Reg) {
	c.rex(true, src, base)
	c.Emit(0x89)
	c.modrmMem(src, base, disp)
}

// MovStoreImm emits mov qword [base+disp], imm32 (sign-extended).
func (c *Code) MovStoreImm(base Reg, disp, imm int32) {
	c.rex(true, 0, base)
	c.Emit(0xC7)
	c.modrmMem(0, base, disp)
	c.Imm32(uint32(imm))
}

// Mov emits mov dst, src (64-bit).
func (c *Code) Mov(dst, src Reg) {
	c.rex(true, src, dst)
	c.Emit(0x89)
	c.modrmReg(src, dst)
}

// MovImm32 emits mov dst32, imm32, zero-extending into dst.
func (c *Code) MovImm32(dst Reg, imm uint32) {
	c.rex(false, 0, dst)
	c.Emit(0xB8 + byte(dst&7))
	c.Imm32(imm)
}

// MovAddr emits mov dst, imm64 where the immediate is the address of l.
func (c *Code) MovAddr(dst Reg, l *Label) {
	c.rex(true, 0, dst)
	c.Emit(0xB8 + byte(dst&7))
	c.Abs64(l)
}

// Lea emits lea dst, [base+disp].
func (c *Code) Lea(dst, base Reg, disp int32) {
	c.rex(true, dst, base)
	c.Emit(0x8D)
	c.modrmMem(dst, base, disp)
}

// Lea32 emits lea dst32, [base+disp].
func (c *Code) Lea32(dst, base Reg, disp int32) {
	c.rex(false, dst, base)
	c.Emit(0x8D)
	c.modrmMem(dst, base, disp)
}

// MovzxLoad8 emits movzx dst32, byte [base+disp].
func (c *Code) MovzxLoad8(dst, base Reg, disp int32) {
	c.rex(false, dst, base)
	c.Emit(0x0F, 0xB6)
	c.modrmMem(dst, base, disp)
}

// CmpMemImm emits cmp qword [base+disp], imm.
func (c *Code) CmpMemImm(base Reg, disp, imm int32) {
	c.rex(true, 0, base)
	if imm >= -128 && imm <= 127 {
		c.Emit(0x83)
		c.modrmMem(7, base, disp)
		c.Imm8(int8(imm))
		return
	}
	c.Emit(0x81)
	c.modrmMem(7, base, disp)
	c.Imm32(uint32(imm))
}

// CmpLoad emits cmp reg, qword [base+disp].
func (c *Code) CmpLoad(reg, base Reg, disp int32) {
	c.rex(true, reg, base)
	c.Emit(0x3B)
	c.modrmMem(reg, base, disp)
}

// Cmp emits cmp a, b (64-bit), setting flags for a-b.
func (c *Code) Cmp(a, b Reg) {
	c.rex(true, b, a)
	c.Emit(0x39)
	c.modrmReg(b, a)
}

// Test emits test a, b (64-bit).
func (c *Code) Test(a, b Reg) {
	c.rex(true, b, a)
	c.Emit(0x85)
	c.modrmReg(b, a)
}

// Test32 emits test a32, b32.
func (c *Code) Test32(a, b Reg) {
	c.rex(false, b, a)
	c.Emit(0x85)
	c.modrmReg(b, a)
}

// TestImm32 emits test r32, imm32.
func (c *Code) TestImm32(r Reg, imm uint32) {
	if r == RAX {
		c.Emit(0xA9)
	} else {
		c.rex(false, 0, r)
		c.Emit(0xF7)
		c.modrmReg(0, r)
	}
	c.Imm32(imm)
}

// TestMem8 emits test byte [base+disp], imm8.
func (c *Code) TestMem8(base Reg, disp int32, imm byte) {
	c.rex(false, 0, base)
	c.Emit(0xF6)
	c.modrmMem(0, base, disp)
	c.Emit(imm)
}

// OrMem8 emits or byte [base+disp], imm8.
func (c *Code) OrMem8(base Reg, disp int32, imm byte) {
	c.rex(false, 0, base)
	c.Emit(0x80)
	c.modrmMem(1, base, disp)
	c.Emit(imm)
}

// alu8 emits an 0x80-group operation on the low byte of r. Only the legacy
// byte registers AL, CL, DL and BL are accepted without a REX prefix.
func (c *Code) alu8(ext byte, r Reg, imm byte) {
	if r >= RSP {
		c.Emit(0x40 | byte(r>>3))
	}
	c.Emit(0x80)
	c.modrmReg(Reg(ext), r)
	c.Emit(imm)
}

// CmpImm8 emits cmp r8, imm8.
func (c *Code) CmpImm8(r Reg, imm byte) { c.alu8(7, r, imm) }

// SubImm8 emits sub r8, imm8.
func (c *Code) SubImm8(r Reg, imm byte) { c.alu8(5, r, imm) }

// alu32 emits an 0x83-group operation with a sign-extended imm8 on r32.
func (c *Code) alu32(ext byte, r Reg, imm int8) {
	c.rex(false, 0, r)
	c.Emit(0x83)
	c.modrmReg(Reg(ext), r)
	c.Imm8(imm)
}

// CmpImm32 emits cmp r32, imm8.
func (c *Code) CmpImm32(r Reg, imm int8) { c.alu32(7, r, imm) }

// AndImm32 emits and r32, imm8.
func (c *Code) AndImm32(r Reg, imm int8) { c.alu32(4, r, imm) }

// Sbb32 emits sbb dst32, src32.
func (c *Code) Sbb32(dst, src Reg) {
	c.rex(false, src, dst)
	c.Emit(0x19)
	c.modrmReg(src, dst)
}

// Or32 emits or dst32, src32.
func (c *Code) Or32(dst, src Reg) {
	c.rex(false, src, dst)
	c.Emit(0x09)
	c.modrmReg(src, dst)
}

// Xor32 emits xor dst32, src32.
func (c *Code) Xor32(dst, src Reg) {
	c.rex(false, src, dst)
	c.Emit(0x31)
	c.modrmReg(src, dst)
}

// Not32 emits not r32.
func (c *Code) Not32(r Reg) {
	c.rex(false, 0, r)
	c.Emit(0xF7)
	c.modrmReg(2, r)
}

// Sub emits sub dst, src (64-bit).
func (c *Code) Sub(dst, src Reg) {
	c.rex(true, src, dst)
	c.Emit(0x29)
	c.modrmReg(src, dst)
}

// AddLoad emits add dst, qword [base+disp].
func (c *Code) AddLoad(dst, base Reg, disp int32) {
	c.rex(true, dst, base)
	c.Emit(0x03)
	c.modrmMem(dst, base, disp)
}

// ShrImm emits shr r, imm8 (64-bit).
func (c *Code) ShrImm(r Reg, imm byte) {
	c.rex(true, 0, r)
	c.Emit(0xC1)
	c.modrmReg(5, r)
	c.Emit(imm)
}

// Push emits push r.
func (c *Code) Push(r Reg) {
	c.rex(false, 0, r)
	c.Emit(0x50 + byte(r&7))
}

// Pop emits pop r.
func (c *Code) Pop(r Reg) {
	c.rex(false, 0, r)
	c.Emit(0x58 + byte(r&7))
}

// Call emits call rel32 to l.
func (c *Code) Call(l *Label) {
	c.Emit(0xE8)
	c.Rel32(l)
}

// Jmp emits jmp rel32 to l.
func (c *Code) Jmp(l *Label) {
	c.Emit(0xE9)
	c.Rel32(l)
}

// Jcc emits a conditional jmp rel32 to l.
func (c *Code) Jcc(cc Cond, l *Label) {
	c.Emit(0x0F, 0x80|byte(cc))
	c.Rel32(l)
}

// JmpReg emits jmp r.
func (c *Code) JmpReg(r Reg) {
	c.rex(false, 0, r)
	c.Emit(0xFF)
	c.modrmReg(4, r)
}

// Ret emits ret.
func (c *Code) Ret() { c.Emit(0xC3) }

// RepMovsq emits rep movsq.
func (c *Code) RepMovsq() { c.Emit(0xF3, rexW, 0xA5) }

// RepStosq emits rep stosq.
func (c *Code) RepStosq() { c.Emit(0xF3, rexW, 0xAB) }
