package jit

import (
	"fmt"

	"github.com/KromDaniel/rejit/internal/asm"
	"github.com/KromDaniel/rejit/internal/automaton"
	"github.com/KromDaniel/rejit/internal/nfa"
)

// Outbox records written by generated code. Each record is four words
// (kind, entry, arg, visit id) followed by a copy of the working captures.
const (
	recWait uint64 = iota
	recMatch
	recExt // arg is kind<<8 | ext arg

	recHeader = 4
)

// Image is emitted but unlinked code.
type Image struct {
	Code   *asm.Code
	Stub   *asm.Label   // entry trampoline, first block
	Blocks []*asm.Label // by instruction index, nil when not entered
}

// Registers:
//
//	RDI  frame pointer, preserved by every block
//	RSI  entry address on stub entry, scratch elsewhere
//	EAX  result: nonzero once a match has been recorded
//	RCX RDX R8 R9 R10  scratch
type emitter struct {
	c      *asm.Code
	a      *automaton.Automaton
	an     *automaton.Analysis
	blocks []*asm.Label
	next   *asm.Label

	stub, retFalse, ret, record, overflow *asm.Label
}

// Emit generates one native block per entered instruction of a.
func Emit(a *automaton.Automaton, an *automaton.Analysis) (*Image, error) {
	c := &asm.Code{}
	e := &emitter{
		c:      c,
		a:      a,
		an:     an,
		blocks: make([]*asm.Label, a.Len()),
	}
	e.stub = c.NewLabel("stub")
	e.retFalse = c.NewLabel("ret0")
	e.ret = c.NewLabel("ret")
	e.record = c.NewLabel("record")
	e.overflow = c.NewLabel("overflow")

	e.emitStub()
	e.emitRuntime()
	for i, pc := range an.Blocks {
		e.next = nil
		if i+1 < len(an.Blocks) {
			e.next = e.block(an.Blocks[i+1])
		}
		if err := e.emitBlock(pc); err != nil {
			return nil, err
		}
	}
	return &Image{Code: c, Stub: e.stub, Blocks: e.blocks}, nil
}

func (e *emitter) block(pc int) *asm.Label {
	if e.blocks[pc] == nil {
		e.blocks[pc] = e.c.NewLabel(fmt.Sprintf("inst%d", pc))
	}
	return e.blocks[pc]
}

// jump transfers to l unless l is the block emitted next.
func (e *emitter) jump(l *asm.Label) {
	if l != e.next {
		e.c.Jmp(l)
	}
}

// emitStub jumps to the entry in RSI. The host has already prepared the
// visited bitmap for the thread.
func (e *emitter) emitStub() {
	c := e.c
	c.Mark(e.stub)
	c.JmpReg(asm.RSI)
}

// emitRuntime emits the shared return paths and the outbox writer.
//
// record appends (R8, RSI, R9, visit id, captures...) to the outbox and
// returns 0.
func (e *emitter) emitRuntime() {
	c := e.c
	c.Mark(e.retFalse)
	c.Xor32(asm.RAX, asm.RAX)
	c.Mark(e.ret)
	c.Ret()

	c.Mark(e.record)
	c.MovLoad(asm.RDX, asm.RDI, nfa.FrameOut)
	c.CmpLoad(asm.RDX, asm.RDI, nfa.FrameOutEnd)
	c.Jcc(asm.CondA, e.overflow)
	c.MovStore(asm.RDX, 0, asm.R8)
	c.MovStore(asm.RDX, 8, asm.RSI)
	c.MovStore(asm.RDX, 16, asm.R9)
	c.MovLoad(asm.RCX, asm.RDI, nfa.FrameVisitID)
	c.MovStore(asm.RDX, 24, asm.RCX)
	c.MovLoad(asm.RCX, asm.RDI, nfa.FrameSlots)
	c.MovLoad(asm.RSI, asm.RDI, nfa.FrameCaps)
	c.Mov(asm.R10, asm.RDI)
	c.Lea(asm.RDI, asm.RDX, 8*recHeader)
	c.RepMovsq()
	c.MovStore(asm.R10, nfa.FrameOut, asm.RDI)
	c.Mov(asm.RDI, asm.R10)
	c.Jmp(e.retFalse)

	c.Mark(e.overflow)
	c.MovStoreImm(asm.RDI, nfa.FrameOverflow, 1)
	c.Jmp(e.retFalse)
}

// emitRecord loads the record registers and tail-calls record.
func (e *emitter) emitRecord(kind uint64, out *asm.Label, arg uint32) {
	c := e.c
	c.MovImm32(asm.R8, uint32(kind))
	c.MovAddr(asm.RSI, out)
	c.MovImm32(asm.R9, arg)
	c.Jmp(e.record)
}

func (e *emitter) emitBlock(pc int) error {
	c := e.c
	c.Mark(e.block(pc))
	if e.an.Dedup(pc) {
		e.emitVisit(pc)
	}
	if exts := e.an.ExtsAt(pc); exts != nil {
		e.emitExts(exts)
		return nil
	}

	in := &e.a.Inst[pc]
	switch in.Op {
	case automaton.OpAlt, automaton.OpAltMatch:
		c.Push(asm.RDI)
		c.Call(e.block(e.an.Follow(in.Out)))
		c.Pop(asm.RDI)
		c.Test32(asm.RAX, asm.RAX)
		c.Jcc(asm.CondNE, e.ret)
		e.jump(e.block(e.an.Follow(in.Out1)))
	case automaton.OpByteRange:
		e.emitRun(pc)
	case automaton.OpCapture:
		e.emitCapture(int(in.Arg), e.an.Follow(in.Out))
	case automaton.OpEmptyWidth:
		if flags := uint32(in.Arg); flags != 0 {
			c.MovLoad32(asm.RAX, asm.RDI, nfa.FrameEmpty)
			c.Not32(asm.RAX)
			c.TestImm32(asm.RAX, flags)
			c.Jcc(asm.CondNE, e.retFalse)
		}
		e.jump(e.block(e.an.Follow(in.Out)))
	case automaton.OpNop:
		e.jump(e.block(e.an.Follow(in.Out)))
	case automaton.OpMatch:
		e.emitMatch()
	case automaton.OpFail:
		c.Jmp(e.retFalse)
	default:
		return fmt.Errorf("inst %d: unsupported opcode %v", pc, in.Op)
	}
	return nil
}

// emitVisit returns 0 if pc was already visited and marks it otherwise.
func (e *emitter) emitVisit(pc int) {
	c := e.c
	disp, bit := int32(pc/8), byte(1)<<(pc%8)
	c.MovLoad(asm.RSI, asm.RDI, nfa.FrameVisited)
	c.TestMem8(asm.RSI, disp, bit)
	c.Jcc(asm.CondNE, e.retFalse)
	c.OrMem8(asm.RSI, disp, bit)
}

// emitRun checks a fused ByteRange run and waits for its length.
func (e *emitter) emitRun(pc int) {
	c := e.c
	run := e.an.RunInsts(pc)
	c.CmpMemImm(asm.RDI, nfa.FrameLength, int32(len(run)))
	c.Jcc(asm.CondB, e.retFalse)
	c.MovLoad(asm.RSI, asm.RDI, nfa.FrameInput)
	for k, ipc := range run {
		in := &e.a.Inst[ipc]
		if in.Lo == 0 && in.Hi == 0xFF {
			continue
		}
		c.MovzxLoad8(asm.RCX, asm.RSI, int32(k))
		if in.FoldCase {
			// ecx |= 0x20 when ecx is in 'A'..'Z'
			c.Lea32(asm.RDX, asm.RCX, -'A')
			c.CmpImm32(asm.RDX, 'Z'-'A'+1)
			c.Sbb32(asm.RDX, asm.RDX)
			c.AndImm32(asm.RDX, 0x20)
			c.Or32(asm.RCX, asm.RDX)
		}
		switch {
		case in.Lo == in.Hi:
			c.CmpImm8(asm.RCX, in.Lo)
			c.Jcc(asm.CondNE, e.retFalse)
		case in.Lo == 0:
			c.CmpImm8(asm.RCX, in.Hi)
			c.Jcc(asm.CondA, e.retFalse)
		default:
			c.SubImm8(asm.RCX, in.Lo)
			c.CmpImm8(asm.RCX, in.Hi-in.Lo)
			c.Jcc(asm.CondA, e.retFalse)
		}
	}
	e.emitRecord(recWait, e.block(e.an.RunOut(pc)), uint32(len(run)))
}

// emitCapture writes the offset into slot for the duration of the call to
// out. Slots the caller did not ask for are skipped. A slot read by a
// backreference also snapshots the visited bitmap and runs out under a
// fresh visit id.
func (e *emitter) emitCapture(slot, out int) {
	c := e.c
	disp := int32(8 * slot)
	c.CmpMemImm(asm.RDI, nfa.FrameSlots, int32(slot))
	c.Jcc(asm.CondBE, e.block(out))

	c.MovLoad(asm.RDX, asm.RDI, nfa.FrameCaps)
	c.MovLoad(asm.RAX, asm.RDX, disp)
	c.Push(asm.RAX)
	c.MovLoad(asm.RAX, asm.RDI, nfa.FrameOffset)
	c.MovStore(asm.RDX, disp, asm.RAX)

	snapshot := e.an.BackrefGroups[slot/2]
	if snapshot {
		c.MovLoad(asm.RCX, asm.RDI, nfa.FrameVisitedLen)
		c.Sub(asm.RSP, asm.RCX)
		c.MovLoad(asm.RSI, asm.RDI, nfa.FrameVisited)
		c.Mov(asm.R10, asm.RDI)
		c.Mov(asm.RDI, asm.RSP)
		c.ShrImm(asm.RCX, 3)
		c.RepMovsq()
		c.Mov(asm.RDI, asm.R10)

		c.MovLoad(asm.RAX, asm.RDI, nfa.FrameVisitID)
		c.Push(asm.RAX)
		c.MovLoad(asm.RAX, asm.RDI, nfa.FrameVisitLast)
		c.Lea(asm.RAX, asm.RAX, 1)
		c.MovStore(asm.RDI, nfa.FrameVisitLast, asm.RAX)
		c.MovStore(asm.RDI, nfa.FrameVisitID, asm.RAX)
	}

	c.Push(asm.RDI)
	c.Call(e.block(out))
	c.Pop(asm.RDI)

	if snapshot {
		c.Pop(asm.RCX)
		c.MovStore(asm.RDI, nfa.FrameVisitID, asm.RCX)
		c.MovLoad(asm.RCX, asm.RDI, nfa.FrameVisitedLen)
		c.ShrImm(asm.RCX, 3)
		c.Mov(asm.RSI, asm.RSP)
		c.Mov(asm.R10, asm.RDI)
		c.MovLoad(asm.RDI, asm.R10, nfa.FrameVisited)
		c.RepMovsq()
		c.Mov(asm.RDI, asm.R10)
		c.AddLoad(asm.RSP, asm.RDI, nfa.FrameVisitedLen)
	}

	c.Pop(asm.RCX)
	c.MovLoad(asm.RDX, asm.RDI, nfa.FrameCaps)
	c.MovStore(asm.RDX, disp, asm.RCX)
	c.Ret()
}

// emitMatch records a match unless the end is anchored and input remains.
func (e *emitter) emitMatch() {
	c := e.c
	ok := c.NewLabel("")
	c.TestMem8(asm.RDI, nfa.FrameFlags, byte(nfa.AnchorEnd))
	c.Jcc(asm.CondE, ok)
	c.CmpMemImm(asm.RDI, nfa.FrameLength, 0)
	c.Jcc(asm.CondNE, e.retFalse)
	c.Mark(ok)
	c.MovLoad(asm.RAX, asm.RDI, nfa.FrameOffset)
	c.MovLoad(asm.RDX, asm.RDI, nfa.FrameCaps)
	c.MovStore(asm.RDX, 8, asm.RAX)
	c.MovImm32(asm.R8, uint32(recMatch))
	c.Xor32(asm.RSI, asm.RSI)
	c.Xor32(asm.R9, asm.R9)
	c.Call(e.record)
	c.MovImm32(asm.RAX, 1)
	c.Ret()
}

// emitExts tries each extension in priority order.
func (e *emitter) emitExts(exts []automaton.Ext) {
	c := e.c
	subs := make([]*asm.Label, len(exts))
	for i := range subs {
		subs[i] = c.NewLabel("")
	}
	last := len(exts) - 1
	for i := 0; i < last; i++ {
		c.Push(asm.RDI)
		c.Call(subs[i])
		c.Pop(asm.RDI)
		c.Test32(asm.RAX, asm.RAX)
		c.Jcc(asm.CondNE, e.ret)
	}
	// The last extension falls through.
	order := []int{last}
	for i := 0; i < last; i++ {
		order = append(order, i)
	}
	for _, i := range order {
		c.Mark(subs[i])
		e.emitExt(exts[i])
	}
}

func (e *emitter) emitExt(x automaton.Ext) {
	c := e.c
	out := e.block(e.an.Follow(x.Out))
	arg := uint32(x.Kind)<<8 | uint32(x.Arg)
	if x.Kind != automaton.ExtBackref {
		e.emitRecord(recExt, out, arg)
		return
	}
	// Unset, inverted and empty spans are decided here; the byte
	// comparison is left to the host.
	g := int32(x.Arg)
	c.CmpMemImm(asm.RDI, nfa.FrameSlots, 2*g+1)
	c.Jcc(asm.CondBE, e.retFalse)
	c.MovLoad(asm.RDX, asm.RDI, nfa.FrameCaps)
	c.MovLoad(asm.RAX, asm.RDX, 16*g)
	c.MovLoad(asm.RCX, asm.RDX, 16*g+8)
	c.Test(asm.RAX, asm.RAX)
	c.Jcc(asm.CondS, e.retFalse)
	c.Cmp(asm.RCX, asm.RAX)
	c.Jcc(asm.CondL, e.retFalse)
	c.Jcc(asm.CondE, out)
	e.emitRecord(recExt, out, arg)
}
