package nfa

import "unsafe"

// Frame is the part of a ThreadSet that generated code reads and writes
// through a pointer. Field order and width are fixed; the Frame* offsets
// are what the emitter addresses.
type Frame struct {
	Input      uintptr // address of the byte at Offset
	Length     uint64  // bytes remaining after Offset
	Offset     uint64
	Empty      uint64 // EmptyOp flags at Offset
	Flags      uint64 // anchor flags
	Slots      uint64 // capture slots in use
	Caps       uintptr
	Visited    uintptr
	Out        uintptr // next free outbox word
	OutEnd     uintptr // last address where a whole record still fits
	VisitedLen uint64  // bitmap size in bytes, a multiple of 8
	Overflow   uint64
	VisitID    uint64 // visit id of the running thread
	VisitLast  uint64 // last visit id handed out
}

// Byte offsets of the Frame fields.
const (
	FrameInput      = 0
	FrameLength     = 8
	FrameOffset     = 16
	FrameEmpty      = 24
	FrameFlags      = 32
	FrameSlots      = 40
	FrameCaps       = 48
	FrameVisited    = 56
	FrameOut        = 64
	FrameOutEnd     = 72
	FrameVisitedLen = 80
	FrameOverflow   = 88
	FrameVisitID    = 96
	FrameVisitLast  = 104

	FrameSize = 112
)

// Frame returns the machine view of ts. The pointer stays valid for the
// life of ts.
func (ts *ThreadSet) Frame() *Frame { return &ts.frame }

// FrameAddr returns the address of the frame for passing to generated code.
func (ts *ThreadSet) FrameAddr() uintptr { return uintptr(unsafe.Pointer(&ts.frame)) }

func (ts *ThreadSet) syncFrame() {
	f := &ts.frame
	f.Input = uintptr(unsafe.Pointer(unsafe.SliceData(ts.input))) + uintptr(ts.offset)
	f.Length = uint64(len(ts.input) - ts.offset)
	f.Offset = uint64(ts.offset)
	f.Empty = uint64(ts.empty)
	f.Flags = uint64(ts.flags)
	f.Slots = uint64(ts.slots)
	f.Caps = uintptr(unsafe.Pointer(&ts.work[0]))
	f.Visited = uintptr(unsafe.Pointer(&ts.visited[0]))
	f.VisitedLen = uint64(8 * len(ts.visited))
}
