// Package automaton holds the byte-oriented instruction graph that the
// interpreter and the native emitter both execute.
package automaton

import (
	"errors"
	"fmt"
	"regexp/syntax"
	"strings"
)

// ErrInvalid is returned when an automaton references instructions it does not have.
var ErrInvalid = errors.New("invalid automaton")

// Op is an instruction opcode.
type Op uint8

const (
	OpFail Op = iota
	OpAlt
	OpAltMatch
	OpByteRange
	OpCapture
	OpEmptyWidth
	OpNop
	OpMatch
)

var opNames = [...]string{
	OpFail:       "fail",
	OpAlt:        "alt",
	OpAltMatch:   "altmatch",
	OpByteRange:  "byte",
	OpCapture:    "cap",
	OpEmptyWidth: "empty",
	OpNop:        "nop",
	OpMatch:      "match",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// EmptyOp is a set of zero-width conditions. The bit values are those of
// regexp/syntax so the two can be converted freely.
type EmptyOp = syntax.EmptyOp

const (
	EmptyBeginLine      = syntax.EmptyBeginLine
	EmptyEndLine        = syntax.EmptyEndLine
	EmptyBeginText      = syntax.EmptyBeginText
	EmptyEndText        = syntax.EmptyEndText
	EmptyWordBoundary   = syntax.EmptyWordBoundary
	EmptyNoWordBoundary = syntax.EmptyNoWordBoundary
)

// Inst is a single instruction. Which fields are meaningful depends on Op:
// Alt/AltMatch use Out and Out1, ByteRange uses Lo, Hi, FoldCase and Out,
// Capture uses Arg as the slot index, EmptyWidth uses Arg as an EmptyOp.
type Inst struct {
	Op       Op
	Out      int
	Out1     int
	Lo, Hi   byte
	FoldCase bool
	Arg      uint32
}

// Matches reports whether b is accepted by a ByteRange instruction.
func (i *Inst) Matches(b byte) bool {
	if i.FoldCase && 'A' <= b && b <= 'Z' {
		b += 'a' - 'A'
	}
	return i.Lo <= b && b <= i.Hi
}

// Automaton is an immutable instruction graph with a start index.
type Automaton struct {
	Inst   []Inst
	Start  int
	NumCap int // capture slots, always even
}

// Empty returns the automaton of the empty pattern: a lone Match.
func Empty() *Automaton {
	return &Automaton{Inst: []Inst{{Op: OpMatch}}, NumCap: 2}
}

// Len returns the number of instructions.
func (a *Automaton) Len() int { return len(a.Inst) }

// Validate checks that every edge points inside the instruction list.
func (a *Automaton) Validate() error {
	n := len(a.Inst)
	if n == 0 {
		return fmt.Errorf("%w: no instructions", ErrInvalid)
	}
	if a.Start < 0 || a.Start >= n {
		return fmt.Errorf("%w: start %d out of range", ErrInvalid, a.Start)
	}
	for pc := range a.Inst {
		in := &a.Inst[pc]
		switch in.Op {
		case OpAlt, OpAltMatch:
			if in.Out1 < 0 || in.Out1 >= n {
				return fmt.Errorf("%w: inst %d: out1 %d out of range", ErrInvalid, pc, in.Out1)
			}
			fallthrough
		case OpByteRange, OpCapture, OpEmptyWidth, OpNop:
			if in.Out < 0 || in.Out >= n {
				return fmt.Errorf("%w: inst %d: out %d out of range", ErrInvalid, pc, in.Out)
			}
		case OpMatch, OpFail:
		default:
			return fmt.Errorf("%w: inst %d: unknown opcode %v", ErrInvalid, pc, in.Op)
		}
	}
	return nil
}

func (a *Automaton) String() string {
	var b strings.Builder
	for pc := range a.Inst {
		mark := "  "
		if pc == a.Start {
			mark = "* "
		}
		fmt.Fprintf(&b, "%s%3d. %s\n", mark, pc, a.Inst[pc].String())
	}
	return b.String()
}

func (i *Inst) String() string {
	switch i.Op {
	case OpAlt, OpAltMatch:
		return fmt.Sprintf("%s -> %d, %d", i.Op, i.Out, i.Out1)
	case OpByteRange:
		fold := ""
		if i.FoldCase {
			fold = "/i"
		}
		if i.Lo == i.Hi {
			return fmt.Sprintf("byte %02x%s -> %d", i.Lo, fold, i.Out)
		}
		return fmt.Sprintf("byte [%02x-%02x]%s -> %d", i.Lo, i.Hi, fold, i.Out)
	case OpCapture:
		return fmt.Sprintf("cap %d -> %d", i.Arg, i.Out)
	case OpEmptyWidth:
		return fmt.Sprintf("empty %#x -> %d", i.Arg, i.Out)
	case OpNop:
		return fmt.Sprintf("nop -> %d", i.Out)
	}
	return i.Op.String()
}
