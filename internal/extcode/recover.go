package extcode

import "github.com/KromDaniel/rejit/internal/automaton"

// maxRecoverySteps bounds the walk over one candidate subgraph.
const maxRecoverySteps = 1 << 14

// Recover finds every encoded extension in a and returns them keyed by the
// index of the instruction matching the F3 lead byte. A candidate whose
// subgraph contains anything other than Alt chains over continuation-byte
// ranges, or that decodes to an unknown kind or argument, is left out and
// keeps its plain byte meaning.
func Recover(a *automaton.Automaton) automaton.Overlay {
	ov := automaton.Overlay{}
	for pc := range a.Inst {
		if exts, ok := recoverAt(a, pc); ok {
			ov[pc] = exts
		}
	}
	return ov
}

func recoverAt(a *automaton.Automaton, pc int) ([]automaton.Ext, bool) {
	if !isByte(&a.Inst[pc], lead0) {
		return nil, false
	}
	next := a.Inst[pc].Out
	if !isByte(&a.Inst[next], lead1) {
		return nil, false
	}
	r := &recovery{a: a}
	if !r.walk(a.Inst[next].Out, 0, 0) || len(r.exts) == 0 {
		return nil, false
	}
	return r.exts, true
}

func isByte(in *automaton.Inst, b byte) bool {
	return in.Op == automaton.OpByteRange && in.Lo == b && in.Hi == b && !in.FoldCase
}

type recovery struct {
	a     *automaton.Automaton
	exts  []automaton.Ext
	steps int
}

// walk visits the subgraph for one continuation byte. stage 0 is the third
// byte of the encoding, stage 1 the fourth; acc holds the bits decoded so far.
func (r *recovery) walk(pc, stage int, acc rune) bool {
	r.steps++
	if r.steps > maxRecoverySteps {
		return false
	}
	in := &r.a.Inst[pc]
	switch in.Op {
	case automaton.OpAlt, automaton.OpAltMatch:
		return r.walk(in.Out, stage, acc) && r.walk(in.Out1, stage, acc)
	case automaton.OpByteRange:
		if in.FoldCase || in.Lo&0xC0 != 0x80 || in.Hi&0xC0 != 0x80 {
			return false
		}
		for b := int(in.Lo); b <= int(in.Hi); b++ {
			bits := acc<<6 | rune(b&0x3F)
			if stage == 0 {
				if !r.walk(in.Out, 1, bits) {
					return false
				}
				continue
			}
			kind, arg, ok := Decode(ReservedLo | bits)
			if !ok || !validArg(kind, arg) {
				return false
			}
			r.exts = append(r.exts, automaton.Ext{Kind: kind, Arg: arg, Out: in.Out})
		}
		return true
	}
	return false
}

func validArg(kind automaton.ExtKind, arg uint8) bool {
	switch kind {
	case automaton.ExtCategory, automaton.ExtNotCategory:
		return int(arg) < NumCategories()
	case automaton.ExtBackref:
		return arg > 0
	}
	return false
}
