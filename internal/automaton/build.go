package automaton

import (
	"fmt"
	"regexp/syntax"
	"slices"
	"unicode"
	"unicode/utf8"
)

// byteRange is one position of a UTF-8 sequence.
type byteRange struct{ lo, hi byte }

// FromSyntax lowers a rune program into a byte automaton. Instruction indices
// of the source program stay valid; every rune instruction becomes the head
// of a subgraph of ByteRange chains appended after the original instructions.
func FromSyntax(prog *syntax.Prog) (*Automaton, error) {
	if prog == nil || len(prog.Inst) == 0 {
		return nil, fmt.Errorf("%w: empty program", ErrInvalid)
	}
	b := &builder{a: &Automaton{
		Inst:   make([]Inst, len(prog.Inst)),
		Start:  prog.Start,
		NumCap: prog.NumCap,
	}}
	if b.a.NumCap < 2 {
		b.a.NumCap = 2
	}

	for pc := range prog.Inst {
		in := &prog.Inst[pc]
		out := int(in.Out)
		switch in.Op {
		case syntax.InstAlt:
			b.a.Inst[pc] = Inst{Op: OpAlt, Out: out, Out1: int(in.Arg)}
		case syntax.InstAltMatch:
			b.a.Inst[pc] = Inst{Op: OpAltMatch, Out: out, Out1: int(in.Arg)}
		case syntax.InstCapture:
			b.a.Inst[pc] = Inst{Op: OpCapture, Arg: in.Arg, Out: out}
		case syntax.InstEmptyWidth:
			b.a.Inst[pc] = Inst{Op: OpEmptyWidth, Arg: in.Arg, Out: out}
		case syntax.InstNop:
			b.a.Inst[pc] = Inst{Op: OpNop, Out: out}
		case syntax.InstMatch:
			b.a.Inst[pc] = Inst{Op: OpMatch}
		case syntax.InstFail:
			b.a.Inst[pc] = Inst{Op: OpFail}
		case syntax.InstRune1:
			b.runes(pc, []rune{in.Rune[0], in.Rune[0]}, out)
		case syntax.InstRune:
			fold := syntax.Flags(in.Arg)&syntax.FoldCase != 0
			if len(in.Rune) == 1 {
				b.single(pc, in.Rune[0], fold, out)
			} else {
				b.runes(pc, in.Rune, out)
			}
		case syntax.InstRuneAny:
			b.runes(pc, []rune{0, unicode.MaxRune}, out)
		case syntax.InstRuneAnyNotNL:
			b.runes(pc, []rune{0, '\n' - 1, '\n' + 1, unicode.MaxRune}, out)
		default:
			return nil, fmt.Errorf("%w: inst %d: unsupported opcode %v", ErrInvalid, pc, in.Op)
		}
	}
	if err := b.a.Validate(); err != nil {
		return nil, err
	}
	return b.a, nil
}

type builder struct {
	a *Automaton
}

func (b *builder) add(in Inst) int {
	b.a.Inst = append(b.a.Inst, in)
	return len(b.a.Inst) - 1
}

// single lowers one rune, applying simple case folding when requested.
// An ASCII letter whose only other case is ASCII becomes a single folding
// ByteRange; anything else expands to the explicit fold orbit.
func (b *builder) single(pc int, r rune, fold bool, out int) {
	if !fold {
		b.runes(pc, []rune{r, r}, out)
		return
	}
	orbit := []rune{r}
	for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
		orbit = append(orbit, f)
	}
	if len(orbit) == 2 && orbit[0] < utf8.RuneSelf && orbit[1] < utf8.RuneSelf {
		lower := byte(unicode.ToLower(r))
		if 'a' <= lower && lower <= 'z' {
			b.a.Inst[pc] = Inst{Op: OpByteRange, Lo: lower, Hi: lower, FoldCase: true, Out: out}
			return
		}
	}
	slices.Sort(orbit)
	pairs := make([]rune, 0, 2*len(orbit))
	for _, o := range orbit {
		pairs = append(pairs, o, o)
	}
	b.runes(pc, pairs, out)
}

// runes lowers a sorted list of [lo, hi] rune pairs into ByteRange chains.
// The instruction at pc becomes the entry of the subgraph.
func (b *builder) runes(pc int, pairs []rune, out int) {
	var seqs [][]byteRange
	for i := 0; i+1 < len(pairs); i += 2 {
		seqs = utf8Sequences(pairs[i], pairs[i+1], seqs)
	}
	switch len(seqs) {
	case 0:
		b.a.Inst[pc] = Inst{Op: OpFail}
		return
	case 1:
		b.a.Inst[pc] = b.chainHead(seqs[0], out)
		return
	}

	// pc -> Alt(chain0, Alt(chain1, ... chainN))
	heads := make([]int, len(seqs))
	for i, seq := range seqs {
		heads[i] = b.add(b.chainHead(seq, out))
	}
	alt := pc
	for i := 0; i < len(heads)-1; i++ {
		next := heads[i+1]
		if i < len(heads)-2 {
			next = b.add(Inst{})
		}
		b.a.Inst[alt] = Inst{Op: OpAlt, Out: heads[i], Out1: next}
		alt = next
	}
}

// chainHead appends every position but the first of seq and returns the
// instruction for the first position.
func (b *builder) chainHead(seq []byteRange, out int) Inst {
	next := out
	for i := len(seq) - 1; i > 0; i-- {
		next = b.add(Inst{Op: OpByteRange, Lo: seq[i].lo, Hi: seq[i].hi, Out: next})
	}
	return Inst{Op: OpByteRange, Lo: seq[0].lo, Hi: seq[0].hi, Out: next}
}

// utf8Sequences splits [lo, hi] into ranges whose UTF-8 encodings are
// products of per-byte ranges, excluding surrogates.
func utf8Sequences(lo, hi rune, out [][]byteRange) [][]byteRange {
	if lo > hi {
		return out
	}
	if lo <= 0xDFFF && hi >= 0xD800 {
		out = utf8Sequences(lo, 0xD7FF, out)
		return utf8Sequences(0xE000, hi, out)
	}
	for _, max := range [...]rune{0x7F, 0x7FF, 0xFFFF} {
		if lo <= max && max < hi {
			out = utf8Sequences(lo, max, out)
			return utf8Sequences(max+1, hi, out)
		}
	}
	if hi < utf8.RuneSelf {
		return append(out, []byteRange{{byte(lo), byte(hi)}})
	}
	n := utf8.RuneLen(lo)
	for i := 1; i < n; i++ {
		m := rune(1)<<(6*i) - 1
		if lo&^m == hi&^m {
			continue
		}
		if lo&m != 0 {
			out = utf8Sequences(lo, lo|m, out)
			return utf8Sequences((lo|m)+1, hi, out)
		}
		if hi&m != m {
			out = utf8Sequences(lo, (hi&^m)-1, out)
			return utf8Sequences(hi&^m, hi, out)
		}
	}
	var l, h [utf8.UTFMax]byte
	utf8.EncodeRune(l[:], lo)
	utf8.EncodeRune(h[:], hi)
	seq := make([]byteRange, n)
	for i := range seq {
		seq[i] = byteRange{l[i], h[i]}
	}
	return append(out, seq)
}

// CaptureNames returns the group names of re indexed by group number.
// Group 0 is the whole match and is always unnamed.
func CaptureNames(re *syntax.Regexp) []string {
	names := []string{""}

	var walk func(*syntax.Regexp)
	walk = func(r *syntax.Regexp) {
		if r.Op == syntax.OpCapture {
			for len(names) <= r.Cap {
				names = append(names, "")
			}
			names[r.Cap] = r.Name
		}
		for _, sub := range r.Sub {
			walk(sub)
		}
	}

	walk(re)
	return names
}

// IsAnchored reports whether every match must begin at the start of text.
func IsAnchored(a *Automaton) bool {
	pc := a.Start
	for range a.Inst {
		in := &a.Inst[pc]
		switch in.Op {
		case OpCapture, OpNop:
			pc = in.Out
			continue
		case OpEmptyWidth:
			return EmptyOp(in.Arg)&EmptyBeginText != 0
		}
		return false
	}
	return false
}
