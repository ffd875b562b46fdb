package extcode

import (
	"fmt"
	"regexp/syntax"

	"github.com/KromDaniel/rejit/internal/automaton"
)

// Parsed is a pattern lowered to an automaton with its extensions.
type Parsed struct {
	Automaton *automaton.Automaton
	Overlay   automaton.Overlay
	// Names holds one entry per group including group 0.
	Names []string
}

// Parse rewrites pattern, compiles it with regexp/syntax and recovers the
// extensions from the result. Backreferences must name a declared group,
// and only the rewrite may put reserved codepoints into the pattern.
func Parse(pattern string) (*Parsed, error) {
	rewritten, err := Rewrite(pattern)
	if err != nil {
		return nil, err
	}
	re, err := syntax.Parse(rewritten, syntax.Perl)
	if err != nil {
		return nil, err
	}
	if err := checkReserved(re, rewritten); err != nil {
		return nil, err
	}
	re = re.Simplify()
	prog, err := syntax.Compile(re)
	if err != nil {
		return nil, err
	}
	a, err := automaton.FromSyntax(prog)
	if err != nil {
		return nil, err
	}
	p := &Parsed{
		Automaton: a,
		Overlay:   Recover(a),
		Names:     automaton.CaptureNames(re),
	}
	for _, exts := range p.Overlay {
		for _, e := range exts {
			if e.Kind == automaton.ExtBackref && int(e.Arg) >= len(p.Names) {
				return nil, fmt.Errorf("%w: \\%d with %d groups", ErrBackrefRange, e.Arg, len(p.Names)-1)
			}
		}
	}
	return p, nil
}

// checkReserved fails when re holds more reserved codepoints than the
// rewrite inserted into rewritten, as escapes like \x{F0006} or class
// ranges into the block would. A range spanning the whole block is allowed:
// it compiles to continuation bytes that decode to unknown kinds, which
// Recover leaves alone.
func checkReserved(re *syntax.Regexp, rewritten string) error {
	inserted := map[rune]int{}
	for _, r := range rewritten {
		if reserved(r) {
			inserted[r]++
		}
	}
	found := map[rune]int{}
	var walk func(*syntax.Regexp)
	walk = func(n *syntax.Regexp) {
		switch n.Op {
		case syntax.OpLiteral:
			for _, r := range n.Rune {
				if reserved(r) {
					found[r]++
				}
			}
		case syntax.OpCharClass:
			for i := 0; i+1 < len(n.Rune); i += 2 {
				lo, hi := n.Rune[i], n.Rune[i+1]
				if lo <= ReservedLo && hi >= ReservedHi {
					continue
				}
				for r := max(lo, ReservedLo); r <= min(hi, ReservedHi); r++ {
					found[r]++
				}
			}
		}
		for _, sub := range n.Sub {
			walk(sub)
		}
	}
	walk(re)
	for r, n := range found {
		if n > inserted[r] {
			return fmt.Errorf("%w: %U", ErrReservedRune, r)
		}
	}
	return nil
}
