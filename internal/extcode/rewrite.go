package extcode

import (
	"fmt"
	"strings"

	"github.com/KromDaniel/rejit/internal/automaton"
)

// Rewrite replaces the syntax regexp/syntax cannot compile with encoded
// extensions:
//
//	\pL \p{Lu} \p{^Lu}  category test
//	\PL \P{Lu}          negated category test
//	\1 .. \255          backreference
//
// Category names that are not general categories are left for the parser,
// which handles scripts itself. Nothing is rewritten inside \Q...\E or
// between the brackets of a negated class, and backreferences are never
// rewritten inside a class.
func Rewrite(pattern string) (string, error) {
	if hasReserved(pattern) {
		return "", ErrReservedRune
	}

	var (
		b        strings.Builder
		inClass  bool
		negClass bool
	)
	b.Grow(len(pattern))
	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			next := pattern[i+1]
			switch {
			case next == 'Q' && !inClass:
				end := strings.Index(pattern[i+2:], `\E`)
				if end < 0 {
					b.WriteString(pattern[i:])
					return b.String(), nil
				}
				w := 2 + end + 2
				b.WriteString(pattern[i : i+w])
				i += w
				continue
			case (next == 'p' || next == 'P') && !negClass:
				if enc, w, ok := rewriteCategory(pattern[i:]); ok {
					b.WriteString(enc)
					i += w
					continue
				}
			case '1' <= next && next <= '9' && !inClass:
				j := i + 1
				n := 0
				for j < len(pattern) && '0' <= pattern[j] && pattern[j] <= '9' {
					n = n*10 + int(pattern[j]-'0')
					if n > 255 {
						return "", fmt.Errorf("%w: %s", ErrBackrefRange, pattern[i:j+1])
					}
					j++
				}
				b.WriteString(Encode(automaton.ExtBackref, uint8(n)))
				i = j
				continue
			}
			b.WriteString(pattern[i : i+2])
			i += 2
		case c == '[' && !inClass:
			inClass = true
			j := i + 1
			if j < len(pattern) && pattern[j] == '^' {
				negClass = true
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			b.WriteString(pattern[i:j])
			i = j
		case c == '[' && inClass && strings.HasPrefix(pattern[i:], "[:"):
			end := strings.Index(pattern[i+2:], ":]")
			if end < 0 {
				b.WriteByte(c)
				i++
				continue
			}
			w := 2 + end + 2
			b.WriteString(pattern[i : i+w])
			i += w
		case c == ']' && inClass:
			inClass, negClass = false, false
			b.WriteByte(c)
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// rewriteCategory encodes a \p or \P escape at the start of s. It returns the
// encoding and the width of the consumed escape.
func rewriteCategory(s string) (string, int, bool) {
	if len(s) < 3 {
		return "", 0, false
	}
	negated := s[1] == 'P'
	var name string
	width := 3
	if s[2] == '{' {
		end := strings.IndexByte(s, '}')
		if end < 0 {
			return "", 0, false
		}
		name, width = s[3:end], end+1
		if strings.HasPrefix(name, "^") {
			negated = !negated
			name = name[1:]
		}
	} else {
		name = s[2:3]
	}
	id, ok := CategoryID(name)
	if !ok {
		return "", 0, false
	}
	kind := automaton.ExtCategory
	if negated {
		kind = automaton.ExtNotCategory
	}
	return Encode(kind, id), width, true
}
