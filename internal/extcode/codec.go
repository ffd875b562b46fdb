// Package extcode carries instructions the byte automaton cannot express
// (Unicode category tests and backreferences) through the pattern parser as
// private-use codepoints, and recovers them from the built automaton.
//
// An extension (kind, arg) is the codepoint U+F0000 | kind<<8 | arg, whose
// UTF-8 form is F3 B0 (80|kind<<2|arg>>6) (80|arg&3F).
package extcode

import (
	"errors"
	"unicode/utf8"

	"github.com/KromDaniel/rejit/internal/automaton"
)

const (
	// ReservedLo and ReservedHi bound the private-use block used for
	// encoded extensions.
	ReservedLo rune = 0xF0000
	ReservedHi rune = 0xF0FFF

	lead0 = 0xF3
	lead1 = 0xB0
)

var (
	// ErrReservedRune reports a pattern that already contains a codepoint
	// from the reserved block, literally or as an escape.
	ErrReservedRune = errors.New("pattern contains a reserved private-use codepoint")
	// ErrBackrefRange reports a backreference that cannot be encoded or
	// names a group the pattern does not have.
	ErrBackrefRange = errors.New("backreference out of range")
)

// Rune returns the private-use codepoint encoding (kind, arg).
func Rune(kind automaton.ExtKind, arg uint8) rune {
	return ReservedLo | rune(kind)<<8 | rune(arg)
}

// Encode returns the UTF-8 form of Rune(kind, arg).
func Encode(kind automaton.ExtKind, arg uint8) string {
	return string(Rune(kind, arg))
}

// Decode reverses Rune. It reports false for codepoints outside the
// reserved block or with an unknown kind.
func Decode(r rune) (automaton.ExtKind, uint8, bool) {
	if r < ReservedLo || r > ReservedHi {
		return 0, 0, false
	}
	kind := automaton.ExtKind((r >> 8) & 0xF)
	if !kind.Valid() {
		return 0, 0, false
	}
	return kind, uint8(r), true
}

func reserved(r rune) bool { return ReservedLo <= r && r <= ReservedHi }

// hasReserved reports whether s contains a codepoint from the reserved block.
func hasReserved(s string) bool {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if reserved(r) {
			return true
		}
		i += size
	}
	return false
}
