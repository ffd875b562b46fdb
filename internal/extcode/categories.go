package extcode

//go:generate go run ../../cmd/gencategories -o categories_gen.go

import (
	"bytes"
	"unicode"
	"unicode/utf8"

	"github.com/KromDaniel/rejit/internal/automaton"
)

var categoryIDs = func() map[string]uint8 {
	m := make(map[string]uint8, len(categoryNames))
	for id, name := range categoryNames {
		m[name] = uint8(id)
	}
	return m
}()

// CategoryID returns the id of a general category name such as "L" or "Lu".
func CategoryID(name string) (uint8, bool) {
	id, ok := categoryIDs[name]
	return id, ok
}

// CategoryName returns the name for id, or "" if id is unknown.
func CategoryName(id uint8) string {
	if int(id) >= len(categoryNames) {
		return ""
	}
	return categoryNames[id]
}

// NumCategories returns the number of known categories.
func NumCategories() int { return len(categoryNames) }

// MatchCategory decodes one codepoint at the start of input and returns its
// length when it belongs to category id (or, when negated, does not).
// Malformed or truncated UTF-8 never matches.
func MatchCategory(input []byte, id uint8, negated bool) (int, bool) {
	if int(id) >= len(categoryTables) || len(input) == 0 {
		return 0, false
	}
	r, size := utf8.DecodeRune(input)
	if r == utf8.RuneError && size <= 1 {
		return 0, false
	}
	if unicode.Is(categoryTables[id], r) == negated {
		return 0, false
	}
	return size, true
}

// MatchBackref compares the span captured for group in caps against the
// input at offset. It returns the number of bytes to consume; an empty span
// matches without consuming.
func MatchBackref(input []byte, offset int, caps []int, group int) (int, bool) {
	if 2*group+1 >= len(caps) {
		return 0, false
	}
	start, end := caps[2*group], caps[2*group+1]
	if start < 0 || end < start || end > len(input) {
		return 0, false
	}
	n := end - start
	if n == 0 {
		return 0, true
	}
	if len(input)-offset < n {
		return 0, false
	}
	if !bytes.Equal(input[start:end], input[offset:offset+n]) {
		return 0, false
	}
	return n, true
}

// Eval runs extension e against the input at offset with the given captures.
// It returns how many bytes the thread must wait for.
func Eval(e automaton.Ext, input []byte, offset int, caps []int) (int, bool) {
	switch e.Kind {
	case automaton.ExtCategory:
		return MatchCategory(input[offset:], e.Arg, false)
	case automaton.ExtNotCategory:
		return MatchCategory(input[offset:], e.Arg, true)
	case automaton.ExtBackref:
		return MatchBackref(input, offset, caps, int(e.Arg))
	}
	return 0, false
}
