package automaton

import "fmt"

// ExtKind identifies an extended instruction that the byte-oriented
// instruction set cannot express directly.
type ExtKind uint8

const (
	// ExtCategory consumes one codepoint of the given Unicode category.
	ExtCategory ExtKind = iota
	// ExtNotCategory consumes one codepoint outside the given category.
	ExtNotCategory
	// ExtBackref consumes a repeat of a previously captured group.
	ExtBackref

	numExtKinds
)

func (k ExtKind) String() string {
	switch k {
	case ExtCategory:
		return "category"
	case ExtNotCategory:
		return "notcategory"
	case ExtBackref:
		return "backref"
	}
	return fmt.Sprintf("ext(%d)", uint8(k))
}

// Valid reports whether k is a known kind.
func (k ExtKind) Valid() bool { return k < numExtKinds }

// Ext is an extended instruction recovered at some instruction index.
type Ext struct {
	Kind ExtKind
	Arg  uint8
	Out  int
}

func (e Ext) String() string {
	return fmt.Sprintf("%s %d -> %d", e.Kind, e.Arg, e.Out)
}

// Overlay maps the index of the first instruction of an encoded extension to
// the extensions that start there, in priority order. Instructions in the
// overlay are executed as their extensions, never as plain bytes.
type Overlay map[int][]Ext
