// Package rejit matches regular expressions with a Pike VM whose epsilon
// closures run as generated x86-64 code where possible, and through an
// interpreter everywhere else. Beyond the syntax of regexp/syntax it
// supports backreferences (\1) and Unicode general category tests (\p{L})
// as single instructions.
package rejit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"unicode/utf8"
	"unsafe"

	"github.com/KromDaniel/rejit/internal/automaton"
	"github.com/KromDaniel/rejit/internal/extcode"
	"github.com/KromDaniel/rejit/internal/interp"
	"github.com/KromDaniel/rejit/internal/jit"
	"github.com/KromDaniel/rejit/internal/nfa"
)

// Anchor constrains where a match may start and end.
type Anchor int

const (
	Unanchored Anchor = iota
	AnchorStart
	AnchorBoth
)

func (a Anchor) String() string {
	switch a {
	case AnchorStart:
		return "start"
	case AnchorBoth:
		return "both"
	}
	return "none"
}

// ParseAnchor converts the names returned by Anchor.String.
func ParseAnchor(s string) (Anchor, error) {
	switch s {
	case "none", "":
		return Unanchored, nil
	case "start":
		return AnchorStart, nil
	case "both":
		return AnchorBoth, nil
	}
	return Unanchored, fmt.Errorf("unknown anchor %q", s)
}

func (a Anchor) flags() nfa.Flags {
	switch a {
	case AnchorStart:
		return nfa.AnchorStart
	case AnchorBoth:
		return nfa.AnchorStart | nfa.AnchorEnd
	}
	return 0
}

// Options configures the compilation of a pattern.
type Options struct {
	// Pattern is the regular expression, in Perl syntax.
	Pattern string

	// Logger receives compile decisions. Nil discards them.
	Logger *slog.Logger

	// DisableJIT forces the interpreter.
	DisableJIT bool

	// MaxThreads bounds the threads alive during one match. Branches that
	// do not fit are dropped. Zero means unbounded; otherwise it must be at
	// least MinThreads.
	MaxThreads int
}

// MinThreads is the smallest useful MaxThreads: the running thread plus the
// one it forks to wait or to record a match.
const MinThreads = 2

// Validate checks if the options are valid.
func (o Options) Validate() error {
	if !utf8.ValidString(o.Pattern) {
		return fmt.Errorf("pattern is not valid UTF-8")
	}
	if o.MaxThreads < 0 {
		return fmt.Errorf("max threads cannot be negative")
	}
	if o.MaxThreads > 0 && o.MaxThreads < MinThreads {
		return fmt.Errorf("max threads must be 0 or at least %d, got %d", MinThreads, o.MaxThreads)
	}
	return nil
}

// Error is a pattern-time failure.
type Error struct {
	Pattern string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rejit: compiling %q: %v", e.Pattern, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Regexp is a compiled pattern. It is safe for concurrent use.
type Regexp struct {
	expr     string
	auto     *automaton.Automaton
	analysis *automaton.Analysis
	names    []string
	minSlots int

	interp *interp.Interpreter
	prog   *jit.Program
	jitErr error

	logger *slog.Logger
	sets   sync.Pool
}

// Compile parses pattern and prepares it for matching with default options.
func Compile(pattern string) (*Regexp, error) {
	return New(Options{Pattern: pattern})
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Regexp {
	re, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

// New compiles opts.Pattern. Only pattern errors are returned; when native
// code cannot be generated the Regexp silently uses the interpreter and
// JITError reports why.
func New(opts Options) (*Regexp, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fail := func(err error) (*Regexp, error) {
		compileTotal.WithLabelValues("error").Inc()
		return nil, &Error{Pattern: opts.Pattern, Err: err}
	}

	parsed, err := extcode.Parse(opts.Pattern)
	if err != nil {
		return fail(err)
	}
	a, ov, names := parsed.Automaton, parsed.Overlay, parsed.Names
	an, err := automaton.Analyze(a, ov)
	if err != nil {
		return fail(err)
	}

	re := &Regexp{
		expr:     opts.Pattern,
		auto:     a,
		analysis: an,
		names:    names,
		minSlots: max(2, 2*(an.MaxBackrefGroup()+1)),
		interp:   interp.New(a, an, nil),
		logger:   logger,
	}
	cfg := nfa.Config{
		States:     a.Len(),
		MaxThreads: opts.MaxThreads,
		Logger:     logger,
	}
	re.sets.New = func() any { return nfa.New(cfg) }

	logger.Debug("pattern compiled",
		"pattern", opts.Pattern, "insts", a.Len(), "blocks", len(an.Blocks),
		"extensions", an.Exts, "backrefs", an.HasBackrefs())

	if opts.DisableJIT {
		re.jitErr = fmt.Errorf("%w: disabled", jit.ErrNotCompiled)
	} else {
		re.prog, re.jitErr = jit.Compile(a, an, jit.Options{
			Logger:     logger,
			OnFallback: func() { fallbackTotal.Inc() },
		})
	}
	switch {
	case re.prog != nil:
		compileTotal.WithLabelValues("native").Inc()
	case errors.Is(re.jitErr, jit.ErrUnsupported) || opts.DisableJIT:
		compileTotal.WithLabelValues("interpreter").Inc()
		logger.Debug("using interpreter", "pattern", opts.Pattern, "reason", re.jitErr)
	default:
		compileTotal.WithLabelValues("interpreter").Inc()
		logger.Warn("native compilation failed, using interpreter", "pattern", opts.Pattern, "error", re.jitErr)
	}
	return re, nil
}

// Match reports whether text matches. slots receives the match as pairs of
// offsets, group by group, with -1 for groups that did not participate;
// its length selects how many groups are tracked. On failure slots is left
// untouched.
func (re *Regexp) Match(text []byte, anchor Anchor, slots []int) bool {
	ngroups := len(slots) / 2
	ts := re.sets.Get().(*nfa.ThreadSet)
	defer re.sets.Put(ts)

	var (
		runner nfa.Runner
		start  uintptr
	)
	if re.prog != nil {
		r := re.prog.Runner()
		defer r.Release()
		runner, start = r, re.prog.Start()
		matchTotal.WithLabelValues("native").Inc()
	} else {
		runner, start = re.interp, re.interp.Start()
		matchTotal.WithLabelValues("interpreter").Inc()
	}

	ts.Init(text, start, anchor.flags(), max(2*ngroups, re.minSlots), runner)
	for ts.Dispatch(0) {
	}
	caps, ok := ts.Result()
	if !ok {
		return false
	}
	n := copy(slots[:2*ngroups], caps)
	for i := n; i < 2*ngroups; i++ {
		slots[i] = -1
	}
	return true
}

// MatchString is Match on a string.
func (re *Regexp) MatchString(s string, anchor Anchor, slots []int) bool {
	return re.Match(unsafe.Slice(unsafe.StringData(s), len(s)), anchor, slots)
}

// FindSubmatchIndex returns the offsets of the match and of every group,
// or nil when text does not match.
func (re *Regexp) FindSubmatchIndex(text []byte, anchor Anchor) []int {
	slots := make([]int, 2*len(re.names))
	if !re.Match(text, anchor, slots) {
		return nil
	}
	return slots
}

// String returns the source pattern.
func (re *Regexp) String() string { return re.expr }

// NumSubexp returns the number of capture groups.
func (re *Regexp) NumSubexp() int { return len(re.names) - 1 }

// SubexpNames returns the group names indexed by group number; index 0 and
// unnamed groups are "".
func (re *Regexp) SubexpNames() []string { return re.names }

// Native reports whether matching runs generated code.
func (re *Regexp) Native() bool { return re.prog != nil }

// JITError reports why native code is not used, or nil.
func (re *Regexp) JITError() error { return re.jitErr }

// CodeSize returns the size of the generated code, or 0.
func (re *Regexp) CodeSize() int {
	if re.prog == nil {
		return 0
	}
	return re.prog.Size()
}

// StackSize returns the native stack carried by each concurrent match, or 0.
func (re *Regexp) StackSize() int {
	if re.prog == nil {
		return 0
	}
	return re.prog.StackSize()
}

// Close releases generated code. Matching afterwards uses the interpreter.
// Close must not run concurrently with Match.
func (re *Regexp) Close() error {
	if re.prog == nil {
		return nil
	}
	p := re.prog
	re.prog = nil
	re.jitErr = fmt.Errorf("%w: closed", jit.ErrNotCompiled)
	return p.Close()
}

// Dump writes the automaton, the recovered extensions and the analysis.
func (re *Regexp) Dump(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "pattern %q, %d groups\n%s", re.expr, re.NumSubexp(), re.auto); err != nil {
		return err
	}
	_, err := io.WriteString(w, re.analysis.String())
	return err
}
