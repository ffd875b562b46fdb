// Package jit compiles an automaton into x86-64 machine code that runs
// epsilon closures for the nfa scheduler. Generated code cannot call back
// into Go, so every scheduler transition it makes is written to an outbox
// and replayed by the host once the closure returns.
package jit

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"github.com/KromDaniel/rejit/internal/automaton"
	"github.com/KromDaniel/rejit/internal/extcode"
	"github.com/KromDaniel/rejit/internal/interp"
	"github.com/KromDaniel/rejit/internal/nfa"
)

var (
	// ErrNotCompiled wraps every reason native code is unavailable. It is
	// never fatal: callers fall back to the interpreter.
	ErrNotCompiled = errors.New("jit: not compiled")
	// ErrUnsupported reports a platform without a native backend.
	ErrUnsupported = errors.New("jit: unsupported platform")
)

// Options configures Compile.
type Options struct {
	Logger *slog.Logger
	// OnFallback is called whenever a closure had to be rerun by the
	// interpreter because the outbox filled up.
	OnFallback func()
}

// Program is installed native code for one automaton. It is safe for
// concurrent use; each match takes its own Runner.
type Program struct {
	a  *automaton.Automaton
	an *automaton.Analysis

	mem     []byte
	cleanup runtime.Cleanup
	closed  bool
	size    int

	stub    uintptr
	addrs   []uintptr
	entries map[uintptr]int

	fallback   *interp.Interpreter
	onFallback func()
	records    int // outbox capacity in records
	stackSize  int
	logger     *slog.Logger
	runners    sync.Pool
}

// Supported reports whether this platform can run generated code.
func Supported() bool { return supported }

// Compile emits and installs native code for a. Any failure is wrapped in
// ErrNotCompiled.
func Compile(a *automaton.Automaton, an *automaton.Analysis, opts Options) (*Program, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if !supported {
		return nil, fmt.Errorf("%w: %w", ErrNotCompiled, ErrUnsupported)
	}
	img, err := Emit(a, an)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotCompiled, err)
	}
	mem, err := install(img.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotCompiled, err)
	}

	base := uintptr(unsafe.Pointer(&mem[0]))
	p := &Program{
		a:          a,
		an:         an,
		mem:        mem,
		size:       img.Code.Len(),
		stub:       base + uintptr(img.Stub.Offset()),
		addrs:      make([]uintptr, a.Len()),
		entries:    make(map[uintptr]int, len(an.Blocks)),
		onFallback: opts.OnFallback,
		logger:     logger,
	}
	for pc, l := range img.Blocks {
		if l != nil && l.Offset() >= 0 {
			addr := base + uintptr(l.Offset())
			p.addrs[pc] = addr
			p.entries[addr] = pc
		}
	}
	p.fallback = interp.New(a, an, p)
	p.records, p.stackSize = p.sizes()
	p.runners.New = func() any { return p.newRunner() }
	p.cleanup = runtime.AddCleanup(p, func(mem []byte) { _ = release(mem) }, mem)

	logger.Debug("native code installed",
		"insts", a.Len(), "blocks", len(an.Blocks), "bytes", p.size, "stack", p.stackSize)
	return p, nil
}

// sizes bounds the outbox and native stack. Without backreferences every
// block runs at most once per closure, so one record per block suffices.
// With them, captures re-open visited states and the outbox may overflow,
// in which case the closure is rerun by the interpreter.
func (p *Program) sizes() (records, stack int) {
	records = len(p.an.Blocks) + p.an.Exts + 1
	stack = 32*(len(p.an.Blocks)+p.an.Exts+8) + 4096
	if p.an.HasBackrefs() {
		records *= 4
		visitedBytes := 8 * ((p.a.Len()+63)/64 + 1)
		for _, pc := range p.an.Blocks {
			in := &p.a.Inst[pc]
			if in.Op == automaton.OpCapture && p.an.BackrefGroups[int(in.Arg)/2] {
				stack += visitedBytes + 24
			}
		}
	}
	return records, stack
}

// Size returns the size of the generated code in bytes.
func (p *Program) Size() int { return p.size }

// StackSize returns the size of the native stack each Runner carries.
func (p *Program) StackSize() int { return p.stackSize }

// Start returns the entry of the first thread.
func (p *Program) Start() uintptr { return p.addrs[p.an.Start] }

// Entry implements interp.Entries.
func (p *Program) Entry(pc int) uintptr { return p.addrs[pc] }

// PC implements interp.Entries.
func (p *Program) PC(entry uintptr) (int, bool) {
	pc, ok := p.entries[entry]
	return pc, ok
}

// Close unmaps the code. The Program must not be used afterwards.
func (p *Program) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.cleanup.Stop()
	return release(p.mem)
}

// Runner carries the per-match native stack and outbox.
type Runner struct {
	p       *Program
	stack   []byte
	out     []uint64
	caps    []int
	visited []uint64
}

func (p *Program) newRunner() *Runner {
	return &Runner{p: p, stack: make([]byte, p.stackSize)}
}

// Runner returns a Runner for one match. Release it when done.
func (p *Program) Runner() *Runner { return p.runners.Get().(*Runner) }

// Release returns r to its Program.
func (r *Runner) Release() { r.p.runners.Put(r) }

// Run implements nfa.Runner.
func (r *Runner) Run(ts *nfa.ThreadSet, entry uintptr) {
	slots := ts.Slots()
	words := recHeader + slots
	need := r.p.records * words
	if len(r.out) < need {
		r.out = make([]uint64, need)
	}
	if len(r.caps) != slots {
		r.caps = make([]int, slots)
	}

	f := ts.Frame()
	out := uintptr(unsafe.Pointer(&r.out[0]))
	f.Out = out
	f.OutEnd = out + uintptr(8*(need-words))
	f.Overflow = 0
	if r.p.an.HasBackrefs() {
		r.visited = ts.SaveVisited(r.visited[:0])
	}

	callNative(r.p.stub, ts.FrameAddr(), r.stackTop(), entry)

	if f.Overflow != 0 {
		pc, ok := r.p.PC(entry)
		if !ok {
			return
		}
		r.p.logger.Debug("outbox overflow, rerunning closure", "inst", pc, "offset", ts.Offset())
		if r.p.onFallback != nil {
			r.p.onFallback()
		}
		// The bitmap may be shared with earlier threads; undo what the
		// aborted closure marked.
		ts.RestoreVisited(r.visited)
		r.p.fallback.Closure(ts, pc)
		return
	}
	r.replay(ts, r.out[:(f.Out-out)/8], words)
}

// stackTop returns the 16-byte aligned top of the native stack.
func (r *Runner) stackTop() uintptr {
	top := uintptr(unsafe.Pointer(&r.stack[len(r.stack)-1])) + 1
	return top &^ 15
}

// replay applies outbox records in the order the closure produced them.
func (r *Runner) replay(ts *nfa.ThreadSet, recs []uint64, words int) {
	caps := r.caps
	for i := 0; i+words <= len(recs); i += words {
		kind, entry, arg := recs[i], uintptr(recs[i+1]), recs[i+2]
		ts.SetVisitID(recs[i+3])
		for k := range caps {
			caps[k] = int(int64(recs[i+recHeader+k]))
		}
		switch kind {
		case recWait:
			ts.WaitCaps(entry, int(arg), caps)
		case recMatch:
			ts.MatchCaps(caps)
			return
		case recExt:
			e := automaton.Ext{Kind: automaton.ExtKind(arg >> 8), Arg: uint8(arg)}
			if n, ok := extcode.Eval(e, ts.Input(), ts.Offset(), caps); ok && n > 0 {
				ts.WaitCaps(entry, n, caps)
			}
		}
	}
}
