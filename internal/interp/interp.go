// Package interp executes an automaton on the nfa scheduler without
// generating code. It explores each thread's epsilon closure depth first
// with an explicit stack, in the same order as the native blocks.
package interp

import (
	"sync"

	"github.com/KromDaniel/rejit/internal/automaton"
	"github.com/KromDaniel/rejit/internal/extcode"
	"github.com/KromDaniel/rejit/internal/nfa"
)

// Entries converts between instruction indices and thread entries. The
// native engine hands the interpreter its own code addresses so the two can
// share one ThreadSet.
type Entries interface {
	Entry(pc int) uintptr
	PC(entry uintptr) (int, bool)
}

type indexEntries int

func (indexEntries) Entry(pc int) uintptr { return uintptr(pc) }

func (n indexEntries) PC(entry uintptr) (int, bool) {
	if entry >= uintptr(n) {
		return 0, false
	}
	return int(entry), true
}

// Interpreter is safe for concurrent use; per-closure scratch is pooled.
type Interpreter struct {
	a       *automaton.Automaton
	an      *automaton.Analysis
	entries Entries
	runs    [][]int
	pool    sync.Pool
}

// New returns an interpreter for a. With nil entries, thread entries are
// instruction indices.
func New(a *automaton.Automaton, an *automaton.Analysis, entries Entries) *Interpreter {
	if entries == nil {
		entries = indexEntries(a.Len())
	}
	in := &Interpreter{
		a:       a,
		an:      an,
		entries: entries,
		runs:    make([][]int, a.Len()),
	}
	for _, pc := range an.Blocks {
		if an.Run[pc] > 0 && an.ExtsAt(pc) == nil {
			in.runs[pc] = an.RunInsts(pc)
		}
	}
	in.pool.New = func() any { return new(scratch) }
	return in
}

// Start returns the entry of the first thread.
func (in *Interpreter) Start() uintptr { return in.entries.Entry(in.an.Start) }

// Run implements nfa.Runner.
func (in *Interpreter) Run(ts *nfa.ThreadSet, entry uintptr) {
	pc, ok := in.entries.PC(entry)
	if !ok {
		return
	}
	in.Closure(ts, pc)
}

type jobKind uint8

const (
	jobInst jobKind = iota
	jobExt
	jobRestoreCap
	jobRestoreVisited
)

type job struct {
	kind jobKind
	pc   int
	arg  int
	old  int
	id   uint64
}

type scratch struct {
	jobs  []job
	saved []uint64
}

// Closure explores everything reachable from pc without consuming input,
// reporting waits and matches to ts.
func (in *Interpreter) Closure(ts *nfa.ThreadSet, pc int) {
	s := in.pool.Get().(*scratch)
	defer func() {
		s.jobs, s.saved = s.jobs[:0], s.saved[:0]
		in.pool.Put(s)
	}()

	work := ts.Work()
	s.jobs = append(s.jobs, job{kind: jobInst, pc: pc})
	for len(s.jobs) > 0 {
		j := s.jobs[len(s.jobs)-1]
		s.jobs = s.jobs[:len(s.jobs)-1]

		switch j.kind {
		case jobRestoreCap:
			work[j.arg] = j.old
			continue
		case jobRestoreVisited:
			ts.RestoreVisited(s.saved[j.old:])
			s.saved = s.saved[:j.old]
			ts.SetVisitID(j.id)
			continue
		case jobExt:
			e := in.an.ExtsAt(j.pc)[j.arg]
			n, ok := extcode.Eval(e, ts.Input(), ts.Offset(), work)
			switch {
			case !ok:
			case n == 0:
				s.jobs = append(s.jobs, job{kind: jobInst, pc: in.an.Follow(e.Out)})
			default:
				ts.Wait(in.entries.Entry(in.an.Follow(e.Out)), n)
			}
			continue
		}

		pc := j.pc
		if in.an.Dedup(pc) && !ts.Visit(pc) {
			continue
		}
		if exts := in.an.ExtsAt(pc); exts != nil {
			for k := len(exts) - 1; k >= 0; k-- {
				s.jobs = append(s.jobs, job{kind: jobExt, pc: pc, arg: k})
			}
			continue
		}

		inst := &in.a.Inst[pc]
		switch inst.Op {
		case automaton.OpAlt, automaton.OpAltMatch:
			s.jobs = append(s.jobs,
				job{kind: jobInst, pc: in.an.Follow(inst.Out1)},
				job{kind: jobInst, pc: in.an.Follow(inst.Out)})
		case automaton.OpByteRange:
			in.step(ts, pc)
		case automaton.OpCapture:
			slot := int(inst.Arg)
			if slot < ts.Slots() {
				s.jobs = append(s.jobs, job{kind: jobRestoreCap, arg: slot, old: work[slot]})
				if in.an.BackrefGroups[slot/2] {
					s.jobs = append(s.jobs, job{kind: jobRestoreVisited, old: len(s.saved), id: ts.NewVisitID()})
					s.saved = ts.SaveVisited(s.saved)
				}
				work[slot] = ts.Offset()
			}
			s.jobs = append(s.jobs, job{kind: jobInst, pc: in.an.Follow(inst.Out)})
		case automaton.OpEmptyWidth:
			if automaton.EmptyOp(inst.Arg)&^ts.Empty() == 0 {
				s.jobs = append(s.jobs, job{kind: jobInst, pc: in.an.Follow(inst.Out)})
			}
		case automaton.OpNop:
			s.jobs = append(s.jobs, job{kind: jobInst, pc: in.an.Follow(inst.Out)})
		case automaton.OpMatch:
			if ts.Match() {
				return
			}
		case automaton.OpFail:
		}
	}
}

// step checks a fused byte run against the input and suspends for its length.
func (in *Interpreter) step(ts *nfa.ThreadSet, pc int) {
	run := in.runs[pc]
	if run == nil {
		run = []int{pc}
	}
	rest := ts.Remaining()
	if len(rest) < len(run) {
		return
	}
	for k, ipc := range run {
		if !in.a.Inst[ipc].Matches(rest[k]) {
			return
		}
	}
	last := &in.a.Inst[run[len(run)-1]]
	ts.Wait(in.entries.Entry(in.an.Follow(last.Out)), len(run))
}
