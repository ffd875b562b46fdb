package nfa

import "regexp/syntax"

// Input returns the whole input being matched.
func (ts *ThreadSet) Input() []byte { return ts.input }

// Offset returns the current input offset.
func (ts *ThreadSet) Offset() int { return ts.offset }

// Remaining returns the input after the current offset.
func (ts *ThreadSet) Remaining() []byte { return ts.input[ts.offset:] }

// Empty returns the zero-width conditions that hold at the current offset.
func (ts *ThreadSet) Empty() syntax.EmptyOp { return ts.empty }

// Slots returns the number of capture slots each thread carries.
func (ts *ThreadSet) Slots() int { return ts.slots }

// Work returns the running thread's working captures. Runners may modify
// them; the running thread's stored captures are untouched.
func (ts *ThreadSet) Work() []int { return ts.work }

// ClearVisited resets the visited bitmap.
func (ts *ThreadSet) ClearVisited() { clear(ts.visited) }

// Visit sets the visited bit of state pc and reports whether it was clear.
func (ts *ThreadSet) Visit(pc int) bool {
	w, b := pc/64, uint64(1)<<(pc%64)
	if ts.visited[w]&b != 0 {
		return false
	}
	ts.visited[w] |= b
	return true
}

// SaveVisited appends a copy of the visited bitmap to buf.
func (ts *ThreadSet) SaveVisited(buf []uint64) []uint64 { return append(buf, ts.visited...) }

// RestoreVisited overwrites the visited bitmap from a copy made by SaveVisited.
func (ts *ThreadSet) RestoreVisited(saved []uint64) { copy(ts.visited, saved) }

// NewVisitID gives the running thread a fresh visit id and returns the
// previous one. Runners call it on entering a capture that a backreference
// reads: threads with equal ids have equal referenced captures, and only
// those may share the visited bitmap. Threads forked afterwards inherit the
// new id.
func (ts *ThreadSet) NewVisitID() uint64 {
	f := &ts.frame
	prev := f.VisitID
	f.VisitLast++
	f.VisitID = f.VisitLast
	return prev
}

// SetVisitID restores an id returned by NewVisitID.
func (ts *ThreadSet) SetVisitID(id uint64) { ts.frame.VisitID = id }

// VisitID returns the running thread's visit id.
func (ts *ThreadSet) VisitID() uint64 { return ts.frame.VisitID }

// VisitedWords returns the size of the visited bitmap in 64-bit words.
func (ts *ThreadSet) VisitedWords() int { return len(ts.visited) }

// Matched reports whether any thread has matched.
func (ts *ThreadSet) Matched() bool { return ts.matched }

// Live returns the number of threads in the global list.
func (ts *ThreadSet) Live() int {
	n := 0
	for t := ts.all.head; t != none; t = ts.threads[t].all.next {
		n++
	}
	return n
}

// Allocated returns the number of thread records in the arena.
func (ts *ThreadSet) Allocated() int { return len(ts.threads) }

// Free returns the number of thread records on the free list.
func (ts *ThreadSet) Free() int {
	n := 0
	for t := ts.free; t != none; t = ts.threads[t].all.next {
		n++
	}
	return n
}

// Dropped returns how many branches were lost to arena exhaustion since Init.
func (ts *ThreadSet) Dropped() int { return ts.dropped }

// Threads returns the entries and states of the live threads in priority
// order.
func (ts *ThreadSet) Threads() []ThreadInfo {
	var out []ThreadInfo
	for t := ts.all.head; t != none; t = ts.threads[t].all.next {
		th := &ts.threads[t]
		out = append(out, ThreadInfo{Entry: th.entry, State: th.state, Delay: th.delay, Caps: append([]int(nil), th.caps...)})
	}
	return out
}

// ThreadInfo is a snapshot of one live thread.
type ThreadInfo struct {
	Entry uintptr
	State State
	Delay int
	Caps  []int
}
