// Package nfa is the thread scheduler shared by native and interpreted
// matching. A thread is a candidate position in the automaton together with
// its capture offsets. Threads are kept in one global list ordered by
// priority and in a ring of queues ordered by the input offset at which they
// resume.
package nfa

import (
	"log/slog"
	"regexp/syntax"
)

// Flags select anchoring.
type Flags uint64

const (
	AnchorStart Flags = 1 << iota
	AnchorEnd
)

// Lookahead is the furthest queue a wait can target directly. Longer waits
// are carried by a per-thread delay.
const Lookahead = 1

// State is the life-cycle state of a thread record.
type State uint8

const (
	Dead State = iota
	Queued
	Running
	Waiting
	Matched
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Waiting:
		return "waiting"
	case Matched:
		return "matched"
	}
	return "dead"
}

// Runner executes the epsilon closure of a thread's entry. It reports new
// threads through Wait and Match on ts.
type Runner interface {
	Run(ts *ThreadSet, entry uintptr)
}

const none = -1

type link struct{ prev, next int }

type list struct{ head, tail int }

type thread struct {
	entry uintptr
	delay int
	visit uint64
	state State
	queue int
	all   link
	q     link
	caps  []int
}

// Config fixes the parts of a ThreadSet that do not change between matches.
type Config struct {
	// States is the number of automaton instructions; it sizes the
	// visited bitmap.
	States int
	// MaxThreads bounds the arena. Zero means unbounded.
	MaxThreads int
	Logger     *slog.Logger
}

// ThreadSet is the scheduler state for one match at a time. It is not safe
// for concurrent use.
type ThreadSet struct {
	frame Frame

	cfg     Config
	logger  *slog.Logger
	runner  Runner
	input   []byte
	offset  int
	flags   Flags
	empty   syntax.EmptyOp
	slots   int
	start   uintptr
	matched bool

	threads []thread
	free    int
	all     list
	ring    [Lookahead + 1]list
	active  int
	running int
	cursor  int

	work    []int
	visited []uint64
	bitmap  uint64 // visit id the bitmap was last cleared for
	dropped int
}

// noBitmap is never a thread's visit id.
const noBitmap = ^uint64(0)

// New returns an empty ThreadSet.
func New(cfg Config) *ThreadSet {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ts := &ThreadSet{
		cfg:     cfg,
		logger:  logger,
		free:    none,
		visited: make([]uint64, (cfg.States+63)/64+1),
	}
	ts.reset()
	return ts
}

// Init prepares ts for matching input from entry start. slots is the number
// of capture slots each thread carries; it is raised to at least 2. The
// initial thread is queued at the highest priority.
func (ts *ThreadSet) Init(input []byte, start uintptr, flags Flags, slots int, r Runner) {
	if slots < 2 {
		slots = 2
	}
	if slots != ts.slots {
		ts.slots = slots
		ts.work = make([]int, slots)
		for i := range ts.threads {
			ts.threads[i].caps = make([]int, slots)
		}
	}
	ts.reset()
	ts.runner = r
	ts.input = input
	ts.offset = 0
	ts.flags = flags
	ts.start = start
	ts.matched = false
	ts.dropped = 0
	ts.bitmap = noBitmap
	ts.frame.VisitID, ts.frame.VisitLast = 0, 0
	ts.position()
	ts.seed()
}

// reset returns every thread record to the free list.
func (ts *ThreadSet) reset() {
	ts.free = none
	for i := len(ts.threads) - 1; i >= 0; i-- {
		th := &ts.threads[i]
		th.state = Dead
		th.queue = none
		th.all = link{none, ts.free}
		th.q = link{none, none}
		ts.free = i
	}
	ts.all = list{none, none}
	for i := range ts.ring {
		ts.ring[i] = list{none, none}
	}
	ts.active = 0
	ts.running = none
	ts.cursor = none
}

// Dispatch runs queued threads until the input is exhausted or maxSteps
// threads have run; maxSteps <= 0 means no limit. It reports whether work
// remains.
func (ts *ThreadSet) Dispatch(maxSteps int) bool {
	for steps := 0; maxSteps <= 0 || steps < maxSteps; {
		t := ts.qPop(ts.active)
		if t == none {
			if !ts.advance() {
				if ts.dropped > 0 {
					ts.logger.Debug("thread arena exhausted", "dropped", ts.dropped, "max", ts.cfg.MaxThreads)
				}
				return false
			}
			continue
		}
		th := &ts.threads[t]
		if th.delay > 0 {
			th.delay--
			ts.qPush(ts.ahead(1), t)
			continue
		}
		ts.run(t)
		steps++
	}
	return true
}

func (ts *ThreadSet) run(t int) {
	th := &ts.threads[t]
	th.state = Running
	// Consecutive threads with the same visit id share the bitmap.
	if th.visit != ts.bitmap {
		ts.ClearVisited()
		ts.bitmap = th.visit
	}
	ts.frame.VisitID = th.visit
	ts.running, ts.cursor = t, t
	copy(ts.work, th.caps)
	ts.runner.Run(ts, th.entry)
	if ts.threads[t].state == Running {
		ts.kill(t)
	}
	ts.running, ts.cursor = none, none
}

// advance moves to the next input byte. It reports false when nothing is
// left to do.
func (ts *ThreadSet) advance() bool {
	if ts.offset >= len(ts.input) {
		return false
	}
	if (ts.matched || ts.flags&AnchorStart != 0) && ts.idle() {
		return false
	}
	ts.offset++
	ts.active = ts.ahead(1)
	ts.position()
	ts.bitmap = noBitmap
	if ts.flags&AnchorStart == 0 && !ts.matched {
		ts.seed()
	}
	return true
}

func (ts *ThreadSet) idle() bool {
	for i := range ts.ring {
		if ts.ring[i].head != none {
			return false
		}
	}
	return true
}

// seed queues a fresh lowest-priority thread at the start entry.
func (ts *ThreadSet) seed() {
	t := ts.alloc()
	if t == none {
		return
	}
	th := &ts.threads[t]
	for i := range th.caps {
		th.caps[i] = -1
	}
	th.caps[0] = ts.offset
	th.entry = ts.start
	th.delay = 0
	th.visit = 0
	th.state = Queued
	ts.pushBack(t)
	ts.qPush(ts.active, t)
}

func (ts *ThreadSet) position() {
	prev, next := rune(-1), rune(-1)
	if ts.offset > 0 {
		prev = rune(ts.input[ts.offset-1])
	}
	if ts.offset < len(ts.input) {
		next = rune(ts.input[ts.offset])
	}
	ts.empty = syntax.EmptyOpContext(prev, next)
	ts.syncFrame()
}

func (ts *ThreadSet) ahead(n int) int { return (ts.active + n) % len(ts.ring) }

// Fork clones the working captures into a new thread ranked just below the
// running thread and the children it already spawned. The thread is in no
// queue yet. It returns -1 when the arena is exhausted; the branch is then
// dropped.
func (ts *ThreadSet) Fork(entry uintptr) int { return ts.fork(entry, ts.work) }

func (ts *ThreadSet) fork(entry uintptr, caps []int) int {
	t := ts.alloc()
	if t == none {
		ts.dropped++
		return none
	}
	th := &ts.threads[t]
	copy(th.caps, caps)
	th.entry = entry
	th.delay = 0
	th.visit = ts.frame.VisitID
	th.state = Queued
	if ts.cursor == none {
		ts.pushBack(t)
	} else {
		ts.insertAfter(ts.cursor, t)
	}
	ts.cursor = t
	return t
}

// Wait forks a thread that resumes at entry once n more bytes are consumed.
func (ts *ThreadSet) Wait(entry uintptr, n int) { ts.WaitCaps(entry, n, ts.work) }

// WaitCaps is Wait with an explicit capture array. Waits past the end of
// the input are dropped.
func (ts *ThreadSet) WaitCaps(entry uintptr, n int, caps []int) {
	if n <= 0 || n > len(ts.input)-ts.offset {
		return
	}
	t := ts.fork(entry, caps)
	if t == none {
		return
	}
	step := min(n, Lookahead)
	th := &ts.threads[t]
	th.delay = n - step
	th.state = Waiting
	ts.qPush(ts.ahead(step), t)
}

// Match records a match for the running thread at the current offset and
// fails every lower-priority thread. It reports false, recording nothing,
// when the end is anchored and input remains.
func (ts *ThreadSet) Match() bool { return ts.MatchCaps(ts.work) }

// MatchCaps is Match with an explicit capture array.
func (ts *ThreadSet) MatchCaps(caps []int) bool {
	if ts.flags&AnchorEnd != 0 && ts.offset < len(ts.input) {
		return false
	}
	// Lower threads go first so their records can hold the match.
	if ts.cursor != none {
		ts.killAfter(ts.cursor)
	}
	t := ts.fork(0, caps)
	if t == none {
		return true
	}
	th := &ts.threads[t]
	th.caps[1] = ts.offset
	th.state = Matched
	ts.killAfter(t)
	ts.matched = true
	// The runner may stop here without undoing its capture scopes.
	ts.bitmap = noBitmap
	return true
}

// killAfter retires every thread ranked below t.
func (ts *ThreadSet) killAfter(t int) {
	for n := ts.threads[t].all.next; n != none; {
		next := ts.threads[n].all.next
		ts.kill(n)
		n = next
	}
}

// Fail retires the running thread. The runner must not fork afterwards.
func (ts *ThreadSet) Fail() {
	if ts.running != none {
		ts.kill(ts.running)
	}
}

func (ts *ThreadSet) kill(t int) {
	th := &ts.threads[t]
	if th.state == Dead {
		return
	}
	if th.queue != none {
		ts.qUnlink(t)
	}
	ts.unlink(t)
	th.state = Dead
	th.all = link{none, ts.free}
	ts.free = t
}

// Result returns the captures of the best match once Dispatch has returned
// false.
func (ts *ThreadSet) Result() ([]int, bool) {
	h := ts.all.head
	if h == none || ts.threads[h].state != Matched {
		return nil, false
	}
	return ts.threads[h].caps, true
}

func (ts *ThreadSet) alloc() int {
	if t := ts.free; t != none {
		ts.free = ts.threads[t].all.next
		return t
	}
	if ts.cfg.MaxThreads > 0 && len(ts.threads) >= ts.cfg.MaxThreads {
		return none
	}
	ts.threads = append(ts.threads, thread{queue: none, caps: make([]int, ts.slots)})
	return len(ts.threads) - 1
}

func (ts *ThreadSet) pushBack(t int) {
	th := &ts.threads[t]
	th.all = link{ts.all.tail, none}
	if ts.all.tail == none {
		ts.all.head = t
	} else {
		ts.threads[ts.all.tail].all.next = t
	}
	ts.all.tail = t
}

func (ts *ThreadSet) insertAfter(after, t int) {
	next := ts.threads[after].all.next
	ts.threads[t].all = link{after, next}
	ts.threads[after].all.next = t
	if next == none {
		ts.all.tail = t
	} else {
		ts.threads[next].all.prev = t
	}
}

func (ts *ThreadSet) unlink(t int) {
	l := ts.threads[t].all
	if l.prev == none {
		ts.all.head = l.next
	} else {
		ts.threads[l.prev].all.next = l.next
	}
	if l.next == none {
		ts.all.tail = l.prev
	} else {
		ts.threads[l.next].all.prev = l.prev
	}
}

func (ts *ThreadSet) qPush(qi, t int) {
	q := &ts.ring[qi]
	th := &ts.threads[t]
	th.queue = qi
	th.q = link{q.tail, none}
	if q.tail == none {
		q.head = t
	} else {
		ts.threads[q.tail].q.next = t
	}
	q.tail = t
}

func (ts *ThreadSet) qPop(qi int) int {
	t := ts.ring[qi].head
	if t != none {
		ts.qUnlink(t)
	}
	return t
}

func (ts *ThreadSet) qUnlink(t int) {
	th := &ts.threads[t]
	q := &ts.ring[th.queue]
	if th.q.prev == none {
		q.head = th.q.next
	} else {
		ts.threads[th.q.prev].q.next = th.q.next
	}
	if th.q.next == none {
		q.tail = th.q.prev
	} else {
		ts.threads[th.q.next].q.prev = th.q.prev
	}
	th.queue = none
	th.q = link{none, none}
}
