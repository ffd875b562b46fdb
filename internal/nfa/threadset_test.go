package nfa

import (
	"regexp/syntax"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// script runs a closure per entry.
type script map[uintptr]func(ts *ThreadSet)

func (s script) Run(ts *ThreadSet, entry uintptr) {
	if f := s[entry]; f != nil {
		f(ts)
	}
}

func run(t *testing.T, ts *ThreadSet, input string, flags Flags, slots int, s script) ([]int, bool) {
	t.Helper()
	ts.Init([]byte(input), 1, flags, slots, s)
	for ts.Dispatch(0) {
	}
	caps, ok := ts.Result()
	if ok {
		caps = append([]int(nil), caps...)
	}
	return caps, ok
}

func TestLeftmostUnanchored(t *testing.T) {
	s := script{
		1: func(ts *ThreadSet) {
			if rest := ts.Remaining(); len(rest) > 0 && rest[0] == 'x' {
				ts.Wait(2, 1)
			}
		},
		2: func(ts *ThreadSet) { ts.Match() },
	}
	ts := New(Config{States: 4})

	caps, ok := run(t, ts, "uvwxyzx", 0, 2, s)
	require.True(t, ok)
	assert.Equal(t, []int{3, 4}, caps)

	_, ok = run(t, ts, "uvwxyz", AnchorStart, 2, s)
	assert.False(t, ok, "anchored at start")

	_, ok = run(t, ts, "", 0, 2, s)
	assert.False(t, ok)
}

func TestGreedyAndLazy(t *testing.T) {
	// Greedy: continue before matching. Lazy: match before continuing.
	greedy := script{1: func(ts *ThreadSet) {
		ts.Wait(1, 1)
		ts.Match()
	}}
	lazy := script{1: func(ts *ThreadSet) {
		if ts.Match() {
			return
		}
		ts.Wait(1, 1)
	}}
	ts := New(Config{States: 2})

	caps, ok := run(t, ts, "abc", AnchorStart, 2, greedy)
	require.True(t, ok)
	assert.Equal(t, []int{0, 3}, caps)

	caps, ok = run(t, ts, "abc", AnchorStart, 2, lazy)
	require.True(t, ok)
	assert.Equal(t, []int{0, 0}, caps)

	caps, ok = run(t, ts, "abc", AnchorStart|AnchorEnd, 2, lazy)
	require.True(t, ok)
	assert.Equal(t, []int{0, 3}, caps)
}

func TestPriorityAcrossDelays(t *testing.T) {
	// Entry 1 forks a long wait first and a short one second. The short
	// branch runs first but must still lose to the long one.
	ran := map[uintptr]int{}
	s := script{
		1: func(ts *ThreadSet) {
			w := ts.Work()
			w[2] = 1
			ts.Wait(2, 3)
			w[2] = 2
			ts.Wait(3, 1)
		},
		3: func(ts *ThreadSet) { ts.Wait(4, 2) },
		2: func(ts *ThreadSet) { ts.Match() },
		4: func(ts *ThreadSet) { ts.Match() },
	}
	counting := script{}
	for e, f := range s {
		counting[e] = func(ts *ThreadSet) {
			ran[e]++
			f(ts)
		}
	}

	ts := New(Config{States: 8})
	caps, ok := run(t, ts, "abc", AnchorStart, 4, counting)
	require.True(t, ok)
	assert.Equal(t, []int{0, 3, 1, -1}, caps)
	assert.Equal(t, 1, ran[3])
	assert.Equal(t, 0, ran[4], "lower-priority thread ran after the match")
}

func TestMatchKillsLower(t *testing.T) {
	s := script{
		1: func(ts *ThreadSet) {
			ts.Wait(2, 1)
			ts.Wait(3, 1)
			ts.Wait(4, 1)
		},
		3: func(ts *ThreadSet) { ts.Match() },
		2: func(ts *ThreadSet) { ts.Wait(2, 1) },
	}
	ts := New(Config{States: 8})
	ts.Init([]byte("ab"), 1, AnchorStart, 2, s)

	require.True(t, ts.Dispatch(1), "one step leaves work")
	require.Len(t, ts.Threads(), 3)

	for ts.Dispatch(0) {
	}
	caps, ok := ts.Result()
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, caps, "the higher thread never matched")
}

func TestFail(t *testing.T) {
	s := script{1: func(ts *ThreadSet) {
		if ts.Remaining()[0] == 'a' {
			ts.Fail()
			return
		}
		ts.Wait(1, 1)
	}}
	ts := New(Config{States: 2})
	_, ok := run(t, ts, "aaa", AnchorStart, 2, s)
	assert.False(t, ok)
	assert.Equal(t, 0, ts.Live())
}

func TestArenaReuse(t *testing.T) {
	s := script{
		1: func(ts *ThreadSet) {
			if r := ts.Remaining(); len(r) > 0 && r[0] == 'b' {
				ts.Wait(2, 1)
			}
		},
		2: func(ts *ThreadSet) {
			if r := ts.Remaining(); len(r) > 0 && r[0] == 'b' {
				ts.Wait(2, 1)
			}
			ts.Match()
		},
	}
	ts := New(Config{States: 4})
	var allocated int
	for i := range 50 {
		caps, ok := run(t, ts, "aaaabbbbaaaa", 0, 2, s)
		require.True(t, ok)
		require.Equal(t, []int{4, 8}, caps)
		assert.Equal(t, ts.Allocated(), ts.Live()+ts.Free(), "thread records leaked")
		if i == 0 {
			allocated = ts.Allocated()
		}
	}
	assert.Equal(t, allocated, ts.Allocated(), "arena grew across matches")
}

func TestMaxThreads(t *testing.T) {
	s := script{
		1: func(ts *ThreadSet) {
			ts.Wait(2, 1)
			ts.Wait(3, 1)
			ts.Wait(4, 1)
		},
		2: func(ts *ThreadSet) { ts.Match() },
	}
	ts := New(Config{States: 8, MaxThreads: 2})
	caps, ok := run(t, ts, "a", AnchorStart, 2, s)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, caps)
	assert.Equal(t, 2, ts.Dropped())
	assert.LessOrEqual(t, ts.Allocated(), 2)
}

func TestEmptyContext(t *testing.T) {
	var seen []syntax.EmptyOp
	s := script{1: func(ts *ThreadSet) {
		seen = append(seen, ts.Empty())
	}}
	ts := New(Config{States: 2})
	run(t, ts, "a\nb", 0, 2, s)

	require.Len(t, seen, 4)
	assert.NotZero(t, seen[0]&syntax.EmptyBeginText)
	assert.NotZero(t, seen[0]&syntax.EmptyWordBoundary)
	assert.NotZero(t, seen[1]&syntax.EmptyEndLine)
	assert.NotZero(t, seen[2]&syntax.EmptyBeginLine)
	assert.Zero(t, seen[2]&syntax.EmptyBeginText)
	assert.NotZero(t, seen[3]&syntax.EmptyEndText)
}

func TestVisited(t *testing.T) {
	var first []bool
	s := script{1: func(ts *ThreadSet) {
		first = append(first, ts.Visit(70))
	}}

	ts := New(Config{States: 80})
	run(t, ts, "abc", 0, 2, s)
	assert.Equal(t, []bool{true, true, true, true}, first, "cleared at every offset")

	saved := ts.SaveVisited(nil)
	ts.ClearVisited()
	assert.True(t, ts.Visit(70))
	ts.RestoreVisited(saved)
	assert.False(t, ts.Visit(70))
	assert.Equal(t, 3, ts.VisitedWords())
}

func TestVisitIDs(t *testing.T) {
	var first []bool
	var ids []uint64
	visit := func(ts *ThreadSet) {
		first = append(first, ts.Visit(70))
		ids = append(ids, ts.VisitID())
	}
	s := script{
		1: func(ts *ThreadSet) {
			visit(ts)
			ts.Wait(2, 1)
			ts.Wait(3, 1)
			prev := ts.NewVisitID()
			ts.Wait(4, 1)
			ts.SetVisitID(prev)
			ts.Wait(5, 1)
		},
		2: visit,
		3: visit,
		4: visit,
		5: visit,
	}
	ts := New(Config{States: 80})
	run(t, ts, "ab", AnchorStart, 2, s)

	assert.Equal(t, []uint64{0, 0, 0, 1, 0}, ids)
	// 3 shares the bitmap of 2; 4 has its own id; 5 follows 4 and starts
	// over even though its id matches 2.
	assert.Equal(t, []bool{true, true, false, true, true}, first)

	first, ids = nil, nil
	run(t, ts, "ab", AnchorStart, 2, s)
	assert.Equal(t, []uint64{0, 0, 0, 1, 0}, ids, "ids restart on Init")
}

func TestThreadsSnapshot(t *testing.T) {
	ts := New(Config{States: 2})
	ts.Init([]byte("xy"), 7, 0, 4, script{})
	threads := ts.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, ThreadInfo{Entry: 7, State: Queued, Caps: []int{0, -1, -1, -1}}, threads[0])
	assert.Equal(t, "queued", threads[0].State.String())
}

func TestFrameLayout(t *testing.T) {
	var f Frame
	offsets := map[string][2]uintptr{
		"Input":      {unsafe.Offsetof(f.Input), FrameInput},
		"Length":     {unsafe.Offsetof(f.Length), FrameLength},
		"Offset":     {unsafe.Offsetof(f.Offset), FrameOffset},
		"Empty":      {unsafe.Offsetof(f.Empty), FrameEmpty},
		"Flags":      {unsafe.Offsetof(f.Flags), FrameFlags},
		"Slots":      {unsafe.Offsetof(f.Slots), FrameSlots},
		"Caps":       {unsafe.Offsetof(f.Caps), FrameCaps},
		"Visited":    {unsafe.Offsetof(f.Visited), FrameVisited},
		"Out":        {unsafe.Offsetof(f.Out), FrameOut},
		"OutEnd":     {unsafe.Offsetof(f.OutEnd), FrameOutEnd},
		"VisitedLen": {unsafe.Offsetof(f.VisitedLen), FrameVisitedLen},
		"Overflow":   {unsafe.Offsetof(f.Overflow), FrameOverflow},
		"VisitID":    {unsafe.Offsetof(f.VisitID), FrameVisitID},
		"VisitLast":  {unsafe.Offsetof(f.VisitLast), FrameVisitLast},
	}
	for name, o := range offsets {
		assert.Equal(t, o[1], o[0], name)
	}
	assert.Equal(t, uintptr(FrameSize), unsafe.Sizeof(f))

	ts := New(Config{States: 10})
	ts.Init([]byte("hello"), 1, AnchorEnd, 6, script{})
	fr := ts.Frame()
	assert.Equal(t, uintptr(unsafe.Pointer(fr)), ts.FrameAddr())
	assert.Equal(t, uint64(5), fr.Length)
	assert.Equal(t, uint64(6), fr.Slots)
	assert.Equal(t, uint64(AnchorEnd), fr.Flags)
	assert.Equal(t, uint64(16), fr.VisitedLen)
	assert.Equal(t, uintptr(unsafe.Pointer(&ts.Work()[0])), fr.Caps)
}
