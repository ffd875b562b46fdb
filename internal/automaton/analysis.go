package automaton

import (
	"fmt"
	"strings"
)

// MaxRun bounds how many consecutive ByteRange instructions are fused into
// a single step.
const MaxRun = 64

// Analysis summarises the graph reachable from the start instruction. Both
// execution engines consult it so they agree on which instructions exist,
// which need deduplication and how byte runs are fused.
type Analysis struct {
	Start     int    // start after skipping Nops
	Reachable []bool // by instruction index
	Indegree  []int  // incoming edges; the start and extension targets get one more
	// Run holds the fused run length at each run head and 0 elsewhere.
	// Absorbed instructions are reachable but never entered directly.
	Run      []int
	Absorbed []bool
	// Blocks lists, in index order, every instruction that is entered
	// directly: run heads, extension starts and epsilon instructions.
	Blocks []int
	// BackrefGroups holds the group numbers referenced by a backreference.
	BackrefGroups map[int]bool
	Categories    bool
	Exts          int

	a    *Automaton
	ov   Overlay
	skip []int
}

// Analyze walks the automaton from its start instruction. Extension starts in
// ov are followed through their extension outputs rather than their bytes.
func Analyze(a *Automaton, ov Overlay) (*Analysis, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	for pc, exts := range ov {
		if pc < 0 || pc >= a.Len() || a.Inst[pc].Op != OpByteRange {
			return nil, fmt.Errorf("%w: extension at inst %d", ErrInvalid, pc)
		}
		for _, e := range exts {
			if !e.Kind.Valid() || e.Out < 0 || e.Out >= a.Len() {
				return nil, fmt.Errorf("%w: inst %d: bad extension %v", ErrInvalid, pc, e)
			}
		}
	}

	n := a.Len()
	an := &Analysis{
		Reachable:     make([]bool, n),
		Indegree:      make([]int, n),
		Run:           make([]int, n),
		Absorbed:      make([]bool, n),
		BackrefGroups: make(map[int]bool),
		a:             a,
		ov:            ov,
		skip:          make([]int, n),
	}
	for pc := range an.skip {
		an.skip[pc] = -1
	}
	an.Start = an.Follow(a.Start)

	// Worklist traversal, counting every edge out of a reachable instruction.
	pred := make([]int, n)
	work := []int{an.Start}
	an.Reachable[an.Start] = true
	an.Indegree[an.Start] = 1
	pred[an.Start] = -1
	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		for _, next := range an.Succ(pc) {
			an.Indegree[next]++
			pred[next] = pc
			if !an.Reachable[next] {
				an.Reachable[next] = true
				work = append(work, next)
			}
		}
		for _, e := range ov[pc] {
			// Extensions consume a variable number of bytes, so threads
			// from different offsets can meet at their target.
			an.Indegree[an.Follow(e.Out)]++
			an.Exts++
			switch e.Kind {
			case ExtBackref:
				an.BackrefGroups[int(e.Arg)] = true
			case ExtCategory, ExtNotCategory:
				an.Categories = true
			}
		}
	}

	// Fuse ByteRange chains. An instruction joins its predecessor's run
	// when it can only be reached from that predecessor.
	joins := func(pc int) bool {
		p := pred[pc]
		return pc != an.Start && an.Indegree[pc] == 1 && ov[pc] == nil &&
			a.Inst[pc].Op == OpByteRange && p >= 0 &&
			a.Inst[p].Op == OpByteRange && ov[p] == nil
	}
	for pc := 0; pc < n; pc++ {
		if !an.Reachable[pc] || a.Inst[pc].Op != OpByteRange || ov[pc] != nil || joins(pc) {
			continue
		}
		head, cur := pc, pc
		an.Run[head] = 1
		for {
			next := an.Follow(a.Inst[cur].Out)
			if !joins(next) {
				break
			}
			if an.Run[head] == MaxRun {
				head = next
				an.Run[head] = 1
			} else {
				an.Run[head]++
				an.Absorbed[next] = true
			}
			cur = next
		}
	}

	for pc := 0; pc < n; pc++ {
		if an.Reachable[pc] && !an.Absorbed[pc] {
			an.Blocks = append(an.Blocks, pc)
		}
	}
	return an, nil
}

// Follow returns the first non-Nop instruction reached from pc.
func (an *Analysis) Follow(pc int) int {
	if s := an.skip[pc]; s >= 0 {
		return s
	}
	cur := pc
	for range an.a.Inst {
		if an.a.Inst[cur].Op != OpNop {
			break
		}
		next := an.a.Inst[cur].Out
		if next == cur {
			break
		}
		cur = next
	}
	an.skip[pc] = cur
	return cur
}

// Succ returns the Nop-resolved successors of pc in priority order.
func (an *Analysis) Succ(pc int) []int {
	if exts, ok := an.ov[pc]; ok {
		out := make([]int, len(exts))
		for i, e := range exts {
			out[i] = an.Follow(e.Out)
		}
		return out
	}
	in := &an.a.Inst[pc]
	switch in.Op {
	case OpAlt, OpAltMatch:
		return []int{an.Follow(in.Out), an.Follow(in.Out1)}
	case OpByteRange, OpCapture, OpEmptyWidth, OpNop:
		return []int{an.Follow(in.Out)}
	}
	return nil
}

// ExtsAt returns the extensions starting at pc.
func (an *Analysis) ExtsAt(pc int) []Ext { return an.ov[pc] }

// RunInsts returns the instructions of the run headed at pc.
func (an *Analysis) RunInsts(pc int) []int {
	run := make([]int, 0, an.Run[pc])
	for cur := pc; len(run) < an.Run[pc]; cur = an.Follow(an.a.Inst[cur].Out) {
		run = append(run, cur)
	}
	return run
}

// RunOut returns the instruction that follows the run headed at pc.
func (an *Analysis) RunOut(pc int) int {
	run := an.RunInsts(pc)
	return an.Follow(an.a.Inst[run[len(run)-1]].Out)
}

// Dedup reports whether entering pc must test-and-set its visited bit.
func (an *Analysis) Dedup(pc int) bool { return an.Indegree[pc] > 1 }

// HasBackrefs reports whether any reachable backreference exists.
func (an *Analysis) HasBackrefs() bool { return len(an.BackrefGroups) > 0 }

// MaxBackrefGroup returns the largest group referenced by a backreference,
// or -1.
func (an *Analysis) MaxBackrefGroup() int {
	max := -1
	for g := range an.BackrefGroups {
		if g > max {
			max = g
		}
	}
	return max
}

func (an *Analysis) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "start %d, %d blocks, %d extensions\n", an.Start, len(an.Blocks), an.Exts)
	for _, pc := range an.Blocks {
		fmt.Fprintf(&b, "%4d. indeg=%d", pc, an.Indegree[pc])
		if an.Run[pc] > 0 {
			fmt.Fprintf(&b, " run=%d", an.Run[pc])
		}
		for _, e := range an.ov[pc] {
			fmt.Fprintf(&b, " [%v]", e)
		}
		b.WriteByte('\n')
	}
	if an.HasBackrefs() {
		fmt.Fprintf(&b, "backref groups: %v\n", an.BackrefGroups)
	}
	return b.String()
}
