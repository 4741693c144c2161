// Package stride implements a stride prefetcher built on a reference
// prediction table (RPT).
//
// Every memory instruction owns one RPT entry that tracks the last address
// it accessed, the stride between its last two accesses, and a four-state
// confidence automaton. The table is bounded; when it is full, the entry of
// the instruction that executed least recently is dropped.
//
// Reference: J.-L. Baer and T.-F. Chen, "An Effective On-Chip Preloading
// Scheme To Reduce Data Access Penalty", Supercomputing 1991.
package stride

import (
	"fmt"

	"github.com/google/btree"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/prefetchsim/prefetch"
)

// HookPosPCEvicted marks when an instruction is dropped from a full table.
// The item is the evicted Entry.
var HookPosPCEvicted = &sim.HookPos{Name: "RPT PC Evict"}

// DefaultCapacity is the default number of RPT entries.
const DefaultCapacity = 16384

const btreeDegree = 32

// State is the confidence state of an RPT entry.
type State int

// RPT states.
const (
	StateInit State = iota
	StateTransient
	StateSteady
	StateNoPred
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateTransient:
		return "Transient"
	case StateSteady:
		return "Steady"
	case StateNoPred:
		return "NoPred"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Next returns the state after an access whose address was (correct) or was
// not predicted by the current stride, and whether the stride must be
// retrained.
func (s State) Next(correct bool) (next State, retrain bool) {
	switch s {
	case StateInit:
		if correct {
			return StateSteady, false
		}
		return StateTransient, true
	case StateTransient:
		if correct {
			return StateSteady, false
		}
		return StateNoPred, true
	case StateNoPred:
		return StateTransient, !correct
	case StateSteady:
		if correct {
			return StateSteady, false
		}
		return StateInit, false
	default:
		panic(fmt.Sprintf("stride: invalid state %d", int(s)))
	}
}

// Entry is one row of the reference prediction table.
type Entry struct {
	PC         uint64
	LastAccess int64
	// Forward is a one-bit branch direction guess: whether the instruction
	// executed after this one had a higher PC.
	Forward  bool
	PrevAddr uint64
	Stride   int64
	State    State

	seq uint64
}

type timeKey struct {
	time int64
	seq  uint64
	pc   uint64
}

func pcLess(a, b *Entry) bool {
	return a.PC < b.PC
}

func timeLess(a, b timeKey) bool {
	if a.time != b.time {
		return a.time < b.time
	}
	return a.seq < b.seq
}

var _ sim.Hookable = (*Predictor)(nil)

// Predictor is the RPT stride predictor.
type Predictor struct {
	sim.HookableBase

	capacity int

	byPC    *btree.BTreeG[*Entry]
	byTime  *btree.BTreeG[timeKey]
	nextSeq uint64
}

// NewPredictor creates a stride predictor with room for capacity
// instructions.
func NewPredictor(capacity int) *Predictor {
	if capacity <= 0 {
		panic(fmt.Sprintf("stride: capacity %d must be positive", capacity))
	}

	return &Predictor{
		capacity: capacity,
		byPC:     btree.NewG(btreeDegree, pcLess),
		byTime:   btree.NewG(btreeDegree, timeLess),
	}
}

// Len returns the number of tracked instructions.
func (p *Predictor) Len() int {
	return p.byPC.Len()
}

// Entry returns a copy of the RPT entry for pc.
func (p *Predictor) Entry(pc uint64) (Entry, bool) {
	e, ok := p.byPC.Get(&Entry{PC: pc})
	if !ok {
		return Entry{}, false
	}

	return *e, true
}

// Reset clears the table.
func (p *Predictor) Reset() {
	p.byPC.Clear(false)
	p.byTime.Clear(false)
	p.nextSeq = 0
}

// Update trains the table with one access and returns the address to
// prefetch, if any.
func (p *Predictor) Update(event prefetch.AccessEvent) (uint64, bool) {
	p.OnFetch(event.PC, event.Time)
	p.OnAccess(event.PC, event.Address, event.Miss)

	return p.Predict(event.PC)
}

// OnFetch records that the instruction at pc executed at the given time.
func (p *Predictor) OnFetch(pc uint64, time int64) {
	last, hasLast := p.byTime.Max()

	if e, ok := p.byPC.Get(&Entry{PC: pc}); ok {
		if _, ok := p.byTime.Delete(p.timeKeyOf(e)); !ok {
			panic(fmt.Sprintf("stride: pc %#x missing from time index", pc))
		}
		e.LastAccess = time
		e.seq = p.nextSeq
		p.nextSeq++
		p.byTime.ReplaceOrInsert(p.timeKeyOf(e))
	} else {
		if p.byPC.Len() >= p.capacity {
			p.evictOldest()
		}

		e := &Entry{
			PC:         pc,
			LastAccess: time,
			Forward:    true,
			State:      StateInit,
			seq:        p.nextSeq,
		}
		p.nextSeq++

		p.byPC.ReplaceOrInsert(e)
		p.byTime.ReplaceOrInsert(p.timeKeyOf(e))
	}

	if !hasLast {
		return
	}

	if prev, ok := p.byPC.Get(&Entry{PC: last.pc}); ok {
		prev.Forward = pc > last.pc
	}
}

// OnAccess runs the state machine of the instruction at pc with the
// accessed address. Instructions not in the table are ignored.
func (p *Predictor) OnAccess(pc uint64, addr uint64, miss bool) {
	e, ok := p.byPC.Get(&Entry{PC: pc})
	if !ok {
		return
	}

	correct := e.PrevAddr+uint64(e.Stride) == addr
	prevAddr := e.PrevAddr
	e.PrevAddr = addr

	next, retrain := e.State.Next(correct)
	e.State = next
	if retrain {
		e.Stride = int64(addr - prevAddr)
	}
}

// Predict returns the address predicted for the instruction that follows pc.
// The follower is the table entry with the next higher PC, and it is only
// consulted if pc is expected to branch forward.
func (p *Predictor) Predict(pc uint64) (uint64, bool) {
	e, ok := p.byPC.Get(&Entry{PC: pc})
	if !ok || !e.Forward {
		return 0, false
	}

	var next *Entry
	p.byPC.AscendGreaterOrEqual(e, func(item *Entry) bool {
		if item.PC == pc {
			return true
		}
		next = item
		return false
	})

	if next == nil || next.State != StateSteady {
		return 0, false
	}

	return next.PrevAddr + uint64(next.Stride), true
}

func (p *Predictor) evictOldest() {
	oldest, ok := p.byTime.DeleteMin()
	if !ok {
		return
	}

	e, ok := p.byPC.Delete(&Entry{PC: oldest.pc})
	if !ok {
		panic(fmt.Sprintf("stride: pc %#x missing from table", oldest.pc))
	}

	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    HookPosPCEvicted,
		Item:   *e,
	})
}

func (p *Predictor) timeKeyOf(e *Entry) timeKey {
	return timeKey{time: e.LastAccess, seq: e.seq, pc: e.PC}
}
