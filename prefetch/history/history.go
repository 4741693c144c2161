// Package history provides a grouped address-interval history.
//
// The history keeps a set of disjoint address intervals, each carrying a
// payload and the time it was last touched. Neighboring intervals whose
// payloads are compatible are merged into one; updating the middle of an
// interval with an incompatible payload splits it. When the number of
// intervals exceeds the capacity, the least recently touched interval is
// evicted.
package history

import (
	"fmt"

	"github.com/google/btree"
	"github.com/sarchlab/akita/v4/sim"
)

// HookPosEntryEvicted marks when an interval is evicted because the history
// is over capacity. The hook is invoked before the entry is removed. The
// item is the evicted Entry.
var HookPosEntryEvicted = &sim.HookPos{Name: "History Entry Evict"}

const btreeDegree = 16

// Entry is an address interval [Start, End] in the history.
type Entry[T any] struct {
	Start      uint64
	End        uint64
	LastAccess int64
	Payload    T
}

// Contains reports whether addr falls in the interval.
func (e Entry[T]) Contains(addr uint64) bool {
	return e.Start <= addr && addr <= e.End
}

// A MergePolicy decides whether two intervals can be combined. a always
// precedes or contains b in address order.
type MergePolicy[T any] interface {
	CanMerge(a, b Entry[T]) bool
}

// MergeFunc adapts a function to the MergePolicy interface.
type MergeFunc[T any] func(a, b Entry[T]) bool

// CanMerge calls f(a, b).
func (f MergeFunc[T]) CanMerge(a, b Entry[T]) bool {
	return f(a, b)
}

type slot[T any] struct {
	entry Entry[T]
	seq   uint64
	live  bool
}

type addrKey struct {
	start uint64
	slot  int
}

type timeKey struct {
	time int64
	seq  uint64
	slot int
}

func addrLess(a, b addrKey) bool {
	return a.start < b.start
}

func timeLess(a, b timeKey) bool {
	if a.time != b.time {
		return a.time < b.time
	}
	return a.seq < b.seq
}

// Store is the grouped interval history. Entries are owned by the store and
// live in an index-stable slot arena; the address index and the recency
// index refer to them by slot number.
type Store[T any] struct {
	sim.HookableBase

	policy    MergePolicy[T]
	blockSize uint64
	capacity  int

	slots []slot[T]
	free  []int

	byAddr  *btree.BTreeG[addrKey]
	byTime  *btree.BTreeG[timeKey]
	nextSeq uint64
}

// New creates a Store. blockSize must be a power of two and capacity
// positive.
func New[T any](
	policy MergePolicy[T],
	blockSize uint64,
	capacity int,
) *Store[T] {
	if policy == nil {
		panic("history: merge policy must not be nil")
	}
	if blockSize == 0 || blockSize&(blockSize-1) != 0 {
		panic(fmt.Sprintf("history: block size %d is not a power of two",
			blockSize))
	}
	if capacity <= 0 {
		panic(fmt.Sprintf("history: capacity %d must be positive", capacity))
	}

	return &Store[T]{
		policy:    policy,
		blockSize: blockSize,
		capacity:  capacity,
		byAddr:    btree.NewG(btreeDegree, addrLess),
		byTime:    btree.NewG(btreeDegree, timeLess),
	}
}

// BlockSize returns the address granularity of the store.
func (s *Store[T]) BlockSize() uint64 {
	return s.blockSize
}

// Capacity returns the maximum number of intervals kept.
func (s *Store[T]) Capacity() int {
	return s.capacity
}

// Len returns the number of intervals.
func (s *Store[T]) Len() int {
	return s.byAddr.Len()
}

// Get returns the interval that contains addr.
func (s *Store[T]) Get(addr uint64) (Entry[T], bool) {
	idx, ok := s.find(addr)
	if !ok {
		return Entry[T]{}, false
	}

	return s.slots[idx].entry, true
}

// Entries returns a copy of all intervals in address order.
func (s *Store[T]) Entries() []Entry[T] {
	entries := make([]Entry[T], 0, s.byAddr.Len())
	s.byAddr.Ascend(func(k addrKey) bool {
		entries = append(entries, s.slots[k.slot].entry)
		return true
	})

	return entries
}

// Reset removes all intervals.
func (s *Store[T]) Reset() {
	s.slots = nil
	s.free = nil
	s.byAddr.Clear(false)
	s.byTime.Clear(false)
	s.nextSeq = 0
}

// Update records that payload was observed at addr at the given time.
func (s *Store[T]) Update(time int64, addr uint64, payload T) {
	if idx, ok := s.find(addr); ok {
		candidate := Entry[T]{
			Start:      addr,
			End:        addr,
			LastAccess: time,
			Payload:    payload,
		}

		if s.policy.CanMerge(s.slots[idx].entry, candidate) {
			s.touch(idx, time)
		} else {
			s.split(idx, addr)
		}
	}

	if _, ok := s.find(addr); !ok {
		idx := s.insert(addr, addr, time, payload)
		s.mergeWithPrev(idx, time)

		idx, _ = s.find(addr)
		s.mergeWithNext(idx, time)
	}

	for s.byTime.Len() > s.capacity {
		oldest, _ := s.byTime.Min()
		s.InvokeHook(sim.HookCtx{
			Domain: s,
			Pos:    HookPosEntryEvicted,
			Item:   s.slots[oldest.slot].entry,
		})
		s.remove(oldest.slot)
	}
}

// split carves addr out of the interval in the given slot. The part above
// addr becomes a new interval that keeps the old payload and recency; the
// part below addr stays in place or disappears if empty.
func (s *Store[T]) split(idx int, addr uint64) {
	old := s.slots[idx].entry

	if next := addr + s.blockSize; next > addr && next <= old.End {
		s.insert(next, old.End, old.LastAccess, old.Payload)
	}

	if addr >= s.blockSize && old.Start <= addr-s.blockSize {
		s.slots[idx].entry.End = addr - s.blockSize
	} else {
		s.remove(idx)
	}
}

func (s *Store[T]) mergeWithPrev(idx int, time int64) {
	start := s.slots[idx].entry.Start

	prev := -1
	s.byAddr.DescendLessOrEqual(addrKey{start: start}, func(k addrKey) bool {
		if k.start == start {
			return true
		}
		prev = k.slot
		return false
	})

	if prev < 0 {
		return
	}

	if s.policy.CanMerge(s.slots[prev].entry, s.slots[idx].entry) {
		s.slots[prev].entry.End = s.slots[idx].entry.End
		s.touch(prev, time)
		s.remove(idx)
	}
}

func (s *Store[T]) mergeWithNext(idx int, time int64) {
	start := s.slots[idx].entry.Start

	next := -1
	s.byAddr.AscendGreaterOrEqual(addrKey{start: start}, func(k addrKey) bool {
		if k.start == start {
			return true
		}
		next = k.slot
		return false
	})

	if next < 0 {
		return
	}

	if s.policy.CanMerge(s.slots[idx].entry, s.slots[next].entry) {
		s.slots[idx].entry.End = s.slots[next].entry.End
		s.touch(idx, time)
		s.remove(next)
	}
}

// find returns the slot of the interval containing addr.
func (s *Store[T]) find(addr uint64) (int, bool) {
	found := -1
	s.byAddr.DescendLessOrEqual(addrKey{start: addr}, func(k addrKey) bool {
		found = k.slot
		return false
	})

	if found < 0 || s.slots[found].entry.End < addr {
		return -1, false
	}

	return found, true
}

func (s *Store[T]) insert(start, end uint64, time int64, payload T) int {
	if start > end {
		panic(fmt.Sprintf("history: inverted interval [%#x, %#x]", start, end))
	}

	if s.byAddr.Has(addrKey{start: start}) {
		panic(fmt.Sprintf("history: duplicate entry at %#x", start))
	}

	var idx int
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = len(s.slots)
		s.slots = append(s.slots, slot[T]{})
	}

	s.slots[idx] = slot[T]{
		entry: Entry[T]{
			Start:      start,
			End:        end,
			LastAccess: time,
			Payload:    payload,
		},
		seq:  s.nextSeq,
		live: true,
	}
	s.nextSeq++

	s.byAddr.ReplaceOrInsert(addrKey{start: start, slot: idx})
	s.byTime.ReplaceOrInsert(s.timeKeyOf(idx))

	return idx
}

// touch moves the interval to the given recency.
func (s *Store[T]) touch(idx int, time int64) {
	if _, ok := s.byTime.Delete(s.timeKeyOf(idx)); !ok {
		panic(fmt.Sprintf("history: no recency entry for %#x",
			s.slots[idx].entry.Start))
	}

	s.slots[idx].entry.LastAccess = time
	s.slots[idx].seq = s.nextSeq
	s.nextSeq++

	s.byTime.ReplaceOrInsert(s.timeKeyOf(idx))
}

// remove drops the interval from both indices and frees its slot.
func (s *Store[T]) remove(idx int) {
	sl := &s.slots[idx]
	if !sl.live {
		panic(fmt.Sprintf("history: slot %d removed twice", idx))
	}

	if _, ok := s.byAddr.Delete(addrKey{start: sl.entry.Start}); !ok {
		panic(fmt.Sprintf("history: no address entry for %#x",
			sl.entry.Start))
	}

	if _, ok := s.byTime.Delete(s.timeKeyOf(idx)); !ok {
		panic(fmt.Sprintf("history: no recency entry for %#x",
			sl.entry.Start))
	}

	*sl = slot[T]{}
	s.free = append(s.free, idx)
}

func (s *Store[T]) timeKeyOf(idx int) timeKey {
	return timeKey{
		time: s.slots[idx].entry.LastAccess,
		seq:  s.slots[idx].seq,
		slot: idx,
	}
}
