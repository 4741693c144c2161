// Package mshr tracks outstanding prefetch requests between the time they
// are issued and the time their line arrives in the cache.
package mshr

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
)

// Entry is one outstanding prefetch request.
type Entry struct {
	ID       string
	Addr     uint64
	IssuedAt int64
	ReadyAt  int64
}

// Queue is a bounded FIFO of outstanding requests. All requests share one
// latency, so the FIFO is also ordered by ready time.
type Queue struct {
	latency int64

	buf    sim.Buffer
	byAddr map[uint64]*Entry
}

// New creates a queue holding at most capacity requests that each complete
// latency time units after issue.
func New(capacity int, latency int64) *Queue {
	if capacity <= 0 {
		panic(fmt.Sprintf("mshr: capacity %d must be positive", capacity))
	}
	if latency < 0 {
		panic(fmt.Sprintf("mshr: latency %d must not be negative", latency))
	}

	return &Queue{
		latency: latency,
		buf:     sim.NewBuffer("Host.PrefetchQueue", capacity),
		byAddr:  make(map[uint64]*Entry),
	}
}

// Capacity returns the maximum number of outstanding requests.
func (q *Queue) Capacity() int {
	return q.buf.Capacity()
}

// Len returns the number of outstanding requests.
func (q *Queue) Len() int {
	return q.buf.Size()
}

// IsFull reports whether no more requests can be added.
func (q *Queue) IsFull() bool {
	return !q.buf.CanPush()
}

// Contains reports whether a request for addr is outstanding.
func (q *Queue) Contains(addr uint64) bool {
	_, ok := q.byAddr[addr]
	return ok
}

// Add issues a request for addr at time now. It returns false if the queue
// is full or addr is already outstanding.
func (q *Queue) Add(addr uint64, now int64) (*Entry, bool) {
	if q.IsFull() || q.Contains(addr) {
		return nil, false
	}

	e := &Entry{
		ID:       sim.GetIDGenerator().Generate(),
		Addr:     addr,
		IssuedAt: now,
		ReadyAt:  now + q.latency,
	}

	q.buf.Push(e)
	q.byAddr[addr] = e

	return e, true
}

// Retire removes and returns the requests that are ready at time now, oldest
// first.
func (q *Queue) Retire(now int64) []*Entry {
	var done []*Entry

	for q.buf.Size() > 0 {
		e := q.buf.Peek().(*Entry)
		if e.ReadyAt > now {
			break
		}

		q.buf.Pop()
		delete(q.byAddr, e.Addr)
		done = append(done, e)
	}

	return done
}

// Drain removes and returns every outstanding request, oldest first.
func (q *Queue) Drain() []*Entry {
	done := make([]*Entry, 0, q.buf.Size())

	for q.buf.Size() > 0 {
		e := q.buf.Pop().(*Entry)
		delete(q.byAddr, e.Addr)
		done = append(done, e)
	}

	return done
}

// Reset drops every outstanding request.
func (q *Queue) Reset() {
	q.buf.Clear()
	q.byAddr = make(map[uint64]*Entry)
}
