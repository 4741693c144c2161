// Package delta implements a delta-correlation prefetcher.
//
// For every miss block the predictor remembers the delta to the miss that
// followed it. The deltas are kept in a grouped interval history, so runs of
// adjacent blocks that share one delta cost a single entry.
package delta

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/prefetchsim/prefetch"
	"github.com/sarchlab/prefetchsim/prefetch/history"
)

// DefaultHistory is the default number of intervals in the delta history.
const DefaultHistory = 2 * 1024

// Predictor is the delta-correlation predictor.
type Predictor struct {
	blockSize uint64
	maxAddr   uint64

	history *history.Store[int64]
	prev    uint64
	hasPrev bool
}

// NewPredictor creates a delta-correlation predictor. Predictions never
// target addresses above maxAddr.
func NewPredictor(blockSize, maxAddr uint64, capacity int) *Predictor {
	p := &Predictor{
		blockSize: blockSize,
		maxAddr:   maxAddr,
	}
	p.history = history.New[int64](
		history.MergeFunc[int64](p.canMerge), blockSize, capacity)

	return p
}

// History exposes the underlying interval history.
func (p *Predictor) History() *history.Store[int64] {
	return p.history
}

var _ sim.Hookable = (*Predictor)(nil)

// AcceptHook registers a hook on the interval history.
func (p *Predictor) AcceptHook(hook sim.Hook) {
	p.history.AcceptHook(hook)
}

// NumHooks returns the number of hooks registered on the interval history.
func (p *Predictor) NumHooks() int {
	return p.history.NumHooks()
}

// Hooks returns the hooks registered on the interval history.
func (p *Predictor) Hooks() []sim.Hook {
	return p.history.Hooks()
}

// Reset clears the history and the previous miss.
func (p *Predictor) Reset() {
	p.history.Reset()
	p.prev = 0
	p.hasPrev = false
}

// canMerge joins intervals with the same delta that touch or overlap.
func (p *Predictor) canMerge(a, b history.Entry[int64]) bool {
	return a.Payload == b.Payload && a.End+p.blockSize >= b.Start
}

// Update trains the history with a miss and predicts the next miss. Hits
// are ignored.
func (p *Predictor) Update(event prefetch.AccessEvent) (uint64, bool) {
	if !event.Miss {
		return 0, false
	}

	addr := event.Address

	if p.hasPrev && p.prev != 0 {
		p.history.Update(event.Time, p.prev, int64(addr-p.prev))
	}

	target := p.Predict(addr)

	if !p.hasPrev || addr != p.prev {
		p.prev = addr
		p.hasPrev = true
	}

	return target, true
}

// Predict returns the address expected to miss after addr. Without a usable
// delta it falls back to the next block.
func (p *Predictor) Predict(addr uint64) uint64 {
	if e, ok := p.history.Get(addr); ok {
		if target, ok := p.apply(addr, e.Payload); ok {
			return target
		}
	}

	// The fallback is not bounded by maxAddr.
	return addr + p.blockSize
}

func (p *Predictor) apply(addr uint64, delta int64) (uint64, bool) {
	target := addr + uint64(delta)

	if delta < 0 && target > addr {
		return 0, false
	}
	if delta > 0 && target < addr {
		return 0, false
	}
	if target > p.maxAddr {
		return 0, false
	}

	return target, true
}
