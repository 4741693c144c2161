// Package dispatch connects a prefetch predictor to the host simulator.
//
// The host drives three entry points: Init when the simulation starts,
// OnAccess for every memory access and OnComplete when a prefetch has been
// filled. OnAccess feeds the active predictor and emits at most one prefetch
// request for its prediction.
package dispatch

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/prefetchsim/prefetch"
	"github.com/sarchlab/prefetchsim/prefetch/delta"
	"github.com/sarchlab/prefetchsim/prefetch/markov"
	"github.com/sarchlab/prefetchsim/prefetch/nextblock"
	"github.com/sarchlab/prefetchsim/prefetch/stride"
)

// Hook positions of the dispatcher.
var (
	// HookPosAccess marks a normalized access entering the predictor. The
	// item is the prefetch.AccessEvent.
	HookPosAccess = &sim.HookPos{Name: "Prefetch Access"}
	// HookPosPrefetchIssued marks an emitted prefetch request. The item is
	// the address; the detail is the pending queue depth before emission.
	HookPosPrefetchIssued = &sim.HookPos{Name: "Prefetch Issue"}
	// HookPosPrefetchDropped marks a prediction that was not emitted. The
	// item is the address; the detail is the DropReason.
	HookPosPrefetchDropped = &sim.HookPos{Name: "Prefetch Drop"}
	// HookPosComplete marks a completed prefetch. The item is the address.
	HookPosComplete = &sim.HookPos{Name: "Prefetch Complete"}
)

// DropReason tells why a prediction was not emitted.
type DropReason string

// Drop reasons.
const (
	DropResident DropReason = "resident"
	DropPending  DropReason = "pending"
)

// Host is the simulator side of the prefetcher.
type Host interface {
	// IsResidentInCache reports whether the block is already cached.
	IsResidentInCache(addr uint64) bool
	// IsPendingPrefetch reports whether the block is already requested.
	IsPendingPrefetch(addr uint64) bool
	// PendingQueueDepth returns the number of outstanding requests.
	PendingQueueDepth() int
	// EmitPrefetchRequest requests a block. The host may silently ignore
	// the request.
	EmitPrefetchRequest(addr uint64)
}

// Stats holds dispatcher statistics.
type Stats struct {
	// Accesses is the number of accesses observed.
	Accesses uint64
	// Misses is the number of observed accesses that missed.
	Misses uint64
	// Predictions is the number of accesses that produced a prediction.
	Predictions uint64
	// Issued is the number of prefetch requests emitted.
	Issued uint64
	// DroppedResident counts predictions already in the cache.
	DroppedResident uint64
	// DroppedPending counts predictions already requested.
	DroppedPending uint64
	// Completed is the number of completion notifications.
	Completed uint64
}

// IssueRate returns the percentage of predictions that were emitted.
func (s Stats) IssueRate() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Issued) / float64(s.Predictions) * 100
}

// NewPredictor builds the predictor selected by the configuration.
func NewPredictor(config *prefetch.Config) (prefetch.Predictor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid prefetch config: %w", err)
	}

	switch config.Predictor {
	case prefetch.KindStride:
		return stride.NewPredictor(config.RPTCapacity), nil
	case prefetch.KindMarkov:
		return markov.NewPredictor(config.MarkovHistory, config.MarkovFanout), nil
	case prefetch.KindDelta:
		return delta.NewPredictor(
			config.BlockSize,
			config.MaxPhysicalAddress,
			config.DeltaHistory,
		), nil
	case prefetch.KindNextBlock:
		return nextblock.NewPredictor(config.BlockSize), nil
	default:
		return nil, fmt.Errorf("unknown predictor %q", config.Predictor)
	}
}

// Dispatcher routes accesses to the active predictor and emits prefetches.
type Dispatcher struct {
	sim.HookableBase

	config    *prefetch.Config
	host      Host
	predictor prefetch.Predictor
	stats     Stats
}

// NewDispatcher creates a dispatcher. Init must be called before the first
// access.
func NewDispatcher(config *prefetch.Config, host Host) *Dispatcher {
	return &Dispatcher{
		config: config.Clone(),
		host:   host,
	}
}

// AcceptHook registers a hook on the dispatcher and on the predictor it
// drives.
func (d *Dispatcher) AcceptHook(hook sim.Hook) {
	d.HookableBase.AcceptHook(hook)

	if h, ok := d.predictor.(sim.Hookable); ok {
		h.AcceptHook(hook)
	}
}

// Init validates the configuration and starts a fresh predictor.
func (d *Dispatcher) Init() error {
	predictor, err := NewPredictor(d.config)
	if err != nil {
		return err
	}

	if h, ok := predictor.(sim.Hookable); ok {
		for _, hook := range d.Hooks() {
			h.AcceptHook(hook)
		}
	}

	d.predictor = predictor
	d.stats = Stats{}

	return nil
}

// Config returns a copy of the dispatcher configuration.
func (d *Dispatcher) Config() *prefetch.Config {
	return d.config.Clone()
}

// Predictor returns the active predictor.
func (d *Dispatcher) Predictor() prefetch.Predictor {
	return d.predictor
}

// Stats returns the dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	return d.stats
}

// OnAccess handles one memory access.
func (d *Dispatcher) OnAccess(event prefetch.AccessEvent) {
	if d.predictor == nil {
		panic("dispatch: OnAccess called before Init")
	}

	event = prefetch.Normalize(event, d.config.BlockSize)

	d.stats.Accesses++
	if event.Miss {
		d.stats.Misses++
	}

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Pos:    HookPosAccess,
		Item:   event,
	})

	addr, ok := d.predictor.Update(event)
	if !ok {
		return
	}

	d.stats.Predictions++

	switch {
	case d.host.IsResidentInCache(addr):
		d.drop(addr, DropResident)
	case d.host.IsPendingPrefetch(addr):
		d.drop(addr, DropPending)
	default:
		d.issue(addr)
	}
}

// OnComplete observes a completed prefetch.
func (d *Dispatcher) OnComplete(addr uint64) {
	d.stats.Completed++

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Pos:    HookPosComplete,
		Item:   addr,
	})
}

func (d *Dispatcher) issue(addr uint64) {
	depth := d.host.PendingQueueDepth()
	d.host.EmitPrefetchRequest(addr)
	d.stats.Issued++

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Pos:    HookPosPrefetchIssued,
		Item:   addr,
		Detail: depth,
	})
}

func (d *Dispatcher) drop(addr uint64, reason DropReason) {
	switch reason {
	case DropResident:
		d.stats.DroppedResident++
	case DropPending:
		d.stats.DroppedPending++
	}

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Pos:    HookPosPrefetchDropped,
		Item:   addr,
		Detail: reason,
	})
}
