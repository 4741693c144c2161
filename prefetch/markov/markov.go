// Package markov implements a Markov prefetcher over cache miss addresses.
//
// Each distinct miss address is a node. A node remembers up to Fanout
// addresses that missed right after it, most recent last, and predicts the
// most recent one. Nodes are kept alive by a bounded FIFO of recent misses:
// a node disappears once none of its occurrences remain in the FIFO.
//
// Reference: D. Joseph and D. Grunwald, "Prefetching using Markov
// Predictors", ISCA 1997.
package markov

import (
	"fmt"
	"slices"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/prefetchsim/prefetch"
)

// HookPosNodeDestroyed marks when the last occurrence of an address leaves
// the miss history. The item is the address.
var HookPosNodeDestroyed = &sim.HookPos{Name: "Markov Node Destroy"}

// Defaults for the history length and the successor fanout.
const (
	DefaultHistory = 32768
	DefaultFanout  = 4
)

// Node is a miss address in the transition graph.
type Node struct {
	// RefCount is the number of occurrences in the miss history.
	RefCount uint32
	// Successors are the distinct addresses that followed this one, most
	// recent last.
	Successors []uint64
}

var _ sim.Hookable = (*Predictor)(nil)

// Predictor is the Markov miss-graph predictor.
type Predictor struct {
	sim.HookableBase

	fanout int

	misses   sim.Buffer
	nodes    map[uint64]*Node
	lastMiss uint64
	hasLast  bool
}

// NewPredictor creates a Markov predictor that remembers the last history
// misses and tracks fanout successors per node.
func NewPredictor(history, fanout int) *Predictor {
	if history <= 0 {
		panic(fmt.Sprintf("markov: history %d must be positive", history))
	}
	if fanout <= 0 {
		panic(fmt.Sprintf("markov: fanout %d must be positive", fanout))
	}

	return &Predictor{
		fanout: fanout,
		misses: sim.NewBuffer("Markov.MissHistory", history),
		nodes:  make(map[uint64]*Node),
	}
}

// Len returns the number of nodes in the graph.
func (p *Predictor) Len() int {
	return len(p.nodes)
}

// HistoryLen returns the number of misses in the history.
func (p *Predictor) HistoryLen() int {
	return p.misses.Size()
}

// Node returns a copy of the node for addr.
func (p *Predictor) Node(addr uint64) (Node, bool) {
	n, ok := p.nodes[addr]
	if !ok {
		return Node{}, false
	}

	return Node{
		RefCount:   n.RefCount,
		Successors: slices.Clone(n.Successors),
	}, true
}

// Reset clears the graph and the history.
func (p *Predictor) Reset() {
	p.misses.Clear()
	p.nodes = make(map[uint64]*Node)
	p.lastMiss = 0
	p.hasLast = false
}

// Update trains the graph with a miss and predicts the next miss. Hits are
// ignored.
func (p *Predictor) Update(event prefetch.AccessEvent) (uint64, bool) {
	if !event.Miss {
		return 0, false
	}

	p.RecordMiss(event.Address)

	return p.Predict(event.Address)
}

// RecordMiss adds a miss to the history and links it to the previous miss.
func (p *Predictor) RecordMiss(addr uint64) {
	prev, hasPrev := p.lastMiss, p.hasLast

	if !p.misses.CanPush() {
		p.release(p.misses.Pop().(uint64))
	}

	p.misses.Push(addr)
	p.lastMiss = addr
	p.hasLast = true

	n, ok := p.nodes[addr]
	if !ok {
		n = &Node{}
		p.nodes[addr] = n
	}
	n.RefCount++

	if !hasPrev {
		return
	}

	if prevNode, ok := p.nodes[prev]; ok {
		prevNode.Successors = p.link(prevNode.Successors, addr)
	}
}

// Predict returns the most recent successor of addr.
func (p *Predictor) Predict(addr uint64) (uint64, bool) {
	n, ok := p.nodes[addr]
	if !ok || len(n.Successors) == 0 {
		return 0, false
	}

	return n.Successors[len(n.Successors)-1], true
}

func (p *Predictor) link(successors []uint64, addr uint64) []uint64 {
	if i := slices.Index(successors, addr); i >= 0 {
		successors = slices.Delete(successors, i, i+1)
	}

	if len(successors) >= p.fanout {
		successors = slices.Delete(successors, 0, 1)
	}

	return append(successors, addr)
}

func (p *Predictor) release(addr uint64) {
	n, ok := p.nodes[addr]
	if !ok {
		panic(fmt.Sprintf("markov: no node for history address %#x", addr))
	}

	n.RefCount--
	if n.RefCount > 0 {
		return
	}

	delete(p.nodes, addr)
	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    HookPosNodeDestroyed,
		Item:   addr,
	})
}
