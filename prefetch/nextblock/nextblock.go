// Package nextblock implements the one-block-lookahead prefetcher: every
// miss prefetches the block right after it.
package nextblock

import "github.com/sarchlab/prefetchsim/prefetch"

// Predictor is the one-block-lookahead predictor.
type Predictor struct {
	blockSize uint64
}

// NewPredictor creates a one-block-lookahead predictor.
func NewPredictor(blockSize uint64) *Predictor {
	return &Predictor{blockSize: blockSize}
}

// Update predicts the block following a miss.
func (p *Predictor) Update(event prefetch.AccessEvent) (uint64, bool) {
	if !event.Miss {
		return 0, false
	}

	return event.Address + p.blockSize, true
}
