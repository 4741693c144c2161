package prefetch

import "fmt"

// Predictor is a prefetch policy. Update consumes one normalized access and
// returns at most one address worth prefetching.
type Predictor interface {
	Update(event AccessEvent) (addr uint64, ok bool)
}

// Kind names a predictor variant.
type Kind string

// Supported predictor variants.
const (
	// KindStride is the reference prediction table stride predictor.
	KindStride Kind = "stride"
	// KindMarkov is the Markov miss-graph predictor.
	KindMarkov Kind = "markov"
	// KindDelta is the delta-correlation predictor on top of the grouped
	// interval history.
	KindDelta Kind = "delta"
	// KindNextBlock is the one-block-lookahead baseline.
	KindNextBlock Kind = "nextblock"
)

// Kinds lists every supported predictor variant.
func Kinds() []Kind {
	return []Kind{KindStride, KindMarkov, KindDelta, KindNextBlock}
}

// ParseKind converts a name into a Kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == name {
			return k, nil
		}
	}

	return "", fmt.Errorf("unknown predictor %q", name)
}
