// Package prefetch defines the access events, the predictor contract and the
// configuration shared by all hardware prefetch predictors.
package prefetch

// AccessEvent is a single load or store observed by the prefetcher.
type AccessEvent struct {
	// PC is the program counter of the memory instruction.
	PC uint64
	// Address is the accessed address. After normalization it is
	// block-aligned.
	Address uint64
	// Time is the access timestamp. It never decreases across calls.
	Time int64
	// Miss is true if the access missed in the cache.
	Miss bool
}

// BlockAlign returns the address of the block containing addr. blockSize
// must be a power of two.
func BlockAlign(addr, blockSize uint64) uint64 {
	return addr &^ (blockSize - 1)
}

// Normalize returns a copy of the event with its address aligned to the
// containing block.
func Normalize(event AccessEvent, blockSize uint64) AccessEvent {
	event.Address = BlockAlign(event.Address, blockSize)
	return event
}

// IsPowerOfTwo reports whether v is a nonzero power of two.
func IsPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}
