// Package cache provides the tag-only data cache the prefetcher is evaluated
// against, built on Akita cache components.
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int `json:"size"`
	// Associativity (number of ways)
	Associativity int `json:"associativity"`
	// BlockSize in bytes (cache line size)
	BlockSize int `json:"block_size"`
	// HitLatency in cycles
	HitLatency uint64 `json:"hit_latency"`
	// MissLatency in cycles (includes memory access time)
	MissLatency uint64 `json:"miss_latency"`
}

// DefaultL1DConfig returns a 32KB, 8-way L1 data cache with 64B lines.
func DefaultL1DConfig() Config {
	return Config{
		Size:          32 * 1024,
		Associativity: 8,
		BlockSize:     64,
		HitLatency:    3,
		MissLatency:   100,
	}
}

// DefaultL2Config returns a 1MB, 16-way cache with 64B lines.
func DefaultL2Config() Config {
	return Config{
		Size:          1024 * 1024,
		Associativity: 16,
		BlockSize:     64,
		HitLatency:    12,
		MissLatency:   150,
	}
}

// Validate checks that the geometry describes at least one full set.
func (c Config) Validate() error {
	if c.BlockSize <= 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block_size must be a positive power of two, got %d",
			c.BlockSize)
	}
	if c.Associativity <= 0 {
		return fmt.Errorf("associativity must be positive, got %d",
			c.Associativity)
	}
	if c.Size < c.Associativity*c.BlockSize ||
		c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("size %d is not a multiple of %d-way x %dB sets",
			c.Size, c.Associativity, c.BlockSize)
	}

	return nil
}

// AccessResult contains the result of a demand access or a fill.
type AccessResult struct {
	// Hit indicates whether the block was already resident.
	Hit bool
	// Latency is the number of cycles this access takes.
	Latency uint64
	// PrefetchHit is true if a demand access hit a prefetched block that
	// had not been used before.
	PrefetchHit bool
	// Evicted is true if a valid block was replaced.
	Evicted bool
	// EvictedAddr is the address of the evicted block (if Evicted is true).
	EvictedAddr uint64
	// EvictedUnused is true if the evicted block was prefetched and never
	// used.
	EvictedUnused bool
}

// Cache is a set-associative tag store with LRU replacement.
type Cache struct {
	config Config

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Block addresses filled by prefetches and not yet demanded.
	prefetched map[uint64]bool

	stats Statistics
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads     uint64
	Writes    uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
	// Writebacks counts dirty blocks that were evicted or flushed.
	Writebacks uint64
	// Fills counts blocks installed by prefetches.
	Fills uint64
	// UsefulPrefetches counts prefetched blocks later hit by a demand access.
	UsefulPrefetches uint64
	// UselessPrefetches counts prefetched blocks evicted before any use.
	UselessPrefetches uint64
}

// New creates a new cache with the given configuration. It panics if the
// configuration is invalid.
func New(config Config) *Cache {
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("cache: %v", err))
	}

	numSets := config.Size / (config.Associativity * config.BlockSize)

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		prefetched: make(map[uint64]bool),
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// BlockAddr aligns addr down to its cache line.
func (c *Cache) BlockAddr(addr uint64) uint64 {
	return addr &^ (uint64(c.config.BlockSize) - 1)
}

// Contains reports whether the line holding addr is resident. The LRU order
// is not changed.
func (c *Cache) Contains(addr uint64) bool {
	block := c.directory.Lookup(0, c.BlockAddr(addr))
	return block != nil && block.IsValid
}

// Access performs a demand access. Misses allocate the line, so a write miss
// is write-allocate.
func (c *Cache) Access(addr uint64, isWrite bool) AccessResult {
	if isWrite {
		c.stats.Writes++
	} else {
		c.stats.Reads++
	}

	blockAddr := c.BlockAddr(addr)
	block := c.directory.Lookup(0, blockAddr)

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)

		if isWrite {
			block.IsDirty = true
		}

		result := AccessResult{
			Hit:     true,
			Latency: c.config.HitLatency,
		}

		if c.prefetched[blockAddr] {
			delete(c.prefetched, blockAddr)
			c.stats.UsefulPrefetches++
			result.PrefetchHit = true
		}

		return result
	}

	c.stats.Misses++

	result := AccessResult{Latency: c.config.MissLatency}
	c.allocate(blockAddr, isWrite, &result)

	return result
}

// Fill installs the line holding addr on behalf of a prefetch. Filling a
// resident line is a no-op and reports a hit.
func (c *Cache) Fill(addr uint64) AccessResult {
	blockAddr := c.BlockAddr(addr)

	if c.Contains(blockAddr) {
		return AccessResult{Hit: true}
	}

	c.stats.Fills++

	result := AccessResult{}
	c.allocate(blockAddr, false, &result)
	c.prefetched[blockAddr] = true

	return result
}

func (c *Cache) allocate(blockAddr uint64, dirty bool, result *AccessResult) {
	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		panic(fmt.Sprintf("cache: no victim for %#x", blockAddr))
	}

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = victim.Tag

		if victim.IsDirty {
			c.stats.Writebacks++
		}

		if c.prefetched[victim.Tag] {
			delete(c.prefetched, victim.Tag)
			c.stats.UselessPrefetches++
			result.EvictedUnused = true
		}
	}

	// Tag stores the block-aligned address.
	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = dirty

	c.directory.Visit(victim)
}

// Invalidate marks a cache line as invalid.
func (c *Cache) Invalidate(addr uint64) {
	blockAddr := c.BlockAddr(addr)
	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
		delete(c.prefetched, blockAddr)
	}
}

// Flush counts a writeback for every dirty line and invalidates all lines.
func (c *Cache) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}

	c.prefetched = make(map[uint64]bool)
}

// Reset invalidates all cache lines without writeback.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.prefetched = make(map[uint64]bool)
	c.stats = Statistics{}
}
