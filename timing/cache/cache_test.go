package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/prefetchsim/timing/cache"
)

var _ = Describe("Cache", func() {
	var c *cache.Cache

	BeforeEach(func() {
		// Small cache for testing: 4KB, 4-way, 64B lines, 16 sets
		config := cache.Config{
			Size:          4 * 1024,
			Associativity: 4,
			BlockSize:     64,
			HitLatency:    1,
			MissLatency:   10,
		}
		c = cache.New(config)
	})

	// fillSet0 installs four lines that all map to set 0.
	fillSet0 := func() {
		c.Access(0x0000, true)
		c.Access(0x0400, true)
		c.Access(0x0800, true)
		c.Access(0x0C00, true)
	}

	Describe("Configuration", func() {
		It("should reject a non power of two line size", func() {
			config := cache.DefaultL1DConfig()
			config.BlockSize = 48
			Expect(config.Validate()).NotTo(Succeed())
		})

		It("should reject a size that is not a whole number of sets", func() {
			config := cache.DefaultL1DConfig()
			config.Size = 1000
			Expect(config.Validate()).NotTo(Succeed())
			Expect(func() { cache.New(config) }).To(Panic())
		})

		It("should provide valid defaults", func() {
			Expect(cache.DefaultL1DConfig().Validate()).To(Succeed())
			Expect(cache.DefaultL2Config().Validate()).To(Succeed())
			Expect(cache.DefaultL1DConfig().BlockSize).To(Equal(64))
		})
	})

	Describe("Demand accesses", func() {
		It("should miss on cold cache", func() {
			result := c.Access(0x1000, false)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Latency).To(Equal(uint64(10)))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(0)))
		})

		It("should hit on cached data", func() {
			c.Access(0x1000, false)

			result := c.Access(0x1000, false)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Latency).To(Equal(uint64(1)))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(2)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(1)))
		})

		It("should hit on different addresses in same cache line", func() {
			c.Access(0x1000, false)
			Expect(c.Access(0x1030, false).Hit).To(BeTrue())
		})

		It("should write-allocate on miss", func() {
			result := c.Access(0x1000, true)
			Expect(result.Hit).To(BeFalse())
			Expect(c.Contains(0x1000)).To(BeTrue())
			Expect(c.Stats().Writes).To(Equal(uint64(1)))
		})
	})

	Describe("Eviction", func() {
		It("should evict the LRU line when the set is full", func() {
			fillSet0()

			c.Access(0x0000, false)

			result := c.Access(0x1000, false)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Evicted).To(BeTrue())
			Expect(result.EvictedAddr).To(Equal(uint64(0x0400)))
			Expect(c.Contains(0x0000)).To(BeTrue())
			Expect(c.Contains(0x0400)).To(BeFalse())

			stats := c.Stats()
			Expect(stats.Evictions).To(Equal(uint64(1)))
			Expect(stats.Writebacks).To(Equal(uint64(1)))
		})

		It("should not count clean evictions as writebacks", func() {
			c.Access(0x0000, false)
			c.Access(0x0400, false)
			c.Access(0x0800, false)
			c.Access(0x0C00, false)
			c.Access(0x1000, false)

			Expect(c.Stats().Evictions).To(Equal(uint64(1)))
			Expect(c.Stats().Writebacks).To(Equal(uint64(0)))
		})
	})

	Describe("Residency", func() {
		It("should not change the LRU order", func() {
			fillSet0()

			Expect(c.Contains(0x0000)).To(BeTrue())

			result := c.Access(0x1000, false)
			Expect(result.EvictedAddr).To(Equal(uint64(0x0000)))
		})

		It("should not count as an access", func() {
			c.Contains(0x2000)
			Expect(c.Stats()).To(Equal(cache.Statistics{}))
		})
	})

	Describe("Prefetch fills", func() {
		It("should install a line without a demand access", func() {
			result := c.Fill(0x2010)
			Expect(result.Hit).To(BeFalse())
			Expect(c.Contains(0x2000)).To(BeTrue())

			stats := c.Stats()
			Expect(stats.Fills).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(0)))
		})

		It("should ignore fills of resident lines", func() {
			c.Access(0x2000, false)
			Expect(c.Fill(0x2000).Hit).To(BeTrue())
			Expect(c.Stats().Fills).To(Equal(uint64(0)))
		})

		It("should count the first demand hit as useful", func() {
			c.Fill(0x2000)

			first := c.Access(0x2008, false)
			Expect(first.Hit).To(BeTrue())
			Expect(first.PrefetchHit).To(BeTrue())

			second := c.Access(0x2008, false)
			Expect(second.PrefetchHit).To(BeFalse())

			Expect(c.Stats().UsefulPrefetches).To(Equal(uint64(1)))
		})

		It("should count unused evicted prefetches as useless", func() {
			c.Fill(0x0000)
			c.Access(0x0400, false)
			c.Access(0x0800, false)
			c.Access(0x0C00, false)

			result := c.Access(0x1000, false)
			Expect(result.EvictedAddr).To(Equal(uint64(0x0000)))
			Expect(result.EvictedUnused).To(BeTrue())
			Expect(c.Stats().UselessPrefetches).To(Equal(uint64(1)))
		})
	})

	Describe("Invalidation", func() {
		It("should drop a line and its prefetch mark", func() {
			c.Fill(0x3000)
			c.Invalidate(0x3000)

			Expect(c.Contains(0x3000)).To(BeFalse())

			c.Access(0x3000, false)
			Expect(c.Stats().UsefulPrefetches).To(Equal(uint64(0)))
		})

		It("should write back all dirty lines on flush", func() {
			c.Access(0x0000, true)
			c.Access(0x1000, true)
			c.Access(0x2000, false)

			c.Flush()

			Expect(c.Stats().Writebacks).To(Equal(uint64(2)))
			Expect(c.Contains(0x0000)).To(BeFalse())
			Expect(c.Contains(0x2000)).To(BeFalse())
		})

		It("should clear lines and statistics on reset", func() {
			c.Access(0x0000, false)
			c.Reset()

			Expect(c.Contains(0x0000)).To(BeFalse())
			Expect(c.Stats()).To(Equal(cache.Statistics{}))
		})
	})
})
