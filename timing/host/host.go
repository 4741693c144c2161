// Package host replays memory access traces through a cache with a
// prefetcher attached.
//
// The host owns the cache and the queue of outstanding prefetches and
// implements dispatch.Host for the dispatcher it drives. Every access first
// retires the prefetches that are ready by its time stamp, then looks up the
// cache and finally reports the access, hit or miss, to the dispatcher.
package host

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/prefetchsim/loader"
	"github.com/sarchlab/prefetchsim/prefetch"
	"github.com/sarchlab/prefetchsim/prefetch/dispatch"
	"github.com/sarchlab/prefetchsim/timing/cache"
	"github.com/sarchlab/prefetchsim/timing/mshr"
)

// Config holds the host parameters.
type Config struct {
	// Cache is the geometry of the simulated cache.
	Cache cache.Config `json:"cache"`
	// QueueCapacity is the maximum number of outstanding prefetches.
	QueueCapacity int `json:"queue_capacity"`
	// PrefetchLatency is the time from issuing a prefetch to its fill.
	PrefetchLatency int64 `json:"prefetch_latency"`
}

// DefaultConfig returns an L1 data cache with 16 outstanding prefetches.
func DefaultConfig() Config {
	return Config{
		Cache:           cache.DefaultL1DConfig(),
		QueueCapacity:   16,
		PrefetchLatency: 20,
	}
}

// LoadConfig reads a host configuration from a JSON file. Fields missing
// from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read host config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse host config: %w", err)
	}

	return config, nil
}

// Validate checks the host parameters.
func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache: %w", err)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d",
			c.QueueCapacity)
	}
	if c.PrefetchLatency < 0 {
		return fmt.Errorf("prefetch_latency must not be negative, got %d",
			c.PrefetchLatency)
	}

	return nil
}

// Stats summarizes a replay.
type Stats struct {
	Cache    cache.Statistics
	Dispatch dispatch.Stats
	// Rejected counts prefetch requests dropped because the queue was full.
	Rejected uint64
	// Late counts demand misses on lines that were already being prefetched.
	Late uint64
}

// Coverage returns the percentage of would-be misses removed by prefetches.
func (s Stats) Coverage() float64 {
	total := s.Cache.Misses + s.Cache.UsefulPrefetches
	if total == 0 {
		return 0
	}
	return float64(s.Cache.UsefulPrefetches) / float64(total) * 100
}

// Accuracy returns the percentage of filled prefetches that were used.
func (s Stats) Accuracy() float64 {
	if s.Cache.Fills == 0 {
		return 0
	}
	return float64(s.Cache.UsefulPrefetches) / float64(s.Cache.Fills) * 100
}

// MissRate returns the percentage of demand accesses that missed.
func (s Stats) MissRate() float64 {
	total := s.Cache.Hits + s.Cache.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Cache.Misses) / float64(total) * 100
}

// Host is the simulated memory side of the prefetcher.
type Host struct {
	config Config

	cache      *cache.Cache
	queue      *mshr.Queue
	dispatcher *dispatch.Dispatcher

	now      int64
	rejected uint64
	late     uint64
}

// New creates a host and initializes its dispatcher with prefetchConfig.
func New(config Config, prefetchConfig *prefetch.Config) (*Host, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	h := &Host{
		config: config,
		cache:  cache.New(config.Cache),
		queue:  mshr.New(config.QueueCapacity, config.PrefetchLatency),
	}

	h.dispatcher = dispatch.NewDispatcher(prefetchConfig, h)
	if err := h.dispatcher.Init(); err != nil {
		return nil, err
	}

	return h, nil
}

// Config returns the host configuration.
func (h *Host) Config() Config {
	return h.config
}

// Cache returns the simulated cache.
func (h *Host) Cache() *cache.Cache {
	return h.cache
}

// Dispatcher returns the dispatcher driven by the host.
func (h *Host) Dispatcher() *dispatch.Dispatcher {
	return h.dispatcher
}

// Now returns the time stamp of the last access.
func (h *Host) Now() int64 {
	return h.now
}

// IsResidentInCache reports whether the line holding addr is cached.
func (h *Host) IsResidentInCache(addr uint64) bool {
	return h.cache.Contains(addr)
}

// IsPendingPrefetch reports whether the line holding addr is being
// prefetched.
func (h *Host) IsPendingPrefetch(addr uint64) bool {
	return h.queue.Contains(h.cache.BlockAddr(addr))
}

// PendingQueueDepth returns the number of outstanding prefetches.
func (h *Host) PendingQueueDepth() int {
	return h.queue.Len()
}

// EmitPrefetchRequest queues a prefetch of the line holding addr. Requests
// that do not fit in the queue are dropped.
func (h *Host) EmitPrefetchRequest(addr uint64) {
	if _, ok := h.queue.Add(h.cache.BlockAddr(addr), h.now); !ok {
		h.rejected++
	}
}

// Step replays one access.
func (h *Host) Step(a loader.Access) cache.AccessResult {
	if a.Time < h.now {
		panic(fmt.Sprintf("host: access at %d is before %d", a.Time, h.now))
	}

	h.now = a.Time
	h.retire(h.queue.Retire(h.now))

	result := h.cache.Access(a.Addr, a.Write)
	if !result.Hit && h.IsPendingPrefetch(a.Addr) {
		h.late++
	}

	h.dispatcher.OnAccess(prefetch.AccessEvent{
		PC:      a.PC,
		Address: a.Addr,
		Time:    a.Time,
		Miss:    !result.Hit,
	})

	return result
}

// Run replays all accesses, then completes the prefetches still in flight.
func (h *Host) Run(accesses []loader.Access) Stats {
	for _, a := range accesses {
		h.Step(a)
	}

	h.Finish()

	return h.Stats()
}

// Finish completes every outstanding prefetch.
func (h *Host) Finish() {
	h.retire(h.queue.Drain())
}

// Stats returns the replay statistics so far.
func (h *Host) Stats() Stats {
	return Stats{
		Cache:    h.cache.Stats(),
		Dispatch: h.dispatcher.Stats(),
		Rejected: h.rejected,
		Late:     h.late,
	}
}

// Reset clears the cache, the queue and the predictor state.
func (h *Host) Reset() error {
	h.cache.Reset()
	h.queue.Reset()
	h.now = 0
	h.rejected = 0
	h.late = 0

	return h.dispatcher.Init()
}

func (h *Host) retire(done []*mshr.Entry) {
	for _, e := range done {
		h.cache.Fill(e.Addr)
		h.dispatcher.OnComplete(e.Addr)
	}
}
