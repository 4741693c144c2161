package prefetch

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the prefetcher configuration.
type Config struct {
	// Predictor selects the active predictor variant. Default: "stride".
	Predictor Kind `json:"predictor"`

	// BlockSize is the cache block size in bytes. Must be a power of two.
	// Default: 64.
	BlockSize uint64 `json:"block_size"`

	// MaxPhysicalAddress is the highest address a prediction may target.
	// Default: 4GB - 1.
	MaxPhysicalAddress uint64 `json:"max_physical_address"`

	// RPTCapacity is the number of entries in the reference prediction
	// table. Default: 16384.
	RPTCapacity int `json:"rpt_capacity"`

	// MarkovHistory is the number of recent misses that keep Markov nodes
	// alive. Default: 32768.
	MarkovHistory int `json:"markov_history"`

	// MarkovFanout is the number of successors tracked per Markov node.
	// Default: 4.
	MarkovFanout int `json:"markov_fanout"`

	// DeltaHistory is the number of intervals in the delta-correlation
	// history. Default: 2048.
	DeltaHistory int `json:"delta_history"`
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() *Config {
	return &Config{
		Predictor:          KindStride,
		BlockSize:          64,
		MaxPhysicalAddress: 4*1024*1024*1024 - 1,
		RPTCapacity:        16384,
		MarkovHistory:      32768,
		MarkovFanout:       4,
		DeltaHistory:       2 * 1024,
	}
}

// LoadConfig loads a Config from a JSON file. Fields absent from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prefetch config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse prefetch config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize prefetch config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write prefetch config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration can build a predictor.
func (c *Config) Validate() error {
	if _, err := ParseKind(string(c.Predictor)); err != nil {
		return err
	}
	if !IsPowerOfTwo(c.BlockSize) {
		return fmt.Errorf("block_size must be a power of two, got %d",
			c.BlockSize)
	}
	if c.MaxPhysicalAddress < c.BlockSize {
		return fmt.Errorf("max_physical_address must be >= block_size")
	}
	if c.RPTCapacity <= 0 {
		return fmt.Errorf("rpt_capacity must be > 0")
	}
	if c.MarkovHistory <= 0 {
		return fmt.Errorf("markov_history must be > 0")
	}
	if c.MarkovFanout <= 0 {
		return fmt.Errorf("markov_fanout must be > 0")
	}
	if c.DeltaHistory <= 0 {
		return fmt.Errorf("delta_history must be > 0")
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
