package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/prefetchsim/prefetch"
	"github.com/sarchlab/prefetchsim/timing/host"
)

// Result holds the outcome of one workload under one predictor.
type Result struct {
	// Workload and Predictor identify the run
	Workload  string        `json:"workload"`
	Predictor prefetch.Kind `json:"predictor"`

	Accesses uint64  `json:"accesses"`
	Misses   uint64  `json:"misses"`
	MissRate float64 `json:"miss_rate"`

	Issued  uint64 `json:"issued"`
	Useful  uint64 `json:"useful"`
	Useless uint64 `json:"useless"`
	Late    uint64 `json:"late"`

	// Coverage and Accuracy are percentages
	Coverage float64 `json:"coverage"`
	Accuracy float64 `json:"accuracy"`

	// WallTime is the host time spent on the replay
	WallTime time.Duration `json:"wall_time_ns"`
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Host is the cache and queue configuration of every run
	Host host.Config

	// Prefetch is the base predictor configuration. Its predictor kind is
	// replaced by each entry of Predictors.
	Prefetch *prefetch.Config

	// Predictors are the predictors to compare
	Predictors []prefetch.Kind

	// Output is where to write results (default: os.Stdout)
	Output io.Writer
}

// DefaultConfig returns a harness that compares every predictor.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Host:       host.DefaultConfig(),
		Prefetch:   prefetch.DefaultConfig(),
		Predictors: prefetch.Kinds(),
		Output:     os.Stdout,
	}
}

// Harness runs workloads under each predictor and reports results.
type Harness struct {
	config    HarnessConfig
	workloads []Workload
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Prefetch == nil {
		config.Prefetch = prefetch.DefaultConfig()
	}
	return &Harness{
		config:    config,
		workloads: []Workload{},
	}
}

// AddWorkload adds a workload to the harness.
func (h *Harness) AddWorkload(w Workload) {
	h.workloads = append(h.workloads, w)
}

// AddWorkloads adds multiple workloads to the harness.
func (h *Harness) AddWorkloads(workloads []Workload) {
	h.workloads = append(h.workloads, workloads...)
}

// RunAll replays every workload under every predictor, workload major.
func (h *Harness) RunAll() ([]Result, error) {
	results := make([]Result, 0, len(h.workloads)*len(h.config.Predictors))

	for _, w := range h.workloads {
		accesses := w.Generate()

		for _, kind := range h.config.Predictors {
			config := h.config.Prefetch.Clone()
			config.Predictor = kind

			sim, err := host.New(h.config.Host, config)
			if err != nil {
				return nil, fmt.Errorf("%s/%s: %w", w.Name, kind, err)
			}

			start := time.Now()
			stats := sim.Run(accesses)
			wallTime := time.Since(start)

			results = append(results, Result{
				Workload:  w.Name,
				Predictor: kind,
				Accesses:  uint64(len(accesses)),
				Misses:    stats.Cache.Misses,
				MissRate:  stats.MissRate(),
				Issued:    stats.Dispatch.Issued,
				Useful:    stats.Cache.UsefulPrefetches,
				Useless:   stats.Cache.UselessPrefetches,
				Late:      stats.Late,
				Coverage:  stats.Coverage(),
				Accuracy:  stats.Accuracy(),
				WallTime:  wallTime,
			})
		}
	}

	return results, nil
}

// PrintResults outputs results in a human-readable format.
func (h *Harness) PrintResults(results []Result) {
	out := h.config.Output

	_, _ = fmt.Fprintln(out, "=== Prefetcher Comparison ===")

	last := ""
	for _, r := range results {
		if r.Workload != last {
			_, _ = fmt.Fprintln(out, "")
			_, _ = fmt.Fprintf(out, "Workload: %s (%d accesses)\n",
				r.Workload, r.Accesses)
			last = r.Workload
		}

		_, _ = fmt.Fprintf(out,
			"  %-10s misses %6d (%6.2f%%)  coverage %6.2f%%  accuracy %6.2f%%\n",
			r.Predictor, r.Misses, r.MissRate, r.Coverage, r.Accuracy)
	}
}

// PrintCSV outputs results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []Result) {
	_, _ = fmt.Fprintln(h.config.Output,
		"workload,predictor,accesses,misses,issued,useful,useless,late,coverage,accuracy")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%s,%d,%d,%d,%d,%d,%d,%.2f,%.2f\n",
			r.Workload,
			r.Predictor,
			r.Accesses,
			r.Misses,
			r.Issued,
			r.Useful,
			r.Useless,
			r.Late,
			r.Coverage,
			r.Accuracy,
		)
	}
}

// Report is the JSON output format for benchmark results.
type Report struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Host is the cache and queue configuration used
	Host host.Config `json:"host"`

	// Results is the list of individual results
	Results []Result `json:"results"`
}

// PrintJSON outputs results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []Result) error {
	report := Report{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Host:      h.config.Host,
		Results:   results,
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
