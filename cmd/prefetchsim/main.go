// Package main provides the prefetchsim command. It replays a memory access
// trace through a cache with a prefetcher attached and reports how well the
// prefetcher did.
package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/prefetchsim/loader"
	"github.com/sarchlab/prefetchsim/logging"
	"github.com/sarchlab/prefetchsim/prefetch"
	"github.com/sarchlab/prefetchsim/prefetch/delta"
	"github.com/sarchlab/prefetchsim/timing/host"
)

type options struct {
	predictor      string
	configPath     string
	hostConfigPath string
	logFile        string
	verbose        bool
	dumpHistory    bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	var cpuProfile, memProfile string

	cmd := &cobra.Command{
		Use:   "prefetchsim [flags] <trace>",
		Short: "Replay a memory access trace through a prefetching cache.",
		Long: `prefetchsim replays a memory access trace through a ` +
			`set-associative cache with a hardware prefetcher attached and ` +
			`reports coverage and accuracy. Trace lines have the form ` +
			`"<time> <pc> <addr> [R|W]".`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return startProfiling(cpuProfile, memProfile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, args[0], out)
		},
	}

	persistent := cmd.PersistentFlags()
	persistent.StringVar(&cpuProfile, "cpuprofile", "",
		"Write a CPU profile to this file")
	persistent.StringVar(&memProfile, "memprofile", "",
		"Write a memory profile to this file on exit")

	flags := cmd.Flags()
	flags.StringVarP(&opts.predictor, "predictor", "p", "",
		fmt.Sprintf("Predictor to use %v (overrides the config file)",
			prefetch.Kinds()))
	flags.StringVarP(&opts.configPath, "config", "c", "",
		"Path to prefetch configuration JSON file")
	flags.StringVar(&opts.hostConfigPath, "host-config", "",
		"Path to cache and queue configuration JSON file")
	flags.StringVar(&opts.logFile, "log-file", "",
		"Write logs to this file instead of stderr")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Log every prefetch decision")
	flags.BoolVar(&opts.dumpHistory, "dump-history", false,
		"Log the delta history at the end of the run")

	cmd.AddCommand(newBenchCmd(out))

	return cmd
}

func loadConfigs(opts *options) (*prefetch.Config, host.Config, error) {
	config := prefetch.DefaultConfig()
	if opts.configPath != "" {
		var err error
		config, err = prefetch.LoadConfig(opts.configPath)
		if err != nil {
			return nil, host.Config{}, err
		}
	}

	if opts.predictor != "" {
		kind, err := prefetch.ParseKind(opts.predictor)
		if err != nil {
			return nil, host.Config{}, err
		}
		config.Predictor = kind
	}

	hostConfig := host.DefaultConfig()
	if opts.hostConfigPath != "" {
		var err error
		hostConfig, err = host.LoadConfig(opts.hostConfigPath)
		if err != nil {
			return nil, host.Config{}, err
		}
	}

	return config, hostConfig, nil
}

func setupLogging(opts *options) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if opts.verbose {
		log.SetLevel(log.DebugLevel)
		log.Debug("Debug logging is enabled")
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if opts.logFile == "" {
		return nil
	}

	f, err := os.Create(opts.logFile)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	log.SetOutput(f)
	atexit.Register(func() { _ = f.Close() })

	return nil
}

func run(opts *options, tracePath string, out io.Writer) error {
	if err := setupLogging(opts); err != nil {
		return err
	}

	config, hostConfig, err := loadConfigs(opts)
	if err != nil {
		return err
	}

	trace, err := loader.Load(tracePath)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"trace":     tracePath,
		"accesses":  len(trace.Accesses),
		"predictor": config.Predictor,
	}).Info("Replaying trace")

	h, err := host.New(hostConfig, config)
	if err != nil {
		return err
	}

	if opts.verbose {
		h.Dispatcher().AcceptHook(logging.NewLogHook(log.StandardLogger()))
	}

	stats := h.Run(trace.Accesses)

	if opts.dumpHistory {
		if p, ok := h.Dispatcher().Predictor().(*delta.Predictor); ok {
			logging.DumpHistory(log.StandardLogger(), p.History())
		} else {
			log.Warnf("--dump-history has no effect on the %s predictor",
				config.Predictor)
		}
	}

	printReport(out, trace, config, hostConfig, stats)

	return nil
}

func printReport(
	out io.Writer,
	trace *loader.Trace,
	config *prefetch.Config,
	hostConfig host.Config,
	stats host.Stats,
) {
	fmt.Fprintf(out, "Trace:              %s\n", trace.Path)
	fmt.Fprintf(out, "Predictor:          %s\n", config.Predictor)
	fmt.Fprintf(out, "Cache:              %dB, %d-way, %dB lines\n",
		hostConfig.Cache.Size, hostConfig.Cache.Associativity,
		hostConfig.Cache.BlockSize)
	fmt.Fprintf(out, "Accesses:           %d\n", len(trace.Accesses))
	fmt.Fprintf(out, "Hits:               %d\n", stats.Cache.Hits)
	fmt.Fprintf(out, "Misses:             %d (%.2f%%)\n",
		stats.Cache.Misses, stats.MissRate())
	fmt.Fprintf(out, "Predictions:        %d\n", stats.Dispatch.Predictions)
	fmt.Fprintf(out, "Prefetches issued:  %d (%.2f%%)\n",
		stats.Dispatch.Issued, stats.Dispatch.IssueRate())
	fmt.Fprintf(out, "  dropped resident: %d\n", stats.Dispatch.DroppedResident)
	fmt.Fprintf(out, "  dropped pending:  %d\n", stats.Dispatch.DroppedPending)
	fmt.Fprintf(out, "  queue full:       %d\n", stats.Rejected)
	fmt.Fprintf(out, "Prefetch fills:     %d\n", stats.Cache.Fills)
	fmt.Fprintf(out, "  useful:           %d\n", stats.Cache.UsefulPrefetches)
	fmt.Fprintf(out, "  useless:          %d\n", stats.Cache.UselessPrefetches)
	fmt.Fprintf(out, "  late:             %d\n", stats.Late)
	fmt.Fprintf(out, "Coverage:           %.2f%%\n", stats.Coverage())
	fmt.Fprintf(out, "Accuracy:           %.2f%%\n", stats.Accuracy())
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
