package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/prefetchsim/benchmarks"
	"github.com/sarchlab/prefetchsim/prefetch"
	"github.com/sarchlab/prefetchsim/timing/host"
)

type benchOptions struct {
	workloads      []string
	predictors     []string
	hostConfigPath string
	format         string
}

func newBenchCmd(out io.Writer) *cobra.Command {
	opts := &benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare the predictors on synthetic workloads.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(opts, out)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&opts.workloads, "workload", "w", nil,
		"Workloads to run (default: all)")
	flags.StringSliceVarP(&opts.predictors, "predictor", "p", nil,
		"Predictors to compare (default: all)")
	flags.StringVar(&opts.hostConfigPath, "host-config", "",
		"Path to cache and queue configuration JSON file")
	flags.StringVarP(&opts.format, "format", "f", "text",
		"Output format: text, csv or json")

	return cmd
}

func runBench(opts *benchOptions, out io.Writer) error {
	config := benchmarks.DefaultConfig()
	config.Output = out

	if opts.hostConfigPath != "" {
		hostConfig, err := host.LoadConfig(opts.hostConfigPath)
		if err != nil {
			return err
		}
		config.Host = hostConfig
	}

	if len(opts.predictors) > 0 {
		config.Predictors = nil
		for _, name := range opts.predictors {
			kind, err := prefetch.ParseKind(name)
			if err != nil {
				return err
			}
			config.Predictors = append(config.Predictors, kind)
		}
	}

	harness := benchmarks.NewHarness(config)

	if len(opts.workloads) == 0 {
		harness.AddWorkloads(benchmarks.GetWorkloads())
	}
	for _, name := range opts.workloads {
		w, ok := benchmarks.GetWorkload(name)
		if !ok {
			return fmt.Errorf("unknown workload %q", name)
		}
		harness.AddWorkload(w)
	}

	results, err := harness.RunAll()
	if err != nil {
		return err
	}

	switch opts.format {
	case "text":
		harness.PrintResults(results)
	case "csv":
		harness.PrintCSV(results)
	case "json":
		return harness.PrintJSON(results)
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}

	return nil
}
