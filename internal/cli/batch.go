package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/policygraph/internal/cache"
	"github.com/ppiankov/policygraph/internal/llm"
	"github.com/ppiankov/policygraph/internal/rag"
	"github.com/ppiankov/policygraph/internal/worker"
)

var (
	batchWorkers      int
	batchTimeout      time.Duration
	batchTotalTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Build graphs for many documents in parallel",
	Long: `Batch reads document paths or URLs from a file (one per line, # for
comments) and builds and saves a separate graph for each one.

Example:
  policygraph batch documents.txt
  policygraph batch documents.txt --workers 8 --timeout 10m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "number of concurrent workers (default from config)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 0, "timeout per document (default from config)")
	batchCmd.Flags().DurationVar(&batchTotalTimeout, "total-timeout", 2*time.Hour, "timeout for the whole batch")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTotalTimeout)
	defer cancel()

	workers := cfg.Batch.Workers
	if batchWorkers > 0 {
		workers = batchWorkers
	}
	perDocument := cfg.Batch.Timeout
	if batchTimeout > 0 {
		perDocument = batchTimeout
	}

	// one provider and cache for every session
	provider, err := rag.ProviderFromConfig(cfg)
	if err != nil {
		return err
	}
	shared := cache.FromConfig(cfg.Cache)
	factory := func() (worker.Builder, error) {
		return rag.New(rag.Options{
			Config:   cfg,
			Provider: provider,
			Cache:    shared,
			Logger:   logger,
		}), nil
	}

	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "\n═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(stderr, "  policygraph batch processing\n")
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n\n")
	fmt.Fprintf(stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(stderr, "  Graphs dir:   %s\n", cfg.Storage.GraphsDir)
	if provider != nil {
		fmt.Fprintf(stderr, "  LLM:          %s/%s\n", provider.Name(), cfg.LLM.Model)
	} else {
		fmt.Fprintf(stderr, "  LLM:          disabled (graphs will hold only the framework node)\n")
	}
	fmt.Fprintln(stderr)

	processor := worker.NewBatchProcessor(factory, workers, perDocument, logger)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	failures := 0
	for _, res := range results {
		if res.Error != nil {
			failures++
			fmt.Fprintf(stderr, "✗ %s: %v\n", res.Path, res.Error)
			continue
		}
		fmt.Fprintf(stderr, "✓ %s → %s (%d nodes, %d edges, %v)\n",
			res.Path, res.Graph, res.Stats.Nodes, res.Stats.Edges, res.Elapsed.Round(time.Millisecond))
	}

	fmt.Fprintf(stderr, "\n  Total:     %d documents\n", len(results))
	fmt.Fprintf(stderr, "  Success:   %d\n", len(results)-failures)
	fmt.Fprintf(stderr, "  Failures:  %d\n", failures)
	if limited, ok := provider.(*llm.LimitedProvider); ok {
		usage := limited.Usage()
		fmt.Fprintf(stderr, "  LLM calls: %d (%d failed, ~%d tokens)\n", usage.Requests, usage.Failures, usage.TokensUsed)
	}
	fmt.Fprintln(stderr)

	if failures > 0 && failures == len(results) {
		return fmt.Errorf("all %d documents failed", failures)
	}
	return nil
}
