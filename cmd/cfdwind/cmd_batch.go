package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var batchParallel int

// batchCmd runs several input trees concurrently.
var batchCmd = &cobra.Command{
	Use:   "batch <input-file>...",
	Short: "Run one simulation per input file, several at a time",
	Long: `Runs one simulation per input file. The run id of each is the file name
without its extension, so two files with the same stem are refused as a
duplicate run. A failing run does not stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchParallel, "parallel", "p", 0, "Concurrent runs (default: batch.parallel from config)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, metricz)
	if err != nil {
		return err
	}
	defer a.Close()

	limit := cfg.Batch.Parallel
	if batchParallel > 0 {
		limit = batchParallel
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(limit)
	ctx := cmd.Context()
	in := a.inputs()

	for _, path := range args {
		g.Go(func() error {
			out, err := a.runFile(ctx, path, runIDFor(path), in)
			mu.Lock()
			defer mu.Unlock()
			if out != nil {
				printOutcome(cmd.OutOrStdout(), out)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	fmt.Fprintf(cmd.OutOrStdout(), "%d/%d runs completed without error\n", len(args)-len(errs), len(args))
	return errors.Join(errs...)
}
