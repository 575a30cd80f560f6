package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cfdwind/internal/logging"
	"cfdwind/internal/watch"
)

var (
	watchInbox    string
	watchExisting bool
)

// watchCmd runs the pipeline for every input file that lands in the inbox.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a simulation for each input file dropped into the inbox",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchInbox, "inbox", "", "Inbox directory (default: watch.inbox from config)")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "Also process files already in the inbox")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, metricz)
	if err != nil {
		return err
	}
	defer a.Close()

	inbox := cfg.Watch.Inbox
	if watchInbox != "" {
		inbox = watchInbox
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := func(ctx context.Context, path string) error {
		// let a started run finish reporting even if we are shutting down
		out, err := a.runFile(context.WithoutCancel(ctx), path, runIDFor(path), a.inputs())
		if out != nil {
			printOutcome(cmd.OutOrStdout(), out)
		}
		// flush after each run so the textfile stays current
		if werr := metricz.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			logging.WatchWarn("Metrics export failed: %v", werr)
		}
		return err
	}

	w, err := watch.NewInboxWatcher(inbox, cfg.GetWatchDebounce(), handler)
	if err != nil {
		return err
	}
	if watchExisting {
		if err := w.ProcessExisting(ctx); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Start(ctx); err != nil {
		w.Close()
		return err
	}
	defer w.Stop()

	logging.Watch("Waiting for input files in %s (Ctrl+C to stop)", w.Dir())
	<-ctx.Done()
	return nil
}
