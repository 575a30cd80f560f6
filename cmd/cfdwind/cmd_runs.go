package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"cfdwind/internal/ledger"
)

var runsLimit int

// runsCmd lists run history from the ledger.
var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recorded runs, or show one run in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE:  listRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list (0 = all)")
}

func listRuns(cmd *cobra.Command, args []string) error {
	store, err := ledger.Open(cfg.Ledger.DatabasePath, cfg.Export.Root)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	if len(args) == 1 {
		return showRun(cmd, store, args[0])
	}

	runs, err := store.Runs(ctx, runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	t := newSimpleTable("Runs", "RUN", "STATUS", "UPDATED", "LOGS", "VERSIONS", "MESSAGE")
	t.StatusColumn = 1
	for _, r := range runs {
		t.AddRow(r.RunID, r.Status, r.UpdatedAt.Local().Format(time.DateTime),
			strconv.Itoa(r.Attachments), strconv.Itoa(r.Versions), r.Message)
	}
	fmt.Fprint(w, t.View())
	return nil
}

func showRun(cmd *cobra.Command, store *ledger.Store, id string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	r, err := store.Run(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Run %s: %s\n  %s\n", r.RunID, r.Status, r.Message)
	if r.InputsJSON != "" {
		fmt.Fprintf(w, "  inputs: %s\n", r.InputsJSON)
	}

	objects, err := store.Objects(ctx, id)
	if err != nil {
		return err
	}
	if len(objects) > 0 {
		t := newSimpleTable("Objects", "OBJECT", "NOTE")
		for _, o := range objects {
			t.AddRow(o.ObjectID, o.Message)
		}
		fmt.Fprint(w, t.View())
	}

	attachments, err := store.Attachments(ctx, id)
	if err != nil {
		return err
	}
	if len(attachments) > 0 {
		t := newSimpleTable("Logs", "NAME", "BYTES", "PATH")
		for _, a := range attachments {
			t.AddRow(a.Name, strconv.FormatInt(a.Size, 10), a.Path)
		}
		fmt.Fprint(w, t.View())
	}

	versions, err := store.Versions(ctx, id)
	if err != nil {
		return err
	}
	if len(versions) > 0 {
		t := newSimpleTable("Versions", "VERSION", "ITEMS", "PATH")
		for _, v := range versions {
			t.AddRow(v.VersionID, strconv.Itoa(v.ItemCount), v.Path)
		}
		fmt.Fprint(w, t.View())
	}
	return nil
}
