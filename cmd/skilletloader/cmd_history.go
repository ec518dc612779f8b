package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/skilletloader/pkg/cli"
	"github.com/newtron-network/skilletloader/pkg/history"
	"github.com/newtron-network/skilletloader/pkg/skillet"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past skillet runs",
	Long: `Inspect past skillet runs. Runs are stored under ~/.skilletloader/history
or, with 'settings set history_backend redis', in Redis.

Examples:
  skilletloader history list --limit 5
  skilletloader history show 6f1c...`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		records, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(records)
		}
		if len(records) == 0 {
			fmt.Println("No runs recorded")
			return nil
		}
		printRecords(os.Stdout, records)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		rec, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}
		printRecord(os.Stdout, rec)
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to show")
	historyCmd.AddCommand(historyListCmd, historyShowCmd)
}

func runStatus(rec *history.Record) string {
	if rec.Status == string(skillet.RunSuccess) && rec.DryRun {
		return cli.Status("dry-run")
	}
	return cli.Status(rec.Status)
}

func printRecords(out io.Writer, records []*history.Record) {
	t := cli.NewTable("RUN", "STARTED", "SKILLET", "DEVICE", "STATUS", "ERROR")
	if out != os.Stdout {
		t.WithWriter(out)
	}
	for _, r := range records {
		t.Row(r.RunID, r.Started.Local().Format("2006-01-02 15:04:05"), r.Skillet, r.Device, runStatus(r), r.ErrorKind)
	}
	t.Flush()
}

func printRecord(out io.Writer, rec *history.Record) {
	fmt.Fprintf(out, "Run:      %s\n", rec.RunID)
	fmt.Fprintf(out, "Skillet:  %s\n", rec.Skillet)
	fmt.Fprintf(out, "Device:   %s\n", rec.Device)
	fmt.Fprintf(out, "Status:   %s\n", runStatus(rec))
	fmt.Fprintf(out, "Started:  %s\n", rec.Started.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "Duration: %s\n", rec.Duration().Round(time.Millisecond))
	if rec.Committed {
		fmt.Fprintln(out, "Committed: yes")
	}
	if rec.Error != "" {
		fmt.Fprintf(out, "Error:    %s: %s\n", rec.ErrorKind, rec.Error)
	}

	fmt.Fprintln(out)
	t := cli.NewTable("SNIPPET", "STATUS", "CMD", "PARTS", "DURATION", "ERROR").WithPrefix("  ")
	if out != os.Stdout {
		t.WithWriter(out)
	}
	for _, s := range rec.Steps {
		parts := ""
		if s.Parts > 0 {
			parts = fmt.Sprint(s.Parts)
		}
		t.Row(s.Snippet, string(s.Status), s.Command, parts, s.Duration.Round(time.Millisecond).String(), s.Error)
	}
	t.Flush()
}
