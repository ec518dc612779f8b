package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/skilletloader/pkg/audit"
	"github.com/newtron-network/skilletloader/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View audit logs",
	Long: `View the audit log of device operations.

Every run, snippet dispatch, skip and commit is logged with the run id,
device, skillet, snippet and outcome.

Examples:
  skilletloader audit list --device fw1
  skilletloader audit list --last 24h
  skilletloader audit list --run 6f1c...`,
}

var (
	auditDevice   string
	auditRun      string
	auditSkillet  string
	auditLast     string
	auditLimit    int
	auditFailures bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Device:      auditDevice,
			RunID:       auditRun,
			Skillet:     auditSkillet,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}

		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}

		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "DEVICE", "OPERATION", "SKILLET", "SNIPPET", "STATUS")
		for _, event := range events {
			status := "ok"
			if !event.Success {
				status = "failed"
			}
			if event.DryRun {
				status = "dry-run"
			}
			t.Row(
				event.Timestamp.Format("2006-01-02 15:04:05"),
				event.Device,
				string(event.Operation),
				event.Skillet,
				event.Snippet,
				cli.Status(status),
			)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditListCmd.Flags().StringVar(&auditRun, "run", "", "Filter by run id")
	auditListCmd.Flags().StringVar(&auditSkillet, "skillet", "", "Filter by skillet")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")

	auditCmd.AddCommand(auditListCmd)
}
