package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/switchyard-net/switchyard/pkg/audit"
	"github.com/switchyard-net/switchyard/pkg/cli"
)

var (
	auditDevice   string
	auditUser     string
	auditFailures bool
	auditLimit    int
	auditSince    string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the command audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Device:      auditDevice,
			User:        auditUser,
			FailureOnly: auditFailures,
			Limit:       auditLimit,
		}
		if auditSince != "" {
			since, err := time.Parse(time.RFC3339, auditSince)
			if err != nil {
				return fmt.Errorf("parsing --since (want RFC3339): %w", err)
			}
			filter.Since = since
		}

		events, err := auditLog.Query(filter)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No matching audit events.")
			return nil
		}

		table := cli.NewTable("TIME", "USER", "DEVICE", "COMMAND", "RESULT")
		for _, ev := range events {
			result := cli.Green("ok")
			if !ev.Success {
				result = cli.Red("failed")
			}
			table.Row(ev.Timestamp.Local().Format("2006-01-02 15:04:05"), ev.User, ev.Device, ev.Command, result)
		}
		table.Flush()
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditDevice, "device-alias", "", "Filter by device alias")
	auditCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditCmd.Flags().BoolVar(&auditFailures, "failures", false, "Only failed commands")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum events to show")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "Only events after this RFC3339 time")
}
