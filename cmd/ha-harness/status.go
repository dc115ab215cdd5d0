package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/TheTarry/ha-harness/pkg/compose"
	"github.com/TheTarry/ha-harness/pkg/timemachine"
)

type statusOutput struct {
	RunID       string              `json:"run_id"`
	Overridden  bool                `json:"overridden"`
	LogicalTime string              `json:"logical_time"`
	Containers  []compose.Container `json:"containers"`
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show environment and logical clock status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr, err := attachManager(cfg)
			if err != nil {
				return err
			}
			defer mgr.Close()
			ctx := cmd.Context()

			out := statusOutput{
				RunID:       mgr.RunID(),
				LogicalTime: time.Now().Truncate(time.Second).Format(timemachine.Layout),
				Containers:  mgr.Containers(ctx),
			}
			if value, err := mgr.ReadContainerFile(ctx, compose.ServiceHomeAssistant, compose.FaketimeFile); err == nil {
				if _, perr := time.Parse(timemachine.Layout, value); perr == nil {
					out.Overridden = true
					out.LogicalTime = value
				}
			}

			switch outputFormat {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			case "table":
				return statusTable(out)
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}
}

func statusTable(out statusOutput) error {
	fmt.Printf("Run: %s\n", out.RunID)
	fmt.Printf("Logical time: %s (overridden: %v)\n\n", out.LogicalTime, out.Overridden)

	table := tablewriter.NewWriter(os.Stdout)
	table.Append([]string{"Service", "Status", "Health", "URL", "Host Port"})
	for _, c := range out.Containers {
		health := c.Health
		if health == "" {
			health = "-"
		}
		table.Append([]string{
			c.Service,
			c.Status,
			health,
			c.URL,
			strconv.Itoa(c.HostPort),
		})
	}
	table.Render()
	return nil
}
