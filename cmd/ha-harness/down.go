package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Stop the test environment",
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

			pterm.Info.Println("Stopping test environment...")
			mgr.Stop(cmd.Context())
			if err := os.Remove(stateFileName); err != nil && !os.IsNotExist(err) {
				pterm.Warning.Printfln("Failed to remove state file: %v", err)
			}
			pterm.Success.Println("Test environment stopped")
			return nil
		},
	}
}
