package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/TheTarry/ha-harness/pkg/compose"
)

func upCmd() *cobra.Command {
	var entitiesPath string

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start the test environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if entitiesPath != "" {
				cfg.PersistentEntitiesPath = entitiesPath
			}
			if err := cfg.DiscoverRoots(); err != nil {
				return err
			}

			mgr, err := compose.New(compose.Config{Harness: cfg})
			if err != nil {
				return err
			}
			defer mgr.Close()

			pterm.Info.Printfln("Starting test environment (run %s)...", mgr.RunID())
			if err := mgr.Start(cmd.Context()); err != nil {
				pterm.Error.Println("Failed to start test environment")
				return err
			}

			if err := compose.SaveState(stateFileName, mgr.State()); err != nil {
				mgr.Stop(cmd.Context())
				return err
			}

			pterm.Success.Println("Test environment started")
			if url, err := mgr.URL(compose.ServiceHomeAssistant); err == nil {
				pterm.Info.Printfln("Home Assistant: %s", url)
			}
			if url, err := mgr.URL(compose.ServiceAppDaemon); err == nil {
				pterm.Info.Printfln("AppDaemon: %s", url)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&entitiesPath, "entities", "", "YAML file with persistent entities to register before startup")

	return cmd
}
