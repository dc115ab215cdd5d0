package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	outputFormat string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ha-harness",
		Short: "Home Assistant integration test harness CLI",
		Long:  `ha-harness runs a disposable Home Assistant and AppDaemon environment in Docker and manipulates the time both containers observe.`,
	}

	defaultConfig := "ha-harness.yaml"
	if envPath := os.Getenv("HA_HARNESS_CONFIG"); envPath != "" {
		defaultConfig = envPath
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Harness config file (env: HA_HARNESS_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(upCmd())
	rootCmd.AddCommand(downCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(timeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
