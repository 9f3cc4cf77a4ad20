package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/grant-engine/factory"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flagConfig != "" {
		fmt.Fprintf(out, "# Config file: %s\n", flagConfig)
	} else {
		fmt.Fprintln(out, "# Using defaults (no config file)")
	}
	return factory.WriteTOML(out, settings)
}
