package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file, INOLI_*
environment variables and flags. The output is valid YAML and can be used as a
starting point for a config file.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, _, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	out, err := cfg.Dump()
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	if cfg.File != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", cfg.File)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
