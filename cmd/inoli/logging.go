package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/inoli/internal/config"
)

// configureLogger loads the effective configuration for cmd and creates a
// logger at its level. An invalid --log-level is rejected here, before any
// command work starts.
func configureLogger(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		switch level {
		case "debug", "info", "warn", "error":
		default:
			return nil, nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
		}
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	logger := cfg.NewLogger()
	if cfg.File != "" {
		logger.WithField("file", cfg.File).Debug("Loaded config file")
	}
	return cfg, logger, nil
}
