package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medturn/portal/internal/config"
	"github.com/medturn/portal/internal/telemetry"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "portal",
		Short:         "Medical portal state machine runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(simulateCmd(), diagramCmd())
	return cmd
}

// setup loads configuration and builds the process logger.
func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, telemetry.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat), nil
}
