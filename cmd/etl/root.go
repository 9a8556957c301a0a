package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/config"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/observability"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "etl",
	Short: "NYC traffic collision and weather ETL",
	Long: "Extracts hourly weather for the five boroughs and reported motor vehicle collisions, " +
		"normalizes them, and accumulates both into deduplicated master datasets.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		logger = observability.NewLogger(cfg)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
