package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/observability"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/sample"
)

var (
	sampleFlags rangeFlags
	sampleSeed  uint64
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Run the pipeline against generated data instead of the live APIs",
	Long: "Feeds seeded synthetic weather and collision batches through the full pipeline, " +
		"populating the master datasets for local development and demos.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		r, err := sampleFlags.resolve(domain.Now(), cfg.LookbackDays)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, observability.NewMetrics(), &extractorPair{
			weather:    sample.Weather{Seed: sampleSeed},
			collisions: sample.Collisions{Seed: sampleSeed},
		})
		if err != nil {
			return err
		}
		defer env.Close()

		summary := env.Driver.Run(ctx, r)
		fmt.Fprint(cmd.OutOrStdout(), summary.Text())
		if !summary.Success {
			return fmt.Errorf("sample run %s failed: %s", summary.RunID, summary.Error)
		}
		return nil
	},
}

func init() {
	sampleFlags.register(sampleCmd)
	sampleCmd.Flags().Uint64Var(&sampleSeed, "seed", 42, "random seed")
	rootCmd.AddCommand(sampleCmd)
}
