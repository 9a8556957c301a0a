package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write both master datasets to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore()
		if err != nil {
			return err
		}
		weather, err := st.LoadWeather()
		if err != nil {
			return err
		}
		collisions, err := st.LoadCollisions()
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = filepath.Join(cfg.DataDir, "processed", "nyc_traffic_weather.xlsx")
		}
		if err := export.Workbook(out, weather, collisions); err != nil {
			return err
		}
		logger.Info("workbook exported", "path", out, "weather", len(weather), "collisions", len(collisions))
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default <DATA_DIR>/processed/nyc_traffic_weather.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
