package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the master datasets for duplicate keys, ordering, and inconsistent derived fields",
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

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "=== Master Dataset Validation ===")
		fmt.Fprintln(out)
		phases := append(validate.Weather(weather), validate.Collisions(collisions)...)
		if !validate.Report(out, phases) {
			return errors.New("master validation failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
