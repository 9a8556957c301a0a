package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/observability"
)

// testRange is the two-day window used by --test.
var testRange = domain.DateRange{
	Start: time.Date(2024, time.January, 1, 0, 0, 0, 0, domain.NYC),
	End:   time.Date(2024, time.January, 2, 0, 0, 0, 0, domain.NYC),
}

// rangeFlags are the date selection flags shared by run and sample.
type rangeFlags struct {
	startDate  string
	endDate    string
	days       int
	test       bool
	historical bool
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.startDate, "start-date", "", "first day to extract (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.endDate, "end-date", "", "last day to extract (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.days, "days", 0, "days ending yesterday to extract (default LOOKBACK_DAYS)")
	cmd.Flags().BoolVar(&f.test, "test", false, "extract 2024-01-01 to 2024-01-02")
	cmd.Flags().BoolVar(&f.historical, "historical", false, "extract 2024-01-01 to 2024-01-30")
}

// resolve picks the run window. Explicit dates win over --days; --test and
// --historical select fixed windows and cannot be combined with dates.
func (f rangeFlags) resolve(now time.Time, defaultDays int) (domain.DateRange, error) {
	explicit := f.startDate != "" || f.endDate != ""
	switch {
	case f.test && f.historical:
		return domain.DateRange{}, errors.New("--test and --historical are mutually exclusive")
	case (f.test || f.historical) && explicit:
		return domain.DateRange{}, errors.New("--test and --historical cannot be combined with --start-date or --end-date")
	case f.test:
		return testRange, nil
	case f.historical:
		return domain.FallbackRange, nil
	case explicit:
		if f.startDate == "" || f.endDate == "" {
			return domain.DateRange{}, errors.New("--start-date and --end-date must be given together")
		}
		return domain.ParseDateRange(f.startDate, f.endDate)
	}

	days := defaultDays
	if f.days != 0 {
		if f.days < 0 {
			return domain.DateRange{}, fmt.Errorf("--days must be positive, got %d", f.days)
		}
		days = f.days
	}
	return domain.DefaultRange(now, days), nil
}

var runFlags rangeFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		r, err := runFlags.resolve(domain.Now(), cfg.LookbackDays)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, observability.NewMetrics(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		summary := env.Driver.Run(ctx, r)
		fmt.Fprint(cmd.OutOrStdout(), summary.Text())
		if !summary.Success {
			return fmt.Errorf("pipeline run %s failed: %s", summary.RunID, summary.Error)
		}
		return nil
	},
}

func init() {
	runFlags.register(runCmd)
	rootCmd.AddCommand(runCmd)
}
