package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/nyc-traffic-weather-etl/internal/adapter/http"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/observability"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline on SCHEDULE_INTERVAL and expose health and metrics endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, observability.NewMetrics(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := httpadapter.NewServer(cfg.HTTPAddr, env.Driver, env.Driver, logger)
		scheduler := pipeline.NewScheduler(env.Driver, cfg.ScheduleInterval, cfg.LookbackDays, logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			return scheduler.Start(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		err = g.Wait()
		logger.Info("shutdown complete")
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
