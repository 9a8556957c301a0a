package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
)

type normalized struct {
	weather    []domain.WeatherRecord
	collisions []domain.CollisionRecord
}

// normalize converts both raw batches into canonical records and reports
// what was dropped.
func (d *Driver) normalize(logger *slog.Logger, raw rawBatches, s *Summary) normalized {
	weather, wr := domain.NormalizeWeather(raw.weather)
	collisions, cr := domain.NormalizeCollisions(raw.collisions)

	d.reportNormalize(logger, domain.WeatherDataset, wr)
	d.reportNormalize(logger, domain.CollisionDataset, cr)
	s.Weather.Normalized, s.Weather.Dropped = wr.Output, wr.DroppedTotal()
	s.Collisions.Normalized, s.Collisions.Dropped = cr.Output, cr.DroppedTotal()

	return normalized{weather: weather, collisions: collisions}
}

func (d *Driver) reportNormalize(logger *slog.Logger, ds domain.Dataset, r domain.NormalizeReport) {
	label := ds.String()
	d.metrics.RecordsNormalized.WithLabelValues(label).Add(float64(r.Output))
	for reason, n := range r.Dropped {
		d.metrics.RecordsDropped.WithLabelValues(label, string(reason)).Add(float64(n))
	}

	if dropped := r.DroppedTotal(); dropped > 0 {
		attrs := []any{"dataset", ds, "input", r.Input, "output", r.Output, "dropped", dropped}
		for reason, n := range r.Dropped {
			attrs = append(attrs, string(reason), n)
		}
		logger.Warn("rows dropped during normalization", attrs...)
		return
	}
	logger.Info("normalized", "dataset", ds, "records", r.Output)
}
