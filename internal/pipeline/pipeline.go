package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/accumulate"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/observability"
)

// Extractor fetches one dataset for a date range from an upstream source.
type Extractor interface {
	Extract(ctx context.Context, r domain.DateRange) (domain.RawBatch, error)
}

// Loader receives the normalized batch of a run. Loaders are optional sinks:
// a failure degrades the run but does not fail it.
type Loader interface {
	Name() string
	Load(ctx context.Context, batch domain.RunBatch) error
}

// Store persists masters, snapshots, and run artifacts.
type Store interface {
	LoadWeather() ([]domain.WeatherRecord, error)
	LoadCollisions() ([]domain.CollisionRecord, error)
	SaveWeather(recs []domain.WeatherRecord) error
	SaveCollisions(recs []domain.CollisionRecord) error
	SnapshotWeather(runID string, recs []domain.WeatherRecord) (string, error)
	SnapshotCollisions(runID string, recs []domain.CollisionRecord) (string, error)
	MasterPath(ds domain.Dataset) string
	WriteRaw(ds domain.Dataset, r domain.DateRange, batch domain.RawBatch) (string, error)
	WriteSummary(runID, text string) (string, error)
	WriteError(runID string, runErr error) (string, error)
}

// Driver sequences one run: extraction, normalization, accumulation,
// persistence, and loading into the optional sinks.
type Driver struct {
	weather    Extractor
	collisions Extractor
	store      Store
	loaders    []Loader
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
	last       atomic.Pointer[Summary]

	mu        sync.Mutex
	lastRunID string
	repeats   int
}

// NewDriver creates a Driver. loaders may be empty.
func NewDriver(weather, collisions Extractor, st Store, loaders []Loader, logger *slog.Logger, metrics *observability.Metrics) *Driver {
	return &Driver{
		weather:    weather,
		collisions: collisions,
		store:      st,
		loaders:    loaders,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once a run has succeeded.
func (d *Driver) CheckReadiness(_ context.Context) error {
	if !d.ready.Load() {
		return errors.New("no successful pipeline run yet")
	}
	return nil
}

// LastSummary returns the summary of the most recent run, if any.
func (d *Driver) LastSummary() (Summary, bool) {
	s := d.last.Load()
	if s == nil {
		return Summary{}, false
	}
	return *s, true
}

// Run executes one pipeline run over r. It never panics and never returns an
// error; the outcome is carried in the returned Summary.
func (d *Driver) Run(ctx context.Context, r domain.DateRange) Summary {
	summary := newSummary(domain.Now(), r)
	summary.RunID = d.nextRunID(summary.RunID)
	logger := d.logger.With("run_id", summary.RunID)

	d.metrics.PipelineRunning.Set(1)
	defer d.metrics.PipelineRunning.Set(0)

	logger.Info("pipeline run started", "range", r.String(), "days", r.Days())

	err := d.runPhases(ctx, logger, &summary)
	d.finish(logger, &summary, err)
	return summary
}

// nextRunID keeps run IDs unique within this driver so that runs started in
// the same millisecond do not overwrite each other's artifacts.
func (d *Driver) nextRunID(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id != d.lastRunID {
		d.lastRunID, d.repeats = id, 0
		return id
	}
	d.repeats++
	return fmt.Sprintf("%s_%d", id, d.repeats+1)
}

func (d *Driver) finish(logger *slog.Logger, s *Summary, err error) {
	s.Finished = domain.Now()
	d.metrics.RunDuration.Observe(s.Duration().Seconds())

	if err != nil {
		s.Error = err.Error()
		d.metrics.RunsTotal.WithLabelValues("failed").Inc()
		logger.Error("pipeline run failed", "error", err, "duration", s.Duration())
		if path, werr := d.store.WriteError(s.RunID, err); werr != nil {
			logger.Error("write error artifact", "error", werr)
		} else {
			s.Artifacts.Error = path
		}
	} else {
		s.Success = true
		d.metrics.RunsTotal.WithLabelValues("success").Inc()
		d.metrics.LastSuccessTime.Set(float64(s.Finished.Unix()))
		d.ready.Store(true)
		logger.Info("pipeline run completed",
			"duration", s.Duration(),
			"weather_added", s.Weather.Added,
			"collisions_added", s.Collisions.Added,
			"degraded", s.Degraded(),
		)
	}

	if path, werr := d.store.WriteSummary(s.RunID, s.Text()); werr != nil {
		logger.Error("write summary artifact", "error", werr)
	} else {
		s.Artifacts.Summary = path
	}
	d.last.Store(s)
}

// runPhases runs each phase in order and records its status. Any panic inside
// a phase is turned into a phase failure.
func (d *Driver) runPhases(ctx context.Context, logger *slog.Logger, s *Summary) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			s.failCurrent(err)
		}
	}()

	var raw rawBatches
	var norm normalized
	var merged mergedMasters

	phases := []struct {
		phase Phase
		run   func() error
	}{
		{PhaseExtraction, func() (err error) { raw, err = d.extract(ctx, logger, s); return err }},
		{PhaseNormalization, func() error { norm = d.normalize(logger, raw, s); return nil }},
		{PhaseAccumulation, func() (err error) { merged, err = d.accumulate(logger, norm, s); return err }},
		{PhasePersistence, func() error { return d.persist(logger, norm, merged, s) }},
		{PhaseLoading, func() error { return d.load(ctx, logger, norm, s) }},
	}

	for _, ph := range phases {
		if cerr := ctx.Err(); cerr != nil {
			s.record(ph.phase, StatusSkipped, "cancelled")
			return fmt.Errorf("%s: %w", ph.phase, cerr)
		}
		s.current = ph.phase
		if perr := ph.run(); perr != nil {
			s.record(ph.phase, StatusFailed, perr.Error())
			logger.Error("phase failed", "phase", ph.phase, "error", perr)
			return fmt.Errorf("%s: %w", ph.phase, perr)
		}
		if !s.hasStatus(ph.phase) {
			s.record(ph.phase, StatusOK, "")
		}
	}
	return nil
}

type rawBatches struct {
	weather    domain.RawBatch
	collisions domain.RawBatch
}

// extract fetches both datasets concurrently. On failure it retries once with
// the fixed fallback range.
func (d *Driver) extract(ctx context.Context, logger *slog.Logger, s *Summary) (rawBatches, error) {
	raw, err := d.extractRange(ctx, s.Range)
	if err != nil {
		if ctx.Err() != nil || s.Range.Equal(domain.FallbackRange) {
			return rawBatches{}, err
		}
		logger.Warn("extraction failed, retrying with fallback range",
			"error", err,
			"requested", s.Range.String(),
			"fallback", domain.FallbackRange.String(),
		)
		d.metrics.FallbackRuns.Inc()
		s.UsedFallback = true
		s.Range = domain.FallbackRange

		raw, err = d.extractRange(ctx, s.Range)
		if err != nil {
			return rawBatches{}, fmt.Errorf("fallback range: %w", err)
		}
		s.record(PhaseExtraction, StatusDegraded, "used fallback range "+s.Range.String())
	}

	s.Weather.Extracted = raw.weather.Len()
	s.Collisions.Extracted = raw.collisions.Len()
	d.metrics.RecordsExtracted.WithLabelValues(domain.WeatherDataset.String()).Add(float64(raw.weather.Len()))
	d.metrics.RecordsExtracted.WithLabelValues(domain.CollisionDataset.String()).Add(float64(raw.collisions.Len()))

	s.Artifacts.RawWeather = d.writeRaw(logger, domain.WeatherDataset, s.Range, raw.weather)
	s.Artifacts.RawCollisions = d.writeRaw(logger, domain.CollisionDataset, s.Range, raw.collisions)

	logger.Info("extraction complete",
		"range", s.Range.String(),
		"weather_rows", raw.weather.Len(),
		"collision_rows", raw.collisions.Len(),
	)
	return raw, nil
}

func (d *Driver) extractRange(ctx context.Context, r domain.DateRange) (rawBatches, error) {
	var out rawBatches
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := safeExtract(gctx, d.weather, r)
		if err != nil {
			return fmt.Errorf("extract weather: %w", err)
		}
		out.weather = b
		return nil
	})
	g.Go(func() error {
		b, err := safeExtract(gctx, d.collisions, r)
		if err != nil {
			return fmt.Errorf("extract collisions: %w", err)
		}
		out.collisions = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return rawBatches{}, err
	}
	return out, nil
}

// safeExtract turns a panic in an extractor goroutine into an error; the
// recover in runPhases only covers the calling goroutine.
func safeExtract(ctx context.Context, e Extractor, r domain.DateRange) (b domain.RawBatch, err error) {
	defer func() {
		if p := recover(); p != nil {
			b, err = domain.RawBatch{}, fmt.Errorf("panic: %v", p)
		}
	}()
	return e.Extract(ctx, r)
}

// writeRaw keeps a copy of the upstream batch. A failure here loses only the
// audit copy, so it is logged and the run continues.
func (d *Driver) writeRaw(logger *slog.Logger, ds domain.Dataset, r domain.DateRange, b domain.RawBatch) string {
	if b.Len() == 0 {
		return ""
	}
	path, err := d.store.WriteRaw(ds, r, b)
	if err != nil {
		logger.Warn("write raw batch", "dataset", ds, "error", err)
		return ""
	}
	return path
}

type mergedMasters struct {
	weather    accumulate.Result[domain.WeatherRecord]
	collisions accumulate.Result[domain.CollisionRecord]
}

// accumulate loads both masters before merging so that a malformed master
// stops the run before anything is written.
func (d *Driver) accumulate(logger *slog.Logger, norm normalized, s *Summary) (mergedMasters, error) {
	existingWeather, err := d.store.LoadWeather()
	if err != nil {
		return mergedMasters{}, fmt.Errorf("load weather master: %w", err)
	}
	existingCollisions, err := d.store.LoadCollisions()
	if err != nil {
		return mergedMasters{}, fmt.Errorf("load collisions master: %w", err)
	}

	var m mergedMasters
	m.weather = accumulate.Merge(existingWeather, norm.weather,
		domain.WeatherRecord.Key, domain.WeatherRecord.When)
	m.collisions = accumulate.Merge(existingCollisions, norm.collisions,
		domain.CollisionRecord.Key, domain.CollisionRecord.When)

	reportMerge(d, logger, domain.WeatherDataset, m.weather)
	reportMerge(d, logger, domain.CollisionDataset, m.collisions)

	absorb(&s.Weather, m.weather, domain.WeatherRecord.When)
	absorb(&s.Collisions, m.collisions, domain.CollisionRecord.When)
	s.Weather.describeWeather(m.weather.Records)
	s.Collisions.describeCollisions(m.collisions.Records)
	return m, nil
}

func reportMerge[T any](d *Driver, logger *slog.Logger, ds domain.Dataset, res accumulate.Result[T]) {
	label := ds.String()
	if res.Anomalous() {
		d.metrics.MergeAnomalies.WithLabelValues(label).Inc()
		logger.Warn("merged master is smaller than existing",
			"dataset", ds,
			"existing", res.Existing,
			"incoming", res.Incoming,
			"merged", len(res.Records),
			"superseded", res.Superseded,
			"added", res.Added,
		)
	} else {
		d.metrics.RecordsAdded.WithLabelValues(label).Add(float64(res.Added))
	}
	d.metrics.MasterRecords.WithLabelValues(label).Set(float64(len(res.Records)))
	logger.Info("master updated",
		"dataset", ds,
		"existing", res.Existing,
		"incoming", res.Incoming,
		"added", res.Added,
		"superseded", res.Superseded,
		"total", len(res.Records),
	)
}

// persist replaces both masters, then writes the per-run snapshots. The two
// masters are separate files: a failed collisions save leaves the weather
// master already committed, and the error says so.
func (d *Driver) persist(logger *slog.Logger, norm normalized, m mergedMasters, s *Summary) error {
	if err := d.store.SaveWeather(m.weather.Records); err != nil {
		return fmt.Errorf("save weather master: %w", err)
	}
	s.Artifacts.WeatherMaster = d.store.MasterPath(domain.WeatherDataset)
	if err := d.store.SaveCollisions(m.collisions.Records); err != nil {
		logger.Error("collisions master not saved after weather master was replaced",
			"weather_master", s.Artifacts.WeatherMaster, "error", err)
		return fmt.Errorf("save collisions master (weather master already updated): %w", err)
	}
	s.Artifacts.CollisionsMaster = d.store.MasterPath(domain.CollisionDataset)

	path, err := d.store.SnapshotWeather(s.RunID, norm.weather)
	if err != nil {
		return fmt.Errorf("snapshot weather: %w", err)
	}
	s.Artifacts.WeatherSnapshot = path
	path, err = d.store.SnapshotCollisions(s.RunID, norm.collisions)
	if err != nil {
		return fmt.Errorf("snapshot collisions: %w", err)
	}
	s.Artifacts.CollisionsSnapshot = path

	logger.Info("masters saved",
		"weather_master", s.Artifacts.WeatherMaster,
		"collisions_master", s.Artifacts.CollisionsMaster,
	)
	return nil
}

// load hands the normalized batch to every sink. Sink failures are logged and
// mark the phase degraded.
func (d *Driver) load(ctx context.Context, logger *slog.Logger, norm normalized, s *Summary) error {
	if len(d.loaders) == 0 {
		s.record(PhaseLoading, StatusSkipped, "no sinks configured")
		return nil
	}
	batch := domain.RunBatch{
		RunID:      s.RunID,
		Range:      s.Range,
		Weather:    norm.weather,
		Collisions: norm.collisions,
	}

	var failed []string
	for _, l := range d.loaders {
		if err := l.Load(ctx, batch); err != nil {
			d.metrics.SinkErrors.WithLabelValues(l.Name()).Inc()
			logger.Warn("sink load failed, continuing with CSV masters", "sink", l.Name(), "error", err)
			failed = append(failed, fmt.Sprintf("%s: %v", l.Name(), err))
			continue
		}
		logger.Info("sink loaded", "sink", l.Name(), "records", batch.Len())
	}
	if len(failed) > 0 {
		s.record(PhaseLoading, StatusDegraded, joinDetails(failed))
	}
	return nil
}
