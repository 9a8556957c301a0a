package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/observability"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/pipeline"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/store"
)

// --- mocks ---

type mockExtractor struct {
	mu    sync.Mutex
	batch domain.RawBatch
	// fail returns a non-nil error for ranges that should fail.
	fail  func(domain.DateRange) error
	calls []domain.DateRange
}

func (m *mockExtractor) Extract(_ context.Context, r domain.DateRange) (domain.RawBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, r)
	if m.fail != nil {
		if err := m.fail(r); err != nil {
			return domain.RawBatch{}, err
		}
	}
	return m.batch, nil
}

type panickingExtractor struct{}

func (panickingExtractor) Extract(context.Context, domain.DateRange) (domain.RawBatch, error) {
	var rows []domain.RawRow
	return domain.RawBatch{Rows: rows[:1]}, nil
}

func (m *mockExtractor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockLoader struct {
	name    string
	err     error
	panics  bool
	batches []domain.RunBatch
}

func (m *mockLoader) Name() string { return m.name }

func (m *mockLoader) Load(_ context.Context, b domain.RunBatch) error {
	if m.panics {
		panic("sink exploded")
	}
	m.batches = append(m.batches, b)
	return m.err
}

// failingStore wraps a real store and fails collision saves.
type failingStore struct {
	*store.MasterStore
}

func (failingStore) SaveCollisions([]domain.CollisionRecord) error {
	return errors.New("disk full")
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func newTestStore(t *testing.T) *store.MasterStore {
	t.Helper()
	s := store.New(t.TempDir())
	require.NoError(t, s.Init())
	return s
}

func freezeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2024, time.January, 31, 6, 0, 0, 0, time.UTC))
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })
	return fc
}

func weatherBatch() domain.RawBatch {
	return domain.RawBatch{Source: "open-meteo", Rows: []domain.RawRow{
		{"region": "MANHATTAN", "timestamp": "2024-01-01T00:00", "temperature_2m": "1.5", "snowfall": "2", "visibility": "9000"},
		{"region": "BROOKLYN", "timestamp": "2024-01-01T00:00", "temperature_2m": "2.0", "rain": "0.4", "visibility": "9000"},
		{"region": "QUEENS", "timestamp": "2024-01-01T01:00", "temperature_2m": "0.5", "visibility": "9000"},
		{"region": "", "timestamp": "2024-01-01T01:00"},
	}}
}

func collisionBatch() domain.RawBatch {
	return domain.RawBatch{Source: "socrata", Rows: []domain.RawRow{
		{"collision_id": "1", "crash_date": "2024-01-01T00:00:00.000", "crash_time": "9:15", "borough": "BROOKLYN", "number_of_persons_injured": "5", "number_of_persons_killed": "1"},
		{"collision_id": "2", "crash_date": "2024-01-02T00:00:00.000", "crash_time": "17:40", "borough": "", "number_of_persons_injured": "1"},
		{"collision_id": "", "crash_date": "2024-01-02T00:00:00.000", "crash_time": "18:00"},
	}}
}

func testRange(t *testing.T) domain.DateRange {
	t.Helper()
	r, err := domain.ParseDateRange("2024-01-01", "2024-01-02")
	require.NoError(t, err)
	return r
}

// --- tests ---

func TestDriver_Run_HappyPath(t *testing.T) {
	freezeClock(t)
	st := newTestStore(t)
	wx := &mockExtractor{batch: weatherBatch()}
	cx := &mockExtractor{batch: collisionBatch()}
	sink := &mockLoader{name: "warehouse"}
	metrics := newTestMetrics()

	d := pipeline.NewDriver(wx, cx, st, []pipeline.Loader{sink}, slog.Default(), metrics)
	require.Error(t, d.CheckReadiness(context.Background()))

	s := d.Run(context.Background(), testRange(t))

	require.True(t, s.Success, s.Error)
	assert.Equal(t, "20240131_060000.000", s.RunID)
	assert.False(t, s.UsedFallback)
	for _, p := range []pipeline.Phase{
		pipeline.PhaseExtraction, pipeline.PhaseNormalization, pipeline.PhaseAccumulation,
		pipeline.PhasePersistence, pipeline.PhaseLoading,
	} {
		status, ok := s.PhaseStatus(p)
		require.True(t, ok, p)
		assert.Equal(t, pipeline.StatusOK, status, p)
	}

	assert.Equal(t, 4, s.Weather.Extracted)
	assert.Equal(t, 3, s.Weather.Normalized)
	assert.Equal(t, 1, s.Weather.Dropped)
	assert.Equal(t, 3, s.Weather.Added)
	assert.Equal(t, 2, s.Collisions.Added)
	assert.Equal(t, 1, s.Collisions.Dropped)
	assert.Equal(t, 5+1, s.Collisions.Injured)
	assert.Equal(t, 1, s.Collisions.Killed)
	assert.Equal(t, 1, s.Collisions.BySeverity["FATAL"])
	assert.Equal(t, 1, s.Collisions.ByRegion["UNKNOWN"])
	assert.Equal(t, 1, s.Weather.ByCategory["SNOW"])
	assert.InDelta(t, 1.5, s.PerDay(s.Weather), 0.001)

	weather, err := st.LoadWeather()
	require.NoError(t, err)
	assert.Len(t, weather, 3)
	collisions, err := st.LoadCollisions()
	require.NoError(t, err)
	assert.Len(t, collisions, 2)

	require.Len(t, sink.batches, 1)
	assert.Equal(t, s.RunID, sink.batches[0].RunID)
	assert.Len(t, sink.batches[0].Weather, 3)

	assert.FileExists(t, s.Artifacts.Summary)
	assert.FileExists(t, s.Artifacts.WeatherSnapshot)
	assert.FileExists(t, s.Artifacts.RawCollisions)
	assert.Empty(t, s.Artifacts.Error)

	require.NoError(t, d.CheckReadiness(context.Background()))
	last, ok := d.LastSummary()
	require.True(t, ok)
	assert.Equal(t, s.RunID, last.RunID)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.MasterRecords.WithLabelValues("weather")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RecordsDropped.WithLabelValues("collisions", "missing_id")), 0)
}

func TestDriver_Run_RepeatedBatchAddsNothing(t *testing.T) {
	fc := freezeClock(t)
	st := newTestStore(t)
	d := pipeline.NewDriver(
		&mockExtractor{batch: weatherBatch()},
		&mockExtractor{batch: collisionBatch()},
		st, nil, slog.Default(), newTestMetrics())

	first := d.Run(context.Background(), testRange(t))
	require.True(t, first.Success, first.Error)

	fc.Advance(time.Hour)
	second := d.Run(context.Background(), testRange(t))
	require.True(t, second.Success, second.Error)

	assert.Equal(t, 0, second.Weather.Added)
	assert.Equal(t, 3, second.Weather.Superseded)
	assert.Equal(t, 3, second.Weather.MasterTotal)
	assert.Equal(t, 0, second.Collisions.Added)
	assert.Equal(t, 2, second.Collisions.MasterTotal)
	assert.NotEqual(t, first.RunID, second.RunID)

	status, _ := second.PhaseStatus(pipeline.PhaseLoading)
	assert.Equal(t, pipeline.StatusSkipped, status)
}

func TestDriver_Run_FallsBackToHistoricalRange(t *testing.T) {
	freezeClock(t)
	requested := testRange(t)
	requested.Start = requested.Start.AddDate(0, 6, 0)
	requested.End = requested.End.AddDate(0, 6, 0)

	onlyFallback := func(r domain.DateRange) error {
		if r.Equal(domain.FallbackRange) {
			return nil
		}
		return errors.New("upstream unavailable")
	}
	wx := &mockExtractor{batch: weatherBatch(), fail: onlyFallback}
	cx := &mockExtractor{batch: collisionBatch()}
	metrics := newTestMetrics()

	d := pipeline.NewDriver(wx, cx, newTestStore(t), nil, slog.Default(), metrics)
	s := d.Run(context.Background(), requested)

	require.True(t, s.Success, s.Error)
	assert.True(t, s.UsedFallback)
	assert.True(t, s.Range.Equal(domain.FallbackRange))
	assert.True(t, s.Requested.Equal(requested))
	status, _ := s.PhaseStatus(pipeline.PhaseExtraction)
	assert.Equal(t, pipeline.StatusDegraded, status)
	assert.True(t, s.Degraded())
	assert.Equal(t, 2, wx.callCount())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.FallbackRuns), 0)
	assert.Contains(t, s.Text(), "fallback used")
}

func TestDriver_Run_ExtractionFailsTwice(t *testing.T) {
	freezeClock(t)
	st := newTestStore(t)
	down := func(domain.DateRange) error { return errors.New("connection refused") }
	d := pipeline.NewDriver(
		&mockExtractor{fail: down},
		&mockExtractor{batch: collisionBatch()},
		st, nil, slog.Default(), newTestMetrics())

	s := d.Run(context.Background(), testRange(t))

	assert.False(t, s.Success)
	assert.Contains(t, s.Error, "connection refused")
	status, _ := s.PhaseStatus(pipeline.PhaseExtraction)
	assert.Equal(t, pipeline.StatusFailed, status)
	assert.FileExists(t, s.Artifacts.Error)
	assert.FileExists(t, s.Artifacts.Summary)
	assert.NoFileExists(t, st.MasterPath(domain.WeatherDataset))
	assert.Error(t, d.CheckReadiness(context.Background()))
}

func TestDriver_Run_MalformedMasterLeavesFilesUntouched(t *testing.T) {
	freezeClock(t)
	st := newTestStore(t)

	seed := pipeline.NewDriver(
		&mockExtractor{batch: weatherBatch()},
		&mockExtractor{batch: domain.RawBatch{}},
		st, nil, slog.Default(), newTestMetrics())
	require.True(t, seed.Run(context.Background(), testRange(t)).Success)

	weatherPath := st.MasterPath(domain.WeatherDataset)
	before, err := os.ReadFile(weatherPath)
	require.NoError(t, err)
	collisionsPath := st.MasterPath(domain.CollisionDataset)
	garbage := []byte("collision_id,crash_datetime\n9,not-a-time\n")
	require.NoError(t, os.WriteFile(collisionsPath, garbage, 0o644))

	d := pipeline.NewDriver(
		&mockExtractor{batch: weatherBatch()},
		&mockExtractor{batch: collisionBatch()},
		st, nil, slog.Default(), newTestMetrics())
	s := d.Run(context.Background(), testRange(t))

	assert.False(t, s.Success)
	assert.Contains(t, s.Error, "malformed master")
	status, _ := s.PhaseStatus(pipeline.PhaseAccumulation)
	assert.Equal(t, pipeline.StatusFailed, status)
	_, persisted := s.PhaseStatus(pipeline.PhasePersistence)
	assert.False(t, persisted)

	after, err := os.ReadFile(weatherPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	still, err := os.ReadFile(collisionsPath)
	require.NoError(t, err)
	assert.Equal(t, garbage, still)
	assert.FileExists(t, s.Artifacts.Error)
}

func TestDriver_Run_PersistenceFailure(t *testing.T) {
	freezeClock(t)
	st := newTestStore(t)
	sink := &mockLoader{name: "kafka"}
	d := pipeline.NewDriver(
		&mockExtractor{batch: weatherBatch()},
		&mockExtractor{batch: collisionBatch()},
		failingStore{st}, []pipeline.Loader{sink}, slog.Default(), newTestMetrics())

	s := d.Run(context.Background(), testRange(t))

	assert.False(t, s.Success)
	assert.Contains(t, s.Error, "disk full")
	assert.Contains(t, s.Error, "weather master already updated")
	status, _ := s.PhaseStatus(pipeline.PhasePersistence)
	assert.Equal(t, pipeline.StatusFailed, status)
	assert.Empty(t, sink.batches)

	weather, err := st.LoadWeather()
	require.NoError(t, err)
	assert.Len(t, weather, 3)
	assert.NoFileExists(t, st.MasterPath(domain.CollisionDataset))

	require.FileExists(t, s.Artifacts.Error)
	artifact, err := os.ReadFile(s.Artifacts.Error)
	require.NoError(t, err)
	assert.Contains(t, string(artifact), "weather master already updated")
}

func TestDriver_Run_SameInstantGetsDistinctRunIDs(t *testing.T) {
	freezeClock(t)
	d := pipeline.NewDriver(
		&mockExtractor{batch: weatherBatch()},
		&mockExtractor{batch: collisionBatch()},
		newTestStore(t), nil, slog.Default(), newTestMetrics())

	first := d.Run(context.Background(), testRange(t))
	second := d.Run(context.Background(), testRange(t))
	require.True(t, first.Success, first.Error)
	require.True(t, second.Success, second.Error)

	assert.Equal(t, "20240131_060000.000", first.RunID)
	assert.Equal(t, "20240131_060000.000_2", second.RunID)
	assert.NotEqual(t, first.Artifacts.Summary, second.Artifacts.Summary)
	assert.NotEqual(t, first.Artifacts.WeatherSnapshot, second.Artifacts.WeatherSnapshot)
	assert.FileExists(t, first.Artifacts.Summary)
	assert.FileExists(t, second.Artifacts.Summary)
}

func TestDriver_Run_SinkFailureDegradesRun(t *testing.T) {
	freezeClock(t)
	broken := &mockLoader{name: "warehouse", err: errors.New("database is locked")}
	healthy := &mockLoader{name: "kafka"}
	metrics := newTestMetrics()
	d := pipeline.NewDriver(
		&mockExtractor{batch: weatherBatch()},
		&mockExtractor{batch: collisionBatch()},
		newTestStore(t), []pipeline.Loader{broken, healthy}, slog.Default(), metrics)

	s := d.Run(context.Background(), testRange(t))

	require.True(t, s.Success, s.Error)
	assert.True(t, s.Degraded())
	status, _ := s.PhaseStatus(pipeline.PhaseLoading)
	assert.Equal(t, pipeline.StatusDegraded, status)
	assert.Len(t, healthy.batches, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SinkErrors.WithLabelValues("warehouse")), 0)
	assert.Contains(t, s.Text(), "SUCCESS (degraded)")
}

func TestDriver_Run_PanickingSinkFailsRun(t *testing.T) {
	freezeClock(t)
	d := pipeline.NewDriver(
		&mockExtractor{batch: weatherBatch()},
		&mockExtractor{batch: collisionBatch()},
		newTestStore(t), []pipeline.Loader{&mockLoader{name: "warehouse", panics: true}},
		slog.Default(), newTestMetrics())

	var s pipeline.Summary
	require.NotPanics(t, func() { s = d.Run(context.Background(), testRange(t)) })
	assert.False(t, s.Success)
	assert.Contains(t, s.Error, "sink exploded")
	status, _ := s.PhaseStatus(pipeline.PhaseLoading)
	assert.Equal(t, pipeline.StatusFailed, status)
}

func TestDriver_Run_PanickingExtractorFailsRun(t *testing.T) {
	freezeClock(t)
	st := newTestStore(t)
	d := pipeline.NewDriver(
		panickingExtractor{},
		&mockExtractor{batch: collisionBatch()},
		st, nil, slog.Default(), newTestMetrics())

	var s pipeline.Summary
	require.NotPanics(t, func() { s = d.Run(context.Background(), testRange(t)) })
	assert.False(t, s.Success)
	assert.Contains(t, s.Error, "extract weather: panic")
	assert.True(t, s.UsedFallback)
	status, _ := s.PhaseStatus(pipeline.PhaseExtraction)
	assert.Equal(t, pipeline.StatusFailed, status)
	assert.NoFileExists(t, st.MasterPath(domain.CollisionDataset))
	assert.FileExists(t, s.Artifacts.Error)
}

func TestDriver_Run_CancelledContext(t *testing.T) {
	freezeClock(t)
	wx := &mockExtractor{batch: weatherBatch()}
	d := pipeline.NewDriver(wx, &mockExtractor{}, newTestStore(t), nil, slog.Default(), newTestMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := d.Run(ctx, testRange(t))

	assert.False(t, s.Success)
	assert.Contains(t, s.Error, context.Canceled.Error())
	status, _ := s.PhaseStatus(pipeline.PhaseExtraction)
	assert.Equal(t, pipeline.StatusSkipped, status)
	assert.Zero(t, wx.callCount())
}

func TestSummary_Text(t *testing.T) {
	freezeClock(t)
	d := pipeline.NewDriver(
		&mockExtractor{batch: weatherBatch()},
		&mockExtractor{batch: collisionBatch()},
		newTestStore(t), nil, slog.Default(), newTestMetrics())

	text := d.Run(context.Background(), testRange(t)).Text()

	assert.Contains(t, text, "run 20240131_060000.000")
	assert.Contains(t, text, "status: SUCCESS")
	assert.Contains(t, text, "range: 2024-01-01 to 2024-01-02 (2 days)")
	assert.Contains(t, text, "by region: BROOKLYN=1 MANHATTAN=1 QUEENS=1")
	assert.Contains(t, text, "injured: 6  killed: 1")
	assert.Contains(t, text, "weather_master.csv")
}
