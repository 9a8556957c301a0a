package warehouse

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testBatch(t *testing.T, runID, injured string) domain.RunBatch {
	t.Helper()
	weather, _ := domain.NormalizeWeather(domain.RawBatch{Rows: []domain.RawRow{
		{"region": "MANHATTAN", "timestamp": "2024-01-15T08:00", "snowfall": "6"},
		{"region": "BRONX", "timestamp": "2024-01-15T08:00"},
	}})
	collisions, _ := domain.NormalizeCollisions(domain.RawBatch{Rows: []domain.RawRow{
		{"collision_id": "1", "crash_date": "2024-01-15", "crash_time": "9:15", "borough": "QUEENS", "number_of_persons_injured": injured},
		{"collision_id": "2", "crash_date": "2024-01-15", "borough": ""},
	}})
	r, err := domain.ParseDateRange("2024-01-15", "2024-01-15")
	require.NoError(t, err)
	return domain.RunBatch{RunID: runID, Range: r, Weather: weather, Collisions: collisions}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestLoad_InsertsAndCounts(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 1, 16, 6, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.Load(ctx, testBatch(t, "20240116_060000", "1")))

	weather, collisions, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, weather)
	assert.Equal(t, 2, collisions)

	var category, severity string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT weather_category, weather_severity FROM weather WHERE region = 'MANHATTAN'`).Scan(&category, &severity))
	assert.Equal(t, "SNOW", category)
	assert.Equal(t, "HEAVY", severity)

	var loadedAt string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT loaded_at FROM runs WHERE run_id = ?`, "20240116_060000").Scan(&loadedAt))
	assert.Equal(t, "2024-01-16T06:00:00Z", loadedAt)
}

func TestLoad_UpsertsOnNaturalKey(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.Load(ctx, testBatch(t, "run-1", "1")))
	require.NoError(t, s.Load(ctx, testBatch(t, "run-2", "4")))

	weather, collisions, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, weather)
	assert.Equal(t, 2, collisions)

	var injured int
	var level string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT persons_injured, severity_level FROM collisions WHERE collision_id = '1'`).Scan(&injured, &level))
	assert.Equal(t, 4, injured)
	assert.Equal(t, "SEVERE", level)
}

func TestLoad_AbsentFieldsAreNull(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.Load(ctx, testBatch(t, "run-1", "0")))

	var lat sql.NullFloat64
	var region string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT latitude, region FROM collisions WHERE collision_id = '2'`).Scan(&lat, &region))
	assert.False(t, lat.Valid)
	assert.Equal(t, "UNKNOWN", region)
}

func TestLoad_EmptyBatch(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	r, err := domain.ParseDateRange("2024-01-15", "2024-01-15")
	require.NoError(t, err)
	require.NoError(t, s.Load(ctx, domain.RunBatch{RunID: "empty", Range: r}))

	weather, collisions, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, weather)
	assert.Zero(t, collisions)
}

func TestCheckReadiness(t *testing.T) {
	s := openTest(t)
	assert.NoError(t, s.CheckReadiness(context.Background()))
	assert.Equal(t, "warehouse", s.Name())
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(domain.Absent[int]()))
	assert.Equal(t, 3, nullable(domain.Some(3)))
	assert.Equal(t, "FATAL", nullable(domain.Some(domain.SeverityFatal)))
	assert.Equal(t, true, nullable(domain.Some(true)))
}
