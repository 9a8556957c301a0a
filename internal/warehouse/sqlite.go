// Package warehouse mirrors accumulated records into an embedded SQLite
// database for ad-hoc SQL analysis. The CSV masters stay the source of truth;
// the warehouse is rebuilt incrementally by upserting each run's batch on the
// natural keys.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
)

// SQLite is a warehouse backed by modernc.org/sqlite.
type SQLite struct {
	db *sql.DB
}

// Open opens the database at dsn and configures WAL mode.
func Open(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: exec %s: %w", pragma, err)
		}
	}
	return &SQLite{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS weather (
	region           TEXT NOT NULL,
	ts               TEXT NOT NULL,
	temperature_2m   REAL NOT NULL,
	precipitation    REAL NOT NULL,
	rain             REAL NOT NULL,
	showers          REAL NOT NULL,
	snowfall         REAL NOT NULL,
	visibility       REAL NOT NULL,
	wind_speed_10m   REAL NOT NULL,
	weather_category TEXT,
	weather_severity TEXT,
	hour             INTEGER,
	day_of_week      TEXT,
	month            INTEGER,
	season           TEXT,
	is_weekend       INTEGER,
	is_rush_hour     INTEGER,
	is_night         INTEGER,
	PRIMARY KEY (region, ts)
);

CREATE TABLE IF NOT EXISTS collisions (
	collision_id                  TEXT PRIMARY KEY,
	crash_datetime                TEXT NOT NULL,
	region                        TEXT NOT NULL,
	persons_injured               INTEGER NOT NULL,
	persons_killed                INTEGER NOT NULL,
	pedestrians_injured           INTEGER NOT NULL,
	pedestrians_killed            INTEGER NOT NULL,
	cyclists_injured              INTEGER NOT NULL,
	cyclists_killed               INTEGER NOT NULL,
	motorists_injured             INTEGER NOT NULL,
	motorists_killed              INTEGER NOT NULL,
	latitude                      REAL,
	longitude                     REAL,
	on_street_name                TEXT,
	contributing_factor_vehicle_1 TEXT,
	vehicle_type_code1            TEXT,
	total_involved                INTEGER,
	severity_level                TEXT,
	has_injuries                  INTEGER,
	has_fatalities                INTEGER,
	hour                          INTEGER,
	day_of_week                   TEXT,
	month                         INTEGER,
	season                        TEXT,
	is_weekend                    INTEGER,
	is_rush_hour                  INTEGER,
	is_night                      INTEGER
);

CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	start_date  TEXT NOT NULL,
	end_date    TEXT NOT NULL,
	weather     INTEGER NOT NULL,
	collisions  INTEGER NOT NULL,
	loaded_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_weather_ts ON weather(ts);
CREATE INDEX IF NOT EXISTS idx_collisions_crash_datetime ON collisions(crash_datetime);
CREATE INDEX IF NOT EXISTS idx_collisions_region ON collisions(region);
`

// Migrate creates the tables if they do not exist.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migration); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Name identifies the sink in logs and metrics.
func (s *SQLite) Name() string { return "warehouse" }

// Load upserts both datasets of a run and records the run, all in one
// transaction.
func (s *SQLite) Load(ctx context.Context, batch domain.RunBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := upsertWeather(ctx, tx, batch.Weather); err != nil {
		return err
	}
	if err := upsertCollisions(ctx, tx, batch.Collisions); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, start_date, end_date, weather, collisions, loaded_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   weather = excluded.weather, collisions = excluded.collisions, loaded_at = excluded.loaded_at`,
		batch.RunID, batch.Range.StartDate(), batch.Range.EndDate(),
		len(batch.Weather), len(batch.Collisions), domain.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("sqlite: record run %s: %w", batch.RunID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Counts returns the number of rows in the weather and collisions tables.
func (s *SQLite) Counts(ctx context.Context) (weather, collisions int, err error) {
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weather`).Scan(&weather); err != nil {
		return 0, 0, fmt.Errorf("sqlite: count weather: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collisions`).Scan(&collisions); err != nil {
		return 0, 0, fmt.Errorf("sqlite: count collisions: %w", err)
	}
	return weather, collisions, nil
}

// CheckReadiness pings the database.
func (s *SQLite) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
