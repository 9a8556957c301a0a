package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
)

const upsertWeatherSQL = `
INSERT INTO weather (
	region, ts, temperature_2m, precipitation, rain, showers, snowfall, visibility, wind_speed_10m,
	weather_category, weather_severity, hour, day_of_week, month, season, is_weekend, is_rush_hour, is_night
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(region, ts) DO UPDATE SET
	temperature_2m = excluded.temperature_2m,
	precipitation = excluded.precipitation,
	rain = excluded.rain,
	showers = excluded.showers,
	snowfall = excluded.snowfall,
	visibility = excluded.visibility,
	wind_speed_10m = excluded.wind_speed_10m,
	weather_category = excluded.weather_category,
	weather_severity = excluded.weather_severity,
	hour = excluded.hour,
	day_of_week = excluded.day_of_week,
	month = excluded.month,
	season = excluded.season,
	is_weekend = excluded.is_weekend,
	is_rush_hour = excluded.is_rush_hour,
	is_night = excluded.is_night`

const upsertCollisionSQL = `
INSERT INTO collisions (
	collision_id, crash_datetime, region,
	persons_injured, persons_killed, pedestrians_injured, pedestrians_killed,
	cyclists_injured, cyclists_killed, motorists_injured, motorists_killed,
	latitude, longitude, on_street_name, contributing_factor_vehicle_1, vehicle_type_code1,
	total_involved, severity_level, has_injuries, has_fatalities,
	hour, day_of_week, month, season, is_weekend, is_rush_hour, is_night
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(collision_id) DO UPDATE SET
	crash_datetime = excluded.crash_datetime,
	region = excluded.region,
	persons_injured = excluded.persons_injured,
	persons_killed = excluded.persons_killed,
	pedestrians_injured = excluded.pedestrians_injured,
	pedestrians_killed = excluded.pedestrians_killed,
	cyclists_injured = excluded.cyclists_injured,
	cyclists_killed = excluded.cyclists_killed,
	motorists_injured = excluded.motorists_injured,
	motorists_killed = excluded.motorists_killed,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	on_street_name = excluded.on_street_name,
	contributing_factor_vehicle_1 = excluded.contributing_factor_vehicle_1,
	vehicle_type_code1 = excluded.vehicle_type_code1,
	total_involved = excluded.total_involved,
	severity_level = excluded.severity_level,
	has_injuries = excluded.has_injuries,
	has_fatalities = excluded.has_fatalities,
	hour = excluded.hour,
	day_of_week = excluded.day_of_week,
	month = excluded.month,
	season = excluded.season,
	is_weekend = excluded.is_weekend,
	is_rush_hour = excluded.is_rush_hour,
	is_night = excluded.is_night`

func upsertWeather(ctx context.Context, tx *sql.Tx, recs []domain.WeatherRecord) error {
	if len(recs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, upsertWeatherSQL)
	if err != nil {
		return fmt.Errorf("sqlite: prepare weather upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		args := append([]any{
			string(r.Region), formatTime(r.Timestamp),
			r.Temperature, r.Precipitation, r.Rain, r.Showers, r.Snowfall, r.Visibility, r.WindSpeed,
			nullable(r.Category), nullable(r.Severity),
		}, timeFeatureArgs(r.TimeFeatures)...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("sqlite: upsert weather %s: %w", r.Key(), err)
		}
	}
	return nil
}

func upsertCollisions(ctx context.Context, tx *sql.Tx, recs []domain.CollisionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, upsertCollisionSQL)
	if err != nil {
		return fmt.Errorf("sqlite: prepare collision upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		c := r.InjuryCounts
		args := append([]any{
			r.CollisionID, formatTime(r.CrashDatetime), string(r.Region),
			c.PersonsInjured, c.PersonsKilled, c.PedestriansInjured, c.PedestriansKilled,
			c.CyclistsInjured, c.CyclistsKilled, c.MotoristsInjured, c.MotoristsKilled,
			nullable(r.Latitude), nullable(r.Longitude),
			r.OnStreetName, r.ContributingFactor, r.VehicleType,
			nullable(r.TotalInvolved), nullable(r.SeverityLevel),
			nullable(r.HasInjuries), nullable(r.HasFatalities),
		}, timeFeatureArgs(r.TimeFeatures)...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("sqlite: upsert collision %s: %w", r.CollisionID, err)
		}
	}
	return nil
}

func timeFeatureArgs(f domain.TimeFeatures) []any {
	return []any{
		nullable(f.Hour), nullable(f.DayOfWeek), nullable(f.Month), nullable(f.Season),
		nullable(f.IsWeekend), nullable(f.IsRushHour), nullable(f.IsNight),
	}
}

// formatTime renders timestamps in UTC so string order is chronological.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// nullable maps an absent Optional to SQL NULL. Enum values are stored as
// their text form.
func nullable[T any](o domain.Optional[T]) any {
	v, ok := o.Get()
	if !ok {
		return nil
	}
	switch x := any(v).(type) {
	case domain.WeatherCategory, domain.WeatherSeverity, domain.SeverityLevel, domain.Season:
		return fmt.Sprint(x)
	default:
		return v
	}
}
