package domain

import "time"

// defaultVisibility is assumed when the upstream batch has no visibility column.
const defaultVisibility = 10000.0

// WeatherRecord is one hourly observation for one region.
type WeatherRecord struct {
	Region        Region    `csv:"region" json:"region"`
	Timestamp     time.Time `csv:"timestamp" json:"timestamp"`
	Temperature   float64   `csv:"temperature_2m" json:"temperature_2m"`
	Precipitation float64   `csv:"precipitation" json:"precipitation"`
	Rain          float64   `csv:"rain" json:"rain"`
	Showers       float64   `csv:"showers" json:"showers"`
	Snowfall      float64   `csv:"snowfall" json:"snowfall"`
	Visibility    float64   `csv:"visibility" json:"visibility"`
	WindSpeed     float64   `csv:"wind_speed_10m" json:"wind_speed_10m"`

	Category Optional[WeatherCategory] `csv:"weather_category" json:"weather_category"`
	Severity Optional[WeatherSeverity] `csv:"weather_severity" json:"weather_severity"`
	TimeFeatures
}

// Key returns the natural key (region, timestamp). The timestamp is rendered in
// UTC so the same instant parsed with different offsets maps to one key.
func (r WeatherRecord) Key() string {
	return string(r.Region) + "|" + r.Timestamp.UTC().Format(time.RFC3339)
}

// When returns the primary timestamp used for ordering.
func (r WeatherRecord) When() time.Time { return r.Timestamp }

// weatherReading carries the inputs to the ordered category and severity rules.
type weatherReading struct {
	snowfall   float64
	rainTotal  float64
	visibility float64
	wind       float64
}

// NormalizeWeather converts a raw weather batch into canonical records. Rows
// without a parseable timestamp or a known region are dropped and counted.
// Within the batch the first occurrence of a (region, timestamp) key is kept.
func NormalizeWeather(batch RawBatch) ([]WeatherRecord, NormalizeReport) {
	report := newReport(batch.Len())
	if batch.Len() == 0 {
		return []WeatherRecord{}, report
	}

	out := make([]WeatherRecord, 0, batch.Len())
	seen := make(map[string]struct{}, batch.Len())

	for _, raw := range batch.Rows {
		row := canonicalRow(raw, weatherAliases)

		ts, ok := parseWeatherTimestamp(row["timestamp"])
		if !ok {
			report.drop(DropBadTimestamp)
			continue
		}
		region, ok := ParseRegion(row["region"], false)
		if !ok {
			report.drop(DropBadRegion)
			continue
		}

		rec := WeatherRecord{
			Region:        region,
			Timestamp:     ts,
			Temperature:   roundTo(parseFloatOrZero(row["temperature_2m"]), 2),
			Precipitation: parseFloatOrZero(row["precipitation"]),
			Rain:          parseFloatOrZero(row["rain"]),
			Showers:       parseFloatOrZero(row["showers"]),
			Snowfall:      parseFloatOrZero(row["snowfall"]),
			Visibility:    roundToHundred(parseFloatOrZero(row["visibility"])),
			WindSpeed:     roundTo(parseFloatOrZero(row["wind_speed_10m"]), 2),
		}

		reading := weatherReading{
			snowfall:   rec.Snowfall,
			rainTotal:  rec.Rain + rec.Showers + rec.Precipitation,
			visibility: rec.Visibility,
			wind:       rec.WindSpeed,
		}
		if !row.has("visibility") {
			reading.visibility = defaultVisibility
		}

		rec.Category = Some(categorizeWeather(reading))
		rec.Severity = Some(assessWeatherSeverity(reading))
		rec.TimeFeatures = deriveTimeFeatures(ts)

		key := rec.Key()
		if _, dup := seen[key]; dup {
			report.drop(DropDuplicate)
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}

	report.Output = len(out)
	return out, report
}

// categorizeWeather applies the category rules in priority order:
// snow, then rain, then fog, then wind, defaulting to clear.
func categorizeWeather(w weatherReading) WeatherCategory {
	switch {
	case w.snowfall > 0:
		return CategorySnow
	case w.rainTotal > 0:
		return CategoryRain
	case w.visibility < 5000:
		return CategoryFog
	case w.wind > 30:
		return CategoryWind
	default:
		return CategoryClear
	}
}

// assessWeatherSeverity grades conditions, checking snow, rain, visibility,
// and wind in that order:
//   - snowfall > 5 cm: HEAVY
//   - rain total > 10 mm: HEAVY, > 5 mm: MODERATE
//   - visibility < 1000 m: SEVERE, < 3000 m: MODERATE
//   - wind > 50 km/h: SEVERE, > 30 km/h: MODERATE
func assessWeatherSeverity(w weatherReading) WeatherSeverity {
	switch {
	case w.snowfall > 5:
		return WeatherHeavy
	case w.rainTotal > 10:
		return WeatherHeavy
	case w.rainTotal > 5:
		return WeatherModerate
	case w.visibility < 1000:
		return WeatherSevere
	case w.visibility < 3000:
		return WeatherModerate
	case w.wind > 50:
		return WeatherSevere
	case w.wind > 30:
		return WeatherModerate
	default:
		return WeatherLight
	}
}
