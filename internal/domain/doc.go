// Package domain models the two datasets the pipeline accumulates: hourly
// weather observations and NYPD motor vehicle collision reports for the five
// New York City boroughs.
//
// # Data Sources
//
// Weather rows come from the Open-Meteo historical archive API, one request per
// borough, using a representative coordinate for each borough (see [Region]).
// Collision rows come from the NYC Open Data "Motor Vehicle Collisions - Crashes"
// dataset (Socrata resource h9gi-nx95). Both arrive as loosely typed rows of
// strings ([RawBatch]); nothing about their column names is trusted.
//
// # Column Conventions
//
// Column names are normalized before lookup:
//
//	"Number Of Persons Injured "  →  "number_of_persons_injured"  →  "persons_injured"
//
// Lower-case, trim, spaces to underscores, then the alias table renames known
// historical spellings to the canonical name. The Socrata dataset has shipped
// both the long "number_of_*" form and the short form over the years.
//
// Time format:
//
//	Weather: a single combined field, "2024-01-15T08:00" in America/New_York
//	(Open-Meteo with timezone=America/New_York), or full RFC 3339.
//	Collisions: crash_date "2024-01-15T00:00:00.000" (only the date part is used)
//	plus crash_time "H:MM" or "HH:MM". One-digit hours are zero-padded:
//	"9:15" → "09:15". Rows whose date cannot be parsed are dropped.
//
// Unknown values:
//
//	Empty or unparsable numeric cells are treated as zero. Losing a secondary
//	measurement is preferable to losing the whole row.
//
// # Derived Features
//
// Categorical features are assigned by ordered rules; the first rule that
// matches wins.
//
//	Weather category: SNOW (snowfall > 0) → RAIN (rain+showers+precipitation > 0)
//	                  → FOG (visibility < 5000 m) → WIND (wind > 30 km/h) → CLEAR
//	Weather severity: HEAVY | MODERATE | SEVERE | LIGHT, see [assessWeatherSeverity]
//	Collision severity: FATAL (killed > 0) → SEVERE (injured ≥ 3)
//	                  → MODERATE (injured > 0) → MINOR (anyone involved) → NONE
//
// Time features (season, weekday, rush hour, night) are computed in
// America/New_York regardless of the zone the timestamp was parsed in.
//
// # Natural Keys
//
// Weather rows are identified by (region, timestamp); collisions by the
// upstream collision_id. Keys drive deduplication both inside one batch
// (first occurrence wins) and across runs in the accumulate package (latest
// ingestion wins).
package domain
