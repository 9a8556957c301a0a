package domain

import (
	"slices"
	"strings"
)

// RawRow is one upstream record keyed by its (unnormalized) column name.
type RawRow map[string]string

// RawBatch is an extracted, not yet normalized batch for one domain.
type RawBatch struct {
	Source string
	Rows   []RawRow
}

// Len returns the number of rows in the batch.
func (b RawBatch) Len() int { return len(b.Rows) }

// Columns returns the sorted union of column names across all rows.
func (b RawBatch) Columns() []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, row := range b.Rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	slices.Sort(cols)
	return cols
}

// collisionAliases renames historical Socrata column spellings.
var collisionAliases = map[string]string{
	"number_of_persons_injured":     "persons_injured",
	"number_of_persons_killed":      "persons_killed",
	"number_of_pedestrians_injured": "pedestrians_injured",
	"number_of_pedestrians_killed":  "pedestrians_killed",
	"number_of_cyclist_injured":     "cyclists_injured",
	"number_of_cyclist_killed":      "cyclists_killed",
	"number_of_motorist_injured":    "motorists_injured",
	"number_of_motorist_killed":     "motorists_killed",
	"borough":                       "region",
}

// weatherAliases renames legacy weather column spellings.
var weatherAliases = map[string]string{
	"datetime":    "timestamp",
	"time":        "timestamp",
	"borough":     "region",
	"temperature": "temperature_2m",
	"wind_speed":  "wind_speed_10m",
}

// normalizeColumnName lower-cases, trims, and replaces spaces with underscores.
func normalizeColumnName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// canonicalRow normalizes every column name and applies the alias table. When
// both an alias and its canonical column are present, the canonical one wins.
func canonicalRow(row RawRow, aliases map[string]string) RawRow {
	out := make(RawRow, len(row))
	for k, v := range row {
		name := normalizeColumnName(k)
		if canonical, ok := aliases[name]; ok {
			if _, exists := out[canonical]; !exists {
				out[canonical] = v
			}
			continue
		}
		out[name] = v
	}
	return out
}

func (r RawRow) has(col string) bool {
	_, ok := r[col]
	return ok
}
