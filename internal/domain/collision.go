package domain

import (
	"strings"
	"time"
)

// InjuryCounts are the eight per-role injury and fatality counts reported for
// a collision.
type InjuryCounts struct {
	PersonsInjured     int `csv:"persons_injured" json:"persons_injured"`
	PersonsKilled      int `csv:"persons_killed" json:"persons_killed"`
	PedestriansInjured int `csv:"pedestrians_injured" json:"pedestrians_injured"`
	PedestriansKilled  int `csv:"pedestrians_killed" json:"pedestrians_killed"`
	CyclistsInjured    int `csv:"cyclists_injured" json:"cyclists_injured"`
	CyclistsKilled     int `csv:"cyclists_killed" json:"cyclists_killed"`
	MotoristsInjured   int `csv:"motorists_injured" json:"motorists_injured"`
	MotoristsKilled    int `csv:"motorists_killed" json:"motorists_killed"`
}

// Total sums all eight counts.
func (c InjuryCounts) Total() int {
	return c.PersonsInjured + c.PersonsKilled +
		c.PedestriansInjured + c.PedestriansKilled +
		c.CyclistsInjured + c.CyclistsKilled +
		c.MotoristsInjured + c.MotoristsKilled
}

// CollisionRecord is one reported crash.
type CollisionRecord struct {
	CollisionID   string    `csv:"collision_id" json:"collision_id"`
	CrashDatetime time.Time `csv:"crash_datetime" json:"crash_datetime"`
	Region        Region    `csv:"region" json:"region"`
	InjuryCounts

	Latitude           Optional[float64] `csv:"latitude" json:"latitude"`
	Longitude          Optional[float64] `csv:"longitude" json:"longitude"`
	OnStreetName       string            `csv:"on_street_name" json:"on_street_name,omitempty"`
	ContributingFactor string            `csv:"contributing_factor_vehicle_1" json:"contributing_factor_vehicle_1,omitempty"`
	VehicleType        string            `csv:"vehicle_type_code1" json:"vehicle_type_code1,omitempty"`

	TotalInvolved Optional[int]           `csv:"total_involved" json:"total_involved"`
	SeverityLevel Optional[SeverityLevel] `csv:"severity_level" json:"severity_level"`
	HasInjuries   Optional[bool]          `csv:"has_injuries" json:"has_injuries"`
	HasFatalities Optional[bool]          `csv:"has_fatalities" json:"has_fatalities"`
	TimeFeatures
}

// Key returns the natural key, the upstream collision_id.
func (r CollisionRecord) Key() string { return r.CollisionID }

// When returns the primary timestamp used for ordering.
func (r CollisionRecord) When() time.Time { return r.CrashDatetime }

// NormalizeCollisions converts a raw collision batch into canonical records.
// Rows without an ID, without a parseable crash date, or with a borough that
// is neither a known region nor blank are dropped and counted. Within the
// batch the first occurrence of a collision_id is kept.
func NormalizeCollisions(batch RawBatch) ([]CollisionRecord, NormalizeReport) {
	report := newReport(batch.Len())
	if batch.Len() == 0 {
		return []CollisionRecord{}, report
	}

	out := make([]CollisionRecord, 0, batch.Len())
	seen := make(map[string]struct{}, batch.Len())

	for _, raw := range batch.Rows {
		row := canonicalRow(raw, collisionAliases)

		id := strings.TrimSpace(row["collision_id"])
		if id == "" {
			report.drop(DropMissingID)
			continue
		}
		crashAt, ok := parseCrashDatetime(row["crash_date"], row["crash_time"])
		if !ok {
			report.drop(DropBadTimestamp)
			continue
		}
		region, ok := ParseRegion(row["region"], true)
		if !ok {
			report.drop(DropBadRegion)
			continue
		}
		if _, dup := seen[id]; dup {
			report.drop(DropDuplicate)
			continue
		}
		seen[id] = struct{}{}

		counts := InjuryCounts{
			PersonsInjured:     parseCountOrZero(row["persons_injured"]),
			PersonsKilled:      parseCountOrZero(row["persons_killed"]),
			PedestriansInjured: parseCountOrZero(row["pedestrians_injured"]),
			PedestriansKilled:  parseCountOrZero(row["pedestrians_killed"]),
			CyclistsInjured:    parseCountOrZero(row["cyclists_injured"]),
			CyclistsKilled:     parseCountOrZero(row["cyclists_killed"]),
			MotoristsInjured:   parseCountOrZero(row["motorists_injured"]),
			MotoristsKilled:    parseCountOrZero(row["motorists_killed"]),
		}
		total := counts.Total()

		out = append(out, CollisionRecord{
			CollisionID:        id,
			CrashDatetime:      crashAt,
			Region:             region,
			InjuryCounts:       counts,
			Latitude:           parseOptionalFloat(row["latitude"]),
			Longitude:          parseOptionalFloat(row["longitude"]),
			OnStreetName:       strings.TrimSpace(row["on_street_name"]),
			ContributingFactor: strings.TrimSpace(row["contributing_factor_vehicle_1"]),
			VehicleType:        strings.TrimSpace(row["vehicle_type_code1"]),
			TotalInvolved:      Some(total),
			SeverityLevel:      Some(deriveSeverityLevel(counts, total)),
			HasInjuries:        Some(counts.PersonsInjured > 0),
			HasFatalities:      Some(counts.PersonsKilled > 0),
			TimeFeatures:       deriveTimeFeatures(crashAt),
		})
	}

	report.Output = len(out)
	return out, report
}

// deriveSeverityLevel checks fatalities first, then injury thresholds, then
// whether anyone was involved at all:
//   - any person killed: FATAL
//   - 3 or more injured: SEVERE
//   - 1 or 2 injured: MODERATE
//   - any count non-zero: MINOR
func deriveSeverityLevel(c InjuryCounts, total int) SeverityLevel {
	switch {
	case c.PersonsKilled > 0:
		return SeverityFatal
	case c.PersonsInjured >= 3:
		return SeveritySevere
	case c.PersonsInjured > 0:
		return SeverityModerate
	case total > 0:
		return SeverityMinor
	default:
		return SeverityNone
	}
}
