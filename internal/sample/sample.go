// Package sample generates deterministic synthetic upstream batches so the
// pipeline can be exercised end to end without network access. Rows use the
// same column names and formats as the live APIs, so they pass through the
// normalizer unchanged.
package sample

import (
	"context"
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
)

// Source labels generated batches.
const Source = "sample"

const (
	meanCollisionsPerDay = 120
	unknownBoroughShare  = 0.1
)

var (
	factors  = []string{"Driver Inattention/Distraction", "Failure to Yield Right-of-Way", "Following Too Closely", "Unsafe Speed", "Unspecified"}
	vehicles = []string{"Sedan", "Station Wagon/Sport Utility Vehicle", "Taxi", "Bike", "Box Truck", "Bus"}
	streets  = []string{"BROADWAY", "ATLANTIC AVENUE", "QUEENS BOULEVARD", "GRAND CONCOURSE", "HYLAN BOULEVARD", "FLATBUSH AVENUE"}
)

// Weather generates hourly observations for every region.
type Weather struct {
	Seed uint64
}

// Extract returns one row per region per hour of r, stepping in real hours so
// days that change clocks have 23 or 25 rows. The same seed and day always
// produce the same rows, whatever range they are requested in.
func (w Weather) Extract(ctx context.Context, r domain.DateRange) (domain.RawBatch, error) {
	batch := domain.RawBatch{Source: Source}
	for day := range days(r) {
		if err := ctx.Err(); err != nil {
			return domain.RawBatch{}, err
		}
		for i, region := range domain.Regions {
			rng := rand.New(rand.NewPCG(w.Seed, dayKey(day)*16+uint64(i)))
			next := day.AddDate(0, 0, 1)
			for ts := day; ts.Before(next); ts = ts.Add(time.Hour) {
				batch.Rows = append(batch.Rows, weatherRow(rng, region, ts))
			}
		}
	}
	return batch, nil
}

func weatherRow(rng *rand.Rand, region domain.Region, ts time.Time) domain.RawRow {
	temp := seasonalMean(ts.Month()) + 5*rng.NormFloat64()
	var precip, snow float64
	if rng.Float64() < 0.15 {
		precip = rng.ExpFloat64() * 1.5
		if temp < 0 {
			snow, precip = precip*0.7, 0
		}
	}
	visibility := 10000.0
	if rng.Float64() < 0.04 {
		visibility = 300 + rng.Float64()*4500
	}
	wind := rng.ExpFloat64() * 12

	return domain.RawRow{
		"timestamp":      ts.Format(time.RFC3339),
		"region":         string(region),
		"temperature_2m": formatFloat(temp),
		"precipitation":  formatFloat(precip),
		"rain":           formatFloat(precip * 0.8),
		"showers":        "0",
		"snowfall":       formatFloat(snow),
		"visibility":     formatFloat(visibility),
		"wind_speed_10m": formatFloat(wind),
	}
}

// seasonalMean is a rough NYC monthly mean temperature in °C.
func seasonalMean(m time.Month) float64 {
	return 12.5 - 11*math.Cos(2*math.Pi*(float64(m)-1)/12)
}

// Collisions generates reported crashes across the boroughs.
type Collisions struct {
	Seed uint64
}

// Extract returns roughly meanCollisionsPerDay rows per day of r. IDs are
// derived from the day and sequence so reruns supersede instead of adding.
func (c Collisions) Extract(ctx context.Context, r domain.DateRange) (domain.RawBatch, error) {
	batch := domain.RawBatch{Source: Source}
	for day := range days(r) {
		if err := ctx.Err(); err != nil {
			return domain.RawBatch{}, err
		}
		rng := rand.New(rand.NewPCG(c.Seed, dayKey(day)))
		n := max(0, int(math.Round(meanCollisionsPerDay+math.Sqrt(meanCollisionsPerDay)*rng.NormFloat64())))
		for i := range n {
			batch.Rows = append(batch.Rows, collisionRow(rng, day, i))
		}
	}
	return batch, nil
}

func collisionRow(rng *rand.Rand, day time.Time, seq int) domain.RawRow {
	borough := ""
	if rng.Float64() >= unknownBoroughShare {
		borough = string(domain.Regions[rng.IntN(len(domain.Regions))])
	}

	injured, killed := 0, 0
	switch p := rng.Float64(); {
	case p < 0.003:
		killed = 1
		injured = rng.IntN(3)
	case p < 0.05:
		injured = 3 + rng.IntN(3)
	case p < 0.35:
		injured = 1 + rng.IntN(2)
	}
	pedestrians := 0
	if injured > 0 && rng.Float64() < 0.2 {
		pedestrians = 1
	}

	return domain.RawRow{
		"collision_id":                  fmt.Sprintf("S%s%04d", day.Format("20060102"), seq),
		"crash_date":                    day.Format("2006-01-02") + "T00:00:00.000",
		"crash_time":                    fmt.Sprintf("%d:%02d", rng.IntN(24), rng.IntN(60)),
		"borough":                       borough,
		"latitude":                      formatFloat(40.5 + rng.Float64()*0.4),
		"longitude":                     formatFloat(-74.3 + rng.Float64()*0.6),
		"on_street_name":                streets[rng.IntN(len(streets))],
		"number_of_persons_injured":     strconv.Itoa(injured),
		"number_of_persons_killed":      strconv.Itoa(killed),
		"number_of_pedestrians_injured": strconv.Itoa(pedestrians),
		"number_of_pedestrians_killed":  "0",
		"number_of_cyclist_injured":     "0",
		"number_of_cyclist_killed":      "0",
		"number_of_motorist_injured":    strconv.Itoa(injured - pedestrians),
		"number_of_motorist_killed":     strconv.Itoa(killed),
		"contributing_factor_vehicle_1": factors[rng.IntN(len(factors))],
		"vehicle_type_code1":            vehicles[rng.IntN(len(vehicles))],
	}
}

// days yields each calendar day of r at midnight New York time.
func days(r domain.DateRange) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for i := range r.Days() {
			if !yield(r.Start.AddDate(0, 0, i)) {
				return
			}
		}
	}
}

func dayKey(day time.Time) uint64 {
	return uint64(day.Year())*10000 + uint64(day.Month())*100 + uint64(day.Day())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
