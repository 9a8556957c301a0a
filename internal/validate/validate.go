// Package validate checks the integrity of the master datasets: unique keys,
// ascending order, and derived fields that agree with the values they were
// derived from.
package validate

import (
	"fmt"
	"io"
	"time"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
)

// maxErrors caps the errors kept per phase.
const maxErrors = 25

// Phase is one group of checks.
type Phase struct {
	Name    string
	Checked int
	Errors  []string
	dropped int
}

func (p *Phase) errorf(format string, args ...any) {
	if len(p.Errors) >= maxErrors {
		p.dropped++
		return
	}
	p.Errors = append(p.Errors, fmt.Sprintf(format, args...))
}

// Passed reports whether the phase found no problems.
func (p *Phase) Passed() bool { return len(p.Errors) == 0 }

// ErrorCount is the total number of problems, including those not kept.
func (p *Phase) ErrorCount() int { return len(p.Errors) + p.dropped }

// Weather runs all weather master checks.
func Weather(recs []domain.WeatherRecord) []*Phase {
	return []*Phase{
		keysAndOrder("weather: unique keys, ascending time", recs, domain.WeatherRecord.Key, domain.WeatherRecord.When),
		weatherRecords(recs),
		timeFeatures("weather: time features", recs, domain.WeatherRecord.Key,
			domain.WeatherRecord.When, func(r domain.WeatherRecord) domain.TimeFeatures { return r.TimeFeatures }),
	}
}

// Collisions runs all collision master checks.
func Collisions(recs []domain.CollisionRecord) []*Phase {
	return []*Phase{
		keysAndOrder("collisions: unique keys, ascending time", recs, domain.CollisionRecord.Key, domain.CollisionRecord.When),
		collisionRecords(recs),
		timeFeatures("collisions: time features", recs, domain.CollisionRecord.Key,
			domain.CollisionRecord.When, func(r domain.CollisionRecord) domain.TimeFeatures { return r.TimeFeatures }),
	}
}

func keysAndOrder[T any](name string, recs []T, key func(T) string, ts func(T) time.Time) *Phase {
	p := &Phase{Name: name, Checked: len(recs)}
	seen := make(map[string]int, len(recs))
	for i, r := range recs {
		k := key(r)
		if first, dup := seen[k]; dup {
			p.errorf("row %d: key %q duplicates row %d", i+1, k, first+1)
		} else {
			seen[k] = i
		}
		if i > 0 && ts(r).Before(ts(recs[i-1])) {
			p.errorf("row %d: %s is before previous row %s", i+1, ts(r).Format(time.RFC3339), ts(recs[i-1]).Format(time.RFC3339))
		}
	}
	return p
}

func weatherRecords(recs []domain.WeatherRecord) *Phase {
	p := &Phase{Name: "weather: regions and categories", Checked: len(recs)}
	for i, r := range recs {
		if _, ok := r.Region.Center(); !ok {
			p.errorf("row %d: region %q is not a named borough", i+1, r.Region)
		}
		cat, ok := r.Category.Get()
		if !ok {
			continue
		}
		switch rain := r.Rain + r.Showers + r.Precipitation; {
		case r.Snowfall > 0 && cat != domain.CategorySnow:
			p.errorf("row %d (%s): snowfall %.2f but category %s", i+1, r.Key(), r.Snowfall, cat)
		case r.Snowfall == 0 && rain > 0 && cat != domain.CategoryRain:
			p.errorf("row %d (%s): rain total %.2f but category %s", i+1, r.Key(), rain, cat)
		}
	}
	return p
}

func collisionRecords(recs []domain.CollisionRecord) *Phase {
	p := &Phase{Name: "collisions: injury derivations", Checked: len(recs)}
	for i, r := range recs {
		if total, ok := r.TotalInvolved.Get(); ok && total != r.InjuryCounts.Total() {
			p.errorf("row %d (%s): total_involved %d, counts sum to %d", i+1, r.CollisionID, total, r.InjuryCounts.Total())
		}
		if has, ok := r.HasInjuries.Get(); ok && has != (r.PersonsInjured > 0) {
			p.errorf("row %d (%s): has_injuries %t with %d injured", i+1, r.CollisionID, has, r.PersonsInjured)
		}
		if has, ok := r.HasFatalities.Get(); ok && has != (r.PersonsKilled > 0) {
			p.errorf("row %d (%s): has_fatalities %t with %d killed", i+1, r.CollisionID, has, r.PersonsKilled)
		}
		if level, ok := r.SeverityLevel.Get(); ok && (level == domain.SeverityFatal) != (r.PersonsKilled > 0) {
			p.errorf("row %d (%s): severity %s with %d killed", i+1, r.CollisionID, level, r.PersonsKilled)
		}
	}
	return p
}

func timeFeatures[T any](name string, recs []T, key func(T) string, ts func(T) time.Time, features func(T) domain.TimeFeatures) *Phase {
	p := &Phase{Name: name, Checked: len(recs)}
	for i, r := range recs {
		local := ts(r).In(domain.NYC)
		f := features(r)
		if h, ok := f.Hour.Get(); ok && h != local.Hour() {
			p.errorf("row %d (%s): hour %d, timestamp says %d", i+1, key(r), h, local.Hour())
		}
		if m, ok := f.Month.Get(); ok && m != int(local.Month()) {
			p.errorf("row %d (%s): month %d, timestamp says %d", i+1, key(r), m, local.Month())
		}
		if d, ok := f.DayOfWeek.Get(); ok && d != local.Weekday().String() {
			p.errorf("row %d (%s): day_of_week %s, timestamp says %s", i+1, key(r), d, local.Weekday())
		}
	}
	return p
}

// Report prints a pass/fail line per phase followed by the details of every
// failed phase. It returns true when all phases passed.
func Report(w io.Writer, phases []*Phase) bool {
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.Passed() {
			status = fmt.Sprintf("FAIL (%d errors)", p.ErrorCount())
			allPassed = false
		}
		fmt.Fprintf(w, "  %-44s %6d rows  %s\n", p.Name, p.Checked, status)
	}

	for _, p := range phases {
		if p.Passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.Name)
		for i, e := range p.Errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
		if p.dropped > 0 {
			fmt.Fprintf(w, "  ... and %d more\n", p.dropped)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
	} else {
		fmt.Fprintln(w, "\nValidation FAILED.")
	}
	return allPassed
}
