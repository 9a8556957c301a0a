package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the YYYY-MM-DD form used for ranges, flags, and file names.
const DateLayout = "2006-01-02"

// FallbackRange is the fixed historical window used when extraction for the
// requested range fails.
var FallbackRange = DateRange{
	Start: time.Date(2024, time.January, 1, 0, 0, 0, 0, NYC),
	End:   time.Date(2024, time.January, 30, 0, 0, 0, 0, NYC),
}

// DateRange is an inclusive range of calendar days in America/New_York.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two YYYY-MM-DD strings into an inclusive range.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.ParseInLocation(DateLayout, start, NYC)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse start date %q: %w", start, err)
	}
	e, err := time.ParseInLocation(DateLayout, end, NYC)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse end date %q: %w", end, err)
	}
	if e.Before(s) {
		return DateRange{}, errors.New("end date is before start date")
	}
	return DateRange{Start: s, End: e}, nil
}

// DefaultRange returns the days-long window ending yesterday, the most recent
// complete day in New York.
func DefaultRange(now time.Time, days int) DateRange {
	if days < 1 {
		days = 1
	}
	local := now.In(NYC)
	end := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, NYC).AddDate(0, 0, -1)
	return DateRange{Start: end.AddDate(0, 0, -(days - 1)), End: end}
}

// Days returns the number of calendar days in the range, inclusive.
func (r DateRange) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	s := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours()/24) + 1
}

// StartDate returns the start formatted as YYYY-MM-DD.
func (r DateRange) StartDate() string { return r.Start.Format(DateLayout) }

// EndDate returns the end formatted as YYYY-MM-DD.
func (r DateRange) EndDate() string { return r.End.Format(DateLayout) }

func (r DateRange) String() string {
	return r.StartDate() + " to " + r.EndDate()
}

// Equal reports whether both ranges cover the same days.
func (r DateRange) Equal(o DateRange) bool {
	return r.StartDate() == o.StartDate() && r.EndDate() == o.EndDate()
}

// MarshalJSON renders the range as its YYYY-MM-DD bounds and day count.
func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Days  int    `json:"days"`
	}{r.StartDate(), r.EndDate(), r.Days()})
}
