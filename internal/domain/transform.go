package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// weatherTimeLayouts are tried in order for zone-less weather timestamps,
// which are interpreted in America/New_York.
var weatherTimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseFloatOrZero parses a string as float64, returning 0 on failure or for
// non-finite values.
func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// parseCountOrZero parses a non-negative count. Socrata sometimes serializes
// counts as "1.0"; those are truncated. Negative or unparsable values become 0.
func parseCountOrZero(s string) int {
	v := parseFloatOrZero(s)
	if v <= 0 {
		return 0
	}
	return int(v)
}

// parseOptionalFloat returns Absent for blank or unparsable input.
func parseOptionalFloat(s string) Optional[float64] {
	s = strings.TrimSpace(s)
	if s == "" {
		return Absent[float64]()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Absent[float64]()
	}
	return Some(v)
}

// parseWeatherTimestamp parses the combined weather time field. Values with an
// explicit offset are converted to America/New_York.
func parseWeatherTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(NYC), true
	}
	for _, layout := range weatherTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, NYC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseCrashDatetime combines a crash_date (anything after "T" is ignored) and
// an optional crash_time into a New York local time. Blank time means midnight.
func parseCrashDatetime(date, clockStr string) (time.Time, bool) {
	date, _, _ = strings.Cut(strings.TrimSpace(date), "T")
	if date == "" {
		return time.Time{}, false
	}

	hhmm, ok := padClock(clockStr)
	if !ok {
		return time.Time{}, false
	}

	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+hhmm, NYC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// padClock normalizes "H:MM", "HH:MM", and "HH:MM:SS" to "HH:MM". A one-digit
// hour must be zero-padded or the layout parse rejects it.
func padClock(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "00:00", true
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return "", false
	}
	if len(parts[0]) == 1 {
		parts[0] = "0" + parts[0]
	}

	hour, errH := strconv.Atoi(parts[0])
	mins, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || len(parts[0]) != 2 || len(parts[1]) != 2 ||
		hour < 0 || hour > 23 || mins < 0 || mins > 59 {
		return "", false
	}
	return parts[0] + ":" + parts[1], true
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// roundToHundred rounds to the nearest 100, ties to even.
func roundToHundred(v float64) float64 {
	return math.RoundToEven(v/100) * 100
}
