package domain

import "fmt"

// WeatherCategory is the mutually exclusive classification of observed
// conditions for one hour.
type WeatherCategory string

const (
	CategorySnow  WeatherCategory = "SNOW"
	CategoryRain  WeatherCategory = "RAIN"
	CategoryFog   WeatherCategory = "FOG"
	CategoryWind  WeatherCategory = "WIND"
	CategoryClear WeatherCategory = "CLEAR"
)

// WeatherSeverity grades how strongly the category applies.
type WeatherSeverity string

const (
	WeatherLight    WeatherSeverity = "LIGHT"
	WeatherModerate WeatherSeverity = "MODERATE"
	WeatherSevere   WeatherSeverity = "SEVERE"
	WeatherHeavy    WeatherSeverity = "HEAVY"
)

// SeverityLevel is the ordinal human impact of a collision.
type SeverityLevel string

const (
	SeverityNone     SeverityLevel = "NONE"
	SeverityMinor    SeverityLevel = "MINOR"
	SeverityModerate SeverityLevel = "MODERATE"
	SeveritySevere   SeverityLevel = "SEVERE"
	SeverityFatal    SeverityLevel = "FATAL"
)

// SeverityLevels lists collision severities from least to most severe.
var SeverityLevels = []SeverityLevel{SeverityNone, SeverityMinor, SeverityModerate, SeveritySevere, SeverityFatal}

// Season is the meteorological season of a timestamp.
type Season string

const (
	Winter Season = "WINTER"
	Spring Season = "SPRING"
	Summer Season = "SUMMER"
	Fall   Season = "FALL"
)

func (c WeatherCategory) String() string { return string(c) }
func (s WeatherSeverity) String() string { return string(s) }
func (s SeverityLevel) String() string   { return string(s) }
func (s Season) String() string          { return string(s) }

func (c *WeatherCategory) UnmarshalText(b []byte) error {
	return parseEnum(b, c, CategorySnow, CategoryRain, CategoryFog, CategoryWind, CategoryClear)
}

func (s *WeatherSeverity) UnmarshalText(b []byte) error {
	return parseEnum(b, s, WeatherLight, WeatherModerate, WeatherSevere, WeatherHeavy)
}

func (s *SeverityLevel) UnmarshalText(b []byte) error {
	return parseEnum(b, s, SeverityLevels...)
}

func (s *Season) UnmarshalText(b []byte) error {
	return parseEnum(b, s, Winter, Spring, Summer, Fall)
}

// Rank orders severity levels; NONE is 0 and FATAL is 4.
func (s SeverityLevel) Rank() int {
	for i, l := range SeverityLevels {
		if l == s {
			return i
		}
	}
	return -1
}

func parseEnum[E ~string](b []byte, dst *E, allowed ...E) error {
	v := E(b)
	for _, a := range allowed {
		if v == a {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("unknown %T value %q", v, string(b))
}
