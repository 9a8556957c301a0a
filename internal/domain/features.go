package domain

import "time"

// rushHours are the local hours counted as commuter rush.
var rushHours = map[int]bool{7: true, 8: true, 9: true, 16: true, 17: true, 18: true, 19: true}

// TimeFeatures are calendar features derived purely from a record's timestamp.
type TimeFeatures struct {
	Hour       Optional[int]    `csv:"hour" json:"hour"`
	DayOfWeek  Optional[string] `csv:"day_of_week" json:"day_of_week"`
	Month      Optional[int]    `csv:"month" json:"month"`
	Season     Optional[Season] `csv:"season" json:"season"`
	IsWeekend  Optional[bool]   `csv:"is_weekend" json:"is_weekend"`
	IsRushHour Optional[bool]   `csv:"is_rush_hour" json:"is_rush_hour"`
	IsNight    Optional[bool]   `csv:"is_night" json:"is_night"`
}

// deriveTimeFeatures computes calendar features in America/New_York.
func deriveTimeFeatures(t time.Time) TimeFeatures {
	local := t.In(NYC)
	hour := local.Hour()
	weekday := local.Weekday()
	return TimeFeatures{
		Hour:       Some(hour),
		DayOfWeek:  Some(weekday.String()),
		Month:      Some(int(local.Month())),
		Season:     Some(seasonOf(local.Month())),
		IsWeekend:  Some(weekday == time.Saturday || weekday == time.Sunday),
		IsRushHour: Some(rushHours[hour]),
		IsNight:    Some(hour >= 20 || hour < 6),
	}
}

func seasonOf(m time.Month) Season {
	switch m {
	case time.December, time.January, time.February:
		return Winter
	case time.March, time.April, time.May:
		return Spring
	case time.June, time.July, time.August:
		return Summer
	default:
		return Fall
	}
}
