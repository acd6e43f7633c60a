package render

import (
	"fmt"
	"math"
	"time"
)

// HumanDuration renders d the way people say it: "30 secs", "1 min", "59 mins",
// "1 hour", "3 days". Values are rounded to the nearest unit and never drop below 1.
func HumanDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	const (
		day   = 24 * time.Hour
		week  = 7 * day
		month = 30 * day
		year  = 365 * day
	)

	switch {
	case d < time.Minute:
		return plural(units(d, time.Second), "sec", "secs")
	case d < time.Hour:
		return plural(units(d, time.Minute), "min", "mins")
	case d < day:
		return plural(units(d, time.Hour), "hour", "hours")
	case d < week:
		return plural(units(d, day), "day", "days")
	case d < month:
		return plural(units(d, week), "week", "weeks")
	case d < year:
		return plural(units(d, month), "month", "months")
	default:
		return plural(units(d, year), "year", "years")
	}
}

func units(d, unit time.Duration) int64 {
	n := int64(math.Round(float64(d) / float64(unit)))
	if n < 1 {
		return 1
	}
	return n
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
