package helpers

import (
	"time"
)

const DateLayout = "2006-01-02"

// GetDayWindowInLocUTC parses date (YYYY-MM-DD) as a calendar day in loc and
// returns its bounds in UTC, [from, to).
func GetDayWindowInLocUTC(date string, loc *time.Location) (from, to time.Time, err error) {
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}
