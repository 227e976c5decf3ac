package timeutil

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// DisplayLayout renders instants the way chat replies show them ("Mar 5, 2025, 3:00:00 PM").
const DisplayLayout = "Jan 2, 2006, 3:04:05 PM"

// DisplayDateLayout renders all-day dates in chat replies ("Mar 5, 2025").
const DisplayDateLayout = "Jan 2, 2006"

var defaultLocation = time.UTC

// ResolveLocation returns the location for timezone with UTC fallback.
// The boolean reports whether the fallback was used.
func ResolveLocation(timezone string) (*time.Location, bool) {
	if timezone == "" {
		return defaultLocation, true
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return defaultLocation, true
	}
	return loc, false
}

// ParseDateTime parses a datetime in either RFC3339 (with explicit offset) or local layouts in the provided timezone.
func ParseDateTime(value, timezone string) (time.Time, bool, error) {
	if value == "" {
		return time.Time{}, false, fmt.Errorf("time value is required")
	}

	// Explicit offsets win over the zone hint.
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, false, nil
		}
	}

	loc, fallback := ResolveLocation(timezone)

	layouts := []string{
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, fallback, nil
		}
	}

	return time.Time{}, fallback, fmt.Errorf("unable to parse time: %s", value)
}

// ParseDate parses a YYYY-MM-DD string as midnight in the provided timezone.
func ParseDate(value, timezone string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("date value is required")
	}
	loc, _ := ResolveLocation(timezone)
	d, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse date: %s", value)
	}
	return d, nil
}

// NextDay returns the YYYY-MM-DD date following value.
func NextDay(value string) (string, error) {
	d, err := time.Parse(dateLayout, value)
	if err != nil {
		return "", fmt.Errorf("unable to parse date: %s", value)
	}
	return d.AddDate(0, 0, 1).Format(dateLayout), nil
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = defaultLocation
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
