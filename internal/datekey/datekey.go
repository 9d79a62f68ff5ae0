// Package datekey converts instants to calendar-day keys and back.
//
// Keys use the canonical YYYY-MM-DD form in the local time zone, so they sort
// lexicographically in chronological order.
package datekey

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical date key layout.
const Layout = "2006-01-02"

// legacyLayouts are the non-canonical forms upstream reports have used for dates.
var legacyLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2006/01/02",
	"2006/1/2",
	"2006.01.02",
	"2006.1.2",
	"2006-1-2",
}

// FromTime returns the date key of t in the local time zone.
func FromTime(t time.Time) string {
	return t.In(time.Local).Format(Layout)
}

// Parse returns local midnight of the day identified by a canonical key.
func Parse(key string) (time.Time, error) {
	parsed, err := time.ParseInLocation(Layout, key, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date key %q: %w", key, err)
	}
	return parsed, nil
}

// IsCanonical reports whether raw is already a canonical key.
func IsCanonical(raw string) bool {
	normalized, ok := Normalize(raw)
	return ok && normalized == raw
}

// Normalize converts a date string in any supported format into the canonical key.
// It returns false when raw matches no known format.
func Normalize(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false
	}

	if parsed, err := time.ParseInLocation(Layout, text, time.Local); err == nil {
		return parsed.Format(Layout), true
	}

	for _, layout := range legacyLayouts {
		if parsed, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return parsed.Format(Layout), true
		}
	}

	return "", false
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	local := t.In(time.Local)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local)
}

// DaysAgo returns the key of the day that is days calendar days before now.
func DaysAgo(now time.Time, days int) string {
	return FromTime(StartOfDay(now).AddDate(0, 0, -days))
}
