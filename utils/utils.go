package utils

import (
	"errors"
	"time"
)

// ErrBadDateTime is returned when an input matches none of the
// accepted date-time layouts.
var ErrBadDateTime = errors.New("unrecognized date-time format")

// dateTimeLayouts are the input formats accepted by the creation
// wizard. A bare date is taken as midnight.
var dateTimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDateTime parses user input into a UTC instant. Inputs carry no
// zone information and are interpreted as UTC.
func ParseDateTime(s string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrBadDateTime
}

// FormatDateTime renders an instant the way the bot displays it in
// listings and reminders.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

// StartOfMonth returns midnight on the first day of t's month, UTC.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
