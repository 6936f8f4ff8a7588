// Package schedule resolves weekly recurring class timings to concrete
// occurrences and evaluates the attendance admission window around them.
package schedule

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidDay means the day name is not one of the seven canonical names.
	ErrInvalidDay = errors.New("invalid day name")
	// ErrInvalidTime means the start time is not a 12-hour H:MM(AM|PM) clock.
	ErrInvalidTime = errors.New("invalid time of day")
)

// TimingEntry is one weekly slot of a class schedule. Start and End use the
// 12-hour clock, e.g. "10:00AM"; End is informational only.
type TimingEntry struct {
	Day   string `json:"day"`
	Start string `json:"startTime"`
	End   string `json:"endTime,omitempty"`
}

// dayIndex maps canonical weekday names to Sunday=0..Saturday=6. Names come
// from schedule data written as en-US long weekday strings, so matching is
// exact.
var dayIndex = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// ParseDay maps a canonical weekday name to its index.
func ParseDay(name string) (time.Weekday, error) {
	d, ok := dayIndex[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDay, name)
	}
	return d, nil
}

var clockRe = regexp.MustCompile(`(?i)^\s*(\d{1,2}):(\d{2})\s?(AM|PM)\s*$`)

// ParseClock parses a 12-hour clock string of the shape H:MM(AM|PM) into
// 24-hour hour and minute. The meridiem is case-insensitive and may be
// separated by a single space. 12AM maps to hour 0, 12PM stays 12, any
// other PM hour gains 12.
func ParseClock(s string) (hour, minute int, err error) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour < 1 || hour > 12 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	if hour == 12 {
		hour = 0
	}
	if strings.EqualFold(m[3], "PM") {
		hour += 12
	}
	return hour, minute, nil
}

// ResolveOccurrence returns the concrete start instant of the entry's
// current-or-next weekly occurrence relative to ref. If ref falls on the
// entry's weekday the occurrence is anchored to ref's own date; otherwise
// it is 1-6 days ahead. The result carries ref's location.
func ResolveOccurrence(ref time.Time, entry TimingEntry) (time.Time, error) {
	target, err := ParseDay(entry.Day)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := ParseClock(entry.Start)
	if err != nil {
		return time.Time{}, err
	}

	daysAhead := (int(target) - int(ref.Weekday()) + 7) % 7
	date := ref.AddDate(0, 0, daysAhead)

	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, ref.Location()), nil
}

// WithinWindow reports whether ref falls inside [start-before, start+after]
// of any entry's resolved occurrence, boundaries inclusive. Entries that
// fail to resolve are logged and skipped so one malformed slot never blocks
// an otherwise valid schedule.
func WithinWindow(ref time.Time, entries []TimingEntry, before, after time.Duration) bool {
	for _, entry := range entries {
		start, err := ResolveOccurrence(ref, entry)
		if err != nil {
			log.Printf("schedule: skipping timing entry %q %q: %v", entry.Day, entry.Start, err)
			continue
		}
		if !ref.Before(start.Add(-before)) && !ref.After(start.Add(after)) {
			return true
		}
	}
	return false
}
