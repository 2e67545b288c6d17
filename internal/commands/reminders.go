package commands

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	msgBadDate     = "Invalid date format. Please use MM-DD-YYYY."
	msgBadTime     = "Invalid time format. Please use HH:MM (24-hour) or HH:MM AM/PM (12-hour)."
	msgBadDateTime = "Invalid date or time provided. Please check your inputs."
)

var (
	dateRe   = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
	time24Re = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)
	time12Re = regexp.MustCompile(`(?i)^(0?[1-9]|1[0-2]):([0-5][0-9])\s?(AM|PM)$`)
)

// ParseReminderTime parses a MM-DD-YYYY date and a 24-hour or 12-hour
// clock time in loc. The result must lie after now. Failures are *UserError.
func ParseReminderTime(date, clock string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	if !dateRe.MatchString(date) {
		return time.Time{}, userErr(msgBadDate)
	}
	month, _ := strconv.Atoi(date[0:2])
	day, _ := strconv.Atoi(date[3:5])
	year, _ := strconv.Atoi(date[6:10])

	var hour, minute int
	if m := time24Re.FindStringSubmatch(clock); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
	} else if m := time12Re.FindStringSubmatch(clock); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		pm := strings.EqualFold(m[3], "PM")
		switch {
		case pm && hour != 12:
			hour += 12
		case !pm && hour == 12:
			hour = 0
		}
	} else {
		return time.Time{}, userErr(msgBadTime)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	// time.Date normalises 02-31 into March; treat that as invalid.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, userErr(msgBadDateTime)
	}
	if !t.After(now) {
		return time.Time{}, userErr(msgBadDateTime)
	}
	return t, nil
}
