package booking

import (
	"regexp"
	"strconv"
	"time"
)

// Position locates a calendar week relative to a Window.
type Position int

const (
	In Position = iota
	Before
	After
)

func (p Position) String() string {
	switch p {
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return "in"
	}
}

// Window bounds the weeks worth searching. Zero bounds are open.
type Window struct {
	Earliest time.Time
	Latest   time.Time
}

// Bounded reports whether either bound is set.
func (w Window) Bounded() bool { return !w.Earliest.IsZero() || !w.Latest.IsZero() }

// Locate places the week described by header. A header with no recognisable
// date is In for an open window and After for a bounded one, so the calendar
// is rewound rather than searched blind.
func (w Window) Locate(header string) Position {
	start, end, ok := ParseWeek(header)
	if !ok {
		if w.Bounded() {
			return After
		}
		return In
	}
	if !w.Earliest.IsZero() && end.Before(w.Earliest) {
		return Before
	}
	if !w.Latest.IsZero() && start.After(w.Latest) {
		return After
	}
	return In
}

var (
	isoWeekRe = regexp.MustCompile(`\b(\d{4})-W(\d{1,2})\b`)
	dateRe    = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]{3,9})\s+(\d{4})\b`)
	yearRe    = regexp.MustCompile(`\b(20\d{2})\b`)
)

// ParseWeek extracts the date span of a calendar header. It understands ISO
// week labels ("2025-W07"), day-month-year dates ("3 March 2025", "3rd Mar
// 2025") and, as a last resort, a bare year.
func ParseWeek(header string) (start, end time.Time, ok bool) {
	if m := isoWeekRe.FindStringSubmatch(header); m != nil {
		year, _ := strconv.Atoi(m[1])
		week, _ := strconv.Atoi(m[2])
		if week >= 1 && week <= 53 {
			start = isoWeekStart(year, week)
			return start, start.AddDate(0, 0, 6), true
		}
	}

	var dates []time.Time
	for _, m := range dateRe.FindAllStringSubmatch(header, -1) {
		if d, ok := parseDate(m[1], m[2], m[3]); ok {
			dates = append(dates, d)
		}
	}
	if len(dates) > 0 {
		start, end = dates[0], dates[0]
		for _, d := range dates[1:] {
			if d.Before(start) {
				start = d
			}
			if d.After(end) {
				end = d
			}
		}
		if len(dates) == 1 {
			end = start.AddDate(0, 0, 6)
		}
		return start, end, true
	}

	if m := yearRe.FindStringSubmatch(header); m != nil {
		year, _ := strconv.Atoi(m[1])
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, time.Time{}, false
}

func isoWeekStart(year, week int) time.Time {
	// Jan 4th is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -offset+(week-1)*7)
}

func parseDate(day, month, year string) (time.Time, bool) {
	s := day + " " + month + " " + year
	for _, layout := range []string{"2 January 2006", "2 Jan 2006"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
