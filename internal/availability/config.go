// Package availability derives a doctor's bookable dates and time slots from
// the availability section of the doctor's profile. Everything here is a pure
// function of its inputs; nothing is persisted.
package availability

import (
	"strings"
	"time"
)

const (
	DefaultSlotDurationMinutes = 30
	DefaultWindowDays          = 30
	MaxDates                   = 90

	dateLayout = "2006-01-02"
)

// DateRange bounds the calendar window in which a doctor accepts bookings.
// Dates use the YYYY-MM-DD layout.
type DateRange struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// TimeRange is a wall-clock window within a day, e.g. 09:00..12:00.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Config is the doctor-owned availability template.
type Config struct {
	EffectiveRange      *DateRange  `json:"effective_range,omitempty"`
	ExcludedWeekdays    []int       `json:"excluded_weekdays,omitempty"`
	DailyTimeRanges     []TimeRange `json:"daily_time_ranges,omitempty"`
	SlotDurationMinutes int         `json:"slot_duration_minutes,omitempty"`
}

var defaultDailyRange = minuteRange{start: 9 * 60, end: 17 * 60}

type minuteRange struct {
	start int
	end   int
}

func (c Config) slotDuration() int {
	if c.SlotDurationMinutes <= 0 {
		return DefaultSlotDurationMinutes
	}
	return c.SlotDurationMinutes
}

// dailyRanges drops ranges whose end is not after their start and falls back
// to 09:00-17:00 when nothing usable remains.
func (c Config) dailyRanges() []minuteRange {
	out := make([]minuteRange, 0, len(c.DailyTimeRanges))
	for _, r := range c.DailyTimeRanges {
		start, end := clockMinutes(r.Start), clockMinutes(r.End)
		if end > start {
			out = append(out, minuteRange{start: start, end: end})
		}
	}
	if len(out) == 0 {
		out = append(out, defaultDailyRange)
	}
	return out
}

func (c Config) excluded() map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(c.ExcludedWeekdays))
	for _, d := range c.ExcludedWeekdays {
		if d >= 0 && d <= 6 {
			set[time.Weekday(d)] = true
		}
	}
	return set
}

// parseDate accepts YYYY-MM-DD as well as full timestamps, of which only the
// date part is used.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	if s == "" {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Midnight returns the start of t's calendar day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate parses a YYYY-MM-DD calendar date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	return parseDate(s, loc)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
