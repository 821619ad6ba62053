package availability

import "time"

// AvailableDates lists the bookable calendar days starting at today, in
// ascending order, skipping excluded weekdays. The window is the configured
// effective range clipped to today; a missing or inverted range falls back to
// thirty days from the start. At most MaxDates days are returned.
func AvailableDates(cfg Config, today time.Time) []time.Time {
	loc := today.Location()
	start := Midnight(today)

	var (
		rangeEnd time.Time
		hasEnd   bool
	)
	if cfg.EffectiveRange != nil {
		if rangeStart, ok := parseDate(cfg.EffectiveRange.StartDate, loc); ok && rangeStart.After(start) {
			start = rangeStart
		}
		rangeEnd, hasEnd = parseDate(cfg.EffectiveRange.EndDate, loc)
	}

	end := start.AddDate(0, 0, DefaultWindowDays)
	if hasEnd && !rangeEnd.Before(start) {
		end = rangeEnd
	}

	excluded := cfg.excluded()
	dates := make([]time.Time, 0, DefaultWindowDays+1)
	for d := start; !d.After(end) && len(dates) < MaxDates; d = d.AddDate(0, 0, 1) {
		if excluded[d.Weekday()] {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// IsAvailableDate reports whether date is one of AvailableDates(cfg, today).
func IsAvailableDate(cfg Config, today, date time.Time) bool {
	day := Midnight(date.In(today.Location()))
	for _, d := range AvailableDates(cfg, today) {
		if d.Equal(day) {
			return true
		}
	}
	return false
}
