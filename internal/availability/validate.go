package availability

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("invalid availability config")

// Validate rejects configs that the generator would otherwise repair silently.
// It is applied when a doctor saves availability, not at query time.
func Validate(cfg Config) error {
	var errs []error

	if cfg.SlotDurationMinutes < 0 {
		errs = append(errs, fmt.Errorf("slot_duration_minutes must be positive, got %d", cfg.SlotDurationMinutes))
	}

	for _, d := range cfg.ExcludedWeekdays {
		if d < 0 || d > 6 {
			errs = append(errs, fmt.Errorf("excluded weekday %d out of range 0..6", d))
		}
	}

	for i, r := range cfg.DailyTimeRanges {
		start, okStart := ParseClock(r.Start)
		end, okEnd := ParseClock(r.End)
		switch {
		case !okStart:
			errs = append(errs, fmt.Errorf("daily_time_ranges[%d]: unparseable start %q", i, r.Start))
		case !okEnd:
			errs = append(errs, fmt.Errorf("daily_time_ranges[%d]: unparseable end %q", i, r.End))
		case end <= start:
			errs = append(errs, fmt.Errorf("daily_time_ranges[%d]: end %s is not after start %s", i, r.End, r.Start))
		case end-start < cfg.slotDuration():
			errs = append(errs, fmt.Errorf("daily_time_ranges[%d]: shorter than one %d minute slot", i, cfg.slotDuration()))
		}
	}

	if r := cfg.EffectiveRange; r != nil {
		start, okStart := parseDate(r.StartDate, time.UTC)
		end, okEnd := parseDate(r.EndDate, time.UTC)
		if r.StartDate != "" && !okStart {
			errs = append(errs, fmt.Errorf("effective_range.start_date %q is not YYYY-MM-DD", r.StartDate))
		}
		if r.EndDate != "" && !okEnd {
			errs = append(errs, fmt.Errorf("effective_range.end_date %q is not YYYY-MM-DD", r.EndDate))
		}
		if okStart && okEnd && end.Before(start) {
			errs = append(errs, errors.New("effective_range ends before it starts"))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
