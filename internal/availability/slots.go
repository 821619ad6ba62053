package availability

import (
	"sort"
	"time"
)

// Slot is one bookable unit on a specific date.
type Slot struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SlotsForDate generates the slots of every daily range on date, in
// chronological order. A slot is emitted only if it ends within its range.
// Overlapping ranges do not produce duplicate slots.
func SlotsForDate(cfg Config, date time.Time) []Slot {
	step := cfg.slotDuration()
	day := Midnight(date)

	seen := make(map[int]bool)
	var starts []int
	for _, r := range cfg.dailyRanges() {
		for m := r.start; m+step <= r.end; m += step {
			if seen[m] {
				continue
			}
			seen[m] = true
			starts = append(starts, m)
		}
	}
	sort.Ints(starts)

	slots := make([]Slot, 0, len(starts))
	for _, m := range starts {
		start := at(day, m)
		slots = append(slots, Slot{
			Label: FormatClock(m),
			Start: start,
			End:   start.Add(time.Duration(step) * time.Minute),
		})
	}
	return slots
}

// ExcludeBooked drops every slot whose start instant equals one of booked.
func ExcludeBooked(slots []Slot, booked []time.Time) []Slot {
	if len(booked) == 0 {
		return slots
	}
	taken := make(map[int64]bool, len(booked))
	for _, b := range booked {
		taken[b.UnixNano()] = true
	}

	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if taken[s.Start.UnixNano()] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// FindSlot returns the generated slot on date starting exactly at start.
func FindSlot(cfg Config, date, start time.Time) (Slot, bool) {
	for _, s := range SlotsForDate(cfg, date) {
		if s.Start.Equal(start) {
			return s, true
		}
	}
	return Slot{}, false
}

func at(day time.Time, minutes int) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, 0, minutes, 0, 0, day.Location())
}
