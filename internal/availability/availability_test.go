package availability

import (
	"errors"
	"testing"
	"time"
)

// 2025-06-02 is a Monday.
var monday = time.Date(2025, 6, 2, 8, 15, 0, 0, time.UTC)

func labels(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Label
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"09:00", 540, true},
		{"17:30", 1050, true},
		{"00:00", 0, true},
		{"09:00 AM", 540, true},
		{"12:00 AM", 0, true},
		{"12:15 PM", 735, true},
		{"05:45 pm", 1065, true},
		{"13:00:00", 780, true},
		{"25:00", 0, false},
		{"13:00 PM", 0, false},
		{"9", 0, false},
		{"ab:cd", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseClock(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseClock(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatClock(t *testing.T) {
	if got := FormatClock(540); got != "09:00 AM" {
		t.Errorf("FormatClock(540) = %q", got)
	}
	if got := FormatClock(13*60 + 30); got != "01:30 PM" {
		t.Errorf("FormatClock(810) = %q", got)
	}
}

func TestSlotsForDate_WeekdayMorning(t *testing.T) {
	cfg := Config{
		ExcludedWeekdays:    []int{0, 6},
		DailyTimeRanges:     []TimeRange{{Start: "09:00", End: "12:00"}},
		SlotDurationMinutes: 60,
	}

	got := labels(SlotsForDate(cfg, monday))
	want := []string{"09:00 AM", "10:00 AM", "11:00 AM"}
	if !equalStrings(got, want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}

	for _, d := range AvailableDates(cfg, monday) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			t.Errorf("weekend date %s generated", FormatDate(d))
		}
	}
}

func TestSlotsForDate_Bounds(t *testing.T) {
	cfg := Config{
		DailyTimeRanges: []TimeRange{
			{Start: "09:00", End: "10:45"},
			{Start: "06:00 PM", End: "07:00 PM"},
		},
		SlotDurationMinutes: 30,
	}

	slots := SlotsForDate(cfg, monday)
	want := []string{"09:00 AM", "09:30 AM", "10:00 AM", "06:00 PM", "06:30 PM"}
	if got := labels(slots); !equalStrings(got, want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}
	for _, s := range slots {
		if s.End.Sub(s.Start) != 30*time.Minute {
			t.Errorf("slot %s has length %s", s.Label, s.End.Sub(s.Start))
		}
		if s.End.After(time.Date(2025, 6, 2, 19, 0, 0, 0, time.UTC)) {
			t.Errorf("slot %s ends after its range", s.Label)
		}
	}
	if !slots[0].Start.Equal(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("first slot start = %s", slots[0].Start)
	}
}

func TestSlotsForDate_Defaults(t *testing.T) {
	cfg := Config{DailyTimeRanges: []TimeRange{{Start: "12:00", End: "11:00"}}}

	slots := SlotsForDate(cfg, monday)
	if len(slots) != 16 {
		t.Fatalf("expected 16 default slots (09:00-17:00 every 30m), got %d", len(slots))
	}
	if slots[0].Label != "09:00 AM" || slots[15].Label != "04:30 PM" {
		t.Errorf("unexpected default bounds %s..%s", slots[0].Label, slots[15].Label)
	}
}

func TestSlotsForDate_OverlapDeduplicated(t *testing.T) {
	cfg := Config{
		DailyTimeRanges: []TimeRange{
			{Start: "10:00", End: "12:00"},
			{Start: "09:00", End: "11:00"},
		},
		SlotDurationMinutes: 60,
	}

	want := []string{"09:00 AM", "10:00 AM", "11:00 AM"}
	if got := labels(SlotsForDate(cfg, monday)); !equalStrings(got, want) {
		t.Errorf("slots = %v, want %v", got, want)
	}
}

func TestSlotsForDate_UnparseableStartIsMidnight(t *testing.T) {
	cfg := Config{
		DailyTimeRanges:     []TimeRange{{Start: "soon", End: "01:00"}},
		SlotDurationMinutes: 30,
	}

	want := []string{"12:00 AM", "12:30 AM"}
	if got := labels(SlotsForDate(cfg, monday)); !equalStrings(got, want) {
		t.Errorf("slots = %v, want %v", got, want)
	}
}

func TestAvailableDates_DefaultWindow(t *testing.T) {
	dates := AvailableDates(Config{}, monday)

	if len(dates) != DefaultWindowDays+1 {
		t.Fatalf("expected %d dates, got %d", DefaultWindowDays+1, len(dates))
	}
	if !dates[0].Equal(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first date = %s, want today", dates[0])
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			t.Fatalf("dates not strictly ascending at %d", i)
		}
	}
}

func TestAvailableDates_RangeClippedToToday(t *testing.T) {
	cfg := Config{EffectiveRange: &DateRange{StartDate: "2025-05-01", EndDate: "2025-06-05"}}

	dates := AvailableDates(cfg, monday)
	if len(dates) != 4 {
		t.Fatalf("expected 4 dates (Jun 2..5), got %d", len(dates))
	}
	if FormatDate(dates[0]) != "2025-06-02" || FormatDate(dates[3]) != "2025-06-05" {
		t.Errorf("unexpected range %s..%s", FormatDate(dates[0]), FormatDate(dates[3]))
	}
}

func TestAvailableDates_FutureStart(t *testing.T) {
	cfg := Config{EffectiveRange: &DateRange{StartDate: "2025-06-10"}}

	dates := AvailableDates(cfg, monday)
	if FormatDate(dates[0]) != "2025-06-10" {
		t.Errorf("first date = %s, want 2025-06-10", FormatDate(dates[0]))
	}
	if FormatDate(dates[len(dates)-1]) != "2025-07-10" {
		t.Errorf("last date = %s, want 2025-07-10", FormatDate(dates[len(dates)-1]))
	}
}

func TestAvailableDates_InvertedRangeFallsBack(t *testing.T) {
	cfg := Config{EffectiveRange: &DateRange{StartDate: "2025-06-10", EndDate: "2025-06-01"}}

	dates := AvailableDates(cfg, monday)
	if len(dates) != DefaultWindowDays+1 {
		t.Errorf("expected fallback window of %d dates, got %d", DefaultWindowDays+1, len(dates))
	}
}

func TestAvailableDates_Capped(t *testing.T) {
	cfg := Config{EffectiveRange: &DateRange{EndDate: "2027-01-01"}}

	dates := AvailableDates(cfg, monday)
	if len(dates) != MaxDates {
		t.Fatalf("expected cap of %d dates, got %d", MaxDates, len(dates))
	}
	last := dates[len(dates)-1]
	if FormatDate(last) != "2025-08-30" {
		t.Errorf("last capped date = %s", FormatDate(last))
	}
}

func TestIsAvailableDate(t *testing.T) {
	cfg := Config{ExcludedWeekdays: []int{0, 6}}

	if !IsAvailableDate(cfg, monday, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)) {
		t.Error("tuesday should be available")
	}
	if IsAvailableDate(cfg, monday, time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)) {
		t.Error("saturday should not be available")
	}
	if IsAvailableDate(cfg, monday, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("yesterday should not be available")
	}
}

func TestExcludeBooked(t *testing.T) {
	cfg := Config{DailyTimeRanges: []TimeRange{{Start: "09:00", End: "11:00"}}, SlotDurationMinutes: 30}
	slots := SlotsForDate(cfg, monday)

	booked := []time.Time{
		time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
		// Same instant expressed in another zone.
		time.Date(2025, 6, 2, 11, 0, 0, 0, time.FixedZone("WAT", 3600)),
		// Not on a slot boundary; blocks nothing.
		time.Date(2025, 6, 2, 10, 15, 0, 0, time.UTC),
	}

	want := []string{"09:00 AM", "10:30 AM"}
	if got := labels(ExcludeBooked(slots, booked)); !equalStrings(got, want) {
		t.Errorf("remaining = %v, want %v", got, want)
	}
	if got := ExcludeBooked(slots, nil); len(got) != len(slots) {
		t.Errorf("nothing booked should keep all %d slots, got %d", len(slots), len(got))
	}
}

func TestFindSlot(t *testing.T) {
	cfg := Config{DailyTimeRanges: []TimeRange{{Start: "09:00", End: "10:00"}}, SlotDurationMinutes: 30}

	s, ok := FindSlot(cfg, monday, time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC))
	if !ok || s.Label != "09:30 AM" {
		t.Errorf("FindSlot = (%+v, %v)", s, ok)
	}
	if _, ok := FindSlot(cfg, monday, time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)); ok {
		t.Error("off-grid start should not match")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		EffectiveRange:      &DateRange{StartDate: "2025-06-01", EndDate: "2025-07-01"},
		ExcludedWeekdays:    []int{0},
		DailyTimeRanges:     []TimeRange{{Start: "09:00", End: "12:00"}, {Start: "02:00 PM", End: "05:00 PM"}},
		SlotDurationMinutes: 30,
	}
	if err := Validate(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	invalid := []Config{
		{DailyTimeRanges: []TimeRange{{Start: "9am", End: "12:00"}}},
		{DailyTimeRanges: []TimeRange{{Start: "12:00", End: "09:00"}}},
		{DailyTimeRanges: []TimeRange{{Start: "09:00", End: "09:15"}}, SlotDurationMinutes: 30},
		{ExcludedWeekdays: []int{7}},
		{SlotDurationMinutes: -5},
		{EffectiveRange: &DateRange{StartDate: "2025-07-01", EndDate: "2025-06-01"}},
		{EffectiveRange: &DateRange{StartDate: "01/06/2025"}},
	}
	for i, cfg := range invalid {
		err := Validate(cfg)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}
