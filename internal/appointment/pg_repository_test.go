package appointment

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------- Availability decoding ----------

func TestDecodeAvailability_Valid(t *testing.T) {
	var buf bytes.Buffer
	raw := []byte(`{"daily_time_ranges":[{"start":"09:00","end":"12:00"}],"slot_duration_minutes":20,"excluded_weekdays":[0]}`)

	cfg := decodeAvailability(raw, uuid.New(), zerolog.New(&buf))

	if cfg.SlotDurationMinutes != 20 {
		t.Errorf("slot duration = %d, want 20", cfg.SlotDurationMinutes)
	}
	if len(cfg.DailyTimeRanges) != 1 || cfg.DailyTimeRanges[0].Start != "09:00" || cfg.DailyTimeRanges[0].End != "12:00" {
		t.Errorf("daily ranges = %+v", cfg.DailyTimeRanges)
	}
	if len(cfg.ExcludedWeekdays) != 1 || cfg.ExcludedWeekdays[0] != 0 {
		t.Errorf("excluded weekdays = %v", cfg.ExcludedWeekdays)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %s", buf.String())
	}
}

func TestDecodeAvailability_EmptyIsSilent(t *testing.T) {
	var buf bytes.Buffer

	cfg := decodeAvailability(nil, uuid.New(), zerolog.New(&buf))

	if cfg.SlotDurationMinutes != 0 || len(cfg.DailyTimeRanges) != 0 || cfg.EffectiveRange != nil {
		t.Errorf("cfg = %+v, want zero value", cfg)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %s", buf.String())
	}
}

func TestDecodeAvailability_MalformedWarns(t *testing.T) {
	var buf bytes.Buffer
	doctorID := uuid.New()
	raw := []byte(`{"slot_duration_minutes":"thirty","daily_time_ranges":[`)

	cfg := decodeAvailability(raw, doctorID, zerolog.New(&buf))

	if cfg.SlotDurationMinutes != 0 || len(cfg.DailyTimeRanges) != 0 || cfg.EffectiveRange != nil {
		t.Errorf("cfg = %+v, want zero value", cfg)
	}

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("log level missing: %s", out)
	}
	if !strings.Contains(out, "malformed availability document") {
		t.Errorf("log message missing: %s", out)
	}
	if !strings.Contains(out, doctorID.String()) {
		t.Errorf("doctor id missing: %s", out)
	}
}

func TestPgRepository_DefaultLoggerIsNop(t *testing.T) {
	var buf bytes.Buffer
	repo := NewPgRepository(nil)

	// Must not panic before WithLogger is called.
	_ = decodeAvailability([]byte("{"), uuid.New(), repo.log)

	repo.WithLogger(zerolog.New(&buf))
	_ = decodeAvailability([]byte("{"), uuid.New(), repo.log)
	if buf.Len() == 0 {
		t.Error("WithLogger did not take effect")
	}
}
