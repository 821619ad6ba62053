package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/billing"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

// ---------- Helpers ----------

type localLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *localLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, slotStart time.Time, fn func(ctx context.Context) error) error {
	key := redisclient.SlotLockKey(doctorID, slotStart)
	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(context.Context, uuid.UUID, time.Time, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// Monday 2025-06-02, 08:00 UTC.
var testNow = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	repo    *MemRepository
	svc     *Service
	doctor  Doctor
	patient Patient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	email := "doc@example.com"
	doctor := Doctor{
		ID:      uuid.New(),
		Name:    "Ada Okafor",
		Email:   &email,
		BaseFee: 5000,
		Availability: availability.Config{
			ExcludedWeekdays:    []int{0, 6},
			DailyTimeRanges:     []availability.TimeRange{{Start: "09:00", End: "12:00"}},
			SlotDurationMinutes: 60,
		},
	}
	patient := Patient{ID: uuid.New(), Name: "Tunde Bello"}

	repo := NewMemRepository()
	repo.AddDoctor(doctor)
	repo.AddPatient(patient)

	cfg := config.Config{Location: time.UTC, Currency: "NGN", VoiceFeeAdjustment: -1000}
	svc := NewService(repo, &localLocker{}, billing.StaticProvider{PlatformFeePercent: 10}, cfg, zerolog.Nop()).
		WithClock(func() time.Time { return testNow })

	return &fixture{repo: repo, svc: svc, doctor: doctor, patient: patient}
}

func (f *fixture) request(hour int) BookingRequest {
	return BookingRequest{
		DoctorID:         f.doctor.ID,
		PatientID:        f.patient.ID,
		Date:             "2025-06-02",
		SlotStart:        time.Date(2025, 6, 2, hour, 0, 0, 0, time.UTC),
		ConsultationType: ConsultationVideo,
		Symptoms:         "persistent headache",
	}
}

func slotLabels(slots []availability.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Label
	}
	return out
}

func sameLabels(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// ---------- Availability ----------

func TestService_AvailableSlots_BookedAndCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	slots, err := f.svc.AvailableSlots(ctx, f.doctor.ID, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := slotLabels(slots); !sameLabels(got, "09:00 AM", "10:00 AM", "11:00 AM") {
		t.Fatalf("slots = %v", got)
	}

	appt, err := f.svc.Book(ctx, f.request(10))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	slots, _ = f.svc.AvailableSlots(ctx, f.doctor.ID, testNow)
	if got := slotLabels(slots); !sameLabels(got, "09:00 AM", "11:00 AM") {
		t.Fatalf("after booking slots = %v", got)
	}

	if _, err := f.svc.Transition(ctx, appt.ID, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	slots, _ = f.svc.AvailableSlots(ctx, f.doctor.ID, testNow)
	if got := slotLabels(slots); !sameLabels(got, "09:00 AM", "10:00 AM", "11:00 AM") {
		t.Errorf("cancelled slot should reappear, got %v", got)
	}
}

func TestService_AvailableSlots_HidesStartedSlots(t *testing.T) {
	f := newFixture(t)
	f.svc.WithClock(func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) })

	slots, err := f.svc.AvailableSlots(context.Background(), f.doctor.ID, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := slotLabels(slots); !sameLabels(got, "11:00 AM") {
		t.Errorf("slots = %v, want only 11:00 AM", got)
	}
}

func TestService_AvailableSlots_ExcludedDay(t *testing.T) {
	f := newFixture(t)

	saturday := time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)
	slots, err := f.svc.AvailableSlots(context.Background(), f.doctor.ID, saturday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected no slots on saturday, got %d", len(slots))
	}
}

func TestService_AvailableDates(t *testing.T) {
	f := newFixture(t)

	dates, err := f.svc.AvailableDates(context.Background(), f.doctor.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dates) == 0 || !dates[0].Equal(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("dates should start today, got %v", dates)
	}
	for _, d := range dates {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			t.Errorf("weekend date %s offered", d.Format("2006-01-02"))
		}
	}

	if _, err := f.svc.AvailableDates(context.Background(), uuid.New()); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}
}

// ---------- Booking ----------

func TestService_Book_Fees(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Book(context.Background(), f.request(9))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.Status != StatusScheduled {
		t.Errorf("status = %s", appt.Status)
	}
	if appt.ConsultationFee != 5000 || appt.PlatformFee != 500 || appt.TotalAmount != 5500 {
		t.Errorf("fees = %d/%d/%d, want 5000/500/5500", appt.ConsultationFee, appt.PlatformFee, appt.TotalAmount)
	}
	if appt.SlotEnd == nil || !appt.SlotEnd.Equal(appt.SlotStart.Add(time.Hour)) {
		t.Errorf("slot end = %v", appt.SlotEnd)
	}
	if len(f.repo.Events()) != 1 || f.repo.Events()[0].EventType != EventAppointmentCreated {
		t.Errorf("expected a created event, got %+v", f.repo.Events())
	}
}

func TestService_Book_VoiceAdjustment(t *testing.T) {
	f := newFixture(t)
	req := f.request(9)
	req.ConsultationType = ConsultationVoice
	req.TotalAmount = 4400

	appt, err := f.svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.ConsultationFee != 4000 || appt.TotalAmount != 4400 {
		t.Errorf("fees = %d/%d", appt.ConsultationFee, appt.TotalAmount)
	}
}

func TestService_Book_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*BookingRequest)
		want   error
	}{
		{"missing symptoms", func(r *BookingRequest) { r.Symptoms = "  " }, ErrMissingField},
		{"missing date", func(r *BookingRequest) { r.Date = "" }, ErrMissingField},
		{"missing type", func(r *BookingRequest) { r.ConsultationType = "" }, ErrMissingField},
		{"bad type", func(r *BookingRequest) { r.ConsultationType = "Chat" }, ErrInvalidConsultationType},
		{"starts now", func(r *BookingRequest) { r.SlotStart = testNow }, ErrSlotInPast},
		{"in the past", func(r *BookingRequest) { r.SlotStart = testNow.Add(-time.Hour) }, ErrSlotInPast},
		{"off grid", func(r *BookingRequest) { r.SlotStart = r.SlotStart.Add(15 * time.Minute) }, ErrSlotUnavailable},
		{"outside hours", func(r *BookingRequest) { r.SlotStart = time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC) }, ErrSlotUnavailable},
		{"date mismatch", func(r *BookingRequest) { r.Date = "2025-06-03" }, ErrSlotUnavailable},
		{"weekend", func(r *BookingRequest) {
			r.Date = "2025-06-07"
			r.SlotStart = time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC)
		}, ErrSlotUnavailable},
		{"stale quote", func(r *BookingRequest) { r.TotalAmount = 5000 }, ErrFeeMismatch},
		{"unknown patient", func(r *BookingRequest) { r.PatientID = uuid.New() }, ErrPatientNotFound},
		{"unknown doctor", func(r *BookingRequest) { r.DoctorID = uuid.New() }, ErrDoctorNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(9)
			tt.mutate(&req)
			_, err := f.svc.Book(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if n := len(f.repo.Events()); n != 0 {
		t.Errorf("rejected bookings must not write anything, got %d events", n)
	}
}

func TestService_Book_DoubleBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Book(ctx, f.request(11)); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := f.svc.Book(ctx, f.request(11)); !errors.Is(err, ErrSlotAlreadyBooked) {
		t.Errorf("expected ErrSlotAlreadyBooked, got %v", err)
	}
}

func TestService_Book_NotifiesBothParties(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Book(context.Background(), f.request(9))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	byRecipient := map[uuid.UUID][]Notification{}
	for _, n := range f.repo.Notifications() {
		byRecipient[n.RecipientID] = append(byRecipient[n.RecipientID], n)
	}

	if got := len(byRecipient[f.doctor.ID]); got != 1 {
		t.Errorf("doctor notifications = %d, want 1", got)
	}
	patientNotes := byRecipient[f.patient.ID]
	if len(patientNotes) != 1 {
		t.Fatalf("patient notifications = %d, want 1", len(patientNotes))
	}
	n := patientNotes[0]
	if n.Role != RolePatient {
		t.Errorf("role = %q, want %q", n.Role, RolePatient)
	}
	if n.AppointmentID == nil || *n.AppointmentID != appt.ID {
		t.Errorf("notification not linked to appointment %s", appt.ID)
	}
}

func TestService_Book_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), f.request(9))
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrSlotAlreadyBooked) && !errors.Is(err, ErrSlotBeingBooked) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Errorf("expected exactly one successful booking, got %d", success)
	}
}

func TestService_Book_LockHeld(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, busyLocker{}, billing.StaticProvider{}, config.Config{Location: time.UTC}, zerolog.Nop()).
		WithClock(func() time.Time { return testNow })

	if _, err := svc.Book(context.Background(), f.request(9)); !errors.Is(err, ErrSlotBeingBooked) {
		t.Errorf("expected ErrSlotBeingBooked, got %v", err)
	}
}

// ---------- Lifecycle ----------

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusInProgress, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusMissed, true},
		{StatusScheduled, StatusExpired, true},
		{StatusScheduled, StatusCompleted, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusCompleted, StatusScheduled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusExpired, StatusMissed, false},
		{StatusMissed, StatusCompleted, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusMissed, StatusExpired} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestService_TransitionAndComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(9))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	if _, err := f.svc.Transition(ctx, appt.ID, StatusInProgress); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Transition(ctx, appt.ID, StatusCancelled); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Errorf("in-progress appointment must not be cancellable, got %v", err)
	}

	rx, notes := "Paracetamol 500mg", "Hydrate, rest"
	done, err := f.svc.Complete(ctx, appt.ID, &rx, &notes)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted || done.Prescription == nil || *done.Prescription != rx {
		t.Errorf("unexpected completed appointment %+v", done)
	}

	if _, err := f.svc.Complete(ctx, appt.ID, nil, nil); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Errorf("completing twice should fail, got %v", err)
	}
	if _, err := f.svc.Transition(ctx, uuid.New(), StatusCancelled); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("in progress")
	if err != nil || s != StatusInProgress {
		t.Errorf("ParseStatus = (%q, %v)", s, err)
	}
	if _, err := ParseStatus("Rescheduled"); err == nil {
		t.Error("expected error for unknown status")
	}
}

// ---------- Payments ----------

func TestService_ConfirmPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(9))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	confirmation := PaymentConfirmation{
		Reference:     "ps_ref_001",
		AppointmentID: appt.ID,
		Amount:        5500,
		Currency:      "ngn",
		Status:        PaymentSuccess,
	}

	bad := confirmation
	bad.Amount = 5000
	if _, err := f.svc.ConfirmPayment(ctx, bad); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if _, err := f.repo.GetPaymentByReference(ctx, "ps_ref_001"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatal("mismatched confirmation must not write a payment")
	}

	p, err := f.svc.ConfirmPayment(ctx, confirmation)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if p.Status != PaymentSuccess || p.Currency != "NGN" {
		t.Errorf("payment = %+v", p)
	}

	again, err := f.svc.ConfirmPayment(ctx, confirmation)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if again.ID != p.ID {
		t.Errorf("second confirmation created a new payment")
	}

	confirmed := 0
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventPaymentConfirmed {
			confirmed++
		}
	}
	if confirmed != 1 {
		t.Errorf("expected one payment event, got %d", confirmed)
	}
}

func TestService_ConfirmPayment_NotSuccessful(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ConfirmPayment(context.Background(), PaymentConfirmation{
		Reference:     "ps_ref_002",
		AppointmentID: uuid.New(),
		Status:        PaymentFailed,
	})
	if !errors.Is(err, ErrPaymentNotSuccessful) {
		t.Errorf("expected ErrPaymentNotSuccessful, got %v", err)
	}
}

// ---------- Availability updates ----------

func TestService_UpdateAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := availability.Config{DailyTimeRanges: []availability.TimeRange{{Start: "nine", End: "12:00"}}}
	if err := f.svc.UpdateAvailability(ctx, f.doctor.ID, bad); !errors.Is(err, availability.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}

	good := availability.Config{
		DailyTimeRanges:     []availability.TimeRange{{Start: "06:00 PM", End: "08:00 PM"}},
		SlotDurationMinutes: 30,
	}
	if err := f.svc.UpdateAvailability(ctx, f.doctor.ID, good); err != nil {
		t.Fatalf("update: %v", err)
	}

	slots, err := f.svc.AvailableSlots(ctx, f.doctor.ID, testNow)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if got := slotLabels(slots); !sameLabels(got, "06:00 PM", "06:30 PM", "07:00 PM", "07:30 PM") {
		t.Errorf("slots = %v", got)
	}
}

func TestService_Quote(t *testing.T) {
	f := newFixture(t)

	fees, err := f.svc.Quote(context.Background(), f.doctor.ID, ConsultationVideo)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if fees.Total != 5500 {
		t.Errorf("total = %d, want 5500", fees.Total)
	}
	if _, err := f.svc.Quote(context.Background(), f.doctor.ID, "Chat"); !errors.Is(err, ErrInvalidConsultationType) {
		t.Errorf("expected ErrInvalidConsultationType, got %v", err)
	}
}
