package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/billing"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentCompleted     = "APPOINTMENT_COMPLETED"
	EventAppointmentExpired       = "APPOINTMENT_EXPIRED"
	EventAppointmentMissed        = "APPOINTMENT_MISSED"
	EventPaymentConfirmed         = "PAYMENT_CONFIRMED"
)

var (
	ErrSlotAlreadyBooked       = errors.New("slot already has an active appointment")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrSlotUnavailable         = errors.New("slot is not offered by this doctor")
	ErrSlotInPast              = errors.New("please select a future time slot")
	ErrMissingField            = errors.New("missing required field")
	ErrInvalidConsultationType = errors.New("consultation type must be Video or Voice")
	ErrFeeMismatch             = errors.New("quoted fees do not match current pricing")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrAmountMismatch          = errors.New("payment amount or currency does not match the appointment")
	ErrPaymentNotSuccessful    = errors.New("payment was not successful")
)

// BookingRequest is what a patient submits to reserve a slot. Fee fields echo
// the quote shown to the patient; zero means not supplied.
type BookingRequest struct {
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	Date             string
	SlotStart        time.Time
	ConsultationType ConsultationType
	Symptoms         string
	ConsultationFee  int64
	PlatformFee      int64
	TotalAmount      int64
}

// PaymentConfirmation is the gateway's verification result.
type PaymentConfirmation struct {
	Reference     string
	AppointmentID uuid.UUID
	Amount        int64
	Currency      string
	Status        PaymentStatus
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	rates  billing.Provider
	cfg    config.Config
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, rates billing.Provider, cfg config.Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		repo:   repo,
		locker: locker,
		rates:  rates,
		cfg:    cfg,
		log:    logger.With().Str("component", "appointment").Logger(),
		now:    time.Now,
	}
}

// WithClock replaces the wall clock, for tests and simulations.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) today() time.Time {
	return availability.Midnight(s.now().In(s.cfg.Location))
}

// AvailableDates lists the doctor's bookable days from today on.
func (s *Service) AvailableDates(ctx context.Context, doctorID uuid.UUID) ([]time.Time, error) {
	doc, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	return availability.AvailableDates(doc.Availability, s.today()), nil
}

// AvailableSlots lists the open slots on date: generated slots that have not
// started yet and are not held by an active appointment.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]availability.Slot, error) {
	doc, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	day := availability.Midnight(date.In(s.cfg.Location))
	if !availability.IsAvailableDate(doc.Availability, s.today(), day) {
		return []availability.Slot{}, nil
	}

	booked, err := s.repo.ListBookedSlotStarts(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}

	now := s.now()
	open := availability.ExcludeBooked(availability.SlotsForDate(doc.Availability, day), booked)
	result := make([]availability.Slot, 0, len(open))
	for _, slot := range open {
		if slot.Start.After(now) {
			result = append(result, slot)
		}
	}
	return result, nil
}

// Quote prices a consultation with the doctor over the given channel.
func (s *Service) Quote(ctx context.Context, doctorID uuid.UUID, ct ConsultationType) (billing.Fees, error) {
	if !ct.Valid() {
		return billing.Fees{}, ErrInvalidConsultationType
	}
	doc, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return billing.Fees{}, fmt.Errorf("load doctor: %w", err)
	}
	return s.quote(ctx, doc, ct)
}

func (s *Service) quote(ctx context.Context, doc *Doctor, ct ConsultationType) (billing.Fees, error) {
	rates, err := s.rates.Rates(ctx)
	if err != nil {
		return billing.Fees{}, fmt.Errorf("load billing rates: %w", err)
	}
	return billing.ComputeFees(doc.BaseFee, s.cfg.FeeAdjustment(string(ct)), rates.PlatformFeePercent), nil
}

// UpdateAvailability validates and stores a doctor's availability template.
func (s *Service) UpdateAvailability(ctx context.Context, doctorID uuid.UUID, cfg availability.Config) error {
	if err := availability.Validate(cfg); err != nil {
		return err
	}
	if err := s.repo.UpdateDoctorAvailability(ctx, doctorID, cfg); err != nil {
		return fmt.Errorf("save availability: %w", err)
	}
	return nil
}

func validateBooking(req BookingRequest) error {
	var missing []string
	if strings.TrimSpace(req.Date) == "" {
		missing = append(missing, "date")
	}
	if req.SlotStart.IsZero() {
		missing = append(missing, "slot_start")
	}
	if req.ConsultationType == "" {
		missing = append(missing, "consultation_type")
	}
	if strings.TrimSpace(req.Symptoms) == "" {
		missing = append(missing, "symptoms")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	if !req.ConsultationType.Valid() {
		return ErrInvalidConsultationType
	}
	return nil
}

// Book creates a Scheduled appointment for the requested slot.
// A Redis lock serialises concurrent attempts on one slot and the insert is
// conditional on no active appointment holding it.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := validateBooking(req); err != nil {
		return nil, err
	}
	if !req.SlotStart.After(s.now()) {
		return nil, ErrSlotInPast
	}

	// Validate patient exists
	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doc, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	day, ok := availability.ParseDate(req.Date, s.cfg.Location)
	if !ok {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrMissingField)
	}
	start := req.SlotStart.In(s.cfg.Location)
	if !availability.Midnight(start).Equal(day) || !availability.IsAvailableDate(doc.Availability, s.today(), day) {
		return nil, ErrSlotUnavailable
	}
	slot, ok := availability.FindSlot(doc.Availability, day, start)
	if !ok {
		return nil, ErrSlotUnavailable
	}

	fees, err := s.quote(ctx, doc, req.ConsultationType)
	if err != nil {
		return nil, err
	}
	if mismatched(req.ConsultationFee, fees.Consultation) ||
		mismatched(req.PlatformFee, fees.Platform) ||
		mismatched(req.TotalAmount, fees.Total) {
		return nil, ErrFeeMismatch
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, doc.ID, slot.Start, func(lockCtx context.Context) error {
		// Inside the critical section re-check for an active appointment on this slot
		booked, err := s.repo.ListBookedSlotStarts(lockCtx, doc.ID, slot.Start, slot.End)
		if err != nil {
			return fmt.Errorf("check booked slots: %w", err)
		}
		for _, b := range booked {
			if b.Equal(slot.Start) {
				return ErrSlotAlreadyBooked
			}
		}

		end := slot.End
		appt, err := s.repo.CreateScheduledAppointment(lockCtx, Appointment{
			ID:               uuid.New(),
			DoctorID:         doc.ID,
			PatientID:        req.PatientID,
			Date:             day,
			SlotStart:        slot.Start,
			SlotEnd:          &end,
			ConsultationType: req.ConsultationType,
			Symptoms:         strings.TrimSpace(req.Symptoms),
			ConsultationFee:  fees.Consultation,
			PlatformFee:      fees.Platform,
			TotalAmount:      fees.Total,
		})
		if err != nil {
			if errors.Is(err, ErrSlotAlreadyBooked) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"doctor_id":    doc.ID.String(),
			"patient_id":   req.PatientID.String(),
			"slot_start":   slot.Start,
			"total_amount": fees.Total,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	when := FormatWhen(slot.Start, s.cfg.Location)
	s.notify(ctx, Notification{
		RecipientID:   doc.ID,
		Role:          RoleDoctor,
		Title:         "New appointment booked",
		Message:       fmt.Sprintf("A %s consultation was booked for %s.", req.ConsultationType, when),
		AppointmentID: &created.ID,
	})
	s.notify(ctx, Notification{
		RecipientID:   req.PatientID,
		Role:          RolePatient,
		Title:         "Appointment booked",
		Message:       fmt.Sprintf("Your %s consultation with %s is booked for %s.", req.ConsultationType, doc.Name, when),
		AppointmentID: &created.ID,
	})

	return created, nil
}

func mismatched(quoted, actual int64) bool {
	return quoted != 0 && quoted != actual
}

// GetAppointment retrieves an appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListAppointmentsByPatient retrieves appointments for a specific patient
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// ListAppointmentsByDoctor retrieves appointments for a specific doctor
func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appointments, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}

// Transition applies an explicit doctor or admin status change.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !CanTransition(appt.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, appt.Status, to)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Status moved underneath us.
			return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentStatusChanged, map[string]any{
		"from": appt.Status,
		"to":   to,
	})

	if to == StatusCancelled {
		s.notify(ctx, Notification{
			RecipientID:   updated.PatientID,
			Role:          RolePatient,
			Title:         "Appointment cancelled",
			Message:       fmt.Sprintf("Your appointment on %s was cancelled.", FormatWhen(updated.SlotStart, s.cfg.Location)),
			AppointmentID: &updated.ID,
		})
	}

	return updated, nil
}

// Complete records the consultation outcome and closes the appointment.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, prescription, notes *string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !CanTransition(appt.Status, StatusCompleted) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, appt.Status, StatusCompleted)
	}

	updated, err := s.repo.CompleteAppointment(ctx, id, prescription, notes)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{
		"has_prescription": prescription != nil,
	})
	s.notify(ctx, Notification{
		RecipientID:   updated.PatientID,
		Role:          RolePatient,
		Title:         "Consultation completed",
		Message:       "Your doctor has completed the consultation. Notes and prescriptions are available in your dashboard.",
		AppointmentID: &updated.ID,
	})

	return updated, nil
}

// ConfirmPayment records a verified gateway payment. Confirming the same
// reference twice is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, pc PaymentConfirmation) (*Payment, error) {
	if strings.TrimSpace(pc.Reference) == "" {
		return nil, fmt.Errorf("%w: reference", ErrMissingField)
	}

	existing, err := s.repo.GetPaymentByReference(ctx, pc.Reference)
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if existing != nil && existing.Status == PaymentSuccess {
		return existing, nil
	}

	if pc.Status != PaymentSuccess {
		return nil, fmt.Errorf("%w: gateway reported %q", ErrPaymentNotSuccessful, pc.Status)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, pc.AppointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if pc.Amount != appt.TotalAmount || !strings.EqualFold(pc.Currency, s.cfg.Currency) {
		return nil, fmt.Errorf("%w: got %d %s, want %d %s", ErrAmountMismatch, pc.Amount, pc.Currency, appt.TotalAmount, s.cfg.Currency)
	}

	payment, changed, err := s.repo.UpsertSuccessfulPayment(ctx, Payment{
		ID:            uuid.New(),
		Reference:     pc.Reference,
		AppointmentID: appt.ID,
		Amount:        pc.Amount,
		Currency:      strings.ToUpper(pc.Currency),
		Status:        PaymentSuccess,
	})
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	if changed {
		s.logEvent(ctx, appt.ID, EventPaymentConfirmed, map[string]any{
			"reference": pc.Reference,
			"amount":    pc.Amount,
		})
	}

	return payment, nil
}

// notify writes an in-app notification; failures are logged only.
func (s *Service) notify(ctx context.Context, n Notification) {
	n.CreatedAt = s.now()
	if err := s.repo.InsertNotification(ctx, n); err != nil {
		s.log.Warn().Err(err).
			Str("recipient_id", n.RecipientID.String()).
			Str("title", n.Title).
			Msg("failed to insert notification")
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

// FormatWhen renders an appointment time for notification text.
func FormatWhen(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Mon 2 Jan 2006, 03:04 PM")
}
