package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrUnknownWindow       = errors.New("unknown reminder window")
)

// Repository contains all DB interactions needed by the service and the sweeper.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	UpdateDoctorAvailability(ctx context.Context, id uuid.UUID, cfg availability.Config) error

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Slot starts of Scheduled/In Progress appointments in [from, to).
	ListBookedSlotStarts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)

	// CreateScheduledAppointment inserts unless an active appointment already
	// holds (doctor, slot start), in which case it returns ErrSlotAlreadyBooked.
	CreateScheduledAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	// UpdateAppointmentStatus only applies while the row is still in from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID, prescription, notes *string) (*Appointment, error)

	GetPaymentByReference(ctx context.Context, reference string) (*Payment, error)
	// UpsertSuccessfulPayment reports changed=false when the reference was
	// already recorded as successful.
	UpsertSuccessfulPayment(ctx context.Context, p Payment) (payment *Payment, changed bool, err error)

	ListReminderCandidates(ctx context.Context, window ReminderWindow, now time.Time) ([]ReminderCandidate, error)
	MarkReminded(ctx context.Context, id uuid.UUID, window ReminderWindow, emailSent, smsSent bool) error
	ListPastDueScheduled(ctx context.Context, now time.Time) ([]PastDue, error)

	InsertNotification(ctx context.Context, n Notification) error
	InsertEvent(ctx context.Context, ev EventLog) error
}
