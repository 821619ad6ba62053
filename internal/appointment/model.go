package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
)

type Status string

const (
	StatusScheduled  Status = "Scheduled"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
	StatusMissed     Status = "Missed"
	StatusExpired    Status = "Expired"
)

type ConsultationType string

const (
	ConsultationVideo ConsultationType = "Video"
	ConsultationVoice ConsultationType = "Voice"
)

func (c ConsultationType) Valid() bool {
	return c == ConsultationVideo || c == ConsultationVoice
}

type PaymentStatus string

const (
	PaymentSuccess   PaymentStatus = "success"
	PaymentPending   PaymentStatus = "pending"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentInitiated PaymentStatus = "initiated"
)

const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

type Doctor struct {
	ID           uuid.UUID
	Name         string
	Email        *string
	Phone        *string
	BaseFee      int64
	Availability availability.Config
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Participant is the contact view of a doctor or patient used for reminders.
type Participant struct {
	ID    uuid.UUID
	Role  string
	Name  string
	Email *string
	Phone *string
}

type Appointment struct {
	ID               uuid.UUID
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	Date             time.Time
	SlotStart        time.Time
	SlotEnd          *time.Time
	ConsultationType ConsultationType
	Symptoms         string
	Status           Status
	ConsultationFee  int64
	PlatformFee      int64
	TotalAmount      int64
	Prescription     *string
	Notes            *string
	Reminder24hSent  bool
	Reminder1hSent   bool
	Reminder15mSent  bool
	EmailSent        bool
	SMSSent          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EffectiveEnd is the slot end, or the slot start when no end was recorded.
func (a Appointment) EffectiveEnd() time.Time {
	if a.SlotEnd != nil && !a.SlotEnd.IsZero() {
		return *a.SlotEnd
	}
	return a.SlotStart
}

type Payment struct {
	ID            uuid.UUID
	Reference     string
	AppointmentID uuid.UUID
	Amount        int64
	Currency      string
	Status        PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Notification is an in-app notification row.
type Notification struct {
	ID            uuid.UUID
	RecipientID   uuid.UUID
	Role          string
	Title         string
	Message       string
	AppointmentID *uuid.UUID
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ReminderCandidate is an appointment due for a reminder, with both parties'
// contact details.
type ReminderCandidate struct {
	Appointment
	Doctor  Participant
	Patient Participant
}

// PastDue is a Scheduled appointment whose start has passed.
type PastDue struct {
	Appointment
	Paid   bool
	Doctor Participant
}
