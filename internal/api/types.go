package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
)

type CreateAppointmentRequest struct {
	DoctorID         string `json:"doctor_id"`
	PatientID        string `json:"patient_id,omitempty"` // admins only; patients book for themselves
	Date             string `json:"date"`
	SlotStart        string `json:"slot_start"` // RFC3339 or a slot label such as "09:00 AM"
	ConsultationType string `json:"consultation_type"`
	Symptoms         string `json:"symptoms"`
	ConsultationFee  int64  `json:"consultation_fee,omitempty"`
	PlatformFee      int64  `json:"platform_fee,omitempty"`
	TotalAmount      int64  `json:"total_amount,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CompleteAppointmentRequest struct {
	Prescription *string `json:"prescription"`
	Notes        *string `json:"notes"`
}

type ConfirmPaymentRequest struct {
	Reference     string `json:"reference"`
	AppointmentID string `json:"appointment_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
}

type AppointmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	DoctorID         uuid.UUID  `json:"doctor_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	Date             string     `json:"date"`
	SlotStart        time.Time  `json:"slot_start"`
	SlotEnd          *time.Time `json:"slot_end,omitempty"`
	ConsultationType string     `json:"consultation_type"`
	Symptoms         string     `json:"symptoms"`
	Status           string     `json:"status"`
	ConsultationFee  int64      `json:"consultation_fee"`
	PlatformFee      int64      `json:"platform_fee"`
	TotalAmount      int64      `json:"total_amount"`
	Prescription     *string    `json:"prescription,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		DoctorID:         a.DoctorID,
		PatientID:        a.PatientID,
		Date:             availability.FormatDate(a.Date),
		SlotStart:        a.SlotStart,
		SlotEnd:          a.SlotEnd,
		ConsultationType: string(a.ConsultationType),
		Symptoms:         a.Symptoms,
		Status:           string(a.Status),
		ConsultationFee:  a.ConsultationFee,
		PlatformFee:      a.PlatformFee,
		TotalAmount:      a.TotalAmount,
		Prescription:     a.Prescription,
		Notes:            a.Notes,
		CreatedAt:        a.CreatedAt,
	}
}

type AvailableDatesResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Dates    []string  `json:"dates"`
}

type AvailableSlotsResponse struct {
	DoctorID uuid.UUID           `json:"doctor_id"`
	Date     string              `json:"date"`
	Slots    []availability.Slot `json:"slots"`
}

type QuoteResponse struct {
	ConsultationType string `json:"consultation_type"`
	ConsultationFee  int64  `json:"consultation_fee"`
	PlatformFee      int64  `json:"platform_fee"`
	TotalAmount      int64  `json:"total_amount"`
	Currency         string `json:"currency"`
}

type PaymentResponse struct {
	ID            uuid.UUID `json:"id"`
	Reference     string    `json:"reference"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
