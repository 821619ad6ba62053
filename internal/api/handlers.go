package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
)

func pathID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

// ---------- Availability ----------

func availableDatesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		dates, err := svc.AvailableDates(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := AvailableDatesResponse{DoctorID: doctorID, Dates: make([]string, len(dates))}
		for i, d := range dates {
			resp.Dates[i] = availability.FormatDate(d)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func availableSlotsHandler(svc *appointment.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		date, ok := availability.ParseDate(r.URL.Query().Get("date"), loc)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailableSlotsResponse{
			DoctorID: doctorID,
			Date:     availability.FormatDate(date),
			Slots:    slots,
		})
	}
}

func quoteHandler(svc *appointment.Service, currency string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		ct := appointment.ConsultationType(r.URL.Query().Get("type"))
		if ct == "" {
			ct = appointment.ConsultationVideo
		}

		fees, err := svc.Quote(r.Context(), doctorID, ct)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, QuoteResponse{
			ConsultationType: string(ct),
			ConsultationFee:  fees.Consultation,
			PlatformFee:      fees.Platform,
			TotalAmount:      fees.Total,
			Currency:         currency,
		})
	}
}

func updateAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}
		if !principal(r).Owns(doctorID) {
			writeError(w, http.StatusForbidden, "forbidden", "doctors may only edit their own availability")
			return
		}

		var cfg availability.Config
		if err := decodeJSON(r, &cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if err := svc.UpdateAvailability(r.Context(), doctorID, cfg); err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// ---------- Appointments ----------

// parseSlotStart accepts an RFC3339 instant or a slot label on date.
func parseSlotStart(value, date string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	day, ok := availability.ParseDate(date, loc)
	if !ok {
		return time.Time{}, false
	}
	minutes, ok := availability.ParseClock(value)
	if !ok {
		return time.Time{}, false
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, minutes, 0, 0, loc), true
}

func createAppointmentHandler(svc *appointment.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		p := principal(r)
		patientID := p.ID
		if p.Is(auth.RoleAdmin) {
			patientID, err = uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
		}

		var slotStart time.Time
		if strings.TrimSpace(req.SlotStart) != "" {
			var ok bool
			slotStart, ok = parseSlotStart(strings.TrimSpace(req.SlotStart), req.Date, loc)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_slot_start", "slot_start must be RFC3339 or a slot label such as 09:00 AM")
				return
			}
		}

		appt, err := svc.Book(r.Context(), appointment.BookingRequest{
			DoctorID:         doctorID,
			PatientID:        patientID,
			Date:             req.Date,
			SlotStart:        slotStart,
			ConsultationType: appointment.ConsultationType(req.ConsultationType),
			Symptoms:         req.Symptoms,
			ConsultationFee:  req.ConsultationFee,
			PlatformFee:      req.PlatformFee,
			TotalAmount:      req.TotalAmount,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

// loadOwned fetches an appointment the caller is party to. Strangers get 404.
func loadOwned(w http.ResponseWriter, r *http.Request, svc *appointment.Service) (*appointment.Appointment, bool) {
	id, ok := pathID(w, r, "invalid_appointment_id")
	if !ok {
		return nil, false
	}

	appt, err := svc.GetAppointment(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}

	p := principal(r)
	if !p.Owns(appt.PatientID) && !p.Owns(appt.DoctorID) {
		writeError(w, http.StatusNotFound, "appointment_not_found", "appointment not found")
		return nil, false
	}
	return appt, true
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, ok := loadOwned(w, r, svc)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		p := principal(r)

		var (
			appointments []appointment.Appointment
			err          error
		)

		switch {
		case q.Get("patient_id") != "":
			patientID, perr := uuid.Parse(q.Get("patient_id"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			if !p.Owns(patientID) {
				writeError(w, http.StatusForbidden, "forbidden", "cannot list another patient's appointments")
				return
			}
			appointments, err = svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)

		case q.Get("doctor_id") != "":
			doctorID, perr := uuid.Parse(q.Get("doctor_id"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			if !p.Owns(doctorID) {
				writeError(w, http.StatusForbidden, "forbidden", "cannot list another doctor's appointments")
				return
			}
			appointments, err = svc.ListAppointmentsByDoctor(r.Context(), doctorID, limit, offset)

		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or doctor_id is required")
			return
		}

		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AppointmentResponse, len(appointments))
		for i := range appointments {
			resp[i] = toAppointmentResponse(&appointments[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{"appointments": resp})
	}
}

func updateStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, ok := loadOwned(w, r, svc)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		to, err := appointment.ParseStatus(req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}

		updated, err := svc.Transition(r.Context(), appt.ID, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(updated))
	}
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, ok := loadOwned(w, r, svc)
		if !ok {
			return
		}

		var req CompleteAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		updated, err := svc.Complete(r.Context(), appt.ID, req.Prescription, req.Notes)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(updated))
	}
}

// ---------- Machine callers ----------

func confirmPaymentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfirmPaymentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appointmentID, err := uuid.Parse(req.AppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
			return
		}

		payment, err := svc.ConfirmPayment(r.Context(), appointment.PaymentConfirmation{
			Reference:     req.Reference,
			AppointmentID: appointmentID,
			Amount:        req.Amount,
			Currency:      req.Currency,
			Status:        appointment.PaymentStatus(strings.ToLower(req.Status)),
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, PaymentResponse{
			ID:            payment.ID,
			Reference:     payment.Reference,
			AppointmentID: payment.AppointmentID,
			Amount:        payment.Amount,
			Currency:      payment.Currency,
			Status:        string(payment.Status),
		})
	}
}

func sweepHandler(sw Sweeper, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window, err := appointment.ParseReminderWindow(r.URL.Query().Get("window"))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		res, err := sw.Run(r.Context(), window)
		if err != nil {
			logger.Error().Err(err).Str("window", string(window)).Str("request_id", GetRequestID(r.Context())).Msg("sweep failed")
			writeError(w, http.StatusInternalServerError, "sweep_failed", "sweep aborted, will retry on next schedule")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
