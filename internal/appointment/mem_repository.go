package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
)

// MemRepository is an in-memory Repository for tests and local simulation.
// It enforces the same one-active-appointment-per-slot rule as the Postgres
// schema.
type MemRepository struct {
	mu            sync.RWMutex
	doctors       map[uuid.UUID]*Doctor
	patients      map[uuid.UUID]*Patient
	appointments  map[uuid.UUID]*Appointment
	payments      map[string]*Payment // reference -> payment
	notifications []Notification
	events        []EventLog
}

func NewMemRepository() *MemRepository {
	return &MemRepository{
		doctors:      make(map[uuid.UUID]*Doctor),
		patients:     make(map[uuid.UUID]*Patient),
		appointments: make(map[uuid.UUID]*Appointment),
		payments:     make(map[string]*Payment),
	}
}

// Seeding helpers

func (r *MemRepository) AddDoctor(d Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = &d
}

func (r *MemRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = &p
}

func (r *MemRepository) AddAppointment(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = &a
}

func (r *MemRepository) AddPayment(p Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.Reference] = &p
}

func (r *MemRepository) Notifications() []Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Notification(nil), r.notifications...)
}

func (r *MemRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemRepository) participant(id uuid.UUID, role string) Participant {
	p := Participant{ID: id, Role: role}
	switch role {
	case RoleDoctor:
		if d, ok := r.doctors[id]; ok {
			p.Name, p.Email, p.Phone = d.Name, d.Email, d.Phone
		}
	case RolePatient:
		if pt, ok := r.patients[id]; ok {
			p.Name, p.Email, p.Phone = pt.Name, pt.Email, pt.Phone
		}
	}
	return p
}

// Interface methods

func (r *MemRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MemRepository) UpdateDoctorAvailability(_ context.Context, id uuid.UUID, cfg availability.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return ErrDoctorNotFound
	}
	d.Availability = cfg
	d.UpdatedAt = time.Now()
	return nil
}

func (r *MemRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemRepository) list(match func(*Appointment) bool, limit, offset int) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if match(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotStart.After(out[j].SlotStart) })

	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (r *MemRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.list(func(a *Appointment) bool { return a.PatientID == patientID }, limit, offset), nil
}

func (r *MemRepository) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.list(func(a *Appointment) bool { return a.DoctorID == doctorID }, limit, offset), nil
}

func (r *MemRepository) ListBookedSlotStarts(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []time.Time
	for _, a := range r.appointments {
		if a.DoctorID != doctorID || !a.Status.Active() {
			continue
		}
		if a.SlotStart.Before(from) || !a.SlotStart.Before(to) {
			continue
		}
		out = append(out, a.SlotStart)
	}
	return out, nil
}

func (r *MemRepository) CreateScheduledAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.appointments {
		if existing.DoctorID == a.DoctorID && existing.Status.Active() && existing.SlotStart.Equal(a.SlotStart) {
			return nil, ErrSlotAlreadyBooked
		}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.Status = StatusScheduled
	a.CreatedAt, a.UpdatedAt = now, now
	r.appointments[a.ID] = &a

	cp := a
	return &cp, nil
}

func (r *MemRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *MemRepository) CompleteAppointment(_ context.Context, id uuid.UUID, prescription, notes *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || !a.Status.Active() {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusCompleted
	if prescription != nil {
		a.Prescription = prescription
	}
	if notes != nil {
		a.Notes = notes
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *MemRepository) GetPaymentByReference(_ context.Context, reference string) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[reference]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemRepository) UpsertSuccessfulPayment(_ context.Context, p Payment) (*Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if existing, ok := r.payments[p.Reference]; ok {
		if existing.Status == PaymentSuccess {
			cp := *existing
			return &cp, false, nil
		}
		existing.Status = PaymentSuccess
		existing.Amount = p.Amount
		existing.Currency = p.Currency
		existing.UpdatedAt = now
		cp := *existing
		return &cp, true, nil
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = PaymentSuccess
	p.CreatedAt, p.UpdatedAt = now, now
	r.payments[p.Reference] = &p
	cp := p
	return &cp, true, nil
}

func (r *MemRepository) ListReminderCandidates(_ context.Context, window ReminderWindow, now time.Time) ([]ReminderCandidate, error) {
	if window.Duration() == 0 {
		return nil, ErrUnknownWindow
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	until := now.Add(window.Duration())
	var out []ReminderCandidate
	for _, a := range r.appointments {
		if !a.Status.Active() || window.Sent(*a) {
			continue
		}
		if a.SlotStart.Before(now) || a.SlotStart.After(until) {
			continue
		}
		out = append(out, ReminderCandidate{
			Appointment: *a,
			Doctor:      r.participant(a.DoctorID, RoleDoctor),
			Patient:     r.participant(a.PatientID, RolePatient),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotStart.Before(out[j].SlotStart) })
	return out, nil
}

func (r *MemRepository) MarkReminded(_ context.Context, id uuid.UUID, window ReminderWindow, emailSent, smsSent bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	switch window {
	case Reminder24h:
		a.Reminder24hSent = true
	case Reminder1h:
		a.Reminder1hSent = true
	case Reminder15m:
		a.Reminder15mSent = true
	default:
		return ErrUnknownWindow
	}
	a.EmailSent = a.EmailSent || emailSent
	a.SMSSent = a.SMSSent || smsSent
	return nil
}

func (r *MemRepository) ListPastDueScheduled(_ context.Context, now time.Time) ([]PastDue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paid := make(map[uuid.UUID]bool)
	for _, p := range r.payments {
		if p.Status == PaymentSuccess {
			paid[p.AppointmentID] = true
		}
	}

	var out []PastDue
	for _, a := range r.appointments {
		if a.Status != StatusScheduled || !a.SlotStart.Before(now) {
			continue
		}
		out = append(out, PastDue{
			Appointment: *a,
			Paid:        paid[a.ID],
			Doctor:      r.participant(a.DoctorID, RoleDoctor),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotStart.Before(out[j].SlotStart) })
	return out, nil
}

func (r *MemRepository) InsertNotification(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *MemRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}
