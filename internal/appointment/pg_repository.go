package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
)

type PgRepository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, log: zerolog.Nop()}
}

// WithLogger sets the logger used for data problems that do not fail a query.
func (r *PgRepository) WithLogger(logger zerolog.Logger) *PgRepository {
	r.log = logger
	return r
}

const appointmentColumns = `
	a.id, a.doctor_id, a.patient_id, a.appointment_date, a.slot_start, a.slot_end,
	a.consultation_type, a.symptoms, a.status,
	a.consultation_fee, a.platform_fee, a.total_amount, a.prescription, a.notes,
	a.reminder_24h_sent, a.reminder_1h_sent, a.reminder_15m_sent, a.email_sent, a.sms_sent,
	a.created_at, a.updated_at`

const paymentColumns = `id, reference, appointment_id, amount, currency, status, created_at, updated_at`

// Helpers

func appointmentFields(a *Appointment) []any {
	return []any{
		&a.ID, &a.DoctorID, &a.PatientID, &a.Date, &a.SlotStart, &a.SlotEnd,
		&a.ConsultationType, &a.Symptoms, &a.Status,
		&a.ConsultationFee, &a.PlatformFee, &a.TotalAmount, &a.Prescription, &a.Notes,
		&a.Reminder24hSent, &a.Reminder1hSent, &a.Reminder15mSent, &a.EmailSent, &a.SMSSent,
		&a.CreatedAt, &a.UpdatedAt,
	}
}

func participantFields(p *Participant) []any {
	return []any{&p.ID, &p.Name, &p.Email, &p.Phone}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(appointmentFields(&a)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var raw []byte

	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Phone, &d.BaseFee, &raw, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Availability = decodeAvailability(raw, d.ID, r.log)
	return &d, nil
}

// decodeAvailability treats a malformed document like an empty one, so the
// doctor falls back to default hours, and logs it.
func decodeAvailability(raw []byte, doctorID uuid.UUID, logger zerolog.Logger) availability.Config {
	var cfg availability.Config
	if len(raw) == 0 {
		return cfg
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		logger.Warn().Err(err).
			Str("doctor_id", doctorID.String()).
			Msg("malformed availability document, using defaults")
		return availability.Config{}
	}
	return cfg
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.Reference, &p.AppointmentID, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, base_fee, availability, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return r.scanDoctor(row)
}

func (r *PgRepository) UpdateDoctorAvailability(ctx context.Context, id uuid.UUID, cfg availability.Config) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode availability: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET availability = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, doc)
	if err != nil {
		return fmt.Errorf("update availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.patient_id = $1
		ORDER BY a.slot_start DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.doctor_id = $1
		ORDER BY a.slot_start DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListBookedSlotStarts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT slot_start
		FROM appointments
		WHERE doctor_id = $1
		  AND status IN ('Scheduled', 'In Progress')
		  AND slot_start >= $2
		  AND slot_start < $3
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}

func (r *PgRepository) CreateScheduledAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments AS a (
			id, doctor_id, patient_id, appointment_date, slot_start, slot_end,
			consultation_type, symptoms, status,
			consultation_fee, platform_fee, total_amount,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'Scheduled', $9, $10, $11, now(), now())
		ON CONFLICT (doctor_id, slot_start) WHERE status IN ('Scheduled', 'In Progress') DO NOTHING
		RETURNING `+appointmentColumns+`
	`, a.ID, a.DoctorID, a.PatientID, a.Date, a.SlotStart, a.SlotEnd,
		a.ConsultationType, a.Symptoms,
		a.ConsultationFee, a.PlatformFee, a.TotalAmount)

	created, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrSlotAlreadyBooked
	}
	return created, err
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = $2,
		    updated_at = now()
		WHERE a.id = $1
		  AND a.status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) CompleteAppointment(ctx context.Context, id uuid.UUID, prescription, notes *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = 'Completed',
		    prescription = COALESCE($2, a.prescription),
		    notes = COALESCE($3, a.notes),
		    updated_at = now()
		WHERE a.id = $1
		  AND a.status IN ('Scheduled', 'In Progress')
		RETURNING `+appointmentColumns+`
	`, id, prescription, notes)

	return scanAppointment(row)
}

func (r *PgRepository) GetPaymentByReference(ctx context.Context, reference string) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE reference = $1
	`, reference)
	return scanPayment(row)
}

func (r *PgRepository) UpsertSuccessfulPayment(ctx context.Context, p Payment) (*Payment, bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO payments (id, reference, appointment_id, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'success', now(), now())
		ON CONFLICT (reference) DO UPDATE
		SET status = 'success',
		    amount = EXCLUDED.amount,
		    currency = EXCLUDED.currency,
		    updated_at = now()
		WHERE payments.status <> 'success'
		RETURNING `+paymentColumns+`
	`, p.ID, p.Reference, p.AppointmentID, p.Amount, p.Currency)

	saved, err := scanPayment(row)
	if errors.Is(err, ErrPaymentNotFound) {
		existing, getErr := r.GetPaymentByReference(ctx, p.Reference)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("upsert payment: %w", err)
	}
	return saved, true, nil
}

func (r *PgRepository) ListReminderCandidates(ctx context.Context, window ReminderWindow, now time.Time) ([]ReminderCandidate, error) {
	col := window.column()
	if col == "" {
		return nil, ErrUnknownWindow
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`,
		       d.id, d.name, d.email, d.phone,
		       p.id, p.name, p.email, p.phone
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN patients p ON p.id = a.patient_id
		WHERE a.status IN ('Scheduled', 'In Progress')
		  AND a.slot_start >= $1
		  AND a.slot_start <= $2
		  AND NOT a.`+col+`
		ORDER BY a.slot_start
	`, now, now.Add(window.Duration()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ReminderCandidate
	for rows.Next() {
		c := ReminderCandidate{
			Doctor:  Participant{Role: RoleDoctor},
			Patient: Participant{Role: RolePatient},
		}
		dest := appointmentFields(&c.Appointment)
		dest = append(dest, participantFields(&c.Doctor)...)
		dest = append(dest, participantFields(&c.Patient)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) MarkReminded(ctx context.Context, id uuid.UUID, window ReminderWindow, emailSent, smsSent bool) error {
	col := window.column()
	if col == "" {
		return ErrUnknownWindow
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET `+col+` = true,
		    email_sent = email_sent OR $2,
		    sms_sent = sms_sent OR $3,
		    updated_at = now()
		WHERE id = $1
	`, id, emailSent, smsSent)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	return nil
}

func (r *PgRepository) ListPastDueScheduled(ctx context.Context, now time.Time) ([]PastDue, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`,
		       EXISTS (
		           SELECT 1 FROM payments pay
		           WHERE pay.appointment_id = a.id AND pay.status = 'success'
		       ),
		       d.id, d.name, d.email, d.phone
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		WHERE a.status = 'Scheduled'
		  AND a.slot_start < $1
		ORDER BY a.slot_start
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PastDue
	for rows.Next() {
		pd := PastDue{Doctor: Participant{Role: RoleDoctor}}
		dest := appointmentFields(&pd.Appointment)
		dest = append(dest, &pd.Paid)
		dest = append(dest, participantFields(&pd.Doctor)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		result = append(result, pd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) InsertNotification(ctx context.Context, n Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, role, title, message, appointment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`, n.ID, n.RecipientID, n.Role, n.Title, n.Message, n.AppointmentID, nullableTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
