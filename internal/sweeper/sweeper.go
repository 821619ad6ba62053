// Package sweeper reconciles appointment status with the clock and payment
// state, and sends the pre-appointment reminders. Each run is idempotent:
// transitions are conditional on the appointment still being Scheduled and
// reminders are flagged per window once handled.
package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
)

const DefaultMissedGrace = time.Hour

// Store is the slice of the appointment repository the sweeper needs.
type Store interface {
	ListReminderCandidates(ctx context.Context, window appointment.ReminderWindow, now time.Time) ([]appointment.ReminderCandidate, error)
	MarkReminded(ctx context.Context, id uuid.UUID, window appointment.ReminderWindow, emailSent, smsSent bool) error
	ListPastDueScheduled(ctx context.Context, now time.Time) ([]appointment.PastDue, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to appointment.Status) (*appointment.Appointment, error)
	InsertNotification(ctx context.Context, n appointment.Notification) error
	InsertEvent(ctx context.Context, ev appointment.EventLog) error
}

// Result is reported back to the scheduler that triggered the run.
type Result struct {
	Window    string `json:"window"`
	Processed int    `json:"processed"`
	Emailed   int    `json:"emailed"`
	Smsed     int    `json:"smsed"`
	Skipped   int    `json:"skipped"`
	Expired   int    `json:"expired"`
	Missed    int    `json:"missed"`
}

type Sweeper struct {
	store    Store
	delivery notify.Delivery
	grace    time.Duration
	loc      *time.Location
	log      zerolog.Logger
	now      func() time.Time
}

func New(store Store, delivery notify.Delivery, grace time.Duration, loc *time.Location, logger zerolog.Logger) *Sweeper {
	if grace <= 0 {
		grace = DefaultMissedGrace
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Sweeper{
		store:    store,
		delivery: delivery,
		grace:    grace,
		loc:      loc,
		log:      logger.With().Str("component", "sweeper").Logger(),
		now:      time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run sends reminders for window and then reconciles past-due appointments.
// A storage error aborts the run; work already committed stays committed.
func (s *Sweeper) Run(ctx context.Context, window appointment.ReminderWindow) (Result, error) {
	res := Result{Window: string(window)}
	if window.Duration() == 0 {
		return res, fmt.Errorf("%w: %q", appointment.ErrUnknownWindow, window)
	}

	now := s.now()
	start := time.Now()

	if err := s.remind(ctx, window, now, &res); err != nil {
		return res, fmt.Errorf("reminder pass: %w", err)
	}
	if err := s.reconcile(ctx, now, &res); err != nil {
		return res, fmt.Errorf("reconcile pass: %w", err)
	}

	s.log.Info().
		Str("window", res.Window).
		Int("processed", res.Processed).
		Int("emailed", res.Emailed).
		Int("smsed", res.Smsed).
		Int("skipped", res.Skipped).
		Int("expired", res.Expired).
		Int("missed", res.Missed).
		Dur("took", time.Since(start)).
		Msg("sweep complete")

	return res, nil
}

func (s *Sweeper) remind(ctx context.Context, window appointment.ReminderWindow, now time.Time, res *Result) error {
	candidates, err := s.store.ListReminderCandidates(ctx, window, now)
	if err != nil {
		return fmt.Errorf("list reminder candidates: %w", err)
	}

	for _, c := range candidates {
		when := appointment.FormatWhen(c.SlotStart, s.loc)
		title := fmt.Sprintf("Appointment in %s", window.Label())
		apptID := c.ID

		for _, p := range []appointment.Participant{c.Doctor, c.Patient} {
			err := s.store.InsertNotification(ctx, appointment.Notification{
				RecipientID:   p.ID,
				Role:          p.Role,
				Title:         title,
				Message:       reminderText(p, c, when),
				AppointmentID: &apptID,
				CreatedAt:     now,
			})
			if err != nil {
				return fmt.Errorf("insert reminder notification: %w", err)
			}
		}

		var msgs []notify.Message
		emailAttempted, smsAttempted := false, false
		for _, p := range []appointment.Participant{c.Doctor, c.Patient} {
			body := reminderText(p, c, when)
			if p.Email != nil && *p.Email != "" {
				emailAttempted = true
				msgs = append(msgs, notify.Message{
					Channel:       notify.ChannelEmail,
					To:            *p.Email,
					Subject:       title,
					Body:          body,
					AppointmentID: apptID.String(),
				})
			}
			if p.Phone != nil && *p.Phone != "" {
				smsAttempted = true
				msgs = append(msgs, notify.Message{
					Channel:       notify.ChannelSMS,
					To:            *p.Phone,
					Body:          body,
					AppointmentID: apptID.String(),
				})
			}
		}

		report := s.delivery.Deliver(ctx, msgs)
		res.Emailed += report.Emailed
		res.Smsed += report.Smsed
		res.Skipped += report.Skipped

		// Flags are set whatever the providers said; a window fires at most once.
		if err := s.store.MarkReminded(ctx, c.ID, window, emailAttempted, smsAttempted); err != nil {
			return fmt.Errorf("mark reminded: %w", err)
		}
		res.Processed++
	}
	return nil
}

func reminderText(p appointment.Participant, c appointment.ReminderCandidate, when string) string {
	if p.Role == appointment.RoleDoctor {
		return fmt.Sprintf("Reminder: %s consultation with %s on %s.", c.ConsultationType, c.Patient.Name, when)
	}
	return fmt.Sprintf("Reminder: your %s consultation with Dr. %s is on %s.", c.ConsultationType, c.Doctor.Name, when)
}

func (s *Sweeper) reconcile(ctx context.Context, now time.Time, res *Result) error {
	due, err := s.store.ListPastDueScheduled(ctx, now)
	if err != nil {
		return fmt.Errorf("list past-due appointments: %w", err)
	}

	for _, pd := range due {
		if !pd.Paid {
			moved, err := s.transition(ctx, pd.ID, appointment.StatusExpired)
			if err != nil {
				return err
			}
			if moved {
				res.Expired++
				s.logEvent(ctx, pd.ID, appointment.EventAppointmentExpired, map[string]any{"reason": "unpaid"})
			}
			continue
		}

		if now.Before(pd.EffectiveEnd().Add(s.grace)) {
			continue
		}

		moved, err := s.transition(ctx, pd.ID, appointment.StatusMissed)
		if err != nil {
			return err
		}
		if !moved {
			continue
		}
		res.Missed++
		s.logEvent(ctx, pd.ID, appointment.EventAppointmentMissed, map[string]any{"reason": "not_attended"})

		if err := s.notifyMissed(ctx, pd, now, res); err != nil {
			return err
		}
	}
	return nil
}

// transition reports false when the appointment already left Scheduled.
func (s *Sweeper) transition(ctx context.Context, id uuid.UUID, to appointment.Status) (bool, error) {
	_, err := s.store.UpdateAppointmentStatus(ctx, id, appointment.StatusScheduled, to)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("mark %s %s: %w", id, to, err)
	}
	return true, nil
}

// notifyMissed tells the doctor only.
func (s *Sweeper) notifyMissed(ctx context.Context, pd appointment.PastDue, now time.Time, res *Result) error {
	apptID := pd.ID
	title := "Paid appointment missed"
	msg := fmt.Sprintf("The paid appointment on %s was not attended and has been marked missed.",
		appointment.FormatWhen(pd.SlotStart, s.loc))

	err := s.store.InsertNotification(ctx, appointment.Notification{
		RecipientID:   pd.Doctor.ID,
		Role:          appointment.RoleDoctor,
		Title:         title,
		Message:       msg,
		AppointmentID: &apptID,
		CreatedAt:     now,
	})
	if err != nil {
		return fmt.Errorf("insert missed notification: %w", err)
	}

	if pd.Doctor.Email != nil && *pd.Doctor.Email != "" {
		report := s.delivery.Deliver(ctx, []notify.Message{{
			Channel:       notify.ChannelEmail,
			To:            *pd.Doctor.Email,
			Subject:       title,
			Body:          msg,
			AppointmentID: apptID.String(),
		}})
		res.Emailed += report.Emailed
		res.Skipped += report.Skipped
	}
	return nil
}

func (s *Sweeper) logEvent(ctx context.Context, id uuid.UUID, eventType string, payload map[string]any) {
	data, _ := json.Marshal(payload)
	ev := appointment.EventLog{
		EventType:     eventType,
		AppointmentID: &id,
		Payload:       data,
		CreatedAt:     s.now(),
	}
	if err := s.store.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Str("appointment_id", id.String()).Msg("failed to insert event log")
	}
}
