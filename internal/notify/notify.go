// Package notify delivers email and SMS messages about appointments. Delivery
// is best-effort: callers get a report of what went out, never an error.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrProviderNotConfigured is returned by LogSender. Messages that hit it are
// reported as skipped, never as sent.
var ErrProviderNotConfigured = errors.New("notification provider not configured")

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is one outbound email or SMS.
type Message struct {
	Channel       Channel `json:"channel"`
	To            string  `json:"to"`
	Subject       string  `json:"subject,omitempty"`
	Body          string  `json:"body"`
	AppointmentID string  `json:"appointment_id,omitempty"`
	Attempt       int     `json:"attempt,omitempty"`
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Report counts messages per channel that were handed off successfully.
// Skipped counts messages whose provider is not configured.
type Report struct {
	Emailed int
	Smsed   int
	Failed  int
	Skipped int
}

func (r *Report) count(ch Channel) {
	switch ch {
	case ChannelEmail:
		r.Emailed++
	case ChannelSMS:
		r.Smsed++
	}
}

// Delivery hands messages to their providers.
type Delivery interface {
	Deliver(ctx context.Context, msgs []Message) Report
}

func send(ctx context.Context, email EmailSender, sms SMSSender, m Message) error {
	switch m.Channel {
	case ChannelEmail:
		return email.SendEmail(ctx, m.To, m.Subject, m.Body)
	case ChannelSMS:
		return sms.SendSMS(ctx, m.To, m.Body)
	}
	return fmt.Errorf("unknown channel %q", m.Channel)
}
