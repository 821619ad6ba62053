package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// InlineDelivery sends every message concurrently and waits for all of them.
// Each call is bounded by Timeout; one failure never cancels the others.
type InlineDelivery struct {
	Email   EmailSender
	SMS     SMSSender
	Timeout time.Duration
	Log     zerolog.Logger
}

func (d *InlineDelivery) Deliver(ctx context.Context, msgs []Message) Report {
	var (
		mu     sync.Mutex
		report Report
		g      errgroup.Group
	)

	for _, m := range msgs {
		m := m
		g.Go(func() error {
			callCtx, cancel := d.callContext(ctx)
			defer cancel()

			err := send(callCtx, d.Email, d.SMS, m)

			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrProviderNotConfigured) {
				report.Skipped++
				return nil
			}
			if err != nil {
				report.Failed++
				d.Log.Warn().Err(err).
					Str("channel", string(m.Channel)).
					Str("appointment_id", m.AppointmentID).
					Msg("notification delivery failed")
				return nil
			}
			report.count(m.Channel)
			return nil
		})
	}

	_ = g.Wait()
	return report
}

func (d *InlineDelivery) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.Timeout)
}

// Pusher accepts encoded messages for later delivery.
type Pusher interface {
	Push(ctx context.Context, payloads ...[]byte) error
}

// QueueDelivery hands messages to a queue consumed by the notify worker, so
// provider outages never hold up the caller.
type QueueDelivery struct {
	Queue Pusher
	Log   zerolog.Logger
}

func (d *QueueDelivery) Deliver(ctx context.Context, msgs []Message) Report {
	var report Report

	payloads := make([][]byte, 0, len(msgs))
	channels := make([]Channel, 0, len(msgs))
	for _, m := range msgs {
		data, err := m.Encode()
		if err != nil {
			report.Failed++
			continue
		}
		payloads = append(payloads, data)
		channels = append(channels, m.Channel)
	}

	if err := d.Queue.Push(ctx, payloads...); err != nil {
		d.Log.Warn().Err(err).Int("messages", len(payloads)).Msg("failed to enqueue notifications")
		report.Failed += len(payloads)
		return report
	}

	for _, ch := range channels {
		report.count(ch)
	}
	return report
}
