package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

// Popper yields queued payloads. It returns redisclient.ErrQueueEmpty when
// nothing arrived within wait.
type Popper interface {
	Pop(ctx context.Context, wait time.Duration) ([]byte, error)
}

// Consumer drains the notification queue, retrying failed sends by
// re-enqueueing them and parking messages that exhaust MaxAttempts on Dead.
type Consumer struct {
	Queue       Popper
	Retry       Pusher
	Dead        Pusher
	Email       EmailSender
	SMS         SMSSender
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
	Wait        time.Duration
	Log         zerolog.Logger
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	wait := c.Wait
	if wait <= 0 {
		wait = 5 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		payload, err := c.Queue.Pop(ctx, wait)
		if err != nil {
			if errors.Is(err, redisclient.ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.Log.Error().Err(err).Msg("queue pop failed")
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		c.Handle(ctx, payload)
	}
}

// Handle delivers one payload and schedules a retry on failure.
func (c *Consumer) Handle(ctx context.Context, payload []byte) {
	msg, err := DecodeMessage(payload)
	if err != nil {
		c.Log.Error().Err(err).Msg("dropping undecodable notification")
		c.park(ctx, payload)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout())
	err = send(callCtx, c.Email, c.SMS, msg)
	cancel()
	if err == nil {
		c.Log.Debug().Str("channel", string(msg.Channel)).Str("appointment_id", msg.AppointmentID).Msg("notification delivered")
		return
	}
	if errors.Is(err, ErrProviderNotConfigured) {
		return
	}

	msg.Attempt++
	logEvt := c.Log.Warn().Err(err).
		Str("channel", string(msg.Channel)).
		Str("appointment_id", msg.AppointmentID).
		Int("attempt", msg.Attempt)

	data, encErr := msg.Encode()
	if encErr != nil {
		logEvt.Msg("delivery failed, message could not be re-encoded")
		return
	}

	if msg.Attempt >= c.maxAttempts() {
		logEvt.Msg("delivery failed, giving up")
		c.park(ctx, data)
		return
	}

	logEvt.Msg("delivery failed, retrying")
	// Shutdown cuts the backoff short but the message still goes back.
	sleep(ctx, c.Backoff*time.Duration(msg.Attempt))
	if err := c.Retry.Push(context.WithoutCancel(ctx), data); err != nil {
		c.Log.Error().Err(err).Msg("failed to re-enqueue notification")
	}
}

// park moves a payload to the dead-letter list even during shutdown.
func (c *Consumer) park(ctx context.Context, payload []byte) {
	if c.Dead == nil {
		return
	}
	if err := c.Dead.Push(context.WithoutCancel(ctx), payload); err != nil {
		c.Log.Error().Err(err).Msg("failed to park notification")
	}
}

func (c *Consumer) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 1
	}
	return c.MaxAttempts
}

func (c *Consumer) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
