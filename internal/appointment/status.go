package appointment

import (
	"fmt"
	"strings"
	"time"
)

var transitions = map[Status][]Status{
	StatusScheduled:  {StatusInProgress, StatusCancelled, StatusMissed, StatusExpired, StatusCompleted},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Active statuses hold their slot against re-booking.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusInProgress
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func ParseStatus(v string) (Status, error) {
	for _, s := range []Status{StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusMissed, StatusExpired} {
		if strings.EqualFold(v, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidStatusTransition, v)
}

// ReminderWindow selects one of the fixed pre-appointment reminder passes.
type ReminderWindow string

const (
	Reminder24h ReminderWindow = "24h"
	Reminder1h  ReminderWindow = "1h"
	Reminder15m ReminderWindow = "15m"
)

var ReminderWindows = []ReminderWindow{Reminder24h, Reminder1h, Reminder15m}

func ParseReminderWindow(v string) (ReminderWindow, error) {
	for _, w := range ReminderWindows {
		if v == string(w) {
			return w, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWindow, v)
}

func (w ReminderWindow) Duration() time.Duration {
	switch w {
	case Reminder24h:
		return 24 * time.Hour
	case Reminder1h:
		return time.Hour
	case Reminder15m:
		return 15 * time.Minute
	}
	return 0
}

// Sent reports whether the window's reminder already went out for a.
func (w ReminderWindow) Sent(a Appointment) bool {
	switch w {
	case Reminder24h:
		return a.Reminder24hSent
	case Reminder1h:
		return a.Reminder1hSent
	case Reminder15m:
		return a.Reminder15mSent
	}
	return false
}

func (w ReminderWindow) column() string {
	switch w {
	case Reminder24h:
		return "reminder_24h_sent"
	case Reminder1h:
		return "reminder_1h_sent"
	case Reminder15m:
		return "reminder_15m_sent"
	}
	return ""
}

func (w ReminderWindow) Label() string {
	switch w {
	case Reminder24h:
		return "24 hours"
	case Reminder1h:
		return "1 hour"
	case Reminder15m:
		return "15 minutes"
	}
	return string(w)
}
