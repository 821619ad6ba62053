// Package billing holds the platform-wide fee settings and the fee arithmetic
// applied to a booking.
package billing

import (
	"context"
	"math"
)

const (
	DefaultPlatformFeePercent     = 0
	DefaultAdminCommissionPercent = 20
	DefaultMaxWithdrawalPercent   = 85
)

// Settings is the billing configuration row. Nil fields are unset.
type Settings struct {
	PlatformFeePercent     *float64 `json:"platform_fee_percent,omitempty"`
	AdminCommissionPercent *float64 `json:"admin_commission_percent,omitempty"`
	MaxWithdrawalPercent   *float64 `json:"max_withdrawal_percent,omitempty"`
}

// Rates are Settings with defaults applied and every value clamped to [0,100].
type Rates struct {
	PlatformFeePercent     float64 `json:"platform_fee_percent"`
	AdminCommissionPercent float64 `json:"admin_commission_percent"`
	MaxWithdrawalPercent   float64 `json:"max_withdrawal_percent"`
}

// Provider reads the current billing settings.
type Provider interface {
	Rates(ctx context.Context) (Rates, error)
}

func (s Settings) Normalize() Rates {
	return Rates{
		PlatformFeePercent:     percentOr(s.PlatformFeePercent, DefaultPlatformFeePercent),
		AdminCommissionPercent: percentOr(s.AdminCommissionPercent, DefaultAdminCommissionPercent),
		MaxWithdrawalPercent:   percentOr(s.MaxWithdrawalPercent, DefaultMaxWithdrawalPercent),
	}
}

func DefaultRates() Rates {
	return Settings{}.Normalize()
}

func percentOr(v *float64, def float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return def
	}
	return math.Min(100, math.Max(0, *v))
}

// Fees are whole currency units.
type Fees struct {
	Consultation int64 `json:"consultation_fee"`
	Platform     int64 `json:"platform_fee"`
	Total        int64 `json:"total_amount"`
}

// ComputeFees adds the consultation-type adjustment to the doctor's base fee
// (never below zero) and charges the platform percentage on top of it.
func ComputeFees(baseFee, adjustment int64, platformFeePercent float64) Fees {
	consultation := baseFee + adjustment
	if consultation < 0 {
		consultation = 0
	}
	platform := int64(math.Round(float64(consultation) * platformFeePercent / 100))
	return Fees{
		Consultation: consultation,
		Platform:     platform,
		Total:        consultation + platform,
	}
}

// StaticProvider serves fixed rates. Useful when no settings row is reachable.
type StaticProvider Rates

func (p StaticProvider) Rates(context.Context) (Rates, error) {
	return Rates(p), nil
}
