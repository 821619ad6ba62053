package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgProvider reads the singleton billing_settings row.
type PgProvider struct {
	pool *pgxpool.Pool
}

func NewPgProvider(pool *pgxpool.Pool) *PgProvider {
	return &PgProvider{pool: pool}
}

func (p *PgProvider) Rates(ctx context.Context) (Rates, error) {
	var s Settings

	err := p.pool.QueryRow(ctx, `
		SELECT platform_fee_percent, admin_commission_percent, max_withdrawal_percent
		FROM billing_settings
		WHERE id = 1
	`).Scan(&s.PlatformFeePercent, &s.AdminCommissionPercent, &s.MaxWithdrawalPercent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultRates(), nil
		}
		return Rates{}, fmt.Errorf("load billing settings: %w", err)
	}

	return s.Normalize(), nil
}

// Save upserts the singleton row.
func (p *PgProvider) Save(ctx context.Context, s Settings) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO billing_settings (id, platform_fee_percent, admin_commission_percent, max_withdrawal_percent, updated_at)
		VALUES (1, $1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET platform_fee_percent = EXCLUDED.platform_fee_percent,
		    admin_commission_percent = EXCLUDED.admin_commission_percent,
		    max_withdrawal_percent = EXCLUDED.max_withdrawal_percent,
		    updated_at = now()
	`, s.PlatformFeePercent, s.AdminCommissionPercent, s.MaxWithdrawalPercent)
	if err != nil {
		return fmt.Errorf("save billing settings: %w", err)
	}
	return nil
}
