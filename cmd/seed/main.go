package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/billing"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
)

type seedOptions struct {
	doctors     int
	patients    int
	migrate     bool
	platformFee float64
}

func main() {
	var opts seedOptions

	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with fake doctors, patients and billing settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	rootCmd.Flags().IntVar(&opts.doctors, "doctors", 100, "number of doctors to create")
	rootCmd.Flags().IntVar(&opts.patients, "patients", 9000, "number of patients to create")
	rootCmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply pending migrations first")
	rootCmd.Flags().Float64Var(&opts.platformFee, "platform-fee", 5, "platform fee percent written to billing settings")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts seedOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4, MinConns: 1})
	cancel()
	if err != nil {
		return err
	}
	defer pool.Close()

	bg := context.Background()

	if opts.migrate {
		if err := db.Migrate(bg, pool, logger); err != nil {
			return err
		}
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedBilling(bg, pool, opts.platformFee, logger); err != nil {
		logger.Error().Err(err).Msg("seed billing settings")
		return err
	}
	if err := seedDoctors(bg, pool, opts.doctors, availability.Midnight(time.Now().In(cfg.Location)), logger); err != nil {
		logger.Error().Err(err).Msg("seed doctors")
		return err
	}
	if err := seedPatients(bg, pool, opts.patients, logger); err != nil {
		logger.Error().Err(err).Msg("seed patients")
		return err
	}

	logger.Info().Msg("seed complete")
	return nil
}

func seedBilling(ctx context.Context, pool *pgxpool.Pool, platformFee float64, logger zerolog.Logger) error {
	commission := float64(billing.DefaultAdminCommissionPercent)
	withdrawal := float64(billing.DefaultMaxWithdrawalPercent)

	err := billing.NewPgProvider(pool).Save(ctx, billing.Settings{
		PlatformFeePercent:     &platformFee,
		AdminCommissionPercent: &commission,
		MaxWithdrawalPercent:   &withdrawal,
	})
	if err != nil {
		return err
	}

	logger.Info().Float64("platform_fee_percent", platformFee).Msg("billing settings seeded")
	return nil
}

// Typical clinic shapes; each doctor gets one at random.
var availabilityTemplates = [][]availability.TimeRange{
	{{Start: "09:00", End: "17:00"}},
	{{Start: "08:00", End: "12:00"}, {Start: "14:00", End: "18:00"}},
	{{Start: "10:00", End: "13:00"}},
	{{Start: "16:00", End: "20:00"}},
}

var slotDurations = []int{15, 20, 30, 45, 60}

func randomAvailability(today time.Time) availability.Config {
	cfg := availability.Config{
		DailyTimeRanges:     availabilityTemplates[gofakeit.Number(0, len(availabilityTemplates)-1)],
		SlotDurationMinutes: slotDurations[gofakeit.Number(0, len(slotDurations)-1)],
	}

	// Most doctors skip Sunday, some skip Saturday too.
	switch gofakeit.Number(0, 3) {
	case 0:
	case 1:
		cfg.ExcludedWeekdays = []int{0}
	default:
		cfg.ExcludedWeekdays = []int{0, 6}
	}

	if gofakeit.Bool() {
		cfg.EffectiveRange = &availability.DateRange{
			StartDate: availability.FormatDate(today),
			EndDate:   availability.FormatDate(today.AddDate(0, 0, gofakeit.Number(14, 60))),
		}
	}
	return cfg
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int, today time.Time, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		// Base fees in whole naira, rounded to the nearest 500.
		baseFee := int64(gofakeit.Number(10, 60)) * 500

		avail, err := json.Marshal(randomAvailability(today))
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO doctors (id, name, email, phone, base_fee, availability, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, id, name, gofakeit.Email(), gofakeit.Phone(), baseFee, avail)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}
