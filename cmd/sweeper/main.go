package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
	"github.com/hackgods/telehealth-scheduling/internal/sweeper"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sweeper",
		Short: "Appointment lifecycle sweeper: reminders, expiry and missed marking",
	}
	rootCmd.AddCommand(runCmd(), loopCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var window string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single sweep for one reminder window and print the counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := appointment.ParseReminderWindow(window)
			if err != nil {
				return err
			}

			return withSweeper(cmd.Context(), func(ctx context.Context, sw *sweeper.Sweeper, _ config.Config, logger zerolog.Logger) error {
				res, err := runOnce(ctx, sw, w, logger)
				if err != nil {
					return err
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			})
		},
	}
	cmd.Flags().StringVar(&window, "window", string(appointment.Reminder24h), "reminder window: 24h, 1h or 15m")
	return cmd
}

func loopCmd() *cobra.Command {
	var windows []string
	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Sweep every WORKER_INTERVAL until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]appointment.ReminderWindow, 0, len(windows))
			for _, v := range windows {
				w, err := appointment.ParseReminderWindow(v)
				if err != nil {
					return err
				}
				parsed = append(parsed, w)
			}

			return withSweeper(cmd.Context(), func(ctx context.Context, sw *sweeper.Sweeper, cfg config.Config, logger zerolog.Logger) error {
				if cfg.WorkerInterval <= 0 {
					return fmt.Errorf("WORKER_INTERVAL must be positive, got %s", cfg.WorkerInterval)
				}
				logger.Info().Dur("interval", cfg.WorkerInterval).Strs("windows", windows).Msg("sweep loop started")

				sweepAll := func() {
					for _, w := range parsed {
						// A failed window is retried on the next tick.
						_, _ = runOnce(ctx, sw, w, logger)
					}
				}

				// Run once at startup
				sweepAll()

				ticker := time.NewTicker(cfg.WorkerInterval)
				defer ticker.Stop()

				for {
					select {
					case <-ctx.Done():
						logger.Info().Msg("shutdown signal received, stopping sweep loop")
						return nil
					case <-ticker.C:
						sweepAll()
					}
				}
			})
		},
	}
	cmd.Flags().StringSliceVar(&windows, "windows", []string{"24h", "1h", "15m"}, "reminder windows to sweep on each tick")
	return cmd
}

// withSweeper loads config, connects the stores and hands a ready sweeper to fn.
func withSweeper(parent context.Context, fn func(ctx context.Context, sw *sweeper.Sweeper, cfg config.Config, logger zerolog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "sweeper")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4, MinConns: 1})
	cancelPg()
	if err != nil {
		return err
	}
	defer pgPool.Close()

	// Redis is only needed when reminders are handed to the queue.
	var rdb *redis.Client
	if cfg.NotifyMode == config.NotifyQueue {
		rdb, err = redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis")
			}
		}()
	}

	repo := appointment.NewPgRepository(pgPool).WithLogger(logger)
	sw := sweeper.New(repo, notify.NewDelivery(cfg, rdb, logger), cfg.MissedGrace, cfg.Location, logger)

	return fn(ctx, sw, cfg, logger)
}

func runOnce(ctx context.Context, sw *sweeper.Sweeper, window appointment.ReminderWindow, logger zerolog.Logger) (sweeper.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	res, err := sw.Run(runCtx, window)
	if err != nil {
		logger.Error().Err(err).Str("window", string(window)).Msg("sweep run error")
	}
	return res, err
}
