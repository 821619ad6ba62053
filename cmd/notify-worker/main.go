package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "notify-worker")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()

	outbox := redisclient.NewQueue(rdb, notify.OutboxQueue)
	email, sms := notify.NewSenders(cfg, logger)

	consumer := &notify.Consumer{
		Queue:       outbox,
		Retry:       outbox,
		Dead:        redisclient.NewQueue(rdb, notify.DeadQueue),
		Email:       email,
		SMS:         sms,
		MaxAttempts: cfg.NotifyMaxAttempts,
		Backoff:     2 * time.Second,
		Timeout:     cfg.NotifyTimeout,
		Wait:        5 * time.Second,
		Log:         logger,
	}

	if n, err := outbox.Len(rootCtx); err == nil {
		logger.Info().Str("queue", outbox.Key()).Int64("pending", n).Int("max_attempts", cfg.NotifyMaxAttempts).Msg("notify-worker started")
	}

	if err := consumer.Run(rootCtx); err != nil {
		logger.Error().Err(err).Msg("consumer stopped with error")
	}
	logger.Info().Msg("notify-worker stopped")
}
