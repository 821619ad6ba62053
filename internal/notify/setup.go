package notify

import (
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/config"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

const (
	OutboxQueue = "notify:outbox"
	DeadQueue   = "notify:dead"
)

// NewSenders builds the configured providers. SendGrid wins over the generic
// email API; a provider without credentials is replaced by a LogSender.
func NewSenders(cfg config.Config, logger zerolog.Logger) (EmailSender, SMSSender) {
	client := &http.Client{Timeout: cfg.NotifyTimeout}

	var email EmailSender = LogSender{Log: logger}
	switch {
	case cfg.SendGridAPIKey != "":
		email = &SendGridEmailSender{APIKey: cfg.SendGridAPIKey, From: cfg.EmailFrom, FromName: cfg.EmailFromName}
	case cfg.EmailAPIURL != "":
		email = &HTTPEmailSender{URL: cfg.EmailAPIURL, APIKey: cfg.EmailAPIKey, From: cfg.EmailFrom, Client: client}
	}

	var sms SMSSender = LogSender{Log: logger}
	if cfg.SMSAPIURL != "" {
		sms = &HTTPSMSSender{URL: cfg.SMSAPIURL, APIKey: cfg.SMSAPIKey, Sender: cfg.SMSSender, Client: client}
	}

	return email, sms
}

// NewDelivery picks inline or queued delivery according to NOTIFY_MODE.
func NewDelivery(cfg config.Config, rdb *redis.Client, logger zerolog.Logger) Delivery {
	logger = logger.With().Str("component", "notify").Logger()

	if cfg.NotifyMode == config.NotifyQueue && rdb != nil {
		return &QueueDelivery{Queue: redisclient.NewQueue(rdb, OutboxQueue), Log: logger}
	}

	email, sms := NewSenders(cfg, logger)
	return &InlineDelivery{Email: email, SMS: sms, Timeout: cfg.NotifyTimeout, Log: logger}
}
