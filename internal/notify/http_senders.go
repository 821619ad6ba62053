package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// HTTPEmailSender posts emails as JSON to a transactional email API.
type HTTPEmailSender struct {
	URL    string
	APIKey string
	From   string
	Client *http.Client
}

func (s *HTTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	return postJSON(ctx, s.Client, s.URL, s.APIKey, map[string]string{
		"from":    s.From,
		"to":      to,
		"subject": subject,
		"text":    body,
	})
}

// HTTPSMSSender posts SMS messages as JSON to an SMS gateway.
type HTTPSMSSender struct {
	URL    string
	APIKey string
	Sender string
	Client *http.Client
}

func (s *HTTPSMSSender) SendSMS(ctx context.Context, to, body string) error {
	return postJSON(ctx, s.Client, s.URL, s.APIKey, map[string]string{
		"from": s.Sender,
		"to":   to,
		"sms":  body,
	})
}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, payload any) error {
	if client == nil {
		client = http.DefaultClient
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}

// LogSender stands in for an unconfigured provider and only logs.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.Log.Info().Str("to", to).Str("subject", subject).Msg("email provider not configured, skipping send")
	return ErrProviderNotConfigured
}

func (s LogSender) SendSMS(_ context.Context, to, _ string) error {
	s.Log.Info().Str("to", to).Msg("sms provider not configured, skipping send")
	return ErrProviderNotConfigured
}
