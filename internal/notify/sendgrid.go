package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

// SendGridEmailSender delivers plain-text email through the SendGrid v3 API.
type SendGridEmailSender struct {
	APIKey   string
	From     string
	FromName string
	Host     string // defaults to the public API
}

func (s *SendGridEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if body == "" {
		body = "\t"
	}
	if subject == "" {
		subject = " "
	}

	m := mail.NewV3MailInit(
		mail.NewEmail(s.FromName, s.From), subject,
		mail.NewEmail("", to),
		mail.NewContent("text/plain", body))

	host := s.Host
	if host == "" {
		host = sendGridHost
	}
	req := sendgrid.GetRequest(s.APIKey, "/v3/mail/send", host)
	req.Method = "POST"
	req.Body = mail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: unexpected status %d", resp.StatusCode)
	}
	return nil
}
