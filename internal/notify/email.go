package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mailersend/mailersend-go"

	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

type MailerSendClient struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

func NewMailerSend(cfg config.EmailConfig) *MailerSendClient {
	m := &MailerSendClient{
		enabled: cfg.MailerSendKey != "" && cfg.FromEmail != "",
		from: mailersend.From{
			Name:  cfg.FromName,
			Email: cfg.FromEmail,
		},
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(cfg.MailerSendKey)
	}

	return m
}

func (m *MailerSendClient) Send(ctx context.Context, toEmail, toName, subject, text string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)
	msg.SetText(text)

	_, err := m.client.Email.Send(ctx, msg)
	return err
}

// DevMailer prints emails to the log instead of sending them.
type DevMailer struct{}

func (DevMailer) Send(ctx context.Context, toEmail, toName, subject, text string) error {
	logger.InfoContext(ctx, "dev email", "to", toEmail, "subject", subject, "body", text)
	return nil
}
