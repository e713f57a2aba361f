package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

// Bus fans a notification out to the user's channels. The in-app inbox row
// is the primary write: if it fails, Deliver fails; if a side channel
// fails afterwards the failure is recorded on the row and Deliver still
// succeeds.
type Bus interface {
	Deliver(ctx context.Context, userID uuid.UUID, kind domain.NotificationKind, title, body string, payload json.RawMessage) error
}

// Transport pushes a plain-text message to a Telegram chat. The HTTP
// implementation lives outside the core.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Mailer sends a transactional email.
type Mailer interface {
	Send(ctx context.Context, toEmail, toName, subject, text string) error
}

type bus struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	verifications repository.VerificationRepository
	telegram      Transport
	mailer        Mailer
}

func NewBus(
	notifications repository.NotificationRepository,
	users repository.UserRepository,
	verifications repository.VerificationRepository,
	telegram Transport,
	mailer Mailer,
) Bus {
	return &bus{
		notifications: notifications,
		users:         users,
		verifications: verifications,
		telegram:      telegram,
		mailer:        mailer,
	}
}

func (b *bus) Deliver(ctx context.Context, userID uuid.UUID, kind domain.NotificationKind, title, body string, payload json.RawMessage) error {
	n, err := b.notifications.Create(ctx, userID, kind, title, body, payload)
	if err != nil {
		return fmt.Errorf("write inbox notification: %w", err)
	}

	note := ""

	if b.telegram != nil {
		if err := b.pushTelegram(ctx, userID, title, body); err != nil {
			logger.WarnContext(ctx, "telegram push failed", "user_id", userID, "kind", kind, "error", err)
			note = "telegram: " + err.Error()
		}
	}

	if b.mailer != nil {
		if err := b.sendEmail(ctx, userID, title, body); err != nil {
			logger.WarnContext(ctx, "email send failed", "user_id", userID, "kind", kind, "error", err)
			if note != "" {
				note += "; "
			}
			note += "email: " + err.Error()
		}
	}

	if note != "" {
		if err := b.notifications.SetDeliveryNote(ctx, n.ID, note); err != nil {
			logger.ErrorContext(ctx, "failed to record delivery note", "notification_id", n.ID, "error", err)
		}
	}

	return nil
}

func (b *bus) pushTelegram(ctx context.Context, userID uuid.UUID, title, body string) error {
	v, err := b.verifications.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	if v == nil || !v.Verified || v.ChatID == nil {
		// No bound chat is not a failure, the user simply has no channel.
		return nil
	}
	return b.telegram.SendMessage(ctx, *v.ChatID, title+"\n\n"+body)
}

func (b *bus) sendEmail(ctx context.Context, userID uuid.UUID, title, body string) error {
	u, err := b.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil || u.Email == "" {
		return nil
	}
	return b.mailer.Send(ctx, u.Email, u.Login, title, body)
}
