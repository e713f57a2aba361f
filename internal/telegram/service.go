package telegram

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	"github.com/muratovtemurbek/healthhub-uz/pkg/clock"
	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
	"github.com/muratovtemurbek/healthhub-uz/pkg/events"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

// IssuedCode is what the account side shows the user next to the bot link.
type IssuedCode struct {
	Code             string    `json:"code"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

type Service interface {
	IssueCode(ctx context.Context, userID uuid.UUID) (*IssuedCode, error)
	ClaimByCode(ctx context.Context, code string, chatID int64, chatHandle string) (*domain.Verification, error)
	RecordFailedAttempt(ctx context.Context, code string) (remaining int, found bool, err error)
	LookupByChat(ctx context.Context, chatID int64) (*domain.Verification, error)
	BindUnboundChat(ctx context.Context, chatID int64, chatHandle string) (*domain.Verification, error)
}

type service struct {
	verifications repository.VerificationRepository
	users         repository.UserRepository
	eventBus      events.Publisher
	clk           clock.Clock
	cfg           config.TelegramConfig
}

func NewService(
	verifications repository.VerificationRepository,
	users repository.UserRepository,
	eventBus events.Publisher,
	clk clock.Clock,
	cfg config.TelegramConfig,
) Service {
	return &service{
		verifications: verifications,
		users:         users,
		eventBus:      eventBus,
		clk:           clk,
		cfg:           cfg,
	}
}

// IssueCode creates or refreshes the user's verification record. A call
// before expiry replaces the previous code; attempts go back to zero. A
// rare collision with another live code retries with a fresh one, since
// live codes are unique.
func (s *service) IssueCode(ctx context.Context, userID uuid.UUID) (*IssuedCode, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return nil, domain.ErrNotFound
	}
	if u.Verified {
		return nil, &domain.Error{Tag: "already_verified", Kind: domain.KindConflict, Message: "account is already verified"}
	}

	now := s.clk.Now()
	expiresAt := now.Add(s.cfg.CodeTTL)

	var issued *domain.Verification
	for attempt := 0; attempt < 3; attempt++ {
		code, err := randomCode()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}

		issued, err = s.verifications.Issue(ctx, userID, code, now, expiresAt)
		if err == nil {
			break
		}
		if repository.IsUniqueViolation(err) {
			continue
		}
		return nil, fmt.Errorf("issue code: %w", err)
	}
	if issued == nil {
		return nil, fmt.Errorf("issue code: exhausted collision retries")
	}

	return &IssuedCode{
		Code:             issued.Code,
		ExpiresAt:        issued.ExpiresAt,
		RemainingSeconds: int(issued.ExpiresAt.Sub(now).Seconds()),
	}, nil
}

// ClaimByCode flips the record and the owning user under a row lock; the
// repository serializes concurrent chats on the same code.
func (s *service) ClaimByCode(ctx context.Context, code string, chatID int64, chatHandle string) (*domain.Verification, error) {
	v, err := s.verifications.Claim(ctx, code, chatID, chatHandle, s.clk.Now(), s.cfg.MaxAttempts)
	if err != nil {
		return nil, err
	}

	if s.eventBus != nil {
		event := events.UserVerifiedEvent{UserID: v.UserID, ChatID: chatID, VerifiedAt: *v.VerifiedAt}
		if pubErr := s.eventBus.Publish(ctx, events.UserVerified, event); pubErr != nil {
			logger.ErrorContext(ctx, "failed to publish user verified event", "user_id", v.UserID, "error", pubErr)
		}
	}

	return v, nil
}

func (s *service) RecordFailedAttempt(ctx context.Context, code string) (int, bool, error) {
	attempts, found, err := s.verifications.IncrementAttempts(ctx, code, s.clk.Now())
	if err != nil || !found {
		return 0, found, err
	}
	remaining := s.cfg.MaxAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true, nil
}

func (s *service) LookupByChat(ctx context.Context, chatID int64) (*domain.Verification, error) {
	return s.verifications.GetByChat(ctx, chatID)
}

// BindUnboundChat attaches a fresh chat to the newest live record that no
// chat has claimed yet. Nil without error means there is nothing to bind
// and the chat should be onboarded instead.
func (s *service) BindUnboundChat(ctx context.Context, chatID int64, chatHandle string) (*domain.Verification, error) {
	v, err := s.verifications.NewestUnboundLive(ctx, s.clk.Now())
	if err != nil || v == nil {
		return nil, err
	}

	if err := s.verifications.BindChat(ctx, v.UserID, chatID, chatHandle); err != nil {
		// Lost a race to another chat; behave as if nothing was available.
		if de, ok := err.(*domain.Error); ok && de.Kind == domain.KindConflict {
			return nil, nil
		}
		return nil, err
	}

	v.ChatID = &chatID
	v.ChatHandle = &chatHandle
	return v, nil
}

// randomCode draws a 5-digit code from crypto/rand, zero padded.
func randomCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < domain.CodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", domain.CodeDigits, n), nil
}
