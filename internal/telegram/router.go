package telegram

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

var codePattern = regexp.MustCompile(`^\d{5}$`)

const helpText = `Available commands:
/start - link this chat to your HealthHub account
/status - show your verification status
/help - this message

If you have a verification code from the app, just send it as a message.`

const onboardingText = `Welcome to HealthHub!

Open the HealthHub app, go to Profile → Telegram verification and request
a code, then send the 5-digit code here.`

// Router turns inbound chat messages into verification actions and reply
// text. The webhook/long-poll transport invoking it is external; replies
// are plain text with lightweight markup.
type Router struct {
	svc   Service
	users repository.UserRepository
}

func NewRouter(svc Service, users repository.UserRepository) *Router {
	return &Router{svc: svc, users: users}
}

func (r *Router) HandleInboundMessage(ctx context.Context, chatID int64, chatHandle, firstName, text string) string {
	ctx = context.WithValue(ctx, logger.ChatIDKey, chatID)
	text = strings.TrimSpace(text)

	switch {
	case text == "/start":
		return r.handleStart(ctx, chatID, chatHandle, firstName)
	case text == "/status":
		return r.handleStatus(ctx, chatID)
	case text == "/help":
		return helpText
	case codePattern.MatchString(text):
		return r.handleCode(ctx, chatID, chatHandle, text)
	default:
		return helpText
	}
}

// handleStart is idempotent: a chat already bound to a record gets that
// record's state back instead of consuming a fresh one.
func (r *Router) handleStart(ctx context.Context, chatID int64, chatHandle, firstName string) string {
	bound, err := r.svc.LookupByChat(ctx, chatID)
	if err != nil {
		logger.ErrorContext(ctx, "chat lookup failed", "error", err)
		return "Something went wrong, please try again."
	}
	if bound != nil {
		if bound.Verified {
			return fmt.Sprintf("Hi %s, this chat is already verified.", firstName)
		}
		return fmt.Sprintf("Your verification code is *%s*. Send it back here to confirm.", bound.Code)
	}

	v, err := r.svc.BindUnboundChat(ctx, chatID, chatHandle)
	if err != nil {
		logger.ErrorContext(ctx, "chat bind failed", "error", err)
		return "Something went wrong, please try again."
	}
	if v == nil {
		return onboardingText
	}
	return fmt.Sprintf("Hi %s! Your verification code is *%s*. Send it back here to confirm.", firstName, v.Code)
}

func (r *Router) handleStatus(ctx context.Context, chatID int64) string {
	v, err := r.svc.LookupByChat(ctx, chatID)
	if err != nil {
		logger.ErrorContext(ctx, "chat lookup failed", "error", err)
		return "Something went wrong, please try again."
	}
	if v == nil || !v.Verified {
		return "This chat is not verified."
	}

	u, err := r.users.FindByID(ctx, v.UserID)
	if err != nil || u == nil {
		return "Verified, but the account could not be loaded."
	}
	return fmt.Sprintf("Verified ✅\nAccount: %s\nEmail: %s", u.Login, u.Email)
}

func (r *Router) handleCode(ctx context.Context, chatID int64, chatHandle, code string) string {
	_, err := r.svc.ClaimByCode(ctx, code, chatID, chatHandle)
	if err == nil {
		return "Your account is verified. Welcome to HealthHub! ✅"
	}

	switch {
	case errors.Is(err, domain.ErrCodeExpired):
		return "This code has expired. Request a new one in the app."
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "No attempts remaining for this code. Request a new one in the app."
	case errors.Is(err, domain.ErrCodeNotFound):
		return r.recordFailure(ctx, chatID)
	default:
		logger.ErrorContext(ctx, "code claim failed", "error", err)
		return "Something went wrong, please try again."
	}
}

// recordFailure counts a wrong guess against the code currently bound to
// this chat, so a brute-forcing chat burns its own record's attempts.
func (r *Router) recordFailure(ctx context.Context, chatID int64) string {
	bound, err := r.svc.LookupByChat(ctx, chatID)
	if err != nil {
		logger.ErrorContext(ctx, "chat lookup failed", "error", err)
		return "Wrong code."
	}
	if bound == nil || bound.Verified {
		return "Wrong code. Request a code in the app and send it here."
	}

	remaining, found, err := r.svc.RecordFailedAttempt(ctx, bound.Code)
	if err != nil {
		logger.ErrorContext(ctx, "failed attempt record failed", "error", err)
		return "Wrong code."
	}
	if !found {
		return "Wrong code. Your current code may have expired; request a new one."
	}
	if remaining == 0 {
		return "Wrong code. No attempts remaining; request a new code in the app."
	}
	return fmt.Sprintf("Wrong code. %d attempts remaining.", remaining)
}
