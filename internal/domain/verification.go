package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	CodeDigits      = 5
	MaxCodeAttempts = 5
	DefaultCodeTTL  = 70 * time.Second
)

// Verification binds a Telegram chat to a user account through a
// short-lived numeric code. The verified flag is monotonic; once set the
// code fields are frozen and further claims are impossible because the
// partial unique index on (code) WHERE verified=false no longer covers
// the row.
type Verification struct {
	UserID     uuid.UUID
	Code       string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ChatID     *int64
	ChatHandle *string
	Attempts   int
	Verified   bool
	VerifiedAt *time.Time
}

func (v *Verification) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

func (v *Verification) AttemptsLeft(max int) int {
	left := max - v.Attempts
	if left < 0 {
		return 0
	}
	return left
}
