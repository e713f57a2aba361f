package domain_test

import (
	"testing"
	"time"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
)

func TestVerificationExpired(t *testing.T) {
	expires := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	v := &domain.Verification{ExpiresAt: expires}

	if v.Expired(expires.Add(-time.Second)) {
		t.Error("should not be expired before the deadline")
	}
	// The deadline itself is expired; a 70 second TTL means 70 seconds.
	if !v.Expired(expires) {
		t.Error("should be expired at the deadline")
	}
	if !v.Expired(expires.Add(time.Second)) {
		t.Error("should be expired after the deadline")
	}
}

func TestAttemptsLeft(t *testing.T) {
	v := &domain.Verification{Attempts: 3}
	if got := v.AttemptsLeft(5); got != 2 {
		t.Fatalf("AttemptsLeft = %d, want 2", got)
	}

	v.Attempts = 7
	if got := v.AttemptsLeft(5); got != 0 {
		t.Fatalf("AttemptsLeft floor = %d, want 0", got)
	}
}
