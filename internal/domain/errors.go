package domain

import "errors"

// Kind classifies an error for the retry policy: validation, conflict and
// authorization errors are surfaced to the caller and never retried,
// transient errors may be retried with bounded backoff.
type Kind int

const (
	KindValidation Kind = iota
	KindConflict
	KindAuthorization
	KindNotFound
	KindTransient
	KindInvariant
)

// Error carries a stable textual tag so the outer layer can localize
// user-visible failures without parsing messages.
type Error struct {
	Tag     string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrSlotTaken         = &Error{Tag: "slot_taken", Kind: KindConflict, Message: "slot already has a live appointment"}
	ErrInvalidSlot       = &Error{Tag: "invalid_slot", Kind: KindValidation, Message: "time is not on the doctor's schedule or date is in the past"}
	ErrDoctorUnavailable = &Error{Tag: "doctor_unavailable", Kind: KindValidation, Message: "doctor is not accepting appointments"}
	ErrNotAuthorized     = &Error{Tag: "not_authorized", Kind: KindAuthorization, Message: "actor may not perform this transition"}
	ErrStateConflict     = &Error{Tag: "state_conflict", Kind: KindConflict, Message: "transition not allowed from current state"}
	ErrNotFound          = &Error{Tag: "not_found", Kind: KindNotFound, Message: "record not found"}

	ErrCodeNotFound    = &Error{Tag: "code_not_found", Kind: KindNotFound, Message: "no live verification record matches the code"}
	ErrCodeExpired     = &Error{Tag: "code_expired", Kind: KindConflict, Message: "verification code has expired"}
	ErrTooManyAttempts = &Error{Tag: "too_many_attempts", Kind: KindConflict, Message: "attempt limit reached for this code"}

	ErrAlreadyPaid = &Error{Tag: "already_paid", Kind: KindConflict, Message: "appointment already has a completed payment"}
)

// ErrInvariant marks a broken logic invariant. Callers treat it as fatal
// for the current transaction and record a diagnostic event.
var ErrInvariant = errors.New("logic invariant violated")

// Tag extracts the stable tag from an error chain, or "internal".
func Tag(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Tag
	}
	return "internal"
}

// IsRetryable reports whether the error is worth a local retry. Tagged
// domain errors never are; anything else is assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return false
	}
	if errors.Is(err, ErrInvariant) {
		return false
	}
	return true
}
