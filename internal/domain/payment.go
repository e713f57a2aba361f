package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentStatusDone PaymentStatus = "completed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusDone, PaymentCancelled, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// Payment weakly references an appointment and may outlive it. At most one
// payment per appointment reaches completed; a partial unique index
// enforces it.
type Payment struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	AppointmentID *uuid.UUID
	Amount        int64
	Provider      string
	Status        PaymentStatus
	ProviderTxID  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
