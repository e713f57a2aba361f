package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotifyBookingReceived  NotificationKind = "booking_received"
	NotifyNewRequest       NotificationKind = "new_request"
	NotifyAppointment24H   NotificationKind = "appointment_reminder_24h"
	NotifyAppointment12H   NotificationKind = "appointment_reminder_12h"
	NotifyMedicineReminder NotificationKind = "medicine_reminder"
	NotifyPaymentReceived  NotificationKind = "payment_received"
)

// Notification is an inbox row. The read flag only ever flips false→true
// and the row is never mutated after being read. DeliveryNote records a
// side-channel failure (e.g. Telegram push) without rolling back the row.
type Notification struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Kind         NotificationKind
	Title        string
	Body         string
	Payload      json.RawMessage
	Read         bool
	DeliveryNote string
	CreatedAt    time.Time
	ReadAt       *time.Time
}
