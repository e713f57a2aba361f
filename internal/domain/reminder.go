package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type MedicineReminderStatus string

const (
	MedicineActive    MedicineReminderStatus = "active"
	MedicinePaused    MedicineReminderStatus = "paused"
	MedicineCompleted MedicineReminderStatus = "completed"
)

// MedicineReminder is a patient's recurring medication schedule. Only
// active schedules whose date window contains today produce queue jobs.
type MedicineReminder struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	DrugName   string
	Dose       string
	TimesRaw   []byte
	Times      []TimeOfDay
	StartDate  time.Time
	EndDate    *time.Time
	Status     MedicineReminderStatus
	WithFood   bool
	BeforeFood bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ParseMedicineTimes decodes the stored times-of-day set and rejects
// malformed entries at the boundary.
func ParseMedicineTimes(raw []byte) ([]TimeOfDay, error) {
	var times []string
	if err := json.Unmarshal(raw, &times); err != nil {
		return nil, &Error{Tag: "invalid_times", Kind: KindValidation, Message: "times blob is not a string array"}
	}
	out := make([]TimeOfDay, 0, len(times))
	for _, s := range times {
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ActiveOn reports whether the schedule should fire on the given local date.
func (m *MedicineReminder) ActiveOn(date time.Time) bool {
	if m.Status != MedicineActive {
		return false
	}
	if date.Before(m.StartDate) {
		return false
	}
	if m.EndDate != nil && date.After(*m.EndDate) {
		return false
	}
	return true
}
