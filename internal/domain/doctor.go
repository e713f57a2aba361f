package domain

import (
	"time"

	"github.com/google/uuid"
)

// DoctorProfile extends a user with role=doctor. The weekly schedule blob
// is stored raw and parsed on read; Schedule is populated by the repository.
type DoctorProfile struct {
	UserID         uuid.UUID
	Specialization string
	FacilityID     uuid.UUID
	Price          int64
	Available      bool
	Timezone       string
	ScheduleRaw    []byte
	Schedule       WeeklySchedule
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Location resolves the facility time zone, falling back to UTC when the
// stored name is unknown.
func (d *DoctorProfile) Location() *time.Location {
	if d.Timezone != "" {
		if loc, err := time.LoadLocation(d.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}
