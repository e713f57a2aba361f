package domain

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// Live reports whether the appointment still holds its slot.
func (s AppointmentStatus) Live() bool {
	return s == AppointmentPending || s == AppointmentConfirmed
}

func (s AppointmentStatus) Terminal() bool {
	switch s {
	case AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	}
	return false
}

// CanTransitionTo encodes the state machine. Terminal states admit nothing.
func (s AppointmentStatus) CanTransitionTo(to AppointmentStatus) bool {
	switch s {
	case AppointmentPending:
		return to == AppointmentConfirmed || to == AppointmentCancelled
	case AppointmentConfirmed:
		return to == AppointmentCompleted || to == AppointmentCancelled || to == AppointmentNoShow
	}
	return false
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	VisitDate time.Time // midnight in the facility time zone
	VisitTime TimeOfDay
	Status    AppointmentStatus
	Symptoms  string
	Notes     string
	Amount    int64
	Paid      bool
	PaymentID *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartsAt is the full wall-clock instant of the visit.
func (a *Appointment) StartsAt() time.Time {
	return a.VisitTime.At(a.VisitDate)
}

// AuthorizeTransition checks actor authority for a target state: patients
// may only cancel their own appointment, doctors only act on their own
// calendar, admins may do anything.
func (a *Appointment) AuthorizeTransition(actor *User, to AppointmentStatus) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RolePatient:
		if actor.ID != a.PatientID {
			return ErrNotAuthorized
		}
		if to != AppointmentCancelled {
			return ErrNotAuthorized
		}
		return nil
	case RoleDoctor:
		if actor.ID != a.DoctorID {
			return ErrNotAuthorized
		}
		switch to {
		case AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
			return nil
		}
		return ErrNotAuthorized
	}
	return ErrNotAuthorized
}
