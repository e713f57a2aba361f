package handlers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
)

const dateLayout = "2006-01-02"

type userView struct {
	ID       uuid.UUID `json:"id"`
	Login    string    `json:"login"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	Verified bool      `json:"verified"`
}

func viewUser(u *domain.User) userView {
	return userView{ID: u.ID, Login: u.Login, Email: u.Email, Role: string(u.Role), Verified: u.Verified}
}

type appointmentView struct {
	ID        uuid.UUID  `json:"id"`
	DoctorID  uuid.UUID  `json:"doctor_id"`
	PatientID uuid.UUID  `json:"patient_id"`
	Date      string     `json:"date"`
	Time      string     `json:"time"`
	Status    string     `json:"status"`
	Symptoms  string     `json:"symptoms,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Amount    int64      `json:"amount"`
	Paid      bool       `json:"paid"`
	PaymentID *uuid.UUID `json:"payment_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func viewAppointment(a *domain.Appointment) appointmentView {
	return appointmentView{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Date:      a.VisitDate.Format(dateLayout),
		Time:      string(a.VisitTime),
		Status:    string(a.Status),
		Symptoms:  a.Symptoms,
		Notes:     a.Notes,
		Amount:    a.Amount,
		Paid:      a.Paid,
		PaymentID: a.PaymentID,
		CreatedAt: a.CreatedAt,
	}
}

func viewAppointments(list []domain.Appointment) []appointmentView {
	out := make([]appointmentView, len(list))
	for i := range list {
		out[i] = viewAppointment(&list[i])
	}
	return out
}

type notificationView struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}

func viewNotifications(list []domain.Notification) []notificationView {
	out := make([]notificationView, len(list))
	for i, n := range list {
		out[i] = notificationView{
			ID: n.ID, Kind: string(n.Kind), Title: n.Title, Body: n.Body,
			Payload: n.Payload, Read: n.Read, CreatedAt: n.CreatedAt,
		}
	}
	return out
}

type reminderView struct {
	ID        uuid.UUID `json:"id"`
	DrugName  string    `json:"drug_name"`
	Dose      string    `json:"dose"`
	Times     []string  `json:"times"`
	StartDate string    `json:"start_date"`
	EndDate   *string   `json:"end_date,omitempty"`
	Status    string    `json:"status"`
}

func viewReminder(m *domain.MedicineReminder) reminderView {
	times := make([]string, len(m.Times))
	for i, t := range m.Times {
		times[i] = string(t)
	}
	v := reminderView{
		ID: m.ID, DrugName: m.DrugName, Dose: m.Dose, Times: times,
		StartDate: m.StartDate.Format(dateLayout), Status: string(m.Status),
	}
	if m.EndDate != nil {
		s := m.EndDate.Format(dateLayout)
		v.EndDate = &s
	}
	return v
}
