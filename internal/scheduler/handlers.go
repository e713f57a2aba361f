package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/notify"
	"github.com/muratovtemurbek/healthhub-uz/internal/queue"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

// Delivery consumes reminder jobs and turns them into notifications. The
// bus owns partial-failure semantics: once the inbox row exists the job is
// acked even if a side channel failed.
type Delivery struct {
	appointments repository.AppointmentRepository
	reminders    repository.MedicineReminderRepository
	bus          notify.Bus
}

func NewDelivery(appointments repository.AppointmentRepository, reminders repository.MedicineReminderRepository, bus notify.Bus) *Delivery {
	return &Delivery{
		appointments: appointments,
		reminders:    reminders,
		bus:          bus,
	}
}

func (d *Delivery) Register(w *queue.Worker) {
	w.Register(KindAppointment24H, d.HandleAppointmentReminder)
	w.Register(KindAppointment12H, d.HandleAppointmentReminder)
	w.Register(KindMedicine, d.HandleMedicineReminder)
}

// HandleAppointmentReminder re-reads the appointment at delivery time; a
// reminder that outlived a cancellation is a silent ack, not an error.
func (d *Delivery) HandleAppointmentReminder(ctx context.Context, job queue.Job) error {
	var p AppointmentReminderPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		logger.ErrorContext(ctx, "malformed appointment reminder payload", "dedup_key", job.DedupKey, "error", err)
		return queue.ErrDrop
	}

	a, err := d.appointments.GetByID(ctx, p.AppointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if a == nil || !a.Status.Live() {
		return nil
	}

	kind := domain.NotifyAppointment24H
	hours := "24 hours"
	if p.Kind == KindAppointment12H {
		kind = domain.NotifyAppointment12H
		hours = "12 hours"
	}

	payload, _ := json.Marshal(map[string]string{"appointment_id": a.ID.String()})
	return d.bus.Deliver(ctx, a.PatientID, kind,
		"Upcoming appointment",
		fmt.Sprintf("Your appointment is in %s: %s at %s.", hours, a.VisitDate.Format("2006-01-02"), a.VisitTime),
		payload)
}

func (d *Delivery) HandleMedicineReminder(ctx context.Context, job queue.Job) error {
	var p MedicineReminderPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		logger.ErrorContext(ctx, "malformed medicine reminder payload", "dedup_key", job.DedupKey, "error", err)
		return queue.ErrDrop
	}

	m, err := d.reminders.GetByID(ctx, p.ReminderID)
	if err != nil {
		return fmt.Errorf("load medicine reminder: %w", err)
	}
	if m == nil || m.Status != domain.MedicineActive {
		return nil
	}

	body := fmt.Sprintf("Time to take %s (%s) at %s.", m.DrugName, m.Dose, p.TimeOfDay)
	switch {
	case m.BeforeFood:
		body += " Take before food."
	case m.WithFood:
		body += " Take with food."
	}

	payload, _ := json.Marshal(map[string]string{
		"reminder_id": m.ID.String(),
		"time_of_day": p.TimeOfDay,
	})
	return d.bus.Deliver(ctx, m.UserID, domain.NotifyMedicineReminder, "Medicine reminder", body, payload)
}
