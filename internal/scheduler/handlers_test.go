package scheduler_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/queue"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	"github.com/muratovtemurbek/healthhub-uz/internal/scheduler"
)

// ---------- Mocks ----------

type fakeAppointments struct {
	byID map[uuid.UUID]*domain.Appointment
}

var _ repository.AppointmentRepository = (*fakeAppointments)(nil)

func (f *fakeAppointments) GetByID(_ context.Context, id uuid.UUID) (*domain.Appointment, error) {
	return f.byID[id], nil
}

func (f *fakeAppointments) CreateInSlot(_ context.Context, _ *domain.Appointment, _ func(ctx context.Context, created *domain.Appointment) error) (*domain.Appointment, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAppointments) HeldSlots(_ context.Context, _ uuid.UUID, _ time.Time) ([]domain.TimeOfDay, error) {
	return nil, nil
}

func (f *fakeAppointments) UpdateStatus(_ context.Context, _ uuid.UUID, _, _ domain.AppointmentStatus, _ string) (*domain.Appointment, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAppointments) MarkPaid(_ context.Context, _, _ uuid.UUID) (bool, error) {
	return false, errors.New("not implemented")
}

func (f *fakeAppointments) Reschedule(_ context.Context, _ uuid.UUID, _ time.Time, _ domain.TimeOfDay, _ func(ctx context.Context, moved *domain.Appointment) error) (*domain.Appointment, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAppointments) ListByPatient(_ context.Context, _ uuid.UUID, _, _ int) ([]domain.Appointment, error) {
	return nil, nil
}

func (f *fakeAppointments) ListByDoctor(_ context.Context, _ uuid.UUID, _ time.Time) ([]domain.Appointment, error) {
	return nil, nil
}

type delivered struct {
	userID uuid.UUID
	kind   domain.NotificationKind
	title  string
	body   string
}

type fakeBus struct {
	sent []delivered
}

func (b *fakeBus) Deliver(_ context.Context, userID uuid.UUID, kind domain.NotificationKind, title, body string, _ json.RawMessage) error {
	b.sent = append(b.sent, delivered{userID: userID, kind: kind, title: title, body: body})
	return nil
}

func reminderJob(kind string, payload any) queue.Job {
	raw, _ := json.Marshal(payload)
	return queue.Job{ID: uuid.New(), Kind: kind, Payload: raw, MaxAttempts: 5}
}

// ---------- Tests ----------

func TestHandleAppointmentReminderDelivers(t *testing.T) {
	patientID := uuid.New()
	a := &domain.Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		Status:    domain.AppointmentConfirmed,
		VisitDate: time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
		VisitTime: "15:00",
	}
	bus := &fakeBus{}
	d := scheduler.NewDelivery(&fakeAppointments{byID: map[uuid.UUID]*domain.Appointment{a.ID: a}}, &fakeReminderRepo{}, bus)

	job := reminderJob(scheduler.KindAppointment12H, scheduler.AppointmentReminderPayload{
		AppointmentID: a.ID,
		Kind:          scheduler.KindAppointment12H,
	})
	if err := d.HandleAppointmentReminder(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	if len(bus.sent) != 1 {
		t.Fatalf("delivered %d notifications, want 1", len(bus.sent))
	}
	got := bus.sent[0]
	if got.userID != patientID {
		t.Errorf("delivered to %s, want patient %s", got.userID, patientID)
	}
	if got.kind != domain.NotifyAppointment12H {
		t.Errorf("kind = %s, want %s", got.kind, domain.NotifyAppointment12H)
	}
}

func TestHandleAppointmentReminderAcksStaleJob(t *testing.T) {
	// Cancelled between planning and delivery: the reminder is obsolete
	// and must be acked silently, not retried.
	a := &domain.Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Status:    domain.AppointmentCancelled,
	}
	bus := &fakeBus{}
	d := scheduler.NewDelivery(&fakeAppointments{byID: map[uuid.UUID]*domain.Appointment{a.ID: a}}, &fakeReminderRepo{}, bus)

	job := reminderJob(scheduler.KindAppointment24H, scheduler.AppointmentReminderPayload{
		AppointmentID: a.ID,
		Kind:          scheduler.KindAppointment24H,
	})
	if err := d.HandleAppointmentReminder(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if len(bus.sent) != 0 {
		t.Fatalf("cancelled appointment still delivered %d notifications", len(bus.sent))
	}
}

func TestHandleAppointmentReminderMissingRow(t *testing.T) {
	bus := &fakeBus{}
	d := scheduler.NewDelivery(&fakeAppointments{byID: map[uuid.UUID]*domain.Appointment{}}, &fakeReminderRepo{}, bus)

	job := reminderJob(scheduler.KindAppointment24H, scheduler.AppointmentReminderPayload{
		AppointmentID: uuid.New(),
		Kind:          scheduler.KindAppointment24H,
	})
	if err := d.HandleAppointmentReminder(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if len(bus.sent) != 0 {
		t.Fatal("missing appointment should deliver nothing")
	}
}

func TestHandleAppointmentReminderMalformedPayload(t *testing.T) {
	d := scheduler.NewDelivery(&fakeAppointments{}, &fakeReminderRepo{}, &fakeBus{})

	job := queue.Job{ID: uuid.New(), Kind: scheduler.KindAppointment24H, Payload: []byte(`not json`)}
	if err := d.HandleAppointmentReminder(context.Background(), job); !errors.Is(err, queue.ErrDrop) {
		t.Fatalf("got %v, want ErrDrop", err)
	}
}

func TestHandleMedicineReminder(t *testing.T) {
	times, _ := domain.ParseMedicineTimes([]byte(`["08:00"]`))
	m := domain.MedicineReminder{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		DrugName:   "Amoxicillin",
		Dose:       "500mg",
		Status:     domain.MedicineActive,
		Times:      times,
		BeforeFood: true,
	}
	bus := &fakeBus{}
	d := scheduler.NewDelivery(&fakeAppointments{}, &fakeReminderRepo{active: []domain.MedicineReminder{m}}, bus)

	job := reminderJob(scheduler.KindMedicine, scheduler.MedicineReminderPayload{
		ReminderID: m.ID,
		LocalDate:  "2025-06-10",
		TimeOfDay:  "08:00",
	})
	if err := d.HandleMedicineReminder(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	if len(bus.sent) != 1 {
		t.Fatalf("delivered %d notifications, want 1", len(bus.sent))
	}
	got := bus.sent[0]
	if got.kind != domain.NotifyMedicineReminder {
		t.Errorf("kind = %s", got.kind)
	}
	if want := "Time to take Amoxicillin (500mg) at 08:00. Take before food."; got.body != want {
		t.Errorf("body = %q, want %q", got.body, want)
	}
}

func TestHandleMedicineReminderInactiveSchedule(t *testing.T) {
	times, _ := domain.ParseMedicineTimes([]byte(`["08:00"]`))
	m := domain.MedicineReminder{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Status: domain.MedicinePaused,
		Times:  times,
	}
	bus := &fakeBus{}
	d := scheduler.NewDelivery(&fakeAppointments{}, &fakeReminderRepo{active: []domain.MedicineReminder{m}}, bus)

	job := reminderJob(scheduler.KindMedicine, scheduler.MedicineReminderPayload{
		ReminderID: m.ID,
		LocalDate:  "2025-06-10",
		TimeOfDay:  "08:00",
	})
	if err := d.HandleMedicineReminder(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if len(bus.sent) != 0 {
		t.Fatal("paused schedule should deliver nothing")
	}
}
