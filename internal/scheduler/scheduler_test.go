package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/queue"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	"github.com/muratovtemurbek/healthhub-uz/internal/scheduler"
	"github.com/muratovtemurbek/healthhub-uz/pkg/clock"
	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
)

// ---------- Mocks ----------

type enqueued struct {
	dedupKey string
	kind     string
	runAfter time.Time
}

// fakeQueue mirrors the store's dedup contract: pending jobs and delivered
// tombstones both hold their dedup key, Cancel frees it.
type fakeQueue struct {
	jobs      []enqueued
	cancelled []string
	status    map[string]string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{status: make(map[string]string)}
}

func (q *fakeQueue) Enqueue(_ context.Context, dedupKey, kind string, runAfter time.Time, _ any, _ int) error {
	if q.status[dedupKey] != "" {
		return queue.ErrAlreadyScheduled
	}
	q.status[dedupKey] = "pending"
	q.jobs = append(q.jobs, enqueued{dedupKey: dedupKey, kind: kind, runAfter: runAfter})
	return nil
}

func (q *fakeQueue) Cancel(_ context.Context, dedupKey string) error {
	delete(q.status, dedupKey)
	q.cancelled = append(q.cancelled, dedupKey)
	return nil
}

// deliver acks a job the way the worker does: the row becomes a tombstone
// that still occupies the dedup key.
func (q *fakeQueue) deliver(dedupKey string) {
	if q.status[dedupKey] == "pending" {
		q.status[dedupKey] = "delivered"
	}
}

type fakeReminderRepo struct {
	active    []domain.MedicineReminder
	completed int64
}

var _ repository.MedicineReminderRepository = (*fakeReminderRepo)(nil)

func (r *fakeReminderRepo) Create(_ context.Context, m *domain.MedicineReminder) (*domain.MedicineReminder, error) {
	return m, nil
}

func (r *fakeReminderRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.MedicineReminder, error) {
	for i := range r.active {
		if r.active[i].ID == id {
			return &r.active[i], nil
		}
	}
	return nil, nil
}

func (r *fakeReminderRepo) ListActiveOn(_ context.Context, _ time.Time) ([]domain.MedicineReminder, error) {
	return r.active, nil
}

func (r *fakeReminderRepo) SetStatus(_ context.Context, _, _ uuid.UUID, _ domain.MedicineReminderStatus) error {
	return nil
}

func (r *fakeReminderRepo) CompletePastEndDate(_ context.Context, _ time.Time) (int64, error) {
	return r.completed, nil
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		MedicineTick: 30 * time.Minute,
		GraceWindow:  5 * time.Minute,
		Timezone:     "UTC",
	}
}

// ---------- Tests ----------

func TestScheduleAppointmentPlansBothReminders(t *testing.T) {
	q := newFakeQueue()
	clk := clock.NewFixed(time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC))
	s := scheduler.New(q, &fakeReminderRepo{}, clk, testConfig())

	a := &domain.Appointment{
		ID:        uuid.New(),
		VisitDate: time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
		VisitTime: "15:00",
	}
	if err := s.ScheduleAppointment(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	if len(q.jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(q.jobs))
	}

	starts := a.StartsAt()
	want24 := starts.Add(-24 * time.Hour)
	want12 := starts.Add(-12 * time.Hour)
	if !q.jobs[0].runAfter.Equal(want24) {
		t.Errorf("24h reminder at %v, want %v", q.jobs[0].runAfter, want24)
	}
	if !q.jobs[1].runAfter.Equal(want12) {
		t.Errorf("12h reminder at %v, want %v", q.jobs[1].runAfter, want12)
	}
}

func TestScheduleAppointmentReplanIsDeduplicated(t *testing.T) {
	q := newFakeQueue()
	clk := clock.NewFixed(time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC))
	s := scheduler.New(q, &fakeReminderRepo{}, clk, testConfig())

	a := &domain.Appointment{
		ID:        uuid.New(),
		VisitDate: time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
		VisitTime: "15:00",
	}
	if err := s.ScheduleAppointment(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if err := s.ScheduleAppointment(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	if len(q.jobs) != 2 {
		t.Fatalf("replan enqueued duplicates: %d jobs", len(q.jobs))
	}
}

func TestScheduleAppointmentPastInstants(t *testing.T) {
	// Booked 13 hours before the visit: the 24h instant is long past and
	// dropped, the 12h instant is still ahead.
	q := newFakeQueue()
	now := time.Date(2025, 6, 11, 2, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	s := scheduler.New(q, &fakeReminderRepo{}, clk, testConfig())

	a := &domain.Appointment{
		ID:        uuid.New(),
		VisitDate: time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
		VisitTime: "15:00",
	}
	if err := s.ScheduleAppointment(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	if len(q.jobs) != 1 {
		t.Fatalf("got %d jobs, want only the 12h reminder", len(q.jobs))
	}
	if q.jobs[0].kind != scheduler.KindAppointment12H {
		t.Fatalf("kept job kind = %s", q.jobs[0].kind)
	}
}

func TestScheduleAppointmentGraceWindow(t *testing.T) {
	// The 12h instant slipped 2 minutes into the past, inside the grace
	// window, so it runs immediately instead of being dropped.
	q := newFakeQueue()
	now := time.Date(2025, 6, 11, 3, 2, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	s := scheduler.New(q, &fakeReminderRepo{}, clk, testConfig())

	a := &domain.Appointment{
		ID:        uuid.New(),
		VisitDate: time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
		VisitTime: "15:00",
	}
	if err := s.ScheduleAppointment(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	if len(q.jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(q.jobs))
	}
	if !q.jobs[0].runAfter.Equal(now) {
		t.Fatalf("grace window job runs at %v, want now %v", q.jobs[0].runAfter, now)
	}
}

func TestCancelAppointmentWithdrawsBothKinds(t *testing.T) {
	q := newFakeQueue()
	clk := clock.NewFixed(time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC))
	s := scheduler.New(q, &fakeReminderRepo{}, clk, testConfig())

	id := uuid.New()
	a := &domain.Appointment{
		ID:        id,
		VisitDate: time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
		VisitTime: "15:00",
	}
	if err := s.ScheduleAppointment(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if err := s.CancelAppointment(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	if len(q.cancelled) != 2 {
		t.Fatalf("cancelled %d keys, want 2", len(q.cancelled))
	}
}

func TestScanMedicineReminders(t *testing.T) {
	q := newFakeQueue()
	// 08:10 local; the tick window is ±15 minutes, so 08:00 is in and
	// 20:00 is out.
	now := time.Date(2025, 6, 10, 8, 10, 0, 0, time.UTC)
	clk := clock.NewFixed(now)

	times, _ := domain.ParseMedicineTimes([]byte(`["08:00", "20:00"]`))
	repo := &fakeReminderRepo{active: []domain.MedicineReminder{{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		DrugName:  "Metformin",
		Status:    domain.MedicineActive,
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Times:     times,
	}}}

	s := scheduler.New(q, repo, clk, testConfig())
	if err := s.ScanMedicineReminders(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(q.jobs) != 1 {
		t.Fatalf("got %d jobs, want 1 (only the 08:00 dose)", len(q.jobs))
	}
	if q.jobs[0].kind != scheduler.KindMedicine {
		t.Fatalf("job kind = %s", q.jobs[0].kind)
	}
	// The 08:00 instant is 10 minutes past; delivery is immediate.
	if !q.jobs[0].runAfter.Equal(now) {
		t.Fatalf("runAfter = %v, want %v", q.jobs[0].runAfter, now)
	}

	// A second tick in the same window must not double-book the dose.
	if err := s.ScanMedicineReminders(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("duplicate tick enqueued again: %d jobs", len(q.jobs))
	}
}

func TestScanMedicineRemindersAfterDelivery(t *testing.T) {
	// The dose is delivered between two ticks of the same window. The
	// delivered job must keep holding the dedup key, or the second tick
	// would notify the patient twice.
	q := newFakeQueue()
	clk := clock.NewFixed(time.Date(2025, 6, 10, 8, 5, 0, 0, time.UTC))

	times, _ := domain.ParseMedicineTimes([]byte(`["08:00"]`))
	repo := &fakeReminderRepo{active: []domain.MedicineReminder{{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		DrugName:  "Amoxicillin",
		Status:    domain.MedicineActive,
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Times:     times,
	}}}

	s := scheduler.New(q, repo, clk, testConfig())
	if err := s.ScanMedicineReminders(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(q.jobs))
	}

	q.deliver(q.jobs[0].dedupKey)
	clk.Advance(5 * time.Minute)

	if err := s.ScanMedicineReminders(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("dose enqueued %d times in one window, want 1", len(q.jobs))
	}
}

func TestReplanAfterCancelOfDeliveredReminder(t *testing.T) {
	// Withdrawing reminders clears delivered tombstones too, so a moved
	// appointment can be planned afresh even when a reminder already fired.
	q := newFakeQueue()
	clk := clock.NewFixed(time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC))
	s := scheduler.New(q, &fakeReminderRepo{}, clk, testConfig())

	a := &domain.Appointment{
		ID:        uuid.New(),
		VisitDate: time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
		VisitTime: "15:00",
	}
	if err := s.ScheduleAppointment(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	q.deliver(q.jobs[0].dedupKey)

	if err := s.CancelAppointment(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.ScheduleAppointment(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if len(q.jobs) != 4 {
		t.Fatalf("got %d jobs, want 4 (both kinds planned twice)", len(q.jobs))
	}
}
