package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/queue"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	"github.com/muratovtemurbek/healthhub-uz/pkg/clock"
	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

const (
	KindAppointment24H = "appointment_reminder_24h"
	KindAppointment12H = "appointment_reminder_12h"
	KindMedicine       = "medicine_reminder"

	reminderMaxAttempts = 5
)

type AppointmentReminderPayload struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Kind          string    `json:"kind"`
}

type MedicineReminderPayload struct {
	ReminderID uuid.UUID `json:"reminder_id"`
	LocalDate  string    `json:"local_date"`
	TimeOfDay  string    `json:"time_of_day"`
}

func appointmentDedupKey(id uuid.UUID, kind string) string {
	return fmt.Sprintf("appt:%s:%s", id, kind)
}

func medicineDedupKey(id uuid.UUID, localDate, timeOfDay string) string {
	return fmt.Sprintf("med:%s:%s:%s", id, localDate, timeOfDay)
}

// Scheduler plans reminder jobs onto the queue. It is the producer side;
// delivery lives in handlers.go and runs on the queue worker pool.
type Scheduler struct {
	jobs      queue.Queue
	reminders repository.MedicineReminderRepository
	clk       clock.Clock
	cfg       config.SchedulerConfig
	loc       *time.Location
}

func New(jobs queue.Queue, reminders repository.MedicineReminderRepository, clk clock.Clock, cfg config.SchedulerConfig) *Scheduler {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown scheduler timezone, falling back to UTC", "tz", cfg.Timezone)
		loc = time.UTC
	}
	return &Scheduler{
		jobs:      jobs,
		reminders: reminders,
		clk:       clk,
		cfg:       cfg,
		loc:       loc,
	}
}

// ScheduleAppointment enqueues the 24h and 12h reminders. Instants already
// past run immediately when inside the grace window and are dropped with a
// warning otherwise.
func (s *Scheduler) ScheduleAppointment(ctx context.Context, a *domain.Appointment) error {
	startsAt := a.StartsAt()

	plan := []struct {
		kind   string
		offset time.Duration
	}{
		{KindAppointment24H, 24 * time.Hour},
		{KindAppointment12H, 12 * time.Hour},
	}

	for _, p := range plan {
		runAt := startsAt.Add(-p.offset)
		if err := s.enqueueAt(ctx, appointmentDedupKey(a.ID, p.kind), p.kind, runAt,
			AppointmentReminderPayload{AppointmentID: a.ID, Kind: p.kind}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) CancelAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	for _, kind := range []string{KindAppointment24H, KindAppointment12H} {
		if err := s.jobs.Cancel(ctx, appointmentDedupKey(appointmentID, kind)); err != nil {
			return fmt.Errorf("cancel %s: %w", kind, err)
		}
	}
	return nil
}

func (s *Scheduler) enqueueAt(ctx context.Context, dedupKey, kind string, runAt time.Time, payload any) error {
	now := s.clk.Now()
	if runAt.Before(now) {
		if now.Sub(runAt) > s.cfg.GraceWindow {
			logger.WarnContext(ctx, "reminder instant too far past, dropping",
				"dedup_key", dedupKey, "run_at", runAt, "now", now)
			return nil
		}
		runAt = now
	}

	err := s.jobs.Enqueue(ctx, dedupKey, kind, runAt, payload, reminderMaxAttempts)
	if errors.Is(err, queue.ErrAlreadyScheduled) {
		return nil
	}
	return err
}

// Run drives the periodic medicine scan until ctx is cancelled. One tick
// runs at startup so a restart does not wait a full period.
func (s *Scheduler) Run(ctx context.Context) error {
	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.MedicineTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	if err := s.ScanMedicineReminders(ctx); err != nil && ctx.Err() == nil {
		logger.ErrorContext(ctx, "medicine reminder scan failed", "error", err)
		return
	}
	logger.DebugContext(ctx, "medicine reminder scan complete", "elapsed", time.Since(start))
}

// ScanMedicineReminders enqueues one delivery per configured time-of-day
// that falls within half a tick period of the current wall clock. The
// dedup key (reminder, local date, time) makes a duplicate tick harmless.
func (s *Scheduler) ScanMedicineReminders(ctx context.Context) error {
	today := s.clk.Today(s.loc)

	if n, err := s.reminders.CompletePastEndDate(ctx, today); err != nil {
		logger.WarnContext(ctx, "failed to complete expired schedules", "error", err)
	} else if n > 0 {
		logger.InfoContext(ctx, "completed expired medicine schedules", "count", n)
	}

	active, err := s.reminders.ListActiveOn(ctx, today)
	if err != nil {
		return fmt.Errorf("list active reminders: %w", err)
	}

	now := s.clk.Now()
	window := s.cfg.MedicineTick / 2
	localDate := today.Format("2006-01-02")

	for _, m := range active {
		for _, t := range m.Times {
			at := t.At(today)
			diff := at.Sub(now)
			if diff < -window || diff > window {
				continue
			}
			runAt := at
			if runAt.Before(now) {
				runAt = now
			}
			err := s.jobs.Enqueue(ctx, medicineDedupKey(m.ID, localDate, string(t)), KindMedicine, runAt,
				MedicineReminderPayload{ReminderID: m.ID, LocalDate: localDate, TimeOfDay: string(t)},
				reminderMaxAttempts)
			if err != nil && !errors.Is(err, queue.ErrAlreadyScheduled) {
				return fmt.Errorf("enqueue medicine reminder %s: %w", m.ID, err)
			}
		}
	}
	return nil
}
