package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/notify"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	"github.com/muratovtemurbek/healthhub-uz/pkg/clock"
	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
	"github.com/muratovtemurbek/healthhub-uz/pkg/events"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
	"github.com/muratovtemurbek/healthhub-uz/pkg/redislock"
)

// ReminderPlanner is the scheduler hook the booking core drives: reminders
// are planned on create, re-planned on reschedule and withdrawn when the
// appointment stops being live. Plan and re-plan calls arrive inside the
// reservation transaction; the queue writes through it via the context.
type ReminderPlanner interface {
	ScheduleAppointment(ctx context.Context, a *domain.Appointment) error
	CancelAppointment(ctx context.Context, appointmentID uuid.UUID) error
}

type Service interface {
	CreateAppointment(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time, visitTime domain.TimeOfDay, symptoms string) (*domain.Appointment, error)
	ConfirmAppointment(ctx context.Context, id, actorID uuid.UUID) (*domain.Appointment, error)
	CompleteAppointment(ctx context.Context, id, actorID uuid.UUID) (*domain.Appointment, error)
	CancelAppointment(ctx context.Context, id, actorID uuid.UUID, reason string) (*domain.Appointment, error)
	NoShow(ctx context.Context, id, actorID uuid.UUID) (*domain.Appointment, error)
	Reschedule(ctx context.Context, id, actorID uuid.UUID, newDate time.Time, newTime domain.TimeOfDay) (*domain.Appointment, error)
	MarkPaid(ctx context.Context, appointmentID, paymentID uuid.UUID) error
	ListDoctorSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.TimeOfDay, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*domain.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]domain.Appointment, error)
}

type service struct {
	appointments repository.AppointmentRepository
	doctors      repository.DoctorRepository
	users        repository.UserRepository
	locker       redislock.Locker
	planner      ReminderPlanner
	bus          notify.Bus
	eventBus     events.Publisher
	clk          clock.Clock
	cfg          config.BookingConfig
}

func NewService(
	appointments repository.AppointmentRepository,
	doctors repository.DoctorRepository,
	users repository.UserRepository,
	locker redislock.Locker,
	planner ReminderPlanner,
	bus notify.Bus,
	eventBus events.Publisher,
	clk clock.Clock,
	cfg config.BookingConfig,
) Service {
	return &service{
		appointments: appointments,
		doctors:      doctors,
		users:        users,
		locker:       locker,
		planner:      planner,
		bus:          bus,
		eventBus:     eventBus,
		clk:          clk,
		cfg:          cfg,
	}
}

func slotKey(doctorID uuid.UUID, date time.Time, t domain.TimeOfDay) string {
	return fmt.Sprintf("slot:%s:%s:%s", doctorID, date.Format("2006-01-02"), t)
}

// CreateAppointment reserves a (doctor, date, time) slot. The partial
// unique index on live appointments is the safe primitive: two
// simultaneous inserts cannot both commit. The redis lock in front of it
// keeps contenders from burning insert attempts, nothing more. Reminder
// planning runs inside the reservation transaction, so a committed
// appointment always has its jobs and a failed plan frees the slot.
func (s *service) CreateAppointment(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time, visitTime domain.TimeOfDay, symptoms string) (*domain.Appointment, error) {
	patient, err := s.users.FindByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if patient == nil || !patient.Active {
		return nil, domain.ErrNotFound
	}

	profile, err := s.doctors.GetProfile(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor profile: %w", err)
	}
	if profile == nil {
		return nil, domain.ErrNotFound
	}
	if !profile.Available {
		return nil, domain.ErrDoctorUnavailable
	}

	if err := s.validateSlot(profile, date, visitTime); err != nil {
		return nil, err
	}

	var created *domain.Appointment

	err = s.locker.WithLock(ctx, slotKey(doctorID, date, visitTime), func(lockCtx context.Context) error {
		return s.withRetry(lockCtx, func() error {
			a, err := s.appointments.CreateInSlot(lockCtx, &domain.Appointment{
				DoctorID:  doctorID,
				PatientID: patientID,
				VisitDate: date,
				VisitTime: visitTime,
				Symptoms:  symptoms,
				Amount:    profile.Price,
			}, func(txCtx context.Context, a *domain.Appointment) error {
				return s.planner.ScheduleAppointment(txCtx, a)
			})
			if err != nil {
				return err
			}
			created = a
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotAcquired) {
			// Another request holds the slot critical section; from the
			// caller's view the slot is contended.
			return nil, domain.ErrSlotTaken
		}
		return nil, err
	}

	s.afterCreate(ctx, created)
	return created, nil
}

func (s *service) validateSlot(profile *domain.DoctorProfile, date time.Time, visitTime domain.TimeOfDay) error {
	if _, err := domain.ParseTimeOfDay(string(visitTime)); err != nil {
		return err
	}
	today := s.clk.Today(profile.Location())
	if date.Before(today) {
		return domain.ErrInvalidSlot
	}
	if !profile.Schedule.Admits(date.Weekday(), visitTime) {
		return domain.ErrInvalidSlot
	}
	return nil
}

func (s *service) afterCreate(ctx context.Context, a *domain.Appointment) {
	payload, _ := json.Marshal(map[string]string{"appointment_id": a.ID.String()})
	if err := s.bus.Deliver(ctx, a.PatientID, domain.NotifyBookingReceived,
		"Booking received", fmt.Sprintf("Your appointment on %s at %s is awaiting confirmation.", a.VisitDate.Format("2006-01-02"), a.VisitTime), payload); err != nil {
		logger.ErrorContext(ctx, "failed to notify patient", "appointment_id", a.ID, "error", err)
	}
	if err := s.bus.Deliver(ctx, a.DoctorID, domain.NotifyNewRequest,
		"New appointment request", fmt.Sprintf("New request for %s at %s.", a.VisitDate.Format("2006-01-02"), a.VisitTime), payload); err != nil {
		logger.ErrorContext(ctx, "failed to notify doctor", "appointment_id", a.ID, "error", err)
	}

	s.publish(ctx, events.AppointmentCreated, events.AppointmentCreatedEvent{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		VisitDate:     a.VisitDate.Format("2006-01-02"),
		VisitTime:     string(a.VisitTime),
		CreatedAt:     a.CreatedAt,
	})
}

func (s *service) ConfirmAppointment(ctx context.Context, id, actorID uuid.UUID) (*domain.Appointment, error) {
	return s.transition(ctx, id, actorID, domain.AppointmentConfirmed, "")
}

func (s *service) CompleteAppointment(ctx context.Context, id, actorID uuid.UUID) (*domain.Appointment, error) {
	return s.transition(ctx, id, actorID, domain.AppointmentCompleted, "")
}

func (s *service) CancelAppointment(ctx context.Context, id, actorID uuid.UUID, reason string) (*domain.Appointment, error) {
	return s.transition(ctx, id, actorID, domain.AppointmentCancelled, reason)
}

func (s *service) NoShow(ctx context.Context, id, actorID uuid.UUID) (*domain.Appointment, error) {
	return s.transition(ctx, id, actorID, domain.AppointmentNoShow, "")
}

// transition drives the state machine with a compare-and-swap on the
// current status. Replaying a transition that already happened is a no-op
// success; anything else that loses the swap is a state conflict.
func (s *service) transition(ctx context.Context, id, actorID uuid.UUID, to domain.AppointmentStatus, reason string) (*domain.Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if a == nil {
		return nil, domain.ErrNotFound
	}

	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if actor == nil {
		return nil, domain.ErrNotAuthorized
	}
	if err := a.AuthorizeTransition(actor, to); err != nil {
		return nil, err
	}

	if a.Status == to {
		return a, nil
	}
	if !a.Status.CanTransitionTo(to) {
		return nil, domain.ErrStateConflict
	}

	updated, err := s.appointments.UpdateStatus(ctx, id, a.Status, to, reason)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if updated == nil {
		// Lost the swap. If a concurrent caller applied the same
		// transition, this is an idempotent replay.
		current, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current != nil && current.Status == to {
			return current, nil
		}
		return nil, domain.ErrStateConflict
	}

	s.afterTransition(ctx, updated, reason)
	return updated, nil
}

func (s *service) afterTransition(ctx context.Context, a *domain.Appointment, reason string) {
	switch a.Status {
	case domain.AppointmentCancelled, domain.AppointmentNoShow:
		if err := s.planner.CancelAppointment(ctx, a.ID); err != nil {
			logger.ErrorContext(ctx, "failed to cancel reminders", "appointment_id", a.ID, "error", err)
		}
		if a.Status == domain.AppointmentCancelled && a.Paid && a.PaymentID != nil {
			// Refunds belong to external settlement; we only surface the
			// orphaned payment.
			s.publish(ctx, events.PaymentOrphaned, events.PaymentOrphanedEvent{
				PaymentID:     *a.PaymentID,
				AppointmentID: a.ID,
				Amount:        a.Amount,
				OrphanedAt:    s.clk.Now(),
			})
		}
	}

	subject := map[domain.AppointmentStatus]string{
		domain.AppointmentConfirmed: events.AppointmentConfirmed,
		domain.AppointmentCompleted: events.AppointmentCompleted,
		domain.AppointmentCancelled: events.AppointmentCanceled,
		domain.AppointmentNoShow:    events.AppointmentNoShow,
	}[a.Status]
	if subject != "" {
		s.publish(ctx, subject, events.AppointmentStateEvent{
			AppointmentID: a.ID,
			DoctorID:      a.DoctorID,
			PatientID:     a.PatientID,
			State:         string(a.Status),
			Reason:        reason,
			ChangedAt:     s.clk.Now(),
		})
	}
}

func (s *service) Reschedule(ctx context.Context, id, actorID uuid.UUID, newDate time.Time, newTime domain.TimeOfDay) (*domain.Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if a == nil {
		return nil, domain.ErrNotFound
	}

	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if actor == nil {
		return nil, domain.ErrNotAuthorized
	}
	// Moving an appointment requires cancel authority over the old slot.
	if err := a.AuthorizeTransition(actor, domain.AppointmentCancelled); err != nil {
		return nil, err
	}

	profile, err := s.doctors.GetProfile(ctx, a.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor profile: %w", err)
	}
	if profile == nil {
		return nil, domain.ErrNotFound
	}
	if err := s.validateSlot(profile, newDate, newTime); err != nil {
		return nil, err
	}

	// The old reminders are withdrawn and the new ones planned in the same
	// transaction that moves the slot.
	var moved *domain.Appointment
	err = s.locker.WithLock(ctx, slotKey(a.DoctorID, newDate, newTime), func(lockCtx context.Context) error {
		moved, err = s.appointments.Reschedule(lockCtx, id, newDate, newTime, func(txCtx context.Context, moved *domain.Appointment) error {
			if err := s.planner.CancelAppointment(txCtx, id); err != nil {
				return err
			}
			return s.planner.ScheduleAppointment(txCtx, moved)
		})
		return err
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotAcquired) {
			return nil, domain.ErrSlotTaken
		}
		return nil, err
	}

	return moved, nil
}

// MarkPaid attaches a completed payment exactly once. Replaying the same
// attachment succeeds; a cancelled appointment or a second payment fails.
func (s *service) MarkPaid(ctx context.Context, appointmentID, paymentID uuid.UUID) error {
	a, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if a == nil {
		return domain.ErrNotFound
	}
	if a.Status == domain.AppointmentCancelled {
		return domain.ErrStateConflict
	}

	ok, err := s.appointments.MarkPaid(ctx, appointmentID, paymentID)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	if !ok {
		if a.Paid && a.PaymentID != nil && *a.PaymentID == paymentID {
			return nil
		}
		return domain.ErrAlreadyPaid
	}
	return nil
}

// ListDoctorSlots derives the free grid for one date; it is never cached
// past the call.
func (s *service) ListDoctorSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.TimeOfDay, error) {
	profile, err := s.doctors.GetProfile(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor profile: %w", err)
	}
	if profile == nil {
		return nil, domain.ErrNotFound
	}

	held, err := s.appointments.HeldSlots(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list held slots: %w", err)
	}

	taken := make(map[domain.TimeOfDay]bool, len(held))
	for _, t := range held {
		taken[t] = true
	}

	var free []domain.TimeOfDay
	for _, t := range profile.Schedule.On(date.Weekday()) {
		if !taken[t] {
			free = append(free, t)
		}
	}
	return free, nil
}

func (s *service) GetAppointment(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (s *service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]domain.Appointment, error) {
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}

// withRetry replays transient store failures with bounded exponential
// backoff. Tagged domain errors are surfaced immediately.
func (s *service) withRetry(ctx context.Context, fn func() error) error {
	backoff := s.cfg.RetryBackoff
	var err error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		err = fn()
		if err == nil || !domain.IsRetryable(err) {
			return err
		}
	}
	return err
}

func (s *service) publish(ctx context.Context, subject string, event any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}
