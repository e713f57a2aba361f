package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/pkg/database"
)

// AppointmentRepository persists appointments. Slot uniqueness is enforced
// by a partial unique index on (doctor_id, visit_date, visit_time) WHERE
// status IN ('pending','confirmed'); CreateInSlot surfaces a violation as
// domain.ErrSlotTaken. Status changes are compare-and-swap on the previous
// status so retried transitions stay idempotent.
//
// CreateInSlot and Reschedule run the plan callback inside the same
// transaction as the row change (the transaction travels on the callback's
// context, see database.WithTx). A failing callback rolls the reservation
// back, so a committed slot always has its follow-up writes.
type AppointmentRepository interface {
	CreateInSlot(ctx context.Context, a *domain.Appointment, plan func(ctx context.Context, created *domain.Appointment) error) (*domain.Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error)
	HeldSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.TimeOfDay, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.AppointmentStatus, reason string) (*domain.Appointment, error)
	MarkPaid(ctx context.Context, id, paymentID uuid.UUID) (bool, error)
	Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime domain.TimeOfDay, plan func(ctx context.Context, moved *domain.Appointment) error) (*domain.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]domain.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.Appointment, error)
}

type appointmentRepository struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepository(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepository{pool: pool}
}

const appointmentCols = `id, doctor_id, patient_id, visit_date, visit_time, status,
symptoms, notes, amount, paid, payment_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var a domain.Appointment
	var visitTime string
	err := row.Scan(
		&a.ID, &a.DoctorID, &a.PatientID, &a.VisitDate, &visitTime, &a.Status,
		&a.Symptoms, &a.Notes, &a.Amount, &a.Paid, &a.PaymentID,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.VisitTime = domain.TimeOfDay(visitTime)
	return &a, nil
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *appointmentRepository) CreateInSlot(ctx context.Context, a *domain.Appointment, plan func(ctx context.Context, created *domain.Appointment) error) (*domain.Appointment, error) {
	const q = `INSERT INTO appointments (
		id, doctor_id, patient_id, visit_date, visit_time, status,
		symptoms, notes, amount, paid
	) VALUES ($1,$2,$3,$4,$5,'pending',$6,$7,$8,false)
	RETURNING ` + appointmentCols

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, q, id, a.DoctorID, a.PatientID,
		a.VisitDate, string(a.VisitTime), a.Symptoms, a.Notes, a.Amount)

	created, err := scanAppointment(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, domain.ErrSlotTaken
		}
		return nil, err
	}

	if plan != nil {
		if err := plan(database.WithTx(ctx, tx), created); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *appointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	const q = `SELECT ` + appointmentCols + ` FROM appointments WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAppointment(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *appointmentRepository) HeldSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.TimeOfDay, error) {
	const q = `SELECT visit_time FROM appointments
		WHERE doctor_id=$1 AND visit_date=$2 AND status IN ('pending','confirmed')
		ORDER BY visit_time`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var held []domain.TimeOfDay
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		held = append(held, domain.TimeOfDay(t))
	}
	return held, rows.Err()
}

// UpdateStatus flips status only when the row is still in the expected
// previous status. Returns (nil, nil) when no row matched, which callers
// use to detect an already-applied or conflicting transition.
func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.AppointmentStatus, reason string) (*domain.Appointment, error) {
	const q = `UPDATE appointments
		SET status=$2,
		    notes = CASE WHEN $4 <> '' THEN notes || E'\n' || $4 ELSE notes END,
		    updated_at=now()
		WHERE id=$1 AND status=$3
		RETURNING ` + appointmentCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAppointment(r.pool.QueryRow(ctx, q, id, to, from, reason))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// MarkPaid attaches a payment exactly once; a second call with any payment
// id is a no-op returning false.
func (r *appointmentRepository) MarkPaid(ctx context.Context, id, paymentID uuid.UUID) (bool, error) {
	const q = `UPDATE appointments
		SET paid=true, payment_id=$2, updated_at=now()
		WHERE id=$1 AND paid=false AND status <> 'cancelled'`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id, paymentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Reschedule cancels the old slot and reserves the new one in a single
// transaction so no moment exists where both or neither are held. The row
// is locked first; the insert relies on the partial unique index exactly
// like CreateInSlot.
func (r *appointmentRepository) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime domain.TimeOfDay, plan func(ctx context.Context, moved *domain.Appointment) error) (*domain.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const lockQ = `SELECT ` + appointmentCols + ` FROM appointments WHERE id=$1 FOR UPDATE`
	old, err := scanAppointment(tx.QueryRow(ctx, lockQ, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !old.Status.Live() {
		return nil, domain.ErrStateConflict
	}

	const cancelQ = `UPDATE appointments SET status='cancelled', updated_at=now() WHERE id=$1`
	if _, err := tx.Exec(ctx, cancelQ, id); err != nil {
		return nil, err
	}

	const insertQ = `INSERT INTO appointments (
		id, doctor_id, patient_id, visit_date, visit_time, status,
		symptoms, notes, amount, paid
	) VALUES ($1,$2,$3,$4,$5,'pending',$6,$7,$8,false)
	RETURNING ` + appointmentCols

	moved, err := scanAppointment(tx.QueryRow(ctx, insertQ,
		uuid.New(), old.DoctorID, old.PatientID, newDate, string(newTime),
		old.Symptoms, old.Notes, old.Amount))
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, domain.ErrSlotTaken
		}
		return nil, err
	}

	if plan != nil {
		if err := plan(database.WithTx(ctx, tx), moved); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return moved, nil
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]domain.Appointment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + appointmentCols + ` FROM appointments
		WHERE patient_id=$1 ORDER BY visit_date DESC, visit_time DESC
		LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *appointmentRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.Appointment, error) {
	const q = `SELECT ` + appointmentCols + ` FROM appointments
		WHERE doctor_id=$1 AND visit_date=$2
		ORDER BY visit_time`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]domain.Appointment, error) {
	var out []domain.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
