package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
)

type MedicineReminderRepository interface {
	Create(ctx context.Context, m *domain.MedicineReminder) (*domain.MedicineReminder, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.MedicineReminder, error)
	ListActiveOn(ctx context.Context, date time.Time) ([]domain.MedicineReminder, error)
	SetStatus(ctx context.Context, id, userID uuid.UUID, status domain.MedicineReminderStatus) error
	CompletePastEndDate(ctx context.Context, today time.Time) (int64, error)
}

type medicineReminderRepository struct {
	pool *pgxpool.Pool
}

func NewMedicineReminderRepository(pool *pgxpool.Pool) MedicineReminderRepository {
	return &medicineReminderRepository{pool: pool}
}

const reminderCols = `id, user_id, drug_name, dose, times, start_date, end_date, status,
with_food, before_food, created_at, updated_at`

func scanReminder(row pgx.Row) (*domain.MedicineReminder, error) {
	var m domain.MedicineReminder
	err := row.Scan(&m.ID, &m.UserID, &m.DrugName, &m.Dose, &m.TimesRaw,
		&m.StartDate, &m.EndDate, &m.Status, &m.WithFood, &m.BeforeFood,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Times, err = domain.ParseMedicineTimes(m.TimesRaw)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *medicineReminderRepository) Create(ctx context.Context, m *domain.MedicineReminder) (*domain.MedicineReminder, error) {
	const q = `INSERT INTO medicine_reminders (id, user_id, drug_name, dose, times, start_date, end_date, status, with_food, before_food)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'active',$8,$9)
		RETURNING ` + reminderCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanReminder(r.pool.QueryRow(ctx, q, uuid.New(), m.UserID, m.DrugName,
		m.Dose, m.TimesRaw, m.StartDate, m.EndDate, m.WithFood, m.BeforeFood))
}

func (r *medicineReminderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.MedicineReminder, error) {
	const q = `SELECT ` + reminderCols + ` FROM medicine_reminders WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	m, err := scanReminder(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// ListActiveOn returns active schedules whose date window contains the
// given local date. Rows with malformed times blobs are skipped rather
// than failing the whole scan.
func (r *medicineReminderRepository) ListActiveOn(ctx context.Context, date time.Time) ([]domain.MedicineReminder, error) {
	const q = `SELECT ` + reminderCols + ` FROM medicine_reminders
		WHERE status='active' AND start_date <= $1 AND (end_date IS NULL OR end_date >= $1)`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MedicineReminder
	for rows.Next() {
		m, err := scanReminder(rows)
		if err != nil {
			var de *domain.Error
			if errors.As(err, &de) {
				continue
			}
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *medicineReminderRepository) SetStatus(ctx context.Context, id, userID uuid.UUID, status domain.MedicineReminderStatus) error {
	const q = `UPDATE medicine_reminders SET status=$3, updated_at=now()
		WHERE id=$1 AND user_id=$2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id, userID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CompletePastEndDate flips schedules whose end date has passed.
func (r *medicineReminderRepository) CompletePastEndDate(ctx context.Context, today time.Time) (int64, error) {
	const q = `UPDATE medicine_reminders SET status='completed', updated_at=now()
		WHERE status='active' AND end_date IS NOT NULL AND end_date < $1`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, today)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
