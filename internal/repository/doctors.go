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

type DoctorRepository interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.DoctorProfile, error)
	UpsertProfile(ctx context.Context, p *domain.DoctorProfile) error
	SetAvailability(ctx context.Context, userID uuid.UUID, available bool) error
}

type doctorRepository struct {
	pool *pgxpool.Pool
}

func NewDoctorRepository(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepository{pool: pool}
}

const doctorCols = `user_id, specialization, facility_id, price, available, timezone, schedule, created_at, updated_at`

// GetProfile loads the profile and parses the stored schedule blob into
// the typed weekly grid; malformed blobs surface as validation errors
// instead of propagating into slot checks.
func (r *doctorRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.DoctorProfile, error) {
	const q = `SELECT ` + doctorCols + ` FROM doctor_profiles WHERE user_id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var p domain.DoctorProfile
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&p.UserID, &p.Specialization, &p.FacilityID, &p.Price,
		&p.Available, &p.Timezone, &p.ScheduleRaw, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Schedule, err = domain.ParseWeeklySchedule(p.ScheduleRaw)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *doctorRepository) UpsertProfile(ctx context.Context, p *domain.DoctorProfile) error {
	const q = `INSERT INTO doctor_profiles (user_id, specialization, facility_id, price, available, timezone, schedule)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id) DO UPDATE SET
			specialization=EXCLUDED.specialization,
			facility_id=EXCLUDED.facility_id,
			price=EXCLUDED.price,
			available=EXCLUDED.available,
			timezone=EXCLUDED.timezone,
			schedule=EXCLUDED.schedule,
			updated_at=now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, p.UserID, p.Specialization, p.FacilityID,
		p.Price, p.Available, p.Timezone, p.ScheduleRaw)
	return err
}

func (r *doctorRepository) SetAvailability(ctx context.Context, userID uuid.UUID, available bool) error {
	const q = `UPDATE doctor_profiles SET available=$2, updated_at=now() WHERE user_id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID, available)
	return err
}
