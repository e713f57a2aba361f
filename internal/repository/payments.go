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

// PaymentRepository records payment intents and their terminal outcome.
// A partial unique index on (appointment_id) WHERE status='completed'
// guarantees at most one completed payment per appointment.
type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByProviderTx(ctx context.Context, providerTxID string) (*domain.Payment, error)
	SetStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus, providerTxID string) (*domain.Payment, error)
}

type paymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepository{pool: pool}
}

const paymentCols = `id, user_id, appointment_id, amount, provider, status, provider_tx_id, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.AppointmentID, &p.Amount,
		&p.Provider, &p.Status, &p.ProviderTxID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	const q = `INSERT INTO payments (id, user_id, appointment_id, amount, provider, status, provider_tx_id)
		VALUES ($1,$2,$3,$4,$5,'pending',$6)
		RETURNING ` + paymentCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return scanPayment(r.pool.QueryRow(ctx, q, id, p.UserID, p.AppointmentID,
		p.Amount, p.Provider, p.ProviderTxID))
}

func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := scanPayment(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *paymentRepository) GetByProviderTx(ctx context.Context, providerTxID string) (*domain.Payment, error) {
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE provider_tx_id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := scanPayment(r.pool.QueryRow(ctx, q, providerTxID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// SetStatus is a compare-and-swap; (nil, nil) means the row was not in the
// expected previous status, which callers treat as an idempotent replay.
func (r *paymentRepository) SetStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus, providerTxID string) (*domain.Payment, error) {
	const q = `UPDATE payments
		SET status=$2,
		    provider_tx_id = CASE WHEN $4 <> '' THEN $4 ELSE provider_tx_id END,
		    updated_at=now()
		WHERE id=$1 AND status=$3
		RETURNING ` + paymentCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := scanPayment(r.pool.QueryRow(ctx, q, id, to, from, providerTxID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil && IsUniqueViolation(err) {
		return nil, domain.ErrAlreadyPaid
	}
	return p, err
}
