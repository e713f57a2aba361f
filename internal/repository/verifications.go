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

// VerificationRepository holds per-user Telegram binding codes. Live codes
// are unique thanks to a partial unique index on (code) WHERE
// verified=false; Claim locks the row so two chats cannot both flip it.
type VerificationRepository interface {
	Issue(ctx context.Context, userID uuid.UUID, code string, issuedAt, expiresAt time.Time) (*domain.Verification, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*domain.Verification, error)
	GetByChat(ctx context.Context, chatID int64) (*domain.Verification, error)
	Claim(ctx context.Context, code string, chatID int64, chatHandle string, now time.Time, maxAttempts int) (*domain.Verification, error)
	IncrementAttempts(ctx context.Context, code string, now time.Time) (attempts int, found bool, err error)
	NewestUnboundLive(ctx context.Context, now time.Time) (*domain.Verification, error)
	BindChat(ctx context.Context, userID uuid.UUID, chatID int64, chatHandle string) error
}

type verificationRepository struct {
	pool *pgxpool.Pool
}

func NewVerificationRepository(pool *pgxpool.Pool) VerificationRepository {
	return &verificationRepository{pool: pool}
}

const verificationCols = `user_id, code, issued_at, expires_at, chat_id, chat_handle, attempts, verified, verified_at`

func scanVerification(row pgx.Row) (*domain.Verification, error) {
	var v domain.Verification
	err := row.Scan(&v.UserID, &v.Code, &v.IssuedAt, &v.ExpiresAt,
		&v.ChatID, &v.ChatHandle, &v.Attempts, &v.Verified, &v.VerifiedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Issue creates or refreshes the user's record: new code, new instants,
// attempts back to zero. A verified record is frozen and never refreshed.
func (r *verificationRepository) Issue(ctx context.Context, userID uuid.UUID, code string, issuedAt, expiresAt time.Time) (*domain.Verification, error) {
	const q = `INSERT INTO verifications (user_id, code, issued_at, expires_at, attempts, verified)
		VALUES ($1,$2,$3,$4,0,false)
		ON CONFLICT (user_id) DO UPDATE SET
			code=EXCLUDED.code,
			issued_at=EXCLUDED.issued_at,
			expires_at=EXCLUDED.expires_at,
			attempts=0
		WHERE verifications.verified=false
		RETURNING ` + verificationCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVerification(r.pool.QueryRow(ctx, q, userID, code, issuedAt, expiresAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStateConflict
	}
	return v, err
}

func (r *verificationRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*domain.Verification, error) {
	const q = `SELECT ` + verificationCols + ` FROM verifications WHERE user_id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVerification(r.pool.QueryRow(ctx, q, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (r *verificationRepository) GetByChat(ctx context.Context, chatID int64) (*domain.Verification, error) {
	const q = `SELECT ` + verificationCols + ` FROM verifications
		WHERE chat_id=$1 ORDER BY issued_at DESC LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVerification(r.pool.QueryRow(ctx, q, chatID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// Claim runs the whole claim inside one transaction: lock the live row
// matching the code, branch on expiry and attempt count, then flip the
// record and the owning user atomically. Two concurrent chats serialize on
// the row lock; the loser re-reads a verified row and gets NotFound
// because the partial index no longer matches it.
func (r *verificationRepository) Claim(ctx context.Context, code string, chatID int64, chatHandle string, now time.Time, maxAttempts int) (*domain.Verification, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const lockQ = `SELECT ` + verificationCols + ` FROM verifications
		WHERE code=$1 AND verified=false FOR UPDATE`

	v, err := scanVerification(tx.QueryRow(ctx, lockQ, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}

	if v.Expired(now) {
		return nil, domain.ErrCodeExpired
	}
	if v.Attempts >= maxAttempts {
		return nil, domain.ErrTooManyAttempts
	}

	const claimQ = `UPDATE verifications
		SET verified=true, verified_at=$2, chat_id=$3, chat_handle=$4
		WHERE user_id=$1
		RETURNING ` + verificationCols

	v, err = scanVerification(tx.QueryRow(ctx, claimQ, v.UserID, now, chatID, chatHandle))
	if err != nil {
		return nil, err
	}

	const userQ = `UPDATE users SET verified=true, updated_at=now() WHERE id=$1`
	if _, err := tx.Exec(ctx, userQ, v.UserID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// IncrementAttempts counts a failed guess against the live record holding
// the code. Expired or verified records are left alone.
func (r *verificationRepository) IncrementAttempts(ctx context.Context, code string, now time.Time) (int, bool, error) {
	const q = `UPDATE verifications SET attempts=attempts+1
		WHERE code=$1 AND verified=false AND expires_at > $2
		RETURNING attempts`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var attempts int
	err := r.pool.QueryRow(ctx, q, code, now).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return attempts, true, nil
}

func (r *verificationRepository) NewestUnboundLive(ctx context.Context, now time.Time) (*domain.Verification, error) {
	const q = `SELECT ` + verificationCols + ` FROM verifications
		WHERE verified=false AND chat_id IS NULL AND expires_at > $1
		ORDER BY issued_at DESC LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVerification(r.pool.QueryRow(ctx, q, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (r *verificationRepository) BindChat(ctx context.Context, userID uuid.UUID, chatID int64, chatHandle string) error {
	const q = `UPDATE verifications SET chat_id=$2, chat_handle=$3
		WHERE user_id=$1 AND verified=false AND chat_id IS NULL`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, userID, chatID, chatHandle)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStateConflict
	}
	return nil
}
