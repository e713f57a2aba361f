package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/muratovtemurbek/healthhub-uz/pkg/database"
)

// PgQueue stores jobs in the reminder_jobs table. Dedup relies on a
// partial unique index on (dedup_key) WHERE status IN
// ('pending','leased','delivered'); leasing uses FOR UPDATE SKIP LOCKED so
// competing workers never double claim a row. Producer calls join a
// transaction carried on the context via database.WithTx.
type PgQueue struct {
	pool *pgxpool.Pool
}

func NewPgQueue(pool *pgxpool.Pool) *PgQueue {
	return &PgQueue{pool: pool}
}

const jobCols = `id, dedup_key, kind, run_after, payload, attempts, max_attempts`

func (q *PgQueue) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx, ok := database.TxFrom(ctx); ok {
		return tx.Exec(ctx, sql, args...)
	}
	return q.pool.Exec(ctx, sql, args...)
}

func (q *PgQueue) Enqueue(ctx context.Context, dedupKey, kind string, runAfter time.Time, payload any, maxAttempts int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	const sql = `INSERT INTO reminder_jobs (id, dedup_key, kind, run_after, payload, attempts, max_attempts, status)
		VALUES ($1,$2,$3,$4,$5,0,$6,'pending')
		ON CONFLICT (dedup_key) WHERE status IN ('pending','leased','delivered') DO NOTHING`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := q.exec(ctx, sql, uuid.New(), dedupKey, kind, runAfter, data, maxAttempts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyScheduled
	}
	return nil
}

// Cancel removes pending jobs and delivered tombstones, freeing the dedup
// key for a re-plan. A leased job mid-delivery is allowed to finish, that
// is the at-least-once contract.
func (q *PgQueue) Cancel(ctx context.Context, dedupKey string) error {
	const sql = `DELETE FROM reminder_jobs WHERE dedup_key=$1 AND status IN ('pending','delivered')`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := q.exec(ctx, sql, dedupKey)
	return err
}

// deliveredRetention is how long a delivered tombstone keeps holding its
// dedup key. It must outlast every planning window that might re-produce
// the same key; the widest is the medicine tick, measured in minutes.
const deliveredRetention = 48 * time.Hour

func (q *PgQueue) Lease(ctx context.Context, now time.Time, limit int, leaseFor time.Duration) ([]Job, error) {
	const purgeSQL = `DELETE FROM reminder_jobs WHERE status='delivered' AND run_after < $1`
	if _, err := q.pool.Exec(ctx, purgeSQL, now.Add(-deliveredRetention)); err != nil {
		return nil, err
	}

	const sql = `UPDATE reminder_jobs
		SET status='leased', leased_until=$2, attempts=attempts+1
		WHERE id IN (
			SELECT id FROM reminder_jobs
			WHERE (status='pending' AND run_after <= $1)
			   OR (status='leased' AND leased_until < $1)
			ORDER BY run_after
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobCols

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := q.pool.Query(ctx, sql, now, now.Add(leaseFor), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.DedupKey, &j.Kind, &j.RunAfter,
			&j.Payload, &j.Attempts, &j.MaxAttempts); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Ack leaves a delivered tombstone instead of deleting the row: the dedup
// key stays occupied, so a producer re-running inside the same planning
// window cannot enqueue the job a second time after delivery.
func (q *PgQueue) Ack(ctx context.Context, id uuid.UUID) error {
	const sql = `UPDATE reminder_jobs SET status='delivered', leased_until=NULL WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := q.pool.Exec(ctx, sql, id)
	return err
}

func (q *PgQueue) Retry(ctx context.Context, id uuid.UUID, runAfter time.Time) error {
	const sql = `UPDATE reminder_jobs SET status='pending', run_after=$2, leased_until=NULL WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := q.pool.Exec(ctx, sql, id, runAfter)
	return err
}

// Dead keeps the row for diagnosis instead of deleting it. A dead row no
// longer blocks the dedup key.
func (q *PgQueue) Dead(ctx context.Context, id uuid.UUID) error {
	const sql = `UPDATE reminder_jobs SET status='dead', leased_until=NULL WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := q.pool.Exec(ctx, sql, id)
	return err
}
