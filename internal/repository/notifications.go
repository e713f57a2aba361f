package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
)

type NotificationRepository interface {
	Create(ctx context.Context, userID uuid.UUID, kind domain.NotificationKind, title, body string, payload json.RawMessage) (*domain.Notification, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	SetDeliveryNote(ctx context.Context, id uuid.UUID, note string) error
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

const notificationCols = `id, user_id, kind, title, body, payload, read, delivery_note, created_at, read_at`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body,
		&n.Payload, &n.Read, &n.DeliveryNote, &n.CreatedAt, &n.ReadAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) Create(ctx context.Context, userID uuid.UUID, kind domain.NotificationKind, title, body string, payload json.RawMessage) (*domain.Notification, error) {
	const q = `INSERT INTO notifications (id, user_id, kind, title, body, payload, read, delivery_note)
		VALUES ($1,$2,$3,$4,$5,$6,false,'')
		RETURNING ` + notificationCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	return scanNotification(r.pool.QueryRow(ctx, q, uuid.New(), userID, kind, title, body, payload))
}

// List returns the user's inbox oldest-first; created_at ordering is the
// only ordering the inbox promises.
func (r *notificationRepository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + notificationCols + ` FROM notifications
		WHERE user_id=$1 ORDER BY created_at, id LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// MarkRead flips the read flag once; rereads keep the original read_at.
func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	const q = `UPDATE notifications SET read=true, read_at=now()
		WHERE id=$1 AND user_id=$2 AND read=false`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, userID)
	return err
}

func (r *notificationRepository) SetDeliveryNote(ctx context.Context, id uuid.UUID, note string) error {
	const q = `UPDATE notifications SET delivery_note=$2 WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, note)
	return err
}
