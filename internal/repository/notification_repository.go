package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/case-service/internal/domain"
)

// NotificationFilter captures ledger listing parameters.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationRepository manages the durable per-recipient fan-out ledger.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByRecipient(ctx context.Context, subject domain.SubjectType, recipientID string, filter NotificationFilter) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, subject domain.SubjectType, recipientID string) (int64, error)
	MarkRead(ctx context.Context, subject domain.SubjectType, recipientID, notificationID string) error
	MarkAllRead(ctx context.Context, subject domain.SubjectType, recipientID string) error
	Delete(ctx context.Context, subject domain.SubjectType, recipientID, notificationID string) error
	ClearRead(ctx context.Context, subject domain.SubjectType, recipientID string) error
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (recipient_id, recipient_type, type, title, body, case_id, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return r.pool.QueryRow(ctx, query,
		n.RecipientID,
		n.Recipient,
		n.Type,
		n.Title,
		n.Body,
		n.CaseID,
		metadata,
	).Scan(&n.ID, &n.CreatedAt)
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, subject domain.SubjectType, recipientID string, filter NotificationFilter) ([]domain.Notification, error) {
	query := `
        SELECT id, recipient_id, recipient_type, type, title, body, case_id, read, metadata, created_at
        FROM notifications WHERE recipient_id=$1 AND recipient_type=$2`
	if filter.UnreadOnly {
		query += ` AND NOT read`
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += ` ORDER BY created_at DESC LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, recipientID, subject, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Recipient,
			&n.Type,
			&n.Title,
			&n.Body,
			&n.CaseID,
			&n.Read,
			&n.Metadata,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) UnreadCount(ctx context.Context, subject domain.SubjectType, recipientID string) (int64, error) {
	const query = `
        SELECT COUNT(*) FROM notifications
        WHERE recipient_id=$1 AND recipient_type=$2 AND NOT read`
	var count int64
	if err := r.pool.QueryRow(ctx, query, recipientID, subject).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, subject domain.SubjectType, recipientID, notificationID string) error {
	const query = `
        UPDATE notifications SET read=TRUE
        WHERE id=$1 AND recipient_id=$2 AND recipient_type=$3`
	cmd, err := r.pool.Exec(ctx, query, notificationID, recipientID, subject)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, subject domain.SubjectType, recipientID string) error {
	const query = `
        UPDATE notifications SET read=TRUE
        WHERE recipient_id=$1 AND recipient_type=$2 AND NOT read`
	_, err := r.pool.Exec(ctx, query, recipientID, subject)
	return err
}

func (r *notificationRepository) Delete(ctx context.Context, subject domain.SubjectType, recipientID, notificationID string) error {
	const query = `
        DELETE FROM notifications
        WHERE id=$1 AND recipient_id=$2 AND recipient_type=$3`
	cmd, err := r.pool.Exec(ctx, query, notificationID, recipientID, subject)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) ClearRead(ctx context.Context, subject domain.SubjectType, recipientID string) error {
	const query = `
        DELETE FROM notifications
        WHERE recipient_id=$1 AND recipient_type=$2 AND read`
	_, err := r.pool.Exec(ctx, query, recipientID, subject)
	return err
}
