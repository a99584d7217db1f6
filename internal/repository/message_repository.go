package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/case-service/internal/domain"
)

// MessageRepository manages the append-only per-case message log.
type MessageRepository interface {
	Append(ctx context.Context, msg *domain.Message) error
	ListByCase(ctx context.Context, caseID string) ([]domain.Message, error)
	MarkRead(ctx context.Context, caseID string, reader domain.SenderRole) error
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

// appendRetryLimit bounds re-inserts when concurrent appends to one case
// race for the same sequence number.
const appendRetryLimit = 5

// Append persists the entry with the next per-case sequence number. Two
// concurrent appends can read the same MAX(seq); the UNIQUE (case_id, seq)
// constraint makes the loser fail rather than take a duplicate slot, and
// the insert is retried with a fresh sequence read so every successful
// return holds its own slot.
func (r *messageRepository) Append(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (case_id, seq, sender_role, sender_id, body)
        VALUES ($1, (SELECT COALESCE(MAX(seq),0)+1 FROM messages WHERE case_id=$1), $2, $3, $4)
        RETURNING id, seq, created_at`
	var err error
	for attempt := 0; attempt < appendRetryLimit; attempt++ {
		err = r.pool.QueryRow(ctx, query,
			msg.CaseID,
			msg.Sender,
			msg.SenderID,
			msg.Body,
		).Scan(&msg.ID, &msg.Seq, &msg.CreatedAt)
		if !isUniqueViolation(err) {
			return err
		}
	}
	return err
}

// isUniqueViolation reports whether err is Postgres error 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *messageRepository) ListByCase(ctx context.Context, caseID string) ([]domain.Message, error) {
	const query = `
        SELECT id, case_id, seq, sender_role, sender_id, body, read, created_at
        FROM messages WHERE case_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.CaseID,
			&msg.Seq,
			&msg.Sender,
			&msg.SenderID,
			&msg.Body,
			&msg.Read,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

// MarkRead flips the read flag on every message in the case not authored by
// the reader's role.
func (r *messageRepository) MarkRead(ctx context.Context, caseID string, reader domain.SenderRole) error {
	const query = `
        UPDATE messages SET read=TRUE
        WHERE case_id=$1 AND sender_role<>$2 AND NOT read`
	_, err := r.pool.Exec(ctx, query, caseID, reader)
	return err
}
