package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/case-service/internal/domain"
)

// CaseFilter captures listing parameters.
type CaseFilter struct {
	CustomerID      *string
	AssignedAgentID *string
	Department      *string
	Statuses        []domain.CaseStatus
	Limit           int
	Offset          int
}

// CaseRepository encapsulates case persistence. The status/assignee pair is
// mutated only through CompareAndSetStatus so that concurrent transitions
// are detected instead of silently overwritten.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.Case, error)
	CompareAndSetStatus(ctx context.Context, id string, expected, next domain.CaseStatus, assignee *string) (*domain.Case, error)
}

type caseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository instantiates repository.
func NewCaseRepository(pool *pgxpool.Pool) CaseRepository {
	return &caseRepository{pool: pool}
}

const caseColumns = `id, customer_user_id, assigned_agent_id, department, description, location, status, created_at, updated_at`

func (r *caseRepository) Create(ctx context.Context, c *domain.Case) error {
	const query = `
        INSERT INTO cases (customer_user_id, department, description, location, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		c.CustomerID,
		c.Department,
		c.Description,
		c.Location,
		c.Status,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id=$1`
	return scanCase(r.pool.QueryRow(ctx, query, id))
}

// CompareAndSetStatus applies a transition predicated on the status being
// unchanged since the caller read it. A nil assignee leaves the assignment
// column as is. Returns pgx.ErrNoRows when the predicate no longer holds.
func (r *caseRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.CaseStatus, assignee *string) (*domain.Case, error) {
	query := `
        UPDATE cases
        SET status=$1,
            assigned_agent_id=COALESCE($2, assigned_agent_id),
            updated_at=NOW()
        WHERE id=$3 AND status=$4
        RETURNING ` + caseColumns
	return scanCase(r.pool.QueryRow(ctx, query, next, assignee, id, expected))
}

func (r *caseRepository) ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.Case, error) {
	base := `SELECT ` + caseColumns + ` FROM cases`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_user_id=$%d", len(args)))
	}
	if filter.AssignedAgentID != nil {
		args = append(args, *filter.AssignedAgentID)
		clauses = append(clauses, fmt.Sprintf("assigned_agent_id=$%d", len(args)))
	}
	if filter.Department != nil {
		args = append(args, *filter.Department)
		clauses = append(clauses, fmt.Sprintf("department=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func scanCase(row pgx.Row) (*domain.Case, error) {
	var c domain.Case
	if err := row.Scan(
		&c.ID,
		&c.CustomerID,
		&c.AssignedAgentID,
		&c.Department,
		&c.Description,
		&c.Location,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
