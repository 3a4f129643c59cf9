package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tutor-live-service/internal/domain"
)

const doubtColumns = `id, student_id, content, subject, subcategory, status, assigned_teacher, created_at, updated_at`

// DoubtStore persists doubts in the doubts table.
type DoubtStore struct {
	pool *pgxpool.Pool
}

func NewDoubtStore(pool *pgxpool.Pool) *DoubtStore {
	return &DoubtStore{pool: pool}
}

func (s *DoubtStore) Create(ctx context.Context, doubt domain.Doubt) (domain.Doubt, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO doubts (id, student_id, content, subject, subcategory, status, assigned_teacher, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+doubtColumns,
		doubt.ID, doubt.StudentID, doubt.Content, doubt.Subject, doubt.Subcategory,
		string(doubt.Status), doubt.AssignedTeacher, doubt.CreatedAt, doubt.UpdatedAt)
	created, err := scanDoubt(row)
	if err != nil {
		return domain.Doubt{}, fmt.Errorf("insert doubt: %w", err)
	}
	return created, nil
}

func (s *DoubtStore) Get(ctx context.Context, id string) (domain.Doubt, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+doubtColumns+` FROM doubts WHERE id=$1`, id)
	doubt, err := scanDoubt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Doubt{}, domain.ErrDoubtNotFound
	}
	if err != nil {
		return domain.Doubt{}, fmt.Errorf("load doubt: %w", err)
	}
	return doubt, nil
}

// Assign only updates a pending row, so two concurrent matches cannot both
// bind the doubt.
func (s *DoubtStore) Assign(ctx context.Context, id, teacherID string) (domain.Doubt, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE doubts SET status=$3, assigned_teacher=$2, updated_at=now()
		WHERE id=$1 AND status=$4
		RETURNING `+doubtColumns,
		id, teacherID, string(domain.DoubtAssigned), string(domain.DoubtPending))
	doubt, err := scanDoubt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return domain.Doubt{}, getErr
		}
		return current, domain.ErrDoubtNotPending
	}
	if err != nil {
		return domain.Doubt{}, fmt.Errorf("assign doubt: %w", err)
	}
	return doubt, nil
}

func (s *DoubtStore) Resolve(ctx context.Context, id string) (domain.Doubt, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE doubts SET status=$2, updated_at=now()
		WHERE id=$1
		RETURNING `+doubtColumns,
		id, string(domain.DoubtResolved))
	doubt, err := scanDoubt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Doubt{}, domain.ErrDoubtNotFound
	}
	if err != nil {
		return domain.Doubt{}, fmt.Errorf("resolve doubt: %w", err)
	}
	return doubt, nil
}

func (s *DoubtStore) ListByStatus(ctx context.Context, status domain.DoubtStatus) ([]domain.Doubt, error) {
	return s.list(ctx, `SELECT `+doubtColumns+` FROM doubts WHERE status=$1 ORDER BY created_at, id`, string(status))
}

func (s *DoubtStore) ListByTeacher(ctx context.Context, teacherID string) ([]domain.Doubt, error) {
	return s.list(ctx, `SELECT `+doubtColumns+` FROM doubts WHERE assigned_teacher=$1 ORDER BY created_at, id`, teacherID)
}

func (s *DoubtStore) list(ctx context.Context, query string, arg string) ([]domain.Doubt, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list doubts: %w", err)
	}
	defer rows.Close()

	var out []domain.Doubt
	for rows.Next() {
		doubt, err := scanDoubt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan doubt: %w", err)
		}
		out = append(out, doubt)
	}
	return out, rows.Err()
}

func scanDoubt(row pgx.Row) (domain.Doubt, error) {
	var (
		d      domain.Doubt
		status string
	)
	err := row.Scan(&d.ID, &d.StudentID, &d.Content, &d.Subject, &d.Subcategory,
		&status, &d.AssignedTeacher, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return domain.Doubt{}, err
	}
	d.Status = domain.DoubtStatus(status)
	return d, nil
}
