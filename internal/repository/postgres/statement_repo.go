package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"finextract/internal/domain"
	"finextract/internal/port"
)

type statementRepo struct {
	db *sqlx.DB
}

// NewStatementRepo creates a new PostgreSQL-backed StatementRepository.
func NewStatementRepo(db *sqlx.DB) port.StatementRepository {
	return &statementRepo{db: db}
}

// Save stores the merged statement for a job, replacing any earlier result
// from a previous attempt.
func (r *statementRepo) Save(ctx context.Context, rec *domain.StatementRecord) error {
	rec.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO statements (job_id, subject, data, fields, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (job_id) DO UPDATE SET
			subject = EXCLUDED.subject, data = EXCLUDED.data,
			fields = EXCLUDED.fields, created_at = EXCLUDED.created_at`,
		rec.JobID, rec.Subject, rec.Data, rec.Fields, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("statementRepo.Save: %w", err)
	}
	return nil
}

func (r *statementRepo) GetByJobID(ctx context.Context, jobID uuid.UUID) (*domain.StatementRecord, error) {
	var rec domain.StatementRecord
	err := r.db.GetContext(ctx, &rec, "SELECT * FROM statements WHERE job_id = $1", jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrStatementNotFound
		}
		return nil, fmt.Errorf("statementRepo.GetByJobID: %w", err)
	}
	return &rec, nil
}

func (r *statementRepo) LatestBySubject(ctx context.Context, subject string) (*domain.StatementRecord, error) {
	var rec domain.StatementRecord
	err := r.db.GetContext(ctx, &rec,
		"SELECT * FROM statements WHERE subject = $1 ORDER BY created_at DESC LIMIT 1", subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrStatementNotFound
		}
		return nil, fmt.Errorf("statementRepo.LatestBySubject: %w", err)
	}
	return &rec, nil
}
