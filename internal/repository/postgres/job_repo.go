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

type jobRepo struct {
	db *sqlx.DB
}

// NewJobRepo creates a new PostgreSQL-backed JobRepository.
func NewJobRepo(db *sqlx.DB) port.JobRepository {
	return &jobRepo{db: db}
}

func (r *jobRepo) Create(ctx context.Context, job *domain.ProcessingJob) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `INSERT INTO processing_jobs (
		id, subject, file_name, file_size, storage_bucket, storage_key,
		status, strategy, total_pages, pages_processed, current_task,
		summary, error, attempts, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11,
		$12, $13, $14, $15, $16
	)`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Subject, job.FileName, job.FileSize, job.StorageBucket, job.StorageKey,
		job.Status, job.Strategy, job.TotalPages, job.PagesProcessed, job.CurrentTask,
		job.Summary, job.Error, job.Attempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("jobRepo.Create: %w", err)
	}
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	err := r.db.GetContext(ctx, &job, "SELECT * FROM processing_jobs WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobRepo.GetByID: %w", err)
	}
	return &job, nil
}

// List returns jobs newest first. An empty subject lists every job.
func (r *jobRepo) List(ctx context.Context, subject string, offset, limit int) ([]domain.ProcessingJob, int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM processing_jobs WHERE ($1 = '' OR subject = $1)", subject)
	if err != nil {
		return nil, 0, fmt.Errorf("jobRepo.List count: %w", err)
	}

	var jobs []domain.ProcessingJob
	err = r.db.SelectContext(ctx, &jobs,
		`SELECT * FROM processing_jobs WHERE ($1 = '' OR subject = $1)
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		subject, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("jobRepo.List: %w", err)
	}
	return jobs, total, nil
}

// ClaimQueued moves the oldest queued jobs to running in one statement.
// SKIP LOCKED lets several server instances poll the same table.
func (r *jobRepo) ClaimQueued(ctx context.Context, limit int) ([]domain.ProcessingJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now().UTC()

	var jobs []domain.ProcessingJob
	err := r.db.SelectContext(ctx, &jobs,
		`UPDATE processing_jobs SET
			status = $1, attempts = attempts + 1, started_at = $2, updated_at = $2,
			current_task = 'claimed', error = ''
		 WHERE id IN (
			SELECT id FROM processing_jobs WHERE status = $3
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT $4
		 )
		 RETURNING *`,
		domain.JobStatusRunning, now, domain.JobStatusQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("jobRepo.ClaimQueued: %w", err)
	}
	return jobs, nil
}

func (r *jobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, pagesProcessed, totalPages int, currentTask string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE processing_jobs SET
			pages_processed = GREATEST(pages_processed, $1), total_pages = $2,
			current_task = $3, updated_at = $4
		 WHERE id = $5`,
		pagesProcessed, totalPages, currentTask, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("jobRepo.UpdateProgress: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *jobRepo) Update(ctx context.Context, job *domain.ProcessingJob) error {
	job.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE processing_jobs SET
			status = $1, strategy = $2, total_pages = $3, pages_processed = $4,
			current_task = $5, summary = $6, error = $7, attempts = $8,
			started_at = $9, completed_at = $10, updated_at = $11
		 WHERE id = $12`,
		job.Status, job.Strategy, job.TotalPages, job.PagesProcessed,
		job.CurrentTask, job.Summary, job.Error, job.Attempts,
		job.StartedAt, job.CompletedAt, job.UpdatedAt,
		job.ID)
	if err != nil {
		return fmt.Errorf("jobRepo.Update: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}
