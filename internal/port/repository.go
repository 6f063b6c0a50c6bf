package port

import (
	"context"

	"github.com/google/uuid"

	"finextract/internal/domain"
)

// JobRepository defines the contract for processing job persistence.
type JobRepository interface {
	Create(ctx context.Context, job *domain.ProcessingJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error)
	List(ctx context.Context, subject string, offset, limit int) ([]domain.ProcessingJob, int, error)
	// ClaimQueued atomically moves up to limit queued jobs to running and returns them.
	ClaimQueued(ctx context.Context, limit int) ([]domain.ProcessingJob, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, pagesProcessed, totalPages int, currentTask string) error
	Update(ctx context.Context, job *domain.ProcessingJob) error
}

// StatementRepository defines the contract for merged statement persistence.
type StatementRepository interface {
	Save(ctx context.Context, rec *domain.StatementRecord) error
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*domain.StatementRecord, error)
	LatestBySubject(ctx context.Context, subject string) (*domain.StatementRecord, error)
}
