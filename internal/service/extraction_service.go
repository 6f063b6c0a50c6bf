package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"finextract/internal/config"
	"finextract/internal/domain"
	"finextract/internal/parser"
	"finextract/internal/pipeline"
	"finextract/internal/port"
)

// Extractor runs the extraction pipeline over one document.
type Extractor interface {
	Run(ctx context.Context, doc []byte, documentID, subject string, progress pipeline.ProgressFunc) (*pipeline.Result, error)
}

// ExtractionUploadInput is the DTO for extraction requests.
type ExtractionUploadInput struct {
	Subject string
	File    multipart.File
	Header  *multipart.FileHeader
}

// ExtractionService defines the extraction job contract.
type ExtractionService interface {
	Submit(ctx context.Context, input ExtractionUploadInput) (*domain.ProcessingJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error)
	ListJobs(ctx context.Context, subject string, offset, limit int) ([]domain.ProcessingJob, int, error)
	GetStatement(ctx context.Context, jobID uuid.UUID) (*domain.StatementRecord, error)
	LatestStatement(ctx context.Context, subject string) (*domain.StatementRecord, error)
	GetDownloadURL(ctx context.Context, jobID uuid.UUID) (string, error)
	Retry(ctx context.Context, jobID uuid.UUID) (*domain.ProcessingJob, error)
	// Process runs a claimed job to completion and records the outcome on it.
	Process(ctx context.Context, job *domain.ProcessingJob, maxAttempts int)
}

type extractionService struct {
	jobRepo       port.JobRepository
	statementRepo port.StatementRepository
	storage       port.ObjectStorage
	extractor     Extractor
	s3Cfg         *config.S3Config
	maxFileSize   int64
}

// NewExtractionService creates a new ExtractionService implementation.
func NewExtractionService(
	jobRepo port.JobRepository,
	statementRepo port.StatementRepository,
	storage port.ObjectStorage,
	extractor Extractor,
	s3Cfg *config.S3Config,
	maxFileSizeMB int64,
) ExtractionService {
	return &extractionService{
		jobRepo:       jobRepo,
		statementRepo: statementRepo,
		storage:       storage,
		extractor:     extractor,
		s3Cfg:         s3Cfg,
		maxFileSize:   maxFileSizeMB * 1024 * 1024,
	}
}

// progressWriteTimeout bounds each progress update written to the job row.
const progressWriteTimeout = 5 * time.Second

var subjectPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,15}$`)

// NormalizeSubject upper-cases a ticker and checks it is usable as a key.
func NormalizeSubject(subject string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(subject))
	if !subjectPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidSubject, subject)
	}
	return s, nil
}

func (s *extractionService) Submit(ctx context.Context, input ExtractionUploadInput) (*domain.ProcessingJob, error) {
	subject, err := NormalizeSubject(input.Subject)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(input.Header.Filename), "."))
	if _, ok := domain.AllowedExtensions[ext]; !ok {
		return nil, domain.ErrUnsupportedFileType
	}
	if input.Header.Size == 0 {
		return nil, domain.ErrEmptyDocument
	}
	if s.maxFileSize > 0 && input.Header.Size > s.maxFileSize {
		return nil, domain.ErrFileTooLarge
	}

	buf := make([]byte, 512)
	n, err := input.File.Read(buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading file header: %w", err)
	}
	if _, ok := domain.AllowedContentTypes[http.DetectContentType(buf[:n])]; !ok {
		return nil, domain.ErrUnsupportedFileType
	}
	if _, err := input.File.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking file: %w", err)
	}

	jobID := uuid.New()
	key := fmt.Sprintf("filings/%s/%s/%s", subject, jobID, filepath.Base(input.Header.Filename))

	log.Info().Str("subject", subject).Str("file", input.Header.Filename).Int64("size", input.Header.Size).Msg("extractionService.Submit: uploading filing")

	ref := domain.ObjectRef{Bucket: s.s3Cfg.Bucket, Key: key}
	if err := s.storage.Put(ctx, ref, input.File, "application/pdf"); err != nil {
		log.Error().Err(err).Str("object", ref.String()).Msg("extractionService.Submit: upload failed")
		return nil, domain.ErrUploadFailed
	}

	job := &domain.ProcessingJob{
		ID:            jobID,
		Subject:       subject,
		FileName:      input.Header.Filename,
		FileSize:      input.Header.Size,
		StorageBucket: ref.Bucket,
		StorageKey:    ref.Key,
		Status:        domain.JobStatusQueued,
		CurrentTask:   "queued",
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		if rmErr := s.storage.Remove(ctx, ref); rmErr != nil {
			log.Warn().Err(rmErr).Str("object", ref.String()).Msg("extractionService.Submit: failed to remove orphaned upload")
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return job, nil
}

func (s *extractionService) GetJob(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	return s.jobRepo.GetByID(ctx, id)
}

func (s *extractionService) ListJobs(ctx context.Context, subject string, offset, limit int) ([]domain.ProcessingJob, int, error) {
	if subject != "" {
		normalized, err := NormalizeSubject(subject)
		if err != nil {
			return nil, 0, err
		}
		subject = normalized
	}
	return s.jobRepo.List(ctx, subject, offset, limit)
}

func (s *extractionService) GetStatement(ctx context.Context, jobID uuid.UUID) (*domain.StatementRecord, error) {
	if _, err := s.jobRepo.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	return s.statementRepo.GetByJobID(ctx, jobID)
}

func (s *extractionService) LatestStatement(ctx context.Context, subject string) (*domain.StatementRecord, error) {
	normalized, err := NormalizeSubject(subject)
	if err != nil {
		return nil, err
	}
	return s.statementRepo.LatestBySubject(ctx, normalized)
}

func (s *extractionService) GetDownloadURL(ctx context.Context, jobID uuid.UUID) (string, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	return s.storage.SignedURL(ctx, job.Object(), time.Duration(s.s3Cfg.PresignExpiry)*time.Second)
}

// Retry puts a failed job back on the queue with a fresh attempt budget.
func (s *extractionService) Retry(ctx context.Context, jobID uuid.UUID) (*domain.ProcessingJob, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusFailed {
		return nil, domain.ErrJobNotRetryable
	}

	job.Status = domain.JobStatusQueued
	job.Attempts = 0
	job.PagesProcessed = 0
	job.CurrentTask = "queued"
	job.Error = ""
	job.CompletedAt = nil
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("requeueing job: %w", err)
	}
	log.Info().Str("job_id", job.ID.String()).Msg("extractionService.Retry: job requeued")
	return job, nil
}

func (s *extractionService) Process(ctx context.Context, job *domain.ProcessingJob, maxAttempts int) {
	start := time.Now()

	doc, err := s.storage.Get(ctx, job.Object())
	if err != nil {
		s.fail(ctx, job, fmt.Sprintf("downloading document: %v", err))
		return
	}

	progress := func(done, total int, message string) {
		job.PagesProcessed = done
		job.TotalPages = total
		job.CurrentTask = message
		// Progress is best effort; a slow database must not hold up the run.
		pctx, cancel := context.WithTimeout(ctx, progressWriteTimeout)
		defer cancel()
		if err := s.jobRepo.UpdateProgress(pctx, job.ID, done, total, message); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("extractionService.Process: progress update failed")
		}
	}

	result, err := s.extractor.Run(ctx, doc, job.ID.String(), job.Subject, progress)
	if err != nil {
		s.handleRunError(ctx, job, err, maxAttempts)
		return
	}

	data, err := json.Marshal(result.Statement)
	if err != nil {
		s.fail(ctx, job, fmt.Sprintf("encoding statement: %v", err))
		return
	}
	rec := &domain.StatementRecord{
		JobID:   job.ID,
		Subject: job.Subject,
		Data:    data,
		Fields:  result.Statement.FieldCount(),
	}
	if err := s.statementRepo.Save(ctx, rec); err != nil {
		s.fail(ctx, job, fmt.Sprintf("saving statement: %v", err))
		return
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.Strategy = result.Strategy
	job.TotalPages = result.Pages
	job.PagesProcessed = result.Pages
	job.CurrentTask = "completed"
	job.Summary = result.Summary
	job.Error = ""
	job.CompletedAt = &now
	if err := s.jobRepo.Update(ctx, job); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("extractionService.Process: failed to save results")
		return
	}

	log.Info().
		Str("job_id", job.ID.String()).
		Str("subject", job.Subject).
		Str("strategy", string(result.Strategy)).
		Int("pages", result.Pages).
		Int("fields", rec.Fields).
		Dur("elapsed", time.Since(start)).
		Msg("extractionService.Process: job completed")
}

// handleRunError requeues rate-limited jobs while attempts remain and marks
// everything else failed.
func (s *extractionService) handleRunError(ctx context.Context, job *domain.ProcessingJob, runErr error, maxAttempts int) {
	var rlErr *parser.RateLimitError
	if errors.As(runErr, &rlErr) && job.Attempts < maxAttempts {
		job.Status = domain.JobStatusQueued
		job.CurrentTask = "queued"
		job.Error = fmt.Sprintf("rate limited by %s, queued for retry", rlErr.Provider)
		if err := s.jobRepo.Update(ctx, job); err != nil {
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("extractionService.handleRunError: failed to requeue job")
			return
		}
		log.Warn().Str("job_id", job.ID.String()).Int("attempt", job.Attempts).Int("max_attempts", maxAttempts).Msg("extractionService.handleRunError: rate limited, requeued")
		return
	}
	s.fail(ctx, job, runErr.Error())
}

func (s *extractionService) fail(ctx context.Context, job *domain.ProcessingJob, message string) {
	log.Error().Str("job_id", job.ID.String()).Str("error", message).Msg("extractionService.Process: job failed")

	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.CurrentTask = "failed"
	job.Error = message
	job.CompletedAt = &now
	if err := s.jobRepo.Update(ctx, job); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("extractionService.fail: failed to record failure")
	}
}
