package service

import (
	"context"
	"sync"
	"time"

	"github.com/phuslu/log"

	"finextract/internal/port"
)

// ExtractionQueueConfig holds settings for the extraction queue worker.
type ExtractionQueueConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	Concurrency  int
	JobTimeout   time.Duration
}

// ExtractionQueueWorker polls for queued jobs and runs them.
type ExtractionQueueWorker struct {
	jobRepo port.JobRepository
	svc     ExtractionService
	cfg     ExtractionQueueConfig
	wg      sync.WaitGroup
}

// NewExtractionQueueWorker creates a new ExtractionQueueWorker.
func NewExtractionQueueWorker(jobRepo port.JobRepository, svc ExtractionService, cfg ExtractionQueueConfig) *ExtractionQueueWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 90 * time.Minute
	}
	return &ExtractionQueueWorker{
		jobRepo: jobRepo,
		svc:     svc,
		cfg:     cfg,
	}
}

// Start runs the polling loop until ctx is canceled. It blocks until all
// in-flight jobs have finished.
func (w *ExtractionQueueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.cfg.Concurrency)

	log.Info().
		Dur("poll", w.cfg.PollInterval).
		Int("concurrency", w.cfg.Concurrency).
		Int("max_attempts", w.cfg.MaxAttempts).
		Dur("job_timeout", w.cfg.JobTimeout).
		Msg("extractionQueueWorker: started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("extractionQueueWorker: shutting down, waiting for in-flight jobs...")
			w.wg.Wait()
			log.Info().Msg("extractionQueueWorker: shutdown complete")
			return
		case <-ticker.C:
			available := w.cfg.Concurrency - len(sem)
			if available <= 0 {
				continue
			}

			jobs, err := w.jobRepo.ClaimQueued(ctx, available)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Error().Err(err).Msg("extractionQueueWorker: ClaimQueued error")
				continue
			}

			for i := range jobs {
				job := jobs[i]

				sem <- struct{}{}
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-sem }()

					// In-flight jobs finish even during shutdown.
					jobCtx, cancel := context.WithTimeout(context.Background(), w.cfg.JobTimeout)
					defer cancel()

					log.Info().Str("job_id", job.ID.String()).Int("attempt", job.Attempts).Msg("extractionQueueWorker: dispatching job")
					w.svc.Process(jobCtx, &job, w.cfg.MaxAttempts)
				}()
			}
		}
	}
}
