package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"finextract/internal/domain"
	"finextract/internal/service"
	"finextract/mocks"
)

func TestExtractionQueueWorker_PollsAndDispatches(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	svc := new(mocks.MockExtractionService)

	job := domain.ProcessingJob{ID: uuid.New(), Subject: "ACME", Status: domain.JobStatusRunning, Attempts: 1}

	jobRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).
		Return([]domain.ProcessingJob{job}, nil).Once()
	jobRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).
		Return([]domain.ProcessingJob{}, nil).Maybe()
	svc.On("Process", mock.Anything, mock.MatchedBy(func(j *domain.ProcessingJob) bool { return j.ID == job.ID }), 4).
		Return().Once()

	worker := service.NewExtractionQueueWorker(jobRepo, svc, service.ExtractionQueueConfig{
		PollInterval: 20 * time.Millisecond,
		MaxAttempts:  4,
		Concurrency:  2,
		JobTimeout:   time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()
	<-done

	svc.AssertExpectations(t)
}

func TestExtractionQueueWorker_ClaimsOnlyFreeSlots(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	svc := new(mocks.MockExtractionService)

	jobs := []domain.ProcessingJob{{ID: uuid.New()}, {ID: uuid.New()}}
	jobRepo.On("ClaimQueued", mock.Anything, 2).Return(jobs, nil).Once()
	jobRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).Return([]domain.ProcessingJob{}, nil).Maybe()

	release := make(chan struct{})
	var running atomic.Int32
	svc.On("Process", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		running.Add(1)
		<-release
	}).Return()

	worker := service.NewExtractionQueueWorker(jobRepo, svc, service.ExtractionQueueConfig{
		PollInterval: 20 * time.Millisecond,
		MaxAttempts:  3,
		Concurrency:  2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	// Both slots are busy, so no further claims should have asked for work.
	for _, call := range jobRepo.Calls {
		if call.Method == "ClaimQueued" {
			assert.Equal(t, 2, call.Arguments.Int(1))
		}
	}
	assert.Equal(t, int32(2), running.Load())

	cancel()
	close(release)
	<-done
}

func TestExtractionQueueWorker_WaitsForInFlightJobs(t *testing.T) {
	jobRepo := new(mocks.MockJobRepo)
	svc := new(mocks.MockExtractionService)

	jobRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).
		Return([]domain.ProcessingJob{{ID: uuid.New()}}, nil).Once()
	jobRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int")).
		Return([]domain.ProcessingJob{}, nil).Maybe()

	var finished atomic.Bool
	svc.On("Process", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		time.Sleep(100 * time.Millisecond)
		// The job context is independent of the worker's.
		if ctx.Err() == nil {
			finished.Store(true)
		}
	}).Return()

	worker := service.NewExtractionQueueWorker(jobRepo, svc, service.ExtractionQueueConfig{
		PollInterval: 10 * time.Millisecond,
		Concurrency:  1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	<-done

	assert.True(t, finished.Load())
}
