package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"finextract/internal/domain"
	"finextract/internal/service"
)

// MockExtractionService is a mock implementation of service.ExtractionService.
type MockExtractionService struct {
	mock.Mock
}

func (m *MockExtractionService) Submit(ctx context.Context, input service.ExtractionUploadInput) (*domain.ProcessingJob, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingJob), args.Error(1)
}

func (m *MockExtractionService) GetJob(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingJob), args.Error(1)
}

func (m *MockExtractionService) ListJobs(ctx context.Context, subject string, offset, limit int) ([]domain.ProcessingJob, int, error) {
	args := m.Called(ctx, subject, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.ProcessingJob), args.Int(1), args.Error(2)
}

func (m *MockExtractionService) GetStatement(ctx context.Context, jobID uuid.UUID) (*domain.StatementRecord, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StatementRecord), args.Error(1)
}

func (m *MockExtractionService) LatestStatement(ctx context.Context, subject string) (*domain.StatementRecord, error) {
	args := m.Called(ctx, subject)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StatementRecord), args.Error(1)
}

func (m *MockExtractionService) GetDownloadURL(ctx context.Context, jobID uuid.UUID) (string, error) {
	args := m.Called(ctx, jobID)
	return args.String(0), args.Error(1)
}

func (m *MockExtractionService) Retry(ctx context.Context, jobID uuid.UUID) (*domain.ProcessingJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingJob), args.Error(1)
}

func (m *MockExtractionService) Process(ctx context.Context, job *domain.ProcessingJob, maxAttempts int) {
	m.Called(ctx, job, maxAttempts)
}
