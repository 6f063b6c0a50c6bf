package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"finextract/internal/domain"
)

// MockJobRepo is a mock implementation of port.JobRepository.
type MockJobRepo struct {
	mock.Mock
}

func (m *MockJobRepo) Create(ctx context.Context, job *domain.ProcessingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingJob), args.Error(1)
}

func (m *MockJobRepo) List(ctx context.Context, subject string, offset, limit int) ([]domain.ProcessingJob, int, error) {
	args := m.Called(ctx, subject, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.ProcessingJob), args.Int(1), args.Error(2)
}

func (m *MockJobRepo) ClaimQueued(ctx context.Context, limit int) ([]domain.ProcessingJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ProcessingJob), args.Error(1)
}

func (m *MockJobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, pagesProcessed, totalPages int, currentTask string) error {
	args := m.Called(ctx, id, pagesProcessed, totalPages, currentTask)
	return args.Error(0)
}

func (m *MockJobRepo) Update(ctx context.Context, job *domain.ProcessingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}
