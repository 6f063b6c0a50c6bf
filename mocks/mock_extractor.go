package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"finextract/internal/pipeline"
)

// MockExtractor is a mock implementation of service.Extractor.
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Run(ctx context.Context, doc []byte, documentID, subject string, progress pipeline.ProgressFunc) (*pipeline.Result, error) {
	args := m.Called(ctx, doc, documentID, subject, progress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Result), args.Error(1)
}
