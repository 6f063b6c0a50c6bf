package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"finextract/internal/domain"
)

// MockTextBackend is a mock implementation of port.TextBackend.
type MockTextBackend struct {
	mock.Mock
	BackendName string
}

func (m *MockTextBackend) Name() string {
	if m.BackendName != "" {
		return m.BackendName
	}
	return "mock"
}

func (m *MockTextBackend) Extract(ctx context.Context, doc []byte) (*domain.TextExtraction, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TextExtraction), args.Error(1)
}

// MockRasterizer is a mock implementation of port.Rasterizer.
type MockRasterizer struct {
	mock.Mock
}

func (m *MockRasterizer) Rasterize(ctx context.Context, doc []byte, dpi int) ([]domain.PageImage, error) {
	args := m.Called(ctx, doc, dpi)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PageImage), args.Error(1)
}

// MockPageCounter is a mock implementation of port.PageCounter.
type MockPageCounter struct {
	mock.Mock
}

func (m *MockPageCounter) CountPages(doc []byte) (int, error) {
	args := m.Called(doc)
	return args.Int(0), args.Error(1)
}

// MockDocumentSplitter is a mock implementation of port.DocumentSplitter.
type MockDocumentSplitter struct {
	mock.Mock
}

func (m *MockDocumentSplitter) Split(ctx context.Context, doc []byte, maxPages int) ([][]byte, error) {
	args := m.Called(ctx, doc, maxPages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]byte), args.Error(1)
}

// MockAsyncAnalyzer is a mock implementation of port.AsyncAnalyzer.
type MockAsyncAnalyzer struct {
	mock.Mock
}

func (m *MockAsyncAnalyzer) Analyze(ctx context.Context, doc []byte, documentID string) (*domain.TextExtraction, error) {
	args := m.Called(ctx, doc, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TextExtraction), args.Error(1)
}
