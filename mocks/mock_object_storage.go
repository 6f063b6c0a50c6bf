package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"finextract/internal/domain"
)

// MockObjectStorage is a mock implementation of port.ObjectStorage. Put
// drains the body before recording the call, so expectations see its bytes.
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) Put(ctx context.Context, ref domain.ObjectRef, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	args := m.Called(ctx, ref, data, contentType)
	return args.Error(0)
}

func (m *MockObjectStorage) Get(ctx context.Context, ref domain.ObjectRef) ([]byte, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockObjectStorage) Remove(ctx context.Context, ref domain.ObjectRef) error {
	return m.Called(ctx, ref).Error(0)
}

func (m *MockObjectStorage) SignedURL(ctx context.Context, ref domain.ObjectRef, ttl time.Duration) (string, error) {
	args := m.Called(ctx, ref, ttl)
	return args.String(0), args.Error(1)
}
