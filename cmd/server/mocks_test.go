package main

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/damacus/your-files/internal/storage"
)

// MockStore is a mock implementation of storage.ObjectStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) List(ctx context.Context, opts storage.ListOptions) (*storage.ListPage, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.ListPage), args.Error(1)
}

func (m *MockStore) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.ObjectInfo), args.Error(1)
}

func (m *MockStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, body, size, contentType)
	return args.Error(0)
}

func (m *MockStore) Upload(ctx context.Context, in storage.UploadInput) error {
	// Drain the body so the file handle is read the way a real upload would.
	if in.Body != nil {
		_, _ = io.Copy(io.Discard, in.Body)
	}
	args := m.Called(ctx, in)
	return args.Error(0)
}

func (m *MockStore) DeleteObjects(ctx context.Context, keys []string) (*storage.DeleteResult, error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.DeleteResult), args.Error(1)
}

func (m *MockStore) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	args := m.Called(ctx, key, expires)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Bucket() string {
	return "test-bucket"
}
