package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockMirror is a mock implementation of the Mirror interface for testing.
type MockMirror struct {
	mock.Mock
}

// PutObject records the call and reads data fully so callers observe the
// same side effects as a real upload.
func (m *MockMirror) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	body, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	args := m.Called(ctx, path, contentType, body)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}

// Name returns the configured mirror name.
func (m *MockMirror) Name() string {
	args := m.Called()
	return args.String(0)
}
