package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *StorageError
		expected string
	}{
		{
			name:     "with key",
			err:      &StorageError{Op: "Head", Bucket: "data", Key: "home/alice/a.csv", Err: ErrNotFound},
			expected: "storage Head: data/home/alice/a.csv: object not found",
		},
		{
			name:     "without key",
			err:      &StorageError{Op: "List", Bucket: "data", Err: ErrAccessDenied},
			expected: "storage List: data: access denied",
		},
		{
			name:     "without bucket",
			err:      &StorageError{Op: "New", Err: errors.New("bad endpoint")},
			expected: "storage New: bad endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	err := &StorageError{Op: "Head", Bucket: "data", Key: "k", Err: ErrNotFound}

	assert.True(t, IsNotFound(err))
	assert.False(t, IsAccessDenied(err))
	assert.Equal(t, ErrNotFound, err.Unwrap())
}

func TestClassifyCode(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"NoSuchKey", ErrNotFound},
		{"NotFound", ErrNotFound},
		{"NoSuchBucket", ErrBucketNotFound},
		{"AccessDenied", ErrAccessDenied},
		{"ExpiredToken", ErrInvalidCredentials},
		{"SlowDown", ErrThrottled},
		{"InternalError", ErrUnavailable},
		{"SomethingElse", nil},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyCode(tt.code))
		})
	}
}

func TestDeleteError_Error(t *testing.T) {
	assert.Equal(t, "AccessDenied: denied", DeleteError{Key: "k", Code: "AccessDenied", Message: "denied"}.Error())
	assert.Equal(t, "InternalError", DeleteError{Key: "k", Code: "InternalError"}.Error())
}

func TestClampMaxKeys(t *testing.T) {
	assert.Equal(t, DefaultMaxKeys, ClampMaxKeys(0))
	assert.Equal(t, 50, ClampMaxKeys(50))
	assert.Equal(t, DefaultMaxKeys, ClampMaxKeys(5000))
}
