// Package storage defines the object store surface used by the file browser.
//
// Two backends implement it: s3store (aws-sdk-go-v2) and miniostore
// (minio-go). Both take an aws.CredentialsProvider so the same short-lived
// credentials flow through either one.
package storage

import (
	"context"
	"io"
	"time"
)

const (
	// Delimiter separates path segments in object keys.
	Delimiter = "/"

	// MaxDeleteKeys is the most keys a single bulk delete may carry.
	MaxDeleteKeys = 1000

	// DefaultMaxKeys is the default page size for List.
	DefaultMaxKeys = 1000
)

// ObjectStore is the subset of an S3-compatible API the browser talks to.
//
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	// List returns one page of objects (and common prefixes when a
	// delimiter is set) under opts.Prefix.
	List(ctx context.Context, opts ListOptions) (*ListPage, error)

	// Head returns metadata for a single key.
	// Returns an error matching ErrNotFound if the key does not exist.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// Put writes a small object in a single request.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// Upload writes an object using a multipart upload with
	// in.PartConcurrency parallel part uploads.
	Upload(ctx context.Context, in UploadInput) error

	// DeleteObjects removes up to MaxDeleteKeys keys in one request.
	DeleteObjects(ctx context.Context, keys []string) (*DeleteResult, error)

	// PresignGet returns a time-limited download URL for key.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)

	// Bucket returns the bucket the store operates on.
	Bucket() string
}

// UsageReporter is implemented by stores that can report bucket usage.
type UsageReporter interface {
	BucketUsage(ctx context.Context) (uint64, error)
}

// ListOptions configures a List call.
type ListOptions struct {
	// Prefix restricts results to keys starting with this value.
	Prefix string

	// Delimiter groups keys into common prefixes. Empty lists recursively.
	Delimiter string

	// ContinuationToken resumes a previous listing.
	ContinuationToken string

	// MaxKeys limits the page size. Zero uses DefaultMaxKeys.
	MaxKeys int
}

// ListPage is one page of a listing.
type ListPage struct {
	Objects               []ObjectInfo
	CommonPrefixes        []string
	IsTruncated           bool
	NextContinuationToken string
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
}

// UploadInput describes a multipart upload.
type UploadInput struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string

	// PartConcurrency is the number of parts uploaded in parallel.
	PartConcurrency int

	// Progress, when set, receives the number of bytes consumed by each read.
	Progress func(n int64)
}

// DeleteResult attributes a bulk delete back to individual keys.
type DeleteResult struct {
	Deleted []string
	Errors  []DeleteError
}

// DeleteError is a per-key failure from a bulk delete.
type DeleteError struct {
	Key     string
	Code    string
	Message string
}

// Error implements the error interface.
func (e DeleteError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// ClampMaxKeys applies the default page size and the S3 upper bound.
func ClampMaxKeys(requested int) int {
	if requested <= 0 || requested > DefaultMaxKeys {
		return DefaultMaxKeys
	}
	return requested
}
