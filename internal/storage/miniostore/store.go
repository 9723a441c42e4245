package miniostore

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/minio/minio-go/v7"

	"github.com/damacus/your-files/internal/storage"
)

// Config configures the MinIO store.
type Config struct {
	Bucket      string
	Endpoint    string
	Region      string
	Credentials aws.CredentialsProvider
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("miniostore: bucket name is required")
	}
	if c.Endpoint == "" {
		return errors.New("miniostore: endpoint is required")
	}
	if c.Credentials == nil {
		return errors.New("miniostore: credentials provider is required")
	}
	return nil
}

// Store implements storage.ObjectStore against MinIO.
//
// A client is built per operation from the current credentials, so
// refreshed session tokens take effect without restarting the store.
type Store struct {
	factory  ClientFactory
	creds    aws.CredentialsProvider
	endpoint string
	secure   bool
	region   string
	bucket   string
}

var (
	_ storage.ObjectStore   = (*Store)(nil)
	_ storage.UsageReporter = (*Store)(nil)
)

// New creates a store. A nil factory uses RealFactory.
func New(cfg Config, factory ClientFactory) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		factory = RealFactory{}
	}
	host, secure := ParseEndpoint(cfg.Endpoint)
	return &Store{
		factory:  factory,
		creds:    cfg.Credentials,
		endpoint: host,
		secure:   secure,
		region:   cfg.Region,
		bucket:   cfg.Bucket,
	}, nil
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

func (s *Store) credentials(ctx context.Context) (Credentials, error) {
	v, err := s.creds.Retrieve(ctx)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		Endpoint:     s.endpoint,
		Secure:       s.secure,
		Region:       s.region,
		AccessKey:    v.AccessKeyID,
		SecretKey:    v.SecretAccessKey,
		SessionToken: v.SessionToken,
	}, nil
}

func (s *Store) client(ctx context.Context, op, key string) (Client, error) {
	creds, err := s.credentials(ctx)
	if err != nil {
		return nil, &storage.StorageError{Op: op, Bucket: s.bucket, Key: key, Err: err}
	}
	c, err := s.factory.NewClient(creds)
	if err != nil {
		return nil, &storage.StorageError{Op: op, Bucket: s.bucket, Key: key, Err: err}
	}
	return c, nil
}

// List returns one page of a listing.
//
// Delimited listings are returned whole: minio-go follows continuation
// internally and a StartAfter cursor cannot resume inside a collapsed
// prefix. Recursive listings are paged using the last key as the cursor.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.ListPage, error) {
	c, err := s.client(ctx, "List", opts.Prefix)
	if err != nil {
		return nil, err
	}

	recursive := opts.Delimiter == ""
	maxKeys := storage.ClampMaxKeys(opts.MaxKeys)

	// Cancel the listing goroutine when we stop reading early.
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	objectCh := c.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{
		Prefix:     opts.Prefix,
		Recursive:  recursive,
		StartAfter: opts.ContinuationToken,
		MaxKeys:    maxKeys,
	})

	page := &storage.ListPage{}
	var lastKey string
	count := 0
	for object := range objectCh {
		if object.Err != nil {
			return nil, s.wrapError("List", opts.Prefix, object.Err)
		}

		if recursive && count >= maxKeys {
			page.IsTruncated = true
			page.NextContinuationToken = lastKey
			break
		}

		if !recursive && strings.HasSuffix(object.Key, storage.Delimiter) && object.Key != opts.Prefix {
			page.CommonPrefixes = append(page.CommonPrefixes, object.Key)
		} else {
			page.Objects = append(page.Objects, storage.ObjectInfo{
				Key:          object.Key,
				Size:         object.Size,
				LastModified: object.LastModified,
				ETag:         strings.Trim(object.ETag, "\""),
				ContentType:  object.ContentType,
			})
		}
		lastKey = object.Key
		count++
	}
	return page, nil
}

// Head returns metadata for key.
func (s *Store) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	c, err := s.client(ctx, "Head", key)
	if err != nil {
		return nil, err
	}
	info, err := c.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, s.wrapError("Head", key, err)
	}
	return &storage.ObjectInfo{
		Key:          key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ETag:         strings.Trim(info.ETag, "\""),
		ContentType:  info.ContentType,
	}, nil
}

// Put writes an object in a single request.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	c, err := s.client(ctx, "Put", key)
	if err != nil {
		return err
	}
	_, err = c.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return s.wrapError("Put", key, err)
	}
	return nil
}

// Upload writes an object, uploading parts in parallel.
func (s *Store) Upload(ctx context.Context, in storage.UploadInput) error {
	c, err := s.client(ctx, "Upload", in.Key)
	if err != nil {
		return err
	}

	size := in.Size
	if size <= 0 {
		size = -1
	}
	opts := minio.PutObjectOptions{ContentType: in.ContentType}
	if in.PartConcurrency > 0 {
		opts.NumThreads = uint(in.PartConcurrency)
		opts.ConcurrentStreamParts = in.PartConcurrency > 1
	}
	if in.Progress != nil {
		opts.Progress = progressHook(in.Progress)
	}

	if _, err := c.PutObject(ctx, s.bucket, in.Key, in.Body, size, opts); err != nil {
		return s.wrapError("Upload", in.Key, err)
	}
	return nil
}

// DeleteObjects removes up to storage.MaxDeleteKeys keys.
func (s *Store) DeleteObjects(ctx context.Context, keys []string) (*storage.DeleteResult, error) {
	if len(keys) == 0 {
		return &storage.DeleteResult{}, nil
	}
	if len(keys) > storage.MaxDeleteKeys {
		return nil, s.wrapError("DeleteObjects", "", errors.New("too many keys in one request"))
	}
	c, err := s.client(ctx, "DeleteObjects", "")
	if err != nil {
		return nil, err
	}

	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objectsCh <- minio.ObjectInfo{Key: k}
	}
	close(objectsCh)

	failed := make(map[string]bool)
	result := &storage.DeleteResult{}
	for rErr := range c.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rErr.Err == nil {
			continue
		}
		resp := minio.ToErrorResponse(rErr.Err)
		failed[rErr.ObjectName] = true
		result.Errors = append(result.Errors, storage.DeleteError{
			Key:     rErr.ObjectName,
			Code:    resp.Code,
			Message: rErr.Err.Error(),
		})
	}
	for _, k := range keys {
		if !failed[k] {
			result.Deleted = append(result.Deleted, k)
		}
	}
	return result, nil
}

// PresignGet returns a presigned download URL.
func (s *Store) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	c, err := s.client(ctx, "PresignGet", key)
	if err != nil {
		return "", err
	}
	u, err := c.PresignedGetObject(ctx, s.bucket, key, expires, nil)
	if err != nil {
		return "", s.wrapError("PresignGet", key, err)
	}
	return u.String(), nil
}

// BucketUsage reports the bucket size from the admin data usage cache.
func (s *Store) BucketUsage(ctx context.Context) (uint64, error) {
	creds, err := s.credentials(ctx)
	if err != nil {
		return 0, &storage.StorageError{Op: "BucketUsage", Bucket: s.bucket, Err: err}
	}
	admin, err := s.factory.NewAdminClient(creds)
	if err != nil {
		return 0, &storage.StorageError{Op: "BucketUsage", Bucket: s.bucket, Err: err}
	}
	usage, err := admin.DataUsageInfo(ctx)
	if err != nil {
		return 0, s.wrapError("BucketUsage", "", err)
	}
	return usage.BucketSizes[s.bucket], nil
}

func (s *Store) wrapError(op, key string, err error) error {
	wrapped := &storage.StorageError{Op: op, Bucket: s.bucket, Key: key, Err: err}
	resp := minio.ToErrorResponse(err)
	if sentinel := storage.ClassifyCode(resp.Code); sentinel != nil {
		wrapped.Err = sentinel
	}
	return wrapped
}

// progressHook satisfies minio-go's Progress reader, which is read with a
// buffer sized to the bytes just uploaded.
type progressHook func(int64)

func (p progressHook) Read(b []byte) (int, error) {
	p(int64(len(b)))
	return len(b), nil
}
