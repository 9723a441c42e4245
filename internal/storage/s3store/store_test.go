package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damacus/your-files/internal/storage"
)

// mockAPIError implements smithy.APIError for testing error code mapping.
type mockAPIError struct {
	code    string
	message string
}

func (e *mockAPIError) Error() string                 { return fmt.Sprintf("%s: %s", e.code, e.message) }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return e.message }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

var _ smithy.APIError = (*mockAPIError)(nil)

type fakeAPI struct {
	listInput   *s3.ListObjectsV2Input
	listOutput  *s3.ListObjectsV2Output
	headErr     error
	putInput    *s3.PutObjectInput
	deleteInput *s3.DeleteObjectsInput
	deleteOut   *s3.DeleteObjectsOutput
	err         error
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listInput = in
	return f.listOutput, f.err
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(3), ContentType: aws.String("text/csv")}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putInput = in
	return &s3.PutObjectOutput{}, f.err
}

func (f *fakeAPI) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.deleteInput = in
	return f.deleteOut, f.err
}

type fakeUploader struct {
	concurrency int
	body        []byte
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	u := &manager.Uploader{}
	for _, o := range opts {
		o(u)
	}
	f.concurrency = u.Concurrency
	b, err := io.ReadAll(in.Body)
	f.body = b
	return &manager.UploadOutput{}, err
}

type fakePresigner struct{}

func (fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + aws.ToString(in.Key)}, nil
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	require.Error(t, cfg.Validate())

	cfg.Bucket = "data"
	assert.NoError(t, cfg.Validate())
}

// countingProvider hands out credentials that expire in 30 seconds.
type countingProvider struct {
	calls int
}

func (p *countingProvider) Retrieve(context.Context) (aws.Credentials, error) {
	p.calls++
	return aws.Credentials{
		AccessKeyID:     "AKIA",
		SecretAccessKey: "secret",
		CanExpire:       true,
		Expires:         time.Now().Add(30 * time.Second),
	}, nil
}

func TestLoadAWSConfig_ExpiryWindow(t *testing.T) {
	t.Run("credentials inside the window are refetched", func(t *testing.T) {
		provider := &countingProvider{}
		awsCfg, err := loadAWSConfig(context.Background(), Config{
			Bucket:       "data",
			Region:       "eu-west-2",
			Credentials:  provider,
			ExpiryWindow: time.Minute,
		})
		require.NoError(t, err)
		require.IsType(t, &aws.CredentialsCache{}, awsCfg.Credentials)

		for i := 0; i < 2; i++ {
			_, err := awsCfg.Credentials.Retrieve(context.Background())
			require.NoError(t, err)
		}
		assert.Equal(t, 2, provider.calls)
	})

	t.Run("no window caches until expiry", func(t *testing.T) {
		provider := &countingProvider{}
		awsCfg, err := loadAWSConfig(context.Background(), Config{
			Bucket:      "data",
			Region:      "eu-west-2",
			Credentials: provider,
		})
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, err := awsCfg.Credentials.Retrieve(context.Background())
			require.NoError(t, err)
		}
		assert.Equal(t, 1, provider.calls)
	})

	t.Run("default region without endpoint", func(t *testing.T) {
		t.Setenv("AWS_REGION", "")
		t.Setenv("AWS_DEFAULT_REGION", "")
		t.Setenv("AWS_PROFILE", "")
		t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
		awsCfg, err := loadAWSConfig(context.Background(), Config{Bucket: "data"})
		require.NoError(t, err)
		assert.Equal(t, DefaultRegion, awsCfg.Region)
	})
}

func TestStore_List(t *testing.T) {
	modified := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{listOutput: &s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("home/alice/a.csv"), Size: aws.Int64(10), LastModified: aws.Time(modified), ETag: aws.String(`"abc"`)},
		},
		CommonPrefixes:        []types.CommonPrefix{{Prefix: aws.String("home/alice/reports/")}},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("next"),
	}}
	store := newStore(api, &fakeUploader{}, fakePresigner{}, "data")

	page, err := store.List(context.Background(), storage.ListOptions{Prefix: "home/alice/", Delimiter: "/", ContinuationToken: "tok"})
	require.NoError(t, err)

	assert.Equal(t, "home/alice/", aws.ToString(api.listInput.Prefix))
	assert.Equal(t, "/", aws.ToString(api.listInput.Delimiter))
	assert.Equal(t, "tok", aws.ToString(api.listInput.ContinuationToken))
	assert.Equal(t, int32(1000), aws.ToInt32(api.listInput.MaxKeys))

	require.Len(t, page.Objects, 1)
	assert.Equal(t, "abc", page.Objects[0].ETag)
	assert.Equal(t, modified, page.Objects[0].LastModified)
	assert.Equal(t, []string{"home/alice/reports/"}, page.CommonPrefixes)
	assert.True(t, page.IsTruncated)
	assert.Equal(t, "next", page.NextContinuationToken)
}

func TestStore_List_RecursiveOmitsDelimiter(t *testing.T) {
	api := &fakeAPI{listOutput: &s3.ListObjectsV2Output{}}
	store := newStore(api, &fakeUploader{}, fakePresigner{}, "data")

	_, err := store.List(context.Background(), storage.ListOptions{Prefix: "x/"})
	require.NoError(t, err)
	assert.Nil(t, api.listInput.Delimiter)
}

func TestStore_Head_NotFound(t *testing.T) {
	api := &fakeAPI{headErr: &mockAPIError{code: "NotFound"}}
	store := newStore(api, &fakeUploader{}, fakePresigner{}, "data")

	_, err := store.Head(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))

	var se *storage.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Head", se.Op)
	assert.Equal(t, "missing", se.Key)
}

func TestStore_Head_TypedNotFound(t *testing.T) {
	api := &fakeAPI{headErr: &types.NotFound{}}
	store := newStore(api, &fakeUploader{}, fakePresigner{}, "data")

	_, err := store.Head(context.Background(), "missing")
	assert.True(t, storage.IsNotFound(err))
}

func TestStore_Upload(t *testing.T) {
	up := &fakeUploader{}
	store := newStore(&fakeAPI{}, up, fakePresigner{}, "data")

	var reported int64
	err := store.Upload(context.Background(), storage.UploadInput{
		Key:             "home/alice/a.txt",
		Body:            strings.NewReader("hello"),
		Size:            5,
		PartConcurrency: 2,
		Progress:        func(n int64) { reported += n },
	})
	require.NoError(t, err)

	assert.Equal(t, 2, up.concurrency)
	assert.Equal(t, "hello", string(up.body))
	assert.Equal(t, int64(5), reported)
}

func TestStore_DeleteObjects(t *testing.T) {
	api := &fakeAPI{deleteOut: &s3.DeleteObjectsOutput{
		Deleted: []types.DeletedObject{{Key: aws.String("a")}},
		Errors:  []types.Error{{Key: aws.String("b"), Code: aws.String("AccessDenied"), Message: aws.String("nope")}},
	}}
	store := newStore(api, &fakeUploader{}, fakePresigner{}, "data")

	res, err := store.DeleteObjects(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Len(t, api.deleteInput.Delete.Objects, 2)
	assert.False(t, aws.ToBool(api.deleteInput.Delete.Quiet))
	assert.Equal(t, []string{"a"}, res.Deleted)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "b", res.Errors[0].Key)
	assert.Equal(t, "AccessDenied", res.Errors[0].Code)
}

func TestStore_DeleteObjects_RejectsOversizedBatch(t *testing.T) {
	store := newStore(&fakeAPI{}, &fakeUploader{}, fakePresigner{}, "data")

	_, err := store.DeleteObjects(context.Background(), make([]string, storage.MaxDeleteKeys+1))
	assert.Error(t, err)
}

func TestStore_WrapError_Codes(t *testing.T) {
	store := newStore(&fakeAPI{}, &fakeUploader{}, fakePresigner{}, "data")

	tests := []struct {
		code string
		want error
	}{
		{"AccessDenied", storage.ErrAccessDenied},
		{"NoSuchBucket", storage.ErrBucketNotFound},
		{"SlowDown", storage.ErrThrottled},
		{"InvalidAccessKeyId", storage.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := store.wrapError("List", "", &mockAPIError{code: tt.code})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	plain := errors.New("boom")
	assert.ErrorIs(t, store.wrapError("List", "", plain), plain)
}

func TestStore_PresignGet(t *testing.T) {
	store := newStore(&fakeAPI{}, &fakeUploader{}, fakePresigner{}, "data")

	url, err := store.PresignGet(context.Background(), "home/alice/a.csv", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/home/alice/a.csv", url)
}
