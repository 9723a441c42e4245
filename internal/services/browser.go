package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/damacus/your-files/internal/logger"
	"github.com/damacus/your-files/internal/models"
	"github.com/damacus/your-files/internal/storage"
)

// DefaultDownloadExpiry is how long presigned download links stay valid.
const DefaultDownloadExpiry = 15 * time.Minute

// ErrUsageUnsupported is returned when the backend cannot report usage.
var ErrUsageUnsupported = errors.New("bucket usage is not supported by this backend")

// Browser is the bucket browser client: listing, uploads, deletes and
// folder creation over one store and layout.
type Browser struct {
	store    storage.ObjectStore
	layout   Layout
	lister   *Lister
	uploader *Uploader
	deleter  *Deleter
	expiry   time.Duration
}

// BrowserOptions tunes the orchestrators a Browser creates.
type BrowserOptions struct {
	DownloadExpiry time.Duration
	UploadOptions  []UploaderOption
	DeleteOptions  []DeleterOption
}

// NewBrowser wires the listing and orchestration services around store.
func NewBrowser(store storage.ObjectStore, layout Layout, opts BrowserOptions) *Browser {
	layout = layout.Normalize()
	expiry := opts.DownloadExpiry
	if expiry <= 0 {
		expiry = DefaultDownloadExpiry
	}
	return &Browser{
		store:    store,
		layout:   layout,
		lister:   NewLister(store, layout),
		uploader: NewUploader(store, opts.UploadOptions...),
		deleter:  NewDeleter(store, layout, opts.DeleteOptions...),
		expiry:   expiry,
	}
}

// Layout returns the normalised layout.
func (b *Browser) Layout() Layout {
	return b.layout
}

// Bucket returns the bucket name.
func (b *Browser) Bucket() string {
	return b.store.Bucket()
}

// List lists prefix.
func (b *Browser) List(ctx context.Context, prefix string) (*models.Listing, error) {
	return b.lister.List(ctx, prefix)
}

// Upload starts uploading sources under prefix.
func (b *Browser) Upload(ctx context.Context, sources []UploadSource, prefix string) (*UploadRun, error) {
	p, err := b.layout.Resolve(prefix)
	if err != nil {
		return nil, err
	}
	return b.uploader.Start(ctx, sources, p), nil
}

// Delete starts deleting the selected files and folders.
func (b *Browser) Delete(ctx context.Context, files, folders []string) *DeleteRun {
	return b.deleter.Start(ctx, files, folders)
}

// CreateFolder creates an empty "prefix/name/" marker object. An existing
// marker returns ErrFolderExists.
func (b *Browser) CreateFolder(ctx context.Context, prefix, name string) (string, error) {
	p, err := b.layout.Resolve(prefix)
	if err != nil {
		return "", err
	}
	name = strings.Trim(strings.TrimSpace(name), storage.Delimiter)
	if name == "" || name == "." || name == ".." || strings.Contains(name, storage.Delimiter) {
		return "", ErrInvalidName
	}
	key := p + name + storage.Delimiter

	_, err = b.store.Head(ctx, key)
	switch {
	case err == nil:
		return key, ErrFolderExists
	case !storage.IsNotFound(err):
		return "", err
	}

	if err := b.store.Put(ctx, key, bytes.NewReader(nil), 0, ""); err != nil {
		return "", err
	}
	logger.Ctx(ctx).Info().Str("key", key).Msg("folder created")
	return key, nil
}

// DownloadURL returns a presigned GET link for key.
func (b *Browser) DownloadURL(ctx context.Context, key string) (string, error) {
	if key == "" || strings.HasSuffix(key, storage.Delimiter) || !b.layout.Allowed(key) {
		return "", ErrOutsideRoot
	}
	return b.store.PresignGet(ctx, key, b.expiry)
}

// CreateTableURL returns the create-table link for key, or "".
func (b *Browser) CreateTableURL(key string) string {
	return b.layout.CreateTableLink(key)
}

// Usage reports the bytes stored in the bucket.
func (b *Browser) Usage(ctx context.Context) (uint64, error) {
	r, ok := b.store.(storage.UsageReporter)
	if !ok {
		return 0, ErrUsageUnsupported
	}
	return r.BucketUsage(ctx)
}
