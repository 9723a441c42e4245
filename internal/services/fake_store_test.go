package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/damacus/your-files/internal/storage"
)

// fakeStore is an in-memory ObjectStore.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string]storage.ObjectInfo
	data    map[string][]byte

	listCalls    []storage.ListOptions
	deleteCalls  [][]string
	uploadInputs []storage.UploadInput

	listErr   map[string]error // by prefix
	headErr   error
	deleteErr func(keys []string) error
	keyErrors map[string]string // key -> error code
	uploadFn  func(ctx context.Context, in storage.UploadInput) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:   make(map[string]storage.ObjectInfo),
		data:      make(map[string][]byte),
		listErr:   make(map[string]error),
		keyErrors: make(map[string]string),
	}
}

func (f *fakeStore) add(key string, size int64, modified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = storage.ObjectInfo{Key: key, Size: size, LastModified: modified}
}

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeStore) Bucket() string { return "test-bucket" }

func (f *fakeStore) List(ctx context.Context, opts storage.ListOptions) (*storage.ListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, opts)
	if err := f.listErr[opts.Prefix]; err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	// Entries are either objects or collapsed prefixes, in key order.
	type entry struct {
		key      string
		isPrefix bool
	}
	var entries []entry
	seen := make(map[string]bool)
	for _, k := range keys {
		if opts.Delimiter != "" {
			rest := strings.TrimPrefix(k, opts.Prefix)
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				cp := opts.Prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					entries = append(entries, entry{key: cp, isPrefix: true})
				}
				continue
			}
		}
		entries = append(entries, entry{key: k})
	}

	start := 0
	if opts.ContinuationToken != "" {
		n, err := strconv.Atoi(opts.ContinuationToken)
		if err != nil {
			return nil, errors.New("bad token")
		}
		start = n
	}
	maxKeys := storage.ClampMaxKeys(opts.MaxKeys)
	end := min(start+maxKeys, len(entries))

	page := &storage.ListPage{}
	for _, e := range entries[start:end] {
		if e.isPrefix {
			page.CommonPrefixes = append(page.CommonPrefixes, e.key)
		} else {
			page.Objects = append(page.Objects, f.objects[e.key])
		}
	}
	if end < len(entries) {
		page.IsTruncated = true
		page.NextContinuationToken = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeStore) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	obj, ok := f.objects[key]
	if !ok {
		return nil, &storage.StorageError{Op: "Head", Bucket: "test-bucket", Key: key, Err: storage.ErrNotFound}
	}
	return &obj, nil
}

func (f *fakeStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = storage.ObjectInfo{Key: key, Size: int64(len(b)), LastModified: time.Now()}
	f.data[key] = b
	return nil
}

func (f *fakeStore) Upload(ctx context.Context, in storage.UploadInput) error {
	f.mu.Lock()
	f.uploadInputs = append(f.uploadInputs, in)
	fn := f.uploadFn
	f.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, in); err != nil {
			return err
		}
	}

	b, err := io.ReadAll(in.Body)
	if err != nil {
		return err
	}
	if in.Progress != nil && len(b) > 0 {
		in.Progress(int64(len(b)))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[in.Key] = storage.ObjectInfo{Key: in.Key, Size: int64(len(b)), LastModified: time.Now()}
	f.data[in.Key] = b
	return nil
}

func (f *fakeStore) DeleteObjects(ctx context.Context, keys []string) (*storage.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(keys) > storage.MaxDeleteKeys {
		return nil, errors.New("too many keys")
	}
	f.deleteCalls = append(f.deleteCalls, append([]string(nil), keys...))
	if f.deleteErr != nil {
		if err := f.deleteErr(keys); err != nil {
			return nil, err
		}
	}

	result := &storage.DeleteResult{}
	for _, k := range keys {
		if code, ok := f.keyErrors[k]; ok {
			result.Errors = append(result.Errors, storage.DeleteError{Key: k, Code: code, Message: "denied"})
			continue
		}
		delete(f.objects, k)
		delete(f.data, k)
		result.Deleted = append(result.Deleted, k)
	}
	return result, nil
}

func (f *fakeStore) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://test-bucket.example.com/" + key + "?expires=" + expires.String(), nil
}

// usageStore adds bucket usage to fakeStore.
type usageStore struct {
	*fakeStore
	used uint64
}

func (u *usageStore) BucketUsage(ctx context.Context) (uint64, error) {
	return u.used, nil
}
