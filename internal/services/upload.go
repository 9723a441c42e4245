package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/damacus/your-files/internal/logger"
	"github.com/damacus/your-files/internal/metrics"
	"github.com/damacus/your-files/internal/models"
	"github.com/damacus/your-files/internal/storage"
	"github.com/damacus/your-files/internal/utils"
)

// MaxConnections is the total number of part uploads in flight per run.
const MaxConnections = 4

// UploadProgressFunc receives a snapshot of a task whenever it changes.
type UploadProgressFunc func(index int, task models.UploadTask)

// Uploader runs bounded-concurrency multipart uploads.
type Uploader struct {
	store      storage.ObjectStore
	onProgress UploadProgressFunc
	onComplete func([]models.UploadTask)
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithUploadProgress registers a progress callback. It may be called from
// several goroutines at once.
func WithUploadProgress(fn UploadProgressFunc) UploaderOption {
	return func(u *Uploader) { u.onProgress = fn }
}

// WithUploadComplete registers a callback fired once when a run settles.
func WithUploadComplete(fn func([]models.UploadTask)) UploaderOption {
	return func(u *Uploader) { u.onComplete = fn }
}

// NewUploader creates an Uploader over store.
func NewUploader(store storage.ObjectStore, opts ...UploaderOption) *Uploader {
	u := &Uploader{store: store}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UploadPlan returns how many files upload at once for n files and how many
// part connections each of them gets.
func UploadPlan(n int) (concurrentFiles, connectionsPerFile int) {
	if n <= 0 {
		return 0, 0
	}
	concurrentFiles = min(MaxConnections, n)
	return concurrentFiles, MaxConnections / concurrentFiles
}

// UploadRun is one call to Start.
type UploadRun struct {
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	tasks    []models.UploadTask
	aborted  bool
	complete sync.Once
}

// Start uploads sources under targetPrefix in the background.
func (u *Uploader) Start(ctx context.Context, sources []UploadSource, targetPrefix string) *UploadRun {
	ctx, cancel := context.WithCancel(ctx)
	run := &UploadRun{
		cancel: cancel,
		done:   make(chan struct{}),
		tasks:  make([]models.UploadTask, len(sources)),
	}
	for i, src := range sources {
		run.tasks[i] = models.UploadTask{
			Name:         src.Name,
			RelativePath: src.RelativePath,
			Key:          src.KeyUnder(targetPrefix),
			Size:         src.Size,
			Status:       models.UploadPending,
		}
	}

	concurrentFiles, connectionsPerFile := UploadPlan(len(sources))
	log := logger.Ctx(ctx)
	log.Info().
		Int("files", len(sources)).
		Int("concurrent_files", concurrentFiles).
		Int("connections_per_file", connectionsPerFile).
		Str("prefix", targetPrefix).
		Msg("upload started")

	go func() {
		defer close(run.done)
		defer cancel()

		g := new(errgroup.Group)
		g.SetLimit(max(concurrentFiles, 1))
		for i, src := range sources {
			if run.isAborted() || ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				// Aborted while waiting for a slot.
				if run.isAborted() || ctx.Err() != nil {
					return nil
				}
				u.uploadOne(ctx, run, i, src, connectionsPerFile)
				return nil
			})
		}
		_ = g.Wait()

		tasks := run.Tasks()
		log.Info().Int("files", len(tasks)).Bool("aborted", run.isAborted()).Msg("upload finished")
		run.complete.Do(func() {
			if u.onComplete != nil {
				u.onComplete(tasks)
			}
		})
	}()
	return run
}

func (u *Uploader) uploadOne(ctx context.Context, run *UploadRun, i int, src UploadSource, partConcurrency int) {
	task := run.update(i, func(t *models.UploadTask) { t.Status = models.UploadUploading })
	u.notify(i, task)

	err := func() error {
		body, err := src.Open()
		if err != nil {
			return err
		}
		defer func() { _ = body.Close() }()

		var sent atomic.Int64
		return u.store.Upload(ctx, storage.UploadInput{
			Key:             task.Key,
			Body:            body,
			Size:            src.Size,
			ContentType:     utils.ContentTypeFromExt(src.Name),
			PartConcurrency: partConcurrency,
			Progress: func(n int64) {
				metrics.UploadedBytes.Add(float64(n))
				pct := percent(sent.Add(n), src.Size)
				t := run.update(i, func(t *models.UploadTask) { t.Progress = pct })
				u.notify(i, t)
			},
		})
	}()

	task = run.update(i, func(t *models.UploadTask) {
		switch {
		case err == nil:
			t.Status = models.UploadUploaded
			t.Progress = 100
		case run.aborted && (errors.Is(err, context.Canceled) || ctx.Err() != nil):
			t.Status = models.UploadAborted
			t.Error = "upload aborted"
		default:
			t.Status = models.UploadFailed
			t.Error = err.Error()
		}
	})
	metrics.UploadsTotal.WithLabelValues(string(task.Status)).Inc()
	if err != nil && task.Status == models.UploadFailed {
		logger.Ctx(ctx).Warn().Err(err).Str("key", task.Key).Msg("upload failed")
	}
	u.notify(i, task)
}

func (u *Uploader) notify(i int, task models.UploadTask) {
	if u.onProgress != nil {
		u.onProgress(i, task)
	}
}

func percent(sent, size int64) int {
	if size <= 0 {
		return 0
	}
	p := int(sent * 100 / size)
	return min(p, 100)
}

// update applies fn to task i under the lock and returns a copy.
func (r *UploadRun) update(i int, fn func(*models.UploadTask)) models.UploadTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.tasks[i])
	return r.tasks[i]
}

func (r *UploadRun) isAborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

// Abort stops admitting files and cancels uploads in flight. Files that
// never started stay pending.
func (r *UploadRun) Abort() {
	r.mu.Lock()
	r.aborted = true
	r.mu.Unlock()
	r.cancel()
}

// Wait blocks until every admitted file settled and returns the tasks.
func (r *UploadRun) Wait() []models.UploadTask {
	<-r.done
	return r.Tasks()
}

// Done is closed when the run settles.
func (r *UploadRun) Done() <-chan struct{} {
	return r.done
}

// Tasks returns a snapshot of every task.
func (r *UploadRun) Tasks() []models.UploadTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.UploadTask, len(r.tasks))
	copy(out, r.tasks)
	return out
}
