package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/damacus/your-files/internal/logger"
	"github.com/damacus/your-files/internal/metrics"
	"github.com/damacus/your-files/internal/models"
	"github.com/damacus/your-files/internal/storage"
)

// DeleteProgressFunc receives a snapshot of a task whenever it changes.
type DeleteProgressFunc func(index int, task models.DeleteTask)

// Deleter removes selected files and folders with batched bulk deletes.
type Deleter struct {
	store      storage.ObjectStore
	layout     Layout
	limiter    *rate.Limiter
	pageSize   int
	onProgress DeleteProgressFunc
	onComplete func([]models.DeleteTask)
}

// ErrDeleteNotAcknowledged is recorded for keys a bulk delete response
// reports neither as deleted nor as failed.
var ErrDeleteNotAcknowledged = errors.New("delete not acknowledged by the store")

// DeleterOption configures a Deleter.
type DeleterOption func(*Deleter)

// WithDeleteRateLimit paces list and delete requests. A zero limit means
// no pacing.
func WithDeleteRateLimit(perSecond float64, burst int) DeleterOption {
	return func(d *Deleter) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithDeleteProgress registers a progress callback.
func WithDeleteProgress(fn DeleteProgressFunc) DeleterOption {
	return func(d *Deleter) { d.onProgress = fn }
}

// WithDeleteComplete registers a callback fired once when a run settles.
func WithDeleteComplete(fn func([]models.DeleteTask)) DeleterOption {
	return func(d *Deleter) { d.onComplete = fn }
}

// WithListPageSize sets how many keys each folder listing page asks for.
func WithListPageSize(n int) DeleterOption {
	return func(d *Deleter) { d.pageSize = storage.ClampMaxKeys(n) }
}

// NewDeleter creates a Deleter over store.
func NewDeleter(store storage.ObjectStore, layout Layout, opts ...DeleterOption) *Deleter {
	d := &Deleter{store: store, layout: layout.Normalize(), pageSize: storage.DefaultMaxKeys}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DeleteRun is one call to Start.
type DeleteRun struct {
	done chan struct{}

	mu      sync.Mutex
	tasks   []models.DeleteTask
	aborted bool
}

// Start deletes folders (recursively) and then files in the background.
// Cancelling ctx aborts the run; keys already scheduled are still deleted.
func (d *Deleter) Start(ctx context.Context, files, folders []string) *DeleteRun {
	run := &DeleteRun{done: make(chan struct{})}
	for _, f := range folders {
		run.tasks = append(run.tasks, models.DeleteTask{Key: NormalizePrefix(f), IsFolder: true})
	}
	for _, f := range files {
		run.tasks = append(run.tasks, models.DeleteTask{Key: f})
	}

	stop := context.AfterFunc(ctx, run.Abort)
	go func() {
		defer close(run.done)
		defer stop()
		d.run(context.WithoutCancel(ctx), run)
	}()
	return run
}

type pendingKey struct {
	key    string
	owners []int
}

// deleteState lives on the run goroutine only.
type deleteState struct {
	batch      []*pendingKey
	byKey      map[string]*pendingKey
	remaining  []int
	enumerated []bool
}

func (d *Deleter) run(ctx context.Context, run *DeleteRun) {
	log := logger.Ctx(ctx)
	st := &deleteState{
		byKey:      make(map[string]*pendingKey),
		remaining:  make([]int, len(run.tasks)),
		enumerated: make([]bool, len(run.tasks)),
	}

	for i, task := range run.Tasks() {
		if run.isAborted() {
			break
		}
		if err := d.check(task); err != nil {
			d.fail(run, i, err)
			continue
		}

		d.set(run, i, func(t *models.DeleteTask) { t.DeleteStarted = true })
		if task.IsFolder {
			d.enumerate(ctx, run, st, i, task.Key)
		} else {
			d.schedule(ctx, run, st, i, task.Key)
			st.enumerated[i] = true
			d.settle(run, st, i)
		}
	}
	d.flush(ctx, run, st)

	tasks := run.Tasks()
	log.Info().Int("items", len(tasks)).Bool("aborted", run.isAborted()).Msg("delete finished")
	if d.onComplete != nil {
		d.onComplete(tasks)
	}
}

func (d *Deleter) check(task models.DeleteTask) error {
	if task.Key == "" || (task.IsFolder && d.layout.IsProtected(task.Key)) {
		return ErrProtectedPrefix
	}
	if !d.layout.Allowed(task.Key) {
		return ErrOutsideRoot
	}
	return nil
}

// enumerate schedules every key under prefix, one listing page at a time.
func (d *Deleter) enumerate(ctx context.Context, run *DeleteRun, st *deleteState, i int, prefix string) {
	token := ""
	for {
		if run.isAborted() {
			return
		}
		if err := d.wait(ctx); err != nil {
			d.fail(run, i, err)
			return
		}
		page, err := d.store.List(ctx, storage.ListOptions{
			Prefix:            prefix,
			ContinuationToken: token,
			MaxKeys:           d.pageSize,
		})
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("prefix", prefix).Msg("folder listing failed")
			d.fail(run, i, err)
			return
		}
		for _, obj := range page.Objects {
			d.schedule(ctx, run, st, i, obj.Key)
		}
		if !page.IsTruncated || page.NextContinuationToken == "" {
			break
		}
		token = page.NextContinuationToken
	}
	st.enumerated[i] = true
	d.settle(run, st, i)
}

func (d *Deleter) schedule(ctx context.Context, run *DeleteRun, st *deleteState, owner int, key string) {
	st.remaining[owner]++
	if pk, ok := st.byKey[key]; ok {
		pk.owners = append(pk.owners, owner)
		return
	}
	pk := &pendingKey{key: key, owners: []int{owner}}
	st.byKey[key] = pk
	st.batch = append(st.batch, pk)
	if len(st.batch) >= storage.MaxDeleteKeys {
		d.flush(ctx, run, st)
	}
}

// flush sends the pending batch and attributes the outcome to its owners.
func (d *Deleter) flush(ctx context.Context, run *DeleteRun, st *deleteState) {
	if len(st.batch) == 0 {
		return
	}
	batch := st.batch
	st.batch = nil
	st.byKey = make(map[string]*pendingKey)

	keys := make([]string, len(batch))
	byKey := make(map[string]*pendingKey, len(batch))
	for j, pk := range batch {
		keys[j] = pk.key
		byKey[pk.key] = pk
	}

	err := d.wait(ctx)
	var result *storage.DeleteResult
	if err == nil {
		result, err = d.store.DeleteObjects(ctx, keys)
	}
	metrics.DeleteBatchesTotal.WithLabelValues(metrics.Status(err)).Inc()

	touched := make(map[int]bool)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Int("keys", len(keys)).Msg("bulk delete failed")
		for _, pk := range batch {
			for _, owner := range pk.owners {
				st.remaining[owner]--
				d.fail(run, owner, err)
			}
		}
		return
	}

	metrics.DeletedObjectsTotal.Add(float64(len(result.Deleted)))
	acked := make(map[string]bool, len(batch))
	for _, key := range result.Deleted {
		pk, ok := byKey[key]
		if !ok || acked[key] {
			continue
		}
		acked[key] = true
		for _, owner := range pk.owners {
			st.remaining[owner]--
			touched[owner] = true
			d.set(run, owner, func(t *models.DeleteTask) { t.KeysDeleted++ })
		}
	}
	for _, e := range result.Errors {
		pk, ok := byKey[e.Key]
		if !ok || acked[e.Key] {
			continue
		}
		acked[e.Key] = true
		for _, owner := range pk.owners {
			st.remaining[owner]--
			d.fail(run, owner, e)
		}
	}
	var missing int
	for _, pk := range batch {
		if acked[pk.key] {
			continue
		}
		missing++
		for _, owner := range pk.owners {
			st.remaining[owner]--
			d.fail(run, owner, fmt.Errorf("%s: %w", pk.key, ErrDeleteNotAcknowledged))
		}
	}
	if missing > 0 {
		logger.Ctx(ctx).Warn().Int("keys", missing).Msg("bulk delete left keys unacknowledged")
	}
	for owner := range touched {
		d.settle(run, st, owner)
	}
}

// settle marks task i finished once its listing ended and every key it
// scheduled was reported deleted.
func (d *Deleter) settle(run *DeleteRun, st *deleteState, i int) {
	if !st.enumerated[i] || st.remaining[i] > 0 {
		return
	}
	d.set(run, i, func(t *models.DeleteTask) {
		if t.DeleteError == "" {
			t.DeleteFinished = true
		}
	})
}

func (d *Deleter) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(ctx)
}

func (d *Deleter) fail(run *DeleteRun, i int, err error) {
	d.set(run, i, func(t *models.DeleteTask) {
		if t.DeleteError == "" {
			t.DeleteError = err.Error()
		}
	})
}

func (d *Deleter) set(run *DeleteRun, i int, fn func(*models.DeleteTask)) {
	run.mu.Lock()
	fn(&run.tasks[i])
	task := run.tasks[i]
	run.mu.Unlock()
	if d.onProgress != nil {
		d.onProgress(i, task)
	}
}

func (r *DeleteRun) isAborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

// Abort stops folder enumeration at the next page. Keys already scheduled
// are still deleted.
func (r *DeleteRun) Abort() {
	r.mu.Lock()
	r.aborted = true
	r.mu.Unlock()
}

// Wait blocks until the run settles and returns the tasks.
func (r *DeleteRun) Wait() []models.DeleteTask {
	<-r.done
	return r.Tasks()
}

// Done is closed when the run settles.
func (r *DeleteRun) Done() <-chan struct{} {
	return r.done
}

// Tasks returns a snapshot of every task.
func (r *DeleteRun) Tasks() []models.DeleteTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.DeleteTask, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// String summarises a finished run for logs and the CLI.
func (r *DeleteRun) String() string {
	var deleted, failed int
	for _, t := range r.Tasks() {
		deleted += t.KeysDeleted
		if t.DeleteError != "" {
			failed++
		}
	}
	return fmt.Sprintf("%d objects deleted, %d items failed", deleted, failed)
}
