package worker_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"inference-task-worker/internal/blob"
	"inference-task-worker/internal/config"
	"inference-task-worker/internal/entity"
	"inference-task-worker/internal/pipeline"
	"inference-task-worker/internal/repository/postgresql"
	"inference-task-worker/internal/worker"
)

var errConnRefused = errors.New("dial tcp: connection refused")

type statusChange struct {
	TaskID string
	Status entity.TaskStatus
}

// memStore is an in-memory task store: queue, patient index, outputs and
// per-job counters, with the same semantics as the Postgres repositories.
type memStore struct {
	mu sync.Mutex

	order []string
	tasks map[string]*entity.Task
	metas map[string][]entity.PatientMeta

	outputs   map[string]*entity.OutputRecord
	processed map[string]int
	totals    map[string]int
	counted   map[string]bool
	completed map[string]bool

	history []statusChange
	writes  int

	fetchErr    error
	fetchPanics bool
	updateFails int
	requeueErr  error
	claimStolen bool
}

func newMemStore() *memStore {
	return &memStore{
		tasks:     map[string]*entity.Task{},
		metas:     map[string][]entity.PatientMeta{},
		outputs:   map[string]*entity.OutputRecord{},
		processed: map[string]int{},
		totals:    map[string]int{},
		counted:   map[string]bool{},
		completed: map[string]bool{},
	}
}

func (s *memStore) add(taskID, imageID, readerTestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, taskID)
	s.tasks[taskID] = &entity.Task{
		TaskID:       taskID,
		ImageID:      imageID,
		ReaderTestID: readerTestID,
		Status:       entity.StatusPending,
		EnqueuedAt:   time.Now(),
	}
}

func (s *memStore) addMeta(imageID string, meta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas[imageID] = append(s.metas[imageID], entity.PatientMeta{
		ID:       "p-" + imageID,
		ImageSrc: imageID,
		Meta:     json.RawMessage(meta),
	})
}

func (s *memStore) setTotal(readerTestID string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[readerTestID] = total
}

func (s *memStore) task(taskID string) (entity.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return entity.Task{}, false
	}
	return *t, true
}

func (s *memStore) output(readerTestID, taskID string) (*entity.OutputRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.outputs[readerTestID+"/"+taskID]
	return rec, ok
}

func (s *memStore) statuses(taskID string) []entity.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.TaskStatus
	for _, h := range s.history {
		if h.TaskID == taskID {
			out = append(out, h.Status)
		}
	}
	return out
}

// backdate moves the task's last status change into the past.
func (s *memStore) backdate(taskID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tasks[taskID]
	t.UpdatedAt = t.UpdatedAt.Add(-d)
	if t.ClaimedAt != nil {
		claimed := t.ClaimedAt.Add(-d)
		t.ClaimedAt = &claimed
	}
}

func (s *memStore) record(taskID string, status entity.TaskStatus) {
	if t, ok := s.tasks[taskID]; ok {
		t.UpdatedAt = time.Now()
	}
	s.writes++
	s.history = append(s.history, statusChange{TaskID: taskID, Status: status})
}

func (s *memStore) firstPending() *entity.Task {
	for _, id := range s.order {
		if t, ok := s.tasks[id]; ok && t.Status == entity.StatusPending {
			return t
		}
	}
	return nil
}

func (s *memStore) GetPending(ctx context.Context) (*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchPanics {
		panic("nil pointer dereference")
	}
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	t := s.firstPending()
	if t == nil {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) ClaimNext(ctx context.Context) (*entity.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchPanics {
		panic("nil pointer dereference")
	}
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	t := s.firstPending()
	if t == nil {
		return nil, nil
	}
	now := time.Now()
	t.Status = entity.StatusInProgress
	t.Attempts++
	t.ClaimedAt = &now
	s.record(t.TaskID, t.Status)
	cp := *t
	return &cp, nil
}

func (s *memStore) Claim(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if s.claimStolen && ok {
		t.Status = entity.StatusInProgress
	}
	if !ok || t.Status != entity.StatusPending {
		return postgresql.ErrNotClaimable
	}
	now := time.Now()
	t.Status = entity.StatusInProgress
	t.Attempts++
	t.ClaimedAt = &now
	s.record(taskID, t.Status)
	return nil
}

func (s *memStore) UpdateStatus(ctx context.Context, taskID string, status entity.TaskStatus, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateFails > 0 {
		s.updateFails--
		return errConnRefused
	}
	t, ok := s.tasks[taskID]
	if !ok {
		return postgresql.ErrNotFound
	}
	t.Status = status
	if cause != nil {
		msg := cause.Error()
		t.LastError = &msg
	}
	s.record(taskID, status)
	return nil
}

func (s *memStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; ok {
		s.writes++
		delete(s.tasks, taskID)
	}
	return nil
}

func (s *memStore) Requeue(ctx context.Context, taskID string, maxAttempts int) (entity.TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requeueErr != nil {
		return "", s.requeueErr
	}
	t, ok := s.tasks[taskID]
	if !ok {
		return "", postgresql.ErrNotFound
	}
	if maxAttempts == 0 || t.Attempts < maxAttempts {
		t.Status = entity.StatusPending
	} else {
		t.Status = entity.StatusFailed
	}
	t.ClaimedAt = nil
	s.record(taskID, t.Status)
	return t.Status, nil
}

func (s *memStore) RequeueStale(ctx context.Context, olderThan time.Time, limit, maxAttempts int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range s.order {
		if n >= int64(limit) {
			break
		}
		t, ok := s.tasks[id]
		if !ok {
			continue
		}
		attemptsLeft := maxAttempts == 0 || t.Attempts < maxAttempts
		stuck := t.Status == entity.StatusInProgress && t.ClaimedAt != nil && t.ClaimedAt.Before(olderThan)
		stranded := t.Status == entity.StatusFailed && attemptsLeft && t.UpdatedAt.Before(olderThan)
		if !stuck && !stranded {
			continue
		}
		if attemptsLeft {
			t.Status = entity.StatusPending
		} else {
			t.Status = entity.StatusFailed
		}
		t.ClaimedAt = nil
		s.record(id, t.Status)
		n++
	}
	return n, nil
}

func (s *memStore) PurgeCompleted(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tasks {
		if t.Status == entity.StatusCompleted && t.UpdatedAt.Before(olderThan) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) QueryByIndex(ctx context.Context, index, key string) ([]entity.PatientMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index != postgresql.SrcIndex {
		return nil, postgresql.ErrUnknownIndex
	}
	return s.metas[key], nil
}

func (s *memStore) Set(ctx context.Context, rec *entity.OutputRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	cp := *rec
	s.outputs[rec.ReaderTestID+"/"+rec.TaskID] = &cp
	return nil
}

func (s *memStore) IncrementAndCheck(ctx context.Context, readerTestID, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := readerTestID + "/" + taskID
	if s.counted[key] {
		return false, nil
	}
	s.counted[key] = true
	s.writes++
	s.processed[readerTestID]++

	total, ok := s.totals[readerTestID]
	if !ok || s.completed[readerTestID] || s.processed[readerTestID] < total {
		return false, nil
	}
	s.completed[readerTestID] = true
	return true, nil
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   int
	block   bool
}

func (b *memBlobs) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	b.mu.Lock()
	b.calls++
	block := b.block
	raw, ok := b.objects[bucket+"/"+key]
	b.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !ok {
		return nil, blob.ErrNotFound
	}
	return raw, nil
}

type stubModel struct {
	mu     sync.Mutex
	calls  int
	logits []float32
	err    error
	panics bool
	shape  []int
}

func (m *stubModel) Name() string { return "stub" }

func (m *stubModel) Predict(ctx context.Context, input pipeline.Tensor) (pipeline.Tensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.shape = input.Shape
	if m.panics {
		panic("tensor shape mismatch")
	}
	if m.err != nil {
		return pipeline.Tensor{}, m.err
	}
	return pipeline.Tensor{Shape: []int{1, len(m.logits)}, Data: m.logits}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	done []string
	err  error
}

func (n *recordingNotifier) JobDone(ctx context.Context, readerTestID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.done = append(n.done, readerTestID)
	return n.err
}

func (n *recordingNotifier) signals() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.done...)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

const testBucket = "reader-images"

type harness struct {
	store      *memStore
	blobs      *memBlobs
	model      *stubModel
	notifier   *recordingNotifier
	reconciler *worker.Reconciler
	executor   *worker.Executor
	runner     *worker.Runner
}

type harnessOptions struct {
	claimMode    string
	maxAttempts  int
	blobTimeout  time.Duration
	modelTimeout time.Duration
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	if opts.claimMode == "" {
		opts.claimMode = config.ClaimModeAtomic
	}

	h := &harness{
		store:    newMemStore(),
		blobs:    &memBlobs{objects: map[string][]byte{}},
		model:    &stubModel{logits: []float32{0, 0, 0}},
		notifier: &recordingNotifier{},
	}
	h.reconciler = worker.NewReconciler(h.store, opts.maxAttempts,
		worker.WithRetries(2),
		worker.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
	h.executor = worker.NewExecutor(
		h.reconciler,
		h.store,
		h.blobs,
		pipeline.New(8, 500),
		h.model,
		h.store,
		h.store,
		h.notifier,
		worker.ExecutorConfig{
			Bucket:       testBucket,
			BlobTimeout:  opts.blobTimeout,
			ModelTimeout: opts.modelTimeout,
		},
	)
	h.runner = worker.NewRunner(worker.NewFetcher(h.store, opts.claimMode), h.executor, h.reconciler)
	return h
}

// addReadyTask enqueues a task whose metadata and artifact both exist.
func (h *harness) addReadyTask(t *testing.T, taskID, readerTestID string) {
	t.Helper()
	imageID := "reader/" + readerTestID + "/" + taskID + ".png"
	h.store.add(taskID, imageID, readerTestID)
	h.store.addMeta(imageID, `{"age":61}`)
	h.blobs.objects[testBucket+"/"+taskID+".png"] = pngBytes(t, 16, 12)
}
