package download

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yudee-19/video-downloader/internal/backend"
	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
	"github.com/Yudee-19/video-downloader/internal/store"
	"github.com/Yudee-19/video-downloader/internal/ytdlp"
)

// historyBackend is a memory backend that remembers every status written
// per job key.
type historyBackend struct {
	*store.MemoryBackend
	mu      sync.Mutex
	history map[string][]Status
}

func newHistoryBackend() *historyBackend {
	return &historyBackend{MemoryBackend: store.NewMemoryBackend(), history: make(map[string][]Status)}
}

func (h *historyBackend) Name() string { return "history" }

func (h *historyBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if strings.HasPrefix(key, keyJob) {
		var rec JobRecord
		if err := json.Unmarshal(value, &rec); err == nil {
			h.mu.Lock()
			h.history[key] = append(h.history[key], rec.Status)
			h.mu.Unlock()
		}
	}
	return h.MemoryBackend.Set(ctx, key, value, ttl)
}

func (h *historyBackend) statuses(jobID string) []Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Status(nil), h.history[JobKey(jobID)]...)
}

// fakeResolver writes a file named after the URL's last path segment.
type fakeResolver struct {
	fail map[string]error
}

func (f *fakeResolver) Resolve(ctx context.Context, req ytdlp.Request) (*ytdlp.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.fail[req.URL]; err != nil {
		return nil, err
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, err
	}
	ext := ".mp4"
	if req.AudioOnly {
		ext = ".mp3"
	}
	name := filepath.Base(req.URL) + ext
	path := filepath.Join(req.OutputDir, name)
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		return nil, err
	}
	return &ytdlp.Resolution{Title: filepath.Base(req.URL), FilePath: path}, nil
}

type fakeTrimmer struct {
	err   error
	calls int
}

func (f *fakeTrimmer) Trim(_ context.Context, in, start, end string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	ext := filepath.Ext(in)
	out := strings.TrimSuffix(in, ext) + "_trimmed" + ext
	return out, os.WriteFile(out, []byte("trimmed "+start+"-"+end), 0o644)
}

type fakeObjects struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeObjects) Upload(_ context.Context, localPath, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	return "https://bucket.example/" + key + "?X-Amz-Signature=abc", nil
}

func (f *fakeObjects) Ping(context.Context) error { return nil }

// captureExecutor records submitted tasks without running them.
type captureExecutor struct {
	mu      sync.Mutex
	tasks   []backend.Task
	failOn  int
	pingErr error
}

func (c *captureExecutor) Name() string { return "capture" }

func (c *captureExecutor) Submit(_ context.Context, task backend.Task) (*backend.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, task)
	if c.failOn > 0 && len(c.tasks) >= c.failOn {
		return nil, errors.New("queue down")
	}
	return &backend.Handle{JobID: task.JobID, Backend: "capture"}, nil
}

func (c *captureExecutor) Ping(context.Context) error { return c.pingErr }

// syncBackground runs tasks on the background executor and exposes Ping.
type syncBackground struct {
	*backend.Background
}

func (s syncBackground) Ping(context.Context) error { return nil }

type fixture struct {
	history  *historyBackend
	records  *Records
	resolver *fakeResolver
	trimmer  *fakeTrimmer
	objects  *fakeObjects
	scratch  string
	executor *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		history:  newHistoryBackend(),
		resolver: &fakeResolver{fail: map[string]error{}},
		trimmer:  &fakeTrimmer{},
		objects:  &fakeObjects{},
		scratch:  t.TempDir(),
	}
	f.records = NewRecords(store.New(f.history))
	f.executor = NewExecutor(ExecutorConfig{
		Records:    f.records,
		Resolver:   f.resolver,
		Trimmer:    f.trimmer,
		Objects:    f.objects,
		ScratchDir: f.scratch,
		Retry: &apperrors.RetryConfig{
			MaxRetries:     1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			BackoffFactor:  1,
		},
	})
	return f
}

func (f *fixture) queue(t *testing.T, job *JobRecord) backend.Task {
	t.Helper()
	job.Status = StatusQueued
	job.Progress = progressStart
	require.NoError(t, f.records.SaveJob(context.Background(), job))
	return backend.Task{
		JobID:        job.ID,
		URL:          job.SourceURL,
		StartTime:    job.StartTime,
		EndTime:      job.EndTime,
		AudioOnly:    job.AudioOnly,
		PersistLocal: true,
	}
}

func (f *fixture) job(t *testing.T, id string) *JobRecord {
	t.Helper()
	job, err := f.records.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

// assertReadyInvariant checks ready implies exactly one retrieval location.
func assertReadyInvariant(t *testing.T, job *JobRecord) {
	t.Helper()
	if job.Ready {
		assert.Equal(t, StatusCompleted, job.Status)
		assert.Empty(t, job.Error)
		hasLocal := job.LocalPath != ""
		if hasLocal {
			_, err := os.Stat(job.LocalPath)
			assert.NoError(t, err, "local artifact should exist")
		}
		assert.True(t, hasLocal != (job.RemoteURL != ""), "exactly one of local_path and remote_url")
	}
	if !job.Ready && job.Error != "" {
		assert.Equal(t, StatusFailed, job.Status)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusDownloading, true},
		{StatusDownloading, StatusTrimming, true},
		{StatusDownloading, StatusUploading, true},
		{StatusTrimming, StatusCompleted, true},
		{StatusDownloading, StatusDownloading, true},
		{StatusQueued, StatusFailed, true},
		{StatusUploading, StatusFailed, true},
		{StatusCompleted, StatusFailed, true},
		{StatusTrimming, StatusDownloading, false},
		{StatusCompleted, StatusDownloading, false},
		{StatusFailed, StatusDownloading, false},
		{StatusFailed, StatusCompleted, false},
		{StatusQueued, Status("bogus"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRecords_GetJobDefaultsMissingFields(t *testing.T) {
	backendStore := store.NewMemoryBackend()
	records := NewRecords(store.New(backendStore))
	ctx := context.Background()

	// a record written by an older or newer process
	require.NoError(t, backendStore.Set(ctx, JobKey("j1"), []byte(`{"url":"https://x","future_field":1}`), time.Minute))

	job, err := records.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, "0%", job.Progress)
	assert.Equal(t, "https://x", job.SourceURL)

	_, err = records.GetJob(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestExecute_PersistLocal(t *testing.T) {
	f := newFixture(t)
	task := f.queue(t, &JobRecord{ID: "j1", SourceURL: "https://example.com/v1"})

	require.NoError(t, f.executor.Execute(context.Background(), task))

	job := f.job(t, "j1")
	assert.Equal(t, StatusCompleted, job.Status)
	assert.True(t, job.Ready)
	assert.Equal(t, "100%", job.Progress)
	assert.Equal(t, "v1.mp4", job.Filename)
	assert.Equal(t, filepath.Join(f.scratch, "j1", "v1.mp4"), job.LocalPath)
	assertReadyInvariant(t, job)

	assert.Equal(t, []Status{StatusQueued, StatusDownloading, StatusCompleted}, f.history.statuses("j1"))
	assert.Zero(t, f.trimmer.calls)
}

func TestExecute_TrimReplacesArtifact(t *testing.T) {
	f := newFixture(t)
	task := f.queue(t, &JobRecord{
		ID:        "j1",
		SourceURL: "https://example.com/v1",
		StartTime: "00:00:10",
		EndTime:   "00:00:20",
	})

	require.NoError(t, f.executor.Execute(context.Background(), task))

	job := f.job(t, "j1")
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "v1_trimmed.mp4", job.Filename)
	assertReadyInvariant(t, job)

	_, err := os.Stat(filepath.Join(f.scratch, "j1", "v1.mp4"))
	assert.True(t, os.IsNotExist(err), "pre-trim artifact should be removed")

	assert.Equal(t, []Status{StatusQueued, StatusDownloading, StatusTrimming, StatusCompleted}, f.history.statuses("j1"))
}

func TestExecute_TrimFailureKeepsUntrimmed(t *testing.T) {
	f := newFixture(t)
	f.trimmer.err = apperrors.TranscodeError("trim failed")
	task := f.queue(t, &JobRecord{ID: "j1", SourceURL: "https://example.com/v1", EndTime: "00:00:05"})

	require.NoError(t, f.executor.Execute(context.Background(), task))

	job := f.job(t, "j1")
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "v1.mp4", job.Filename)
	assertReadyInvariant(t, job)

	entries, err := os.ReadDir(filepath.Join(f.scratch, "j1"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "_trimmed")
	}
}

func TestExecute_AudioOnlySkipsTrim(t *testing.T) {
	f := newFixture(t)
	task := f.queue(t, &JobRecord{ID: "j1", SourceURL: "https://example.com/a1", StartTime: "00:00:10", AudioOnly: true})

	require.NoError(t, f.executor.Execute(context.Background(), task))

	job := f.job(t, "j1")
	assert.Equal(t, "a1.mp3", job.Filename)
	assert.Zero(t, f.trimmer.calls)
	assert.NotContains(t, f.history.statuses("j1"), StatusTrimming)
}

func TestExecute_Upload(t *testing.T) {
	f := newFixture(t)
	task := f.queue(t, &JobRecord{ID: "j1", SourceURL: "https://example.com/v1", BatchID: "b1"})
	task.PersistLocal = false

	require.NoError(t, f.executor.Execute(context.Background(), task))

	job := f.job(t, "j1")
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Empty(t, job.LocalPath)
	assert.Contains(t, job.RemoteURL, "j1/v1.mp4")
	assert.Equal(t, "b1", job.BatchID)
	assertReadyInvariant(t, job)
	assert.Equal(t, []string{"j1/v1.mp4"}, f.objects.keys)

	_, err := os.Stat(filepath.Join(f.scratch, "j1", "v1.mp4"))
	assert.True(t, os.IsNotExist(err), "uploaded artifact should be deleted")

	assert.Equal(t, []Status{StatusQueued, StatusDownloading, StatusUploading, StatusCompleted}, f.history.statuses("j1"))
}

func TestExecute_UploadFailureRetainsArtifact(t *testing.T) {
	f := newFixture(t)
	f.objects.err = apperrors.UploadError("bucket unreachable")
	task := f.queue(t, &JobRecord{ID: "j1", SourceURL: "https://example.com/v1"})
	task.PersistLocal = false

	err := f.executor.Execute(context.Background(), task)
	require.Error(t, err)

	job := f.job(t, "j1")
	assert.Equal(t, StatusFailed, job.Status)
	assert.False(t, job.Ready)
	assert.Contains(t, job.Error, "bucket unreachable")
	assertReadyInvariant(t, job)

	_, statErr := os.Stat(filepath.Join(f.scratch, "j1", "v1.mp4"))
	assert.NoError(t, statErr, "artifact must be kept after upload failure")
}

func TestExecute_ResolutionFailure(t *testing.T) {
	f := newFixture(t)
	f.resolver.fail["https://example.com/bad"] = apperrors.ResolutionError("url not supported")
	task := f.queue(t, &JobRecord{ID: "j1", SourceURL: "https://example.com/bad"})

	require.Error(t, f.executor.Execute(context.Background(), task))

	job := f.job(t, "j1")
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "0%", job.Progress)
	assert.False(t, job.Ready)
	assert.Equal(t, "url not supported", job.Error)
	assert.Equal(t, []Status{StatusQueued, StatusDownloading, StatusFailed}, f.history.statuses("j1"))
}

func TestExecute_TimeoutRecordsFailure(t *testing.T) {
	f := newFixture(t)
	task := f.queue(t, &JobRecord{ID: "j1", SourceURL: "https://example.com/v1"})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	require.Error(t, f.executor.Execute(ctx, task))

	job := f.job(t, "j1")
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "job timed out", job.Error)
}

func TestExecute_SkipsFinishedJob(t *testing.T) {
	f := newFixture(t)
	task := f.queue(t, &JobRecord{ID: "j1", SourceURL: "https://example.com/v1"})
	require.NoError(t, f.executor.Execute(context.Background(), task))

	// redelivery of the same task
	require.NoError(t, f.executor.Execute(context.Background(), task))
	assert.Equal(t, StatusCompleted, f.job(t, "j1").Status)
}

func TestExecute_MissingRecordRebuiltFromTask(t *testing.T) {
	f := newFixture(t)
	task := backend.Task{JobID: "ghost", URL: "https://example.com/v9", PersistLocal: true, BatchID: "b9"}

	require.NoError(t, f.executor.Execute(context.Background(), task))

	job := f.job(t, "ghost")
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "b9", job.BatchID)
}

func newDispatcher(f *fixture, single backend.Executor, durable DurableExecutor) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		Records: f.records,
		Single:  single,
		Durable: durable,
	})
}

func TestSubmitSingle_QueuedImmediately(t *testing.T) {
	f := newFixture(t)
	capture := &captureExecutor{}
	d := newDispatcher(f, capture, nil)

	id, err := d.SubmitSingle(context.Background(), SubmitRequest{
		URL:       "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		StartTime: "00:00:10",
	})
	require.NoError(t, err)

	job := f.job(t, id)
	assert.Equal(t, StatusQueued, job.Status)
	assert.False(t, job.Ready)
	assert.Equal(t, "youtube", job.Platform)
	assert.Equal(t, "00:00:10", job.StartTime)

	require.Len(t, capture.tasks, 1)
	assert.Equal(t, id, capture.tasks[0].JobID)
	assert.True(t, capture.tasks[0].PersistLocal)
}

func TestSubmitSingle_InvalidURL(t *testing.T) {
	f := newFixture(t)
	capture := &captureExecutor{}
	d := newDispatcher(f, capture, nil)

	for _, u := range []string{"", "badurl", "ftp://example.com/x"} {
		_, err := d.SubmitSingle(context.Background(), SubmitRequest{URL: u})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput), "url %q", u)
	}
	assert.Empty(t, capture.tasks)
}

func TestSubmitSingle_FallsBackWhenBackendRejects(t *testing.T) {
	f := newFixture(t)
	queue := &captureExecutor{failOn: 1}
	bg := backend.NewBackground(f.executor.Handler(), time.Minute, nil)
	d := NewDispatcher(DispatcherConfig{Records: f.records, Single: queue, Fallback: bg})

	id, err := d.SubmitSingle(context.Background(), SubmitRequest{URL: "https://example.com/v1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, id, queue.tasks[0].JobID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, bg.Wait(ctx))

	job := f.job(t, id)
	assert.Equal(t, StatusCompleted, job.Status)
	assertReadyInvariant(t, job)
}

func TestSubmitSingle_BackendRejectsWithoutFallback(t *testing.T) {
	f := newFixture(t)
	queue := &captureExecutor{failOn: 1}
	d := newDispatcher(f, queue, nil)

	_, err := d.SubmitSingle(context.Background(), SubmitRequest{URL: "https://example.com/v1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeBackendUnavailable))

	job := f.job(t, queue.tasks[0].JobID)
	assert.Equal(t, StatusFailed, job.Status)
}

func TestSubmitBatch_ItemsTakePrecedence(t *testing.T) {
	f := newFixture(t)
	durable := &captureExecutor{}
	d := newDispatcher(f, &captureExecutor{}, durable)

	batch, err := d.SubmitBatch(context.Background(), BatchRequest{
		Items: []BatchItem{
			{URL: "https://example.com/a", StartTime: "00:00:01"},
			{URL: "https://example.com/b", EndTime: "00:00:09"},
		},
		URLs:      []string{"https://example.com/ignored"},
		AudioOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, batch.JobIDs, 2)
	assert.Equal(t, 2, batch.Total)

	stored, err := f.records.GetBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.JobIDs, stored.JobIDs)

	require.Len(t, durable.tasks, 2)
	for i, task := range durable.tasks {
		assert.Equal(t, batch.JobIDs[i], task.JobID)
		assert.Equal(t, batch.ID, task.BatchID)
		assert.True(t, task.AudioOnly)
	}
	assert.Equal(t, "00:00:01", durable.tasks[0].StartTime)
	assert.Equal(t, "00:00:09", durable.tasks[1].EndTime)

	job := f.job(t, batch.JobIDs[1])
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, batch.ID, job.BatchID)
}

func TestSubmitBatch_URLsShareTrimWindow(t *testing.T) {
	f := newFixture(t)
	durable := &captureExecutor{}
	d := NewDispatcher(DispatcherConfig{Records: f.records, Single: &captureExecutor{}, Durable: durable, BatchPersistLocal: true})

	_, err := d.SubmitBatch(context.Background(), BatchRequest{
		URLs:      []string{"https://example.com/a", "https://example.com/b"},
		StartTime: "00:00:05",
		EndTime:   "00:00:15",
	})
	require.NoError(t, err)

	for _, task := range durable.tasks {
		assert.Equal(t, "00:00:05", task.StartTime)
		assert.Equal(t, "00:00:15", task.EndTime)
		assert.True(t, task.PersistLocal)
	}
}

func TestSubmitBatch_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := newDispatcher(f, &captureExecutor{}, &captureExecutor{})
	_, err := d.SubmitBatch(ctx, BatchRequest{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))

	_, err = d.SubmitBatch(ctx, BatchRequest{URLs: []string{"https://example.com/a", "nope"}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))

	d = newDispatcher(f, &captureExecutor{}, nil)
	_, err = d.SubmitBatch(ctx, BatchRequest{URLs: []string{"https://example.com/a"}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeBackendUnavailable))

	d = newDispatcher(f, &captureExecutor{}, &captureExecutor{pingErr: errors.New("connection refused")})
	_, err = d.SubmitBatch(ctx, BatchRequest{URLs: []string{"https://example.com/a"}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeBackendUnavailable))
}

func TestSubmitBatch_PartialEnqueueFailure(t *testing.T) {
	f := newFixture(t)
	durable := &captureExecutor{failOn: 2}
	d := newDispatcher(f, &captureExecutor{}, durable)

	batch, err := d.SubmitBatch(context.Background(), BatchRequest{
		URLs: []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"},
	})
	require.NoError(t, err)

	status, err := NewTracker(f.records).Status(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 2, status.Failed)
	assert.Equal(t, 1, status.InProgress)
}

func TestBatch_EndToEndAggregation(t *testing.T) {
	f := newFixture(t)
	f.resolver.fail["https://example.com/broken"] = apperrors.ResolutionError("video unavailable")

	bg := backend.NewBackground(f.executor.Handler(), time.Minute, nil)
	d := NewDispatcher(DispatcherConfig{
		Records:           f.records,
		Single:            bg,
		Durable:           syncBackground{bg},
		BatchPersistLocal: true,
	})

	batch, err := d.SubmitBatch(context.Background(), BatchRequest{
		URLs: []string{"https://example.com/v1", "https://example.com/broken", "https://example.com/v3"},
	})
	require.NoError(t, err)

	tracker := NewTracker(f.records)

	// counts add up at every observation
	for i := 0; i < 5; i++ {
		status, err := tracker.Status(context.Background(), batch.ID)
		require.NoError(t, err)
		assert.Equal(t, status.Total, status.Completed+status.Failed+status.InProgress)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, bg.Wait(ctx))

	status, err := tracker.Status(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 2, status.Completed)
	assert.Equal(t, 1, status.Failed)
	assert.Equal(t, 0, status.InProgress)
	assert.True(t, status.Done())

	for _, job := range status.Downloads {
		assertReadyInvariant(t, job)
	}
}

func TestTracker_ExpiredMemberCountsAsFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.records.SaveJob(ctx, &JobRecord{ID: "j1", Status: StatusCompleted, Ready: true, RemoteURL: "https://x"}))
	require.NoError(t, f.records.SaveBatch(ctx, &BatchRecord{ID: "b1", JobIDs: []string{"j1", "gone"}, Total: 2}))

	status, err := NewTracker(f.records).Status(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.Completed)
	assert.Equal(t, 1, status.Failed)
	assert.Equal(t, 2, status.Total)

	_, err = NewTracker(f.records).Status(ctx, "nope")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestService_CleanupIsIdempotent(t *testing.T) {
	f := newFixture(t)
	task := f.queue(t, &JobRecord{ID: "j1", SourceURL: "https://example.com/v1"})
	require.NoError(t, f.executor.Execute(context.Background(), task))

	svc := NewService(f.records, f.scratch)
	path := f.job(t, "j1").LocalPath

	require.NoError(t, svc.Cleanup(context.Background(), "j1"))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	err = svc.Cleanup(context.Background(), "j1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

// heldResolver writes its file, then blocks until released.
type heldResolver struct {
	fakeResolver
	written chan struct{}
	release chan struct{}
}

func (h *heldResolver) Resolve(ctx context.Context, req ytdlp.Request) (*ytdlp.Resolution, error) {
	res, err := h.fakeResolver.Resolve(ctx, req)
	close(h.written)
	<-h.release
	return res, err
}

func TestService_CleanupWhileRunning(t *testing.T) {
	for _, tc := range []struct {
		name  string
		start string
	}{
		{"plain", ""},
		{"trimmed", "00:00:10"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			held := &heldResolver{written: make(chan struct{}), release: make(chan struct{})}
			f.executor.resolver = held
			task := f.queue(t, &JobRecord{ID: "j1", SourceURL: "https://example.com/v1", StartTime: tc.start})

			done := make(chan error, 1)
			go func() { done <- f.executor.Execute(context.Background(), task) }()

			<-held.written
			svc := NewService(f.records, f.scratch)
			require.NoError(t, svc.Cleanup(context.Background(), "j1"))
			close(held.release)
			require.NoError(t, <-done)

			_, err := f.records.GetJob(context.Background(), "j1")
			assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound), "cleaned up record must stay deleted")
			assert.NoDirExists(t, filepath.Join(f.scratch, "j1"))
			assert.Zero(t, f.trimmer.calls)
			assert.NotContains(t, f.history.statuses("j1"), StatusCompleted)
		})
	}
}

func TestService_CleanupToleratesMissingFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.records.SaveJob(ctx, &JobRecord{
		ID:        "j1",
		Status:    StatusCompleted,
		Ready:     true,
		LocalPath: filepath.Join(f.scratch, "j1", "gone.mp4"),
	}))

	svc := NewService(f.records, f.scratch)
	assert.NoError(t, svc.Cleanup(ctx, "j1"))
}

func TestService_BatchCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"j1", "j2"} {
		task := f.queue(t, &JobRecord{ID: id, SourceURL: "https://example.com/" + id, BatchID: "b1"})
		require.NoError(t, f.executor.Execute(ctx, task))
	}
	require.NoError(t, f.records.SaveBatch(ctx, &BatchRecord{ID: "b1", JobIDs: []string{"j1", "j2", "expired"}}))

	// leftovers of a member whose record expired
	orphan := filepath.Join(f.scratch, "expired")
	require.NoError(t, os.MkdirAll(orphan, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(orphan, "v.mp4"), []byte("media"), 0o644))

	svc := NewService(f.records, f.scratch)
	cleaned, err := svc.BatchCleanup(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, cleaned)
	assert.NoDirExists(t, orphan)

	_, err = f.records.GetBatch(ctx, "b1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	_, err = f.records.GetJob(ctx, "j1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = svc.BatchCleanup(ctx, "b1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestService_Artifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewService(f.records, f.scratch)

	require.NoError(t, f.records.SaveJob(ctx, &JobRecord{ID: "queued", Status: StatusQueued}))
	_, err := svc.Artifact(ctx, "queued")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotReady))

	require.NoError(t, f.records.SaveJob(ctx, &JobRecord{ID: "remote", Status: StatusCompleted, Ready: true, RemoteURL: "https://signed"}))
	art, err := svc.Artifact(ctx, "remote")
	require.NoError(t, err)
	assert.Equal(t, "https://signed", art.RemoteURL)

	require.NoError(t, f.records.SaveJob(ctx, &JobRecord{ID: "lost", Status: StatusCompleted, Ready: true, LocalPath: filepath.Join(f.scratch, "nope.mp4")}))
	_, err = svc.Artifact(ctx, "lost")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	task := f.queue(t, &JobRecord{ID: "local", SourceURL: "https://example.com/v1"})
	require.NoError(t, f.executor.Execute(ctx, task))
	art, err = svc.Artifact(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, "v1.mp4", art.Filename)
	assert.FileExists(t, art.LocalPath)

	_, err = svc.Artifact(ctx, "unknown")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
