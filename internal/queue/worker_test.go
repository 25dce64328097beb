package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trunov/mediaforge/internal/config"
	"github.com/trunov/mediaforge/internal/metastore"
	"github.com/trunov/mediaforge/internal/s3store"
	"github.com/trunov/mediaforge/internal/transcoder"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeStore) Download(_ context.Context, key string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.objects[key]
	if !ok {
		return nil, "", errors.New("no such key: " + key)
	}
	return payload, f.types[key], nil
}

func (f *fakeStore) Upload(_ context.Context, key, contentType string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = payload
	f.types[key] = contentType
	return nil
}

func (f *fakeStore) Head(_ context.Context, key string) *s3store.ObjectInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.objects[key]
	if !ok {
		return nil
	}
	return &s3store.ObjectInfo{Size: int64(len(payload)), ContentType: f.types[key]}
}

func (f *fakeStore) uploadedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys
}

type fakeMeta struct {
	mu      sync.Mutex
	records []metastore.Record
	putErr  error
}

func (f *fakeMeta) Put(_ context.Context, rec metastore.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeMeta) all() []metastore.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]metastore.Record(nil), f.records...)
}

// fakeEngine writes real output files because the worker reads them back
// from disk before uploading.
type fakeEngine struct {
	dir      string
	probe    *transcoder.ProbeResult
	probeErr error

	mu       sync.Mutex
	frameAt  float64
	previews [][2]int // seconds, width per call
}

func (f *fakeEngine) Probe(_ context.Context, _ string) (*transcoder.ProbeResult, error) {
	return f.probe, f.probeErr
}

func (f *fakeEngine) ExtractFrame(_ context.Context, path string, atSec float64) (string, error) {
	f.mu.Lock()
	f.frameAt = atSec
	f.mu.Unlock()
	out := filepath.Join(f.dir, filepath.Base(path)+"_thumb.jpg")
	return out, os.WriteFile(out, []byte("jpeg-bytes"), 0o644)
}

func (f *fakeEngine) Preview(_ context.Context, path string, seconds, width int) (string, error) {
	f.mu.Lock()
	f.previews = append(f.previews, [2]int{seconds, width})
	f.mu.Unlock()
	out := filepath.Join(f.dir, filepath.Base(path)+"_preview.mp4")
	return out, os.WriteFile(out, []byte("mp4-bytes"), 0o644)
}

func newTestWorker(t *testing.T, broker Broker, store ObjectStore, meta MetaWriter, engine Engine) *Worker {
	t.Helper()
	return NewWorker(broker, store, meta, engine, config.WorkerConfig{TempDir: t.TempDir()})
}

func TestHandleThumbWritesDerivedKeyAndRecord(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.Upload(ctx, "uploads/alice/abc_video.mp4", "video/mp4", []byte("source")))
	meta := &fakeMeta{}
	engine := &fakeEngine{dir: t.TempDir()}
	w := newTestWorker(t, nil, store, meta, engine)

	task := Task{Type: TaskThumb, Key: "uploads/alice/abc_video.mp4", Options: Options{ThumbAt: 3}}
	require.NoError(t, w.Handle(ctx, task))

	payload, contentType, err := store.Download(ctx, "thumbnails/alice/abc_video_thumb.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), payload)
	assert.Equal(t, "image/jpeg", contentType)
	assert.Equal(t, 3.0, engine.frameAt)

	records := meta.all()
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].Owner)
	assert.Equal(t, "abc_video", records[0].ItemID)
	assert.Equal(t, "thumbnails/alice/abc_video_thumb.jpg", records[0].ThumbKey)
	assert.Equal(t, metastore.StatusDone, records[0].Status)
}

func TestHandleThumbDefaultsOffsetToOneSecond(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.Upload(ctx, "uploads/alice/v.mp4", "video/mp4", []byte("source")))
	engine := &fakeEngine{dir: t.TempDir()}
	w := newTestWorker(t, nil, store, &fakeMeta{}, engine)

	require.NoError(t, w.Handle(ctx, Task{Type: TaskThumb, Key: "uploads/alice/v.mp4"}))
	assert.Equal(t, 1.0, engine.frameAt)
}

func TestHandleThumbRedeliveryOverwritesSameKey(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.Upload(ctx, "uploads/alice/v.mp4", "video/mp4", []byte("source")))
	meta := &fakeMeta{}
	w := newTestWorker(t, nil, store, meta, &fakeEngine{dir: t.TempDir()})

	task := Task{Type: TaskThumb, Key: "uploads/alice/v.mp4"}
	require.NoError(t, w.Handle(ctx, task))
	require.NoError(t, w.Handle(ctx, task))

	// One source, one thumbnail: the second pass replaced the first.
	assert.Len(t, store.uploadedKeys(), 2)
	assert.Len(t, meta.all(), 2)
}

func TestHandlePreviewWritesDerivedKeyAndRecord(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.Upload(ctx, "uploads/bob/clip.mov", "video/quicktime", []byte("source")))
	meta := &fakeMeta{}
	engine := &fakeEngine{dir: t.TempDir()}
	w := newTestWorker(t, nil, store, meta, engine)

	task := Task{Type: TaskPreview, Key: "uploads/bob/clip.mov", Options: Options{PreviewSec: 5, Width: 480}}
	require.NoError(t, w.Handle(ctx, task))

	_, contentType, err := store.Download(ctx, "previews/bob/clip_preview.mp4")
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", contentType)
	assert.Equal(t, [2]int{5, 480}, engine.previews[0])

	records := meta.all()
	require.Len(t, records, 1)
	assert.Equal(t, "previews/bob/clip_preview.mp4", records[0].PreviewKey)
	assert.Equal(t, metastore.StatusDone, records[0].Status)
}

func TestHandleInspectRecordsProbeAndBasic(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.Upload(ctx, "uploads/alice/v.mp4", "video/mp4", []byte("source")))
	meta := &fakeMeta{}
	probe := &transcoder.ProbeResult{}
	w := newTestWorker(t, nil, store, meta, &fakeEngine{dir: t.TempDir(), probe: probe})

	require.NoError(t, w.Handle(ctx, Task{Type: TaskInspect, Key: "uploads/alice/v.mp4"}))

	records := meta.all()
	require.Len(t, records, 1)
	assert.Same(t, probe, records[0].Meta)
	require.NotNil(t, records[0].Basic)
	assert.Equal(t, int64(len("source")), records[0].Basic.Size)
	// Inspect derives nothing.
	assert.Len(t, store.uploadedKeys(), 1)
}

func TestHandleInspectToleratesProbeFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.Upload(ctx, "uploads/alice/v.mp4", "video/mp4", []byte("source")))
	meta := &fakeMeta{}
	engine := &fakeEngine{dir: t.TempDir(), probeErr: errors.New("ffprobe exploded")}
	w := newTestWorker(t, nil, store, meta, engine)

	require.NoError(t, w.Handle(ctx, Task{Type: TaskInspect, Key: "uploads/alice/v.mp4"}))

	records := meta.all()
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Meta)
	assert.Equal(t, metastore.StatusDone, records[0].Status)
}

func TestHandleMissingSourceFailsWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	meta := &fakeMeta{}
	w := newTestWorker(t, nil, store, meta, &fakeEngine{dir: t.TempDir()})

	err := w.Handle(ctx, Task{Type: TaskThumb, Key: "uploads/alice/gone.mp4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uploads/alice/gone.mp4")

	assert.Empty(t, meta.all())
	assert.Empty(t, store.uploadedKeys())
}

func TestHandleUnknownTypeFails(t *testing.T) {
	w := newTestWorker(t, nil, newFakeStore(), &fakeMeta{}, &fakeEngine{dir: t.TempDir()})

	err := w.Handle(context.Background(), Task{Type: "resize", Key: "uploads/alice/v.mp4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task type")
}

func TestDownloadToTempKeepsSameBasenamesApart(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.Upload(ctx, "uploads/alice/v.mp4", "video/mp4", []byte("alice")))
	require.NoError(t, store.Upload(ctx, "uploads/bob/v.mp4", "video/mp4", []byte("bob")))
	w := newTestWorker(t, nil, store, &fakeMeta{}, &fakeEngine{dir: t.TempDir()})

	first, err := w.downloadToTemp(ctx, "uploads/alice/v.mp4")
	require.NoError(t, err)
	defer os.Remove(first)
	second, err := w.downloadToTemp(ctx, "uploads/bob/v.mp4")
	require.NoError(t, err)
	defer os.Remove(second)

	assert.NotEqual(t, first, second)

	payload, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), payload)
	payload, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, []byte("bob"), payload)
}

func TestRunSurvivesPoisonMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewMemoryBroker(time.Minute)
	store := newFakeStore()
	require.NoError(t, store.Upload(ctx, "uploads/alice/v.mp4", "video/mp4", []byte("source")))
	meta := &fakeMeta{}
	w := newTestWorker(t, broker, store, meta, &fakeEngine{dir: t.TempDir()})

	require.NoError(t, broker.Enqueue(ctx, Task{Type: "bogus", Key: "uploads/alice/v.mp4"}))
	require.NoError(t, broker.Enqueue(ctx, Task{Type: TaskThumb, Key: "uploads/alice/v.mp4"}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	// The bad message is left inflight unacked; the good one behind it
	// still gets processed.
	require.Eventually(t, func() bool {
		return len(meta.all()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, broker.InflightCount())

	cancel()
	<-done
}

func TestRunAcknowledgesProcessedMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewMemoryBroker(time.Minute)
	store := newFakeStore()
	require.NoError(t, store.Upload(ctx, "uploads/alice/v.mp4", "video/mp4", []byte("source")))
	meta := &fakeMeta{}
	w := newTestWorker(t, broker, store, meta, &fakeEngine{dir: t.TempDir()})

	require.NoError(t, broker.Enqueue(ctx, Task{Type: TaskThumb, Key: "uploads/alice/v.mp4"}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(meta.all()) == 1 && broker.InflightCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
