package queue

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/trunov/mediaforge/internal/config"
	"github.com/trunov/mediaforge/internal/metastore"
	"github.com/trunov/mediaforge/internal/processor"
	"github.com/trunov/mediaforge/internal/s3store"
	"github.com/trunov/mediaforge/internal/transcoder"
)

type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, string, error)
	Upload(ctx context.Context, key, contentType string, payload []byte) error
	Head(ctx context.Context, key string) *s3store.ObjectInfo
}

type Engine interface {
	Probe(ctx context.Context, path string) (*transcoder.ProbeResult, error)
	ExtractFrame(ctx context.Context, path string, atSec float64) (string, error)
	Preview(ctx context.Context, path string, seconds, width int) (string, error)
}

// Worker is the queue consumer: poll, download, transform, upload, record,
// acknowledge. One sequential iteration at a time per instance; scale-out
// is more processes, with the queue's visibility timeout keeping a claimed
// message exclusive.
type Worker struct {
	broker Broker
	store  ObjectStore
	meta   MetaWriter
	engine Engine
	cfg    config.WorkerConfig
}

func NewWorker(broker Broker, store ObjectStore, meta MetaWriter, engine Engine, cfg config.WorkerConfig) *Worker {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Worker{
		broker: broker,
		store:  store,
		meta:   meta,
		engine: engine,
		cfg:    cfg,
	}
}

// Run polls until the context is canceled. A failed iteration is logged
// and left unacknowledged so the message becomes redeliverable; a single
// bad message never stops the loop.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("[worker] started")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		d, err := w.broker.ReceiveOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[worker] receive failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if d == nil {
			continue
		}

		if err := w.Handle(ctx, d.Task); err != nil {
			log.Printf("[worker] task failed: %v", err)
			sentry.CaptureException(err)
			continue
		}

		if err := w.broker.Acknowledge(ctx, d.Receipt); err != nil {
			// Work is done and recorded; a lost ack only means one
			// redelivery, which the handlers absorb idempotently.
			log.Printf("[worker] ack failed (redelivery expected): %v", err)
		}
	}
}

// Handle dispatches one task by type. Every successful path writes a
// metadata record before the caller acknowledges.
func (w *Worker) Handle(ctx context.Context, task Task) error {
	switch task.Type {
	case TaskInspect, TaskThumb, TaskPreview:
	default:
		return fmt.Errorf("unknown task type %q for key %q", task.Type, task.Key)
	}
	if task.Key == "" {
		return fmt.Errorf("task key missing")
	}

	local, err := w.downloadToTemp(ctx, task.Key)
	if err != nil {
		return fmt.Errorf("download %q: %w", task.Key, err)
	}
	defer os.Remove(local)

	switch task.Type {
	case TaskInspect:
		return w.handleInspect(ctx, task, local)
	case TaskThumb:
		return w.handleThumb(ctx, task, local)
	default:
		return w.handlePreview(ctx, task, local)
	}
}

func (w *Worker) handleInspect(ctx context.Context, task Task, local string) error {
	meta, err := w.engine.Probe(ctx, local)
	if err != nil {
		// Probe output is advisory; the record is still written.
		log.Printf("[worker/inspect] probe %q failed: %v", task.Key, err)
	}
	basic := w.store.Head(ctx, task.Key)

	rec := metastore.Record{
		Owner:     OwnerFor(task),
		ItemID:    ItemIDFor(task),
		SourceKey: task.Key,
		Status:    metastore.StatusDone,
		Meta:      meta,
		Basic:     basic,
	}
	if err := w.meta.Put(ctx, rec); err != nil {
		return fmt.Errorf("record metadata: %w", err)
	}

	log.Printf("[worker/inspect] done: %s", task.Key)
	return nil
}

func (w *Worker) handleThumb(ctx context.Context, task Task, local string) error {
	at := task.Options.ThumbAt
	if at <= 0 {
		at = 1
	}

	outLocal, err := w.engine.ExtractFrame(ctx, local, at)
	if err != nil {
		return fmt.Errorf("extract frame: %w", err)
	}
	defer os.Remove(outLocal)

	payload, err := os.ReadFile(outLocal)
	if err != nil {
		return fmt.Errorf("read frame: %w", err)
	}
	if w.cfg.ThumbMaxWidth > 0 {
		bounded, err := processor.BoundJPEG(payload, w.cfg.ThumbMaxWidth)
		if err != nil {
			log.Printf("[worker/thumb] bound %q failed, keeping full frame: %v", task.Key, err)
		} else {
			payload = bounded
		}
	}

	owner := OwnerFor(task)
	// Deterministic key: redelivery overwrites the same object.
	outKey := s3store.DerivedKey("thumbnails", owner, task.Key, "thumb", "jpg")
	if err := w.store.Upload(ctx, outKey, "image/jpeg", payload); err != nil {
		return fmt.Errorf("upload thumb: %w", err)
	}

	rec := metastore.Record{
		Owner:     owner,
		ItemID:    ItemIDFor(task),
		SourceKey: task.Key,
		ThumbKey:  outKey,
		Status:    metastore.StatusDone,
	}
	if err := w.meta.Put(ctx, rec); err != nil {
		return fmt.Errorf("record metadata: %w", err)
	}

	log.Printf("[worker/thumb] done: %s", outKey)
	return nil
}

func (w *Worker) handlePreview(ctx context.Context, task Task, local string) error {
	seconds := task.Options.PreviewSec
	width := task.Options.Width

	outLocal, err := w.engine.Preview(ctx, local, seconds, width)
	if err != nil {
		return fmt.Errorf("render preview: %w", err)
	}
	defer os.Remove(outLocal)

	payload, err := os.ReadFile(outLocal)
	if err != nil {
		return fmt.Errorf("read preview: %w", err)
	}

	owner := OwnerFor(task)
	outKey := s3store.DerivedKey("previews", owner, task.Key, "preview", "mp4")
	if err := w.store.Upload(ctx, outKey, "video/mp4", payload); err != nil {
		return fmt.Errorf("upload preview: %w", err)
	}

	rec := metastore.Record{
		Owner:      owner,
		ItemID:     ItemIDFor(task),
		SourceKey:  task.Key,
		PreviewKey: outKey,
		Status:     metastore.StatusDone,
	}
	if err := w.meta.Put(ctx, rec); err != nil {
		return fmt.Errorf("record metadata: %w", err)
	}

	log.Printf("[worker/preview] done: %s", outKey)
	return nil
}

func (w *Worker) downloadToTemp(ctx context.Context, key string) (string, error) {
	payload, _, err := w.store.Download(ctx, key)
	if err != nil {
		return "", err
	}
	// Unique per delivery: concurrent consumers may hold sources that
	// share a basename.
	local := filepath.Join(w.cfg.TempDir, uuid.NewString()+"_"+filepath.Base(key))
	if err := os.WriteFile(local, payload, 0o644); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return local, nil
}
