package jobtracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/trunov/mediaforge/internal/entities"
	"github.com/trunov/mediaforge/internal/s3store"
)

type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, string, error)
	Upload(ctx context.Context, key, contentType string, payload []byte) error
}

type Engine interface {
	Transcode(ctx context.Context, path string, p entities.TranscodeParams) (string, error)
}

// Executor runs one transcode: fetch the source object, invoke the engine,
// push the result. Both Submit and RunSync funnel through here, so the two
// paths share failure semantics.
type Executor struct {
	Store   ObjectStore
	Engine  Engine
	TempDir string
}

func NewExecutor(store ObjectStore, engine Engine, tempDir string) *Executor {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Executor{Store: store, Engine: engine, TempDir: tempDir}
}

func (e *Executor) Execute(ctx context.Context, owner, sourceRef string, p entities.TranscodeParams) (string, error) {
	payload, _, err := e.Store.Download(ctx, sourceRef)
	if err != nil {
		return "", fmt.Errorf("download %q: %w", sourceRef, err)
	}

	// Unique per job: pooled jobs can run sources sharing a basename.
	local := filepath.Join(e.TempDir, uuid.NewString()+"_"+filepath.Base(sourceRef))
	if err := os.WriteFile(local, payload, 0o644); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	defer os.Remove(local)

	outLocal, err := e.Engine.Transcode(ctx, local, p)
	if err != nil {
		return "", err
	}
	defer os.Remove(outLocal)

	out, err := os.ReadFile(outLocal)
	if err != nil {
		return "", fmt.Errorf("read output: %w", err)
	}

	format := p.Format
	if format == "" {
		format = "mp4"
	}
	outKey := s3store.DerivedKey("transcoded", owner, sourceRef, format, format)
	if err := e.Store.Upload(ctx, outKey, "video/"+format, out); err != nil {
		return "", fmt.Errorf("upload output: %w", err)
	}
	return outKey, nil
}
