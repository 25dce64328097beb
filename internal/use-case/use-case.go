package use_case

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/trunov/mediaforge/internal/entities"
	"github.com/trunov/mediaforge/internal/metastore"
	"github.com/trunov/mediaforge/internal/queue"
	"github.com/trunov/mediaforge/internal/s3store"
)

var ErrNotFound = errors.New("not found")

type Storage interface {
	InsertMedia(ctx context.Context, m entities.Media) error
	GetMedia(ctx context.Context, id string) (entities.Media, error)
	ListMedia(ctx context.Context, owner string, page, limit int) (entities.MediaPage, error)
}

type ObjectStore interface {
	UploadAsync(ctx context.Context, key, contentType string, payload []byte, onSuccess func()) error
	Delete(ctx context.Context, key string) error
	IssueUploadHandle(ctx context.Context, key, contentType string) (*s3store.UploadHandle, error)
	IssueDownloadHandle(ctx context.Context, key string, hints s3store.DispositionHints) (string, error)
}

type TaskProducer interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

type Jobs interface {
	Submit(owner, sourceRef string, p entities.TranscodeParams) (entities.Job, error)
	Get(id string) (entities.Job, error)
	ListByOwner(owner string) []entities.Job
	RunSync(ctx context.Context, owner, sourceRef string, p entities.TranscodeParams) (string, error)
}

type MetaStore interface {
	Query(ctx context.Context, owner string, limit int32, cursor string) ([]metastore.Record, string, error)
	Delete(ctx context.Context, owner, itemID string) (metastore.Record, error)
}

type LinkStore interface {
	Create(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
	Resolve(ctx context.Context, token string) (string, error)
}

type URLCache interface {
	Get(ctx context.Context, key string) (string, error)
	Store(ctx context.Context, key string, ttl time.Duration, value string) error
	Remove(ctx context.Context, key string) error
}

type PublicBase interface {
	Value(ctx context.Context) (string, error)
}

type useCase struct {
	storage    Storage
	store      ObjectStore
	producer   TaskProducer
	jobs       Jobs
	meta       MetaStore
	links      LinkStore
	urlCache   URLCache
	publicBase PublicBase
	urlTTL     time.Duration
}

func New(
	storage Storage,
	store ObjectStore,
	producer TaskProducer,
	jobs Jobs,
	meta MetaStore,
	links LinkStore,
	urlCache URLCache,
	publicBase PublicBase,
	urlTTL time.Duration,
) *useCase {
	if urlTTL <= 0 {
		urlTTL = 5 * time.Minute
	}
	return &useCase{
		storage:    storage,
		store:      store,
		producer:   producer,
		jobs:       jobs,
		meta:       meta,
		links:      links,
		urlCache:   urlCache,
		publicBase: publicBase,
		urlTTL:     urlTTL,
	}
}

// UploadMedia stores the object, registers it, and kicks off an inspect
// task once the upload lands. The enqueue is best-effort.
func (c *useCase) UploadMedia(ctx context.Context, owner, title, filename, fileType string, data []byte) (entities.Media, error) {
	key := s3store.UploadKey(owner, filename)

	media := entities.Media{
		ID:               uuid.NewString(),
		Owner:            owner,
		ObjectKey:        key,
		OriginalFilename: filename,
		Title:            title,
		MimeType:         fileType,
		Size:             int64(len(data)),
		UploadedAt:       time.Now().UTC(),
	}
	if media.Title == "" {
		media.Title = s3store.BaseNoExt(filename)
	}

	err := c.store.UploadAsync(ctx, key, fileType, data, func() {
		task := queue.Task{
			Type:   queue.TaskInspect,
			Key:    key,
			ItemID: media.ID,
			Owner:  owner,
		}
		if err := c.producer.Enqueue(context.Background(), task); err != nil {
			log.Printf("[upload] inspect enqueue for %q failed (ignored): %v", key, err)
		}
	})
	if err != nil {
		return entities.Media{}, err
	}

	if err := c.storage.InsertMedia(ctx, media); err != nil {
		return entities.Media{}, err
	}
	return media, nil
}

func (c *useCase) GetMedia(ctx context.Context, owner, id string) (entities.Media, error) {
	m, err := c.storage.GetMedia(ctx, id)
	if err != nil {
		return entities.Media{}, err
	}
	if m.Owner != owner {
		return entities.Media{}, ErrNotFound
	}
	return m, nil
}

func (c *useCase) ListMedia(ctx context.Context, owner string, page, limit int) (entities.MediaPage, error) {
	return c.storage.ListMedia(ctx, owner, page, limit)
}

func (c *useCase) CreateUploadHandle(ctx context.Context, owner, filename, contentType string) (*s3store.UploadHandle, error) {
	key := s3store.UploadKey(owner, filename)
	return c.store.IssueUploadHandle(ctx, key, contentType)
}

// DownloadURL presigns a GET, caching it for half its lifetime so repeat
// viewers of the same artifact reuse one signature.
func (c *useCase) DownloadURL(ctx context.Context, key, disposition string) (string, error) {
	if disposition != "attachment" {
		disposition = "inline"
	}
	cacheKey := disposition + ":" + key

	if c.urlCache != nil {
		if url, err := c.urlCache.Get(ctx, cacheKey); err == nil && url != "" {
			return url, nil
		} else if err != nil && !errors.Is(err, redis.Nil) {
			log.Printf("[download-url] cache read failed (ignored): %v", err)
		}
	}

	filename := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		filename = key[i+1:]
	}
	url, err := c.store.IssueDownloadHandle(ctx, key, s3store.DispositionHints{
		Disposition: disposition,
		Filename:    filename,
	})
	if err != nil {
		return "", err
	}

	if c.urlCache != nil {
		if err := c.urlCache.Store(ctx, cacheKey, c.urlTTL/2, url); err != nil {
			log.Printf("[download-url] cache write failed (ignored): %v", err)
		}
	}
	return url, nil
}

func (c *useCase) EnqueueTask(ctx context.Context, task queue.Task) error {
	return c.producer.Enqueue(ctx, task)
}

func (c *useCase) SubmitTranscode(ctx context.Context, owner, mediaID string, p entities.TranscodeParams) (entities.Job, error) {
	media, err := c.GetMedia(ctx, owner, mediaID)
	if err != nil {
		return entities.Job{}, err
	}
	return c.jobs.Submit(owner, media.ObjectKey, p)
}

func (c *useCase) SyncTranscode(ctx context.Context, owner, mediaID string, p entities.TranscodeParams) (string, error) {
	media, err := c.GetMedia(ctx, owner, mediaID)
	if err != nil {
		return "", err
	}
	return c.jobs.RunSync(ctx, owner, media.ObjectKey, p)
}

func (c *useCase) GetJob(owner, id string) (entities.Job, error) {
	job, err := c.jobs.Get(id)
	if err != nil {
		return entities.Job{}, err
	}
	if job.Owner != owner {
		return entities.Job{}, ErrNotFound
	}
	return job, nil
}

func (c *useCase) ListJobs(owner string) []entities.Job {
	return c.jobs.ListByOwner(owner)
}

func (c *useCase) ListItems(ctx context.Context, owner string, limit int32, cursor string) ([]metastore.Record, string, error) {
	return c.meta.Query(ctx, owner, limit, cursor)
}

// DeleteItem removes the metadata record and sweeps up the derived
// objects it pointed at, evicting any presigned URLs still cached for
// them. The sweep is best-effort; the record deletion is what counts.
func (c *useCase) DeleteItem(ctx context.Context, owner, itemID string) error {
	rec, err := c.meta.Delete(ctx, owner, itemID)
	if err != nil {
		return err
	}

	for _, key := range []string{rec.ThumbKey, rec.PreviewKey} {
		if key == "" {
			continue
		}
		if err := c.store.Delete(ctx, key); err != nil {
			log.Printf("[items] delete object %q failed (ignored): %v", key, err)
		}
		if c.urlCache != nil {
			for _, disposition := range []string{"inline", "attachment"} {
				if err := c.urlCache.Remove(ctx, disposition+":"+key); err != nil {
					log.Printf("[items] cache evict %q failed (ignored): %v", key, err)
				}
			}
		}
	}
	return nil
}

// CreateShareLink returns an absolute short link for an object when the
// public base is resolvable, else a relative one.
func (c *useCase) CreateShareLink(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token, err := c.links.Create(ctx, key, ttl)
	if err != nil {
		return "", err
	}

	base := ""
	if c.publicBase != nil {
		base, err = c.publicBase.Value(ctx)
		if err != nil {
			log.Printf("[share] public base lookup failed (ignored): %v", err)
			base = ""
		}
	}
	return fmt.Sprintf("%s/d/%s", strings.TrimRight(base, "/"), token), nil
}

func (c *useCase) ResolveShareLink(ctx context.Context, token string) (string, error) {
	key, err := c.links.Resolve(ctx, token)
	if err != nil {
		return "", err
	}
	return c.DownloadURL(ctx, key, "inline")
}
