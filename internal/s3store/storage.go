package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	conf "github.com/trunov/mediaforge/internal/config"
)

var ErrQueueFull = errors.New("upload queue is full")

type uploadReq struct {
	ctx         context.Context
	key         string
	contentType string
	payload     []byte

	onSuccess func()
}

// ObjectInfo is the subset of head-object output downstream consumers use.
type ObjectInfo struct {
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	ETag        string `json:"etag"`
}

type Storage struct {
	Bucket string
	Region string

	Workers        int
	QueueSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration

	UploadURLTTL   time.Duration
	DownloadURLTTL time.Duration

	queue chan uploadReq
	wg    sync.WaitGroup

	// uploadFn is what pool workers call; tests swap it out.
	uploadFn func(ctx context.Context, key, contentType string, payload []byte) error

	S3Client *s3.Client
	Presign  *s3.PresignClient
	Uploader *manager.Uploader
}

func NewStorage(cfg *conf.S3Config) (*Storage, error) {
	s := &Storage{
		Bucket:         cfg.Bucket,
		Region:         cfg.Region,
		Workers:        8,
		QueueSize:      1000,
		MaxRetries:     3,
		RetryBaseDelay: 300 * time.Millisecond,
		UploadURLTTL:   cfg.UploadURLTTL * time.Second,
		DownloadURLTTL: cfg.DownloadURLTTL * time.Second,
	}
	if s.UploadURLTTL <= 0 {
		s.UploadURLTTL = 15 * time.Minute
	}
	if s.DownloadURLTTL <= 0 {
		s.DownloadURLTTL = 5 * time.Minute
	}
	if err := s.run(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) run(cfg *conf.S3Config) error {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	s.S3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	s.Presign = s3.NewPresignClient(s.S3Client)
	s.Uploader = manager.NewUploader(s.S3Client)

	s.startPool()

	log.Println("[s3] client + upload pool initialized")
	return nil
}

func (s *Storage) startPool() {
	if s.uploadFn == nil {
		s.uploadFn = s.Upload
	}
	s.queue = make(chan uploadReq, s.QueueSize)
	for i := 0; i < s.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Close waits for all queued uploads to drain.
func (s *Storage) Close() {
	close(s.queue)
	s.wg.Wait()
}

// UploadAsync tries to put an upload on the pool queue without blocking.
// If the queue is full, it returns ErrQueueFull immediately. The queued
// work runs detached from ctx: an HTTP request context dies the moment the
// handler returns, long before a slow upload finishes.
func (s *Storage) UploadAsync(ctx context.Context, key, contentType string, payload []byte, onSuccess func()) error {
	req := uploadReq{ctx: context.WithoutCancel(ctx), key: key, contentType: contentType, payload: payload, onSuccess: onSuccess}
	select {
	case s.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (s *Storage) worker() {
	defer s.wg.Done()
	for req := range s.queue {
		var err error
		attempt := 0

		for {
			attempt++
			err = s.uploadFn(req.ctx, req.key, req.contentType, req.payload)
			if err == nil {
				if req.onSuccess != nil {
					req.onSuccess()
				}
				break
			}

			if attempt > s.MaxRetries {
				log.Printf("[s3] upload %q dropped after %d attempts: %v", req.key, attempt, err)
				break
			}

			// backoff with jitter
			backoff := s.backoffDelay(attempt)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-req.ctx.Done():
				timer.Stop()
			}
			if req.ctx != nil && req.ctx.Err() != nil {
				break
			}
		}
	}
}

func (s *Storage) backoffDelay(attempt int) time.Duration {
	delay := s.RetryBaseDelay << (attempt - 1)
	jitter := time.Duration(int64(delay) / 10)
	return delay - (jitter / 2) + time.Duration(int64(jitter)*time.Now().UnixNano()%2)
}

// Upload puts object bytes synchronously via the managed uploader.
func (s *Storage) Upload(ctx context.Context, key, contentType string, payload []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.Uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %q: %w", key, err)
	}
	return nil
}

func (s *Storage) Download(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %q: %w", key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, "", fmt.Errorf("failed to read body for %q: %w", key, err)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return buf.Bytes(), contentType, nil
}

// Head returns basic object info, or nil if the object is not reachable.
func (s *Storage) Head(ctx context.Context, key string) *ObjectInfo {
	out, err := s.S3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil
	}
	info := &ObjectInfo{}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}
	if out.ETag != nil {
		info.ETag = *out.ETag
	}
	return info
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.S3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}
