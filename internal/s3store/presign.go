package s3store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploadHandle is everything a client needs to PUT an object directly.
// The returned headers must be sent verbatim or the signature breaks.
type UploadHandle struct {
	URL     string            `json:"url"`
	Key     string            `json:"key"`
	Headers map[string]string `json:"headers"`
}

func (s *Storage) IssueUploadHandle(ctx context.Context, key, contentType string) (*UploadHandle, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req, err := s.Presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.UploadURLTTL))
	if err != nil {
		return nil, fmt.Errorf("presign put %q: %w", key, err)
	}

	return &UploadHandle{
		URL:     req.URL,
		Key:     key,
		Headers: map[string]string{"Content-Type": contentType},
	}, nil
}

// DispositionHints shape how the browser treats the downloaded object.
type DispositionHints struct {
	Disposition string // "inline" or "attachment"
	Filename    string
	ContentType string
}

func (s *Storage) IssueDownloadHandle(ctx context.Context, key string, hints DispositionHints) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	}
	if hints.Disposition != "" {
		name := hints.Filename
		if name == "" {
			name = "download.bin"
		}
		input.ResponseContentDisposition = aws.String(fmt.Sprintf("%s; filename=%q", hints.Disposition, name))
	}
	if hints.ContentType != "" {
		input.ResponseContentType = aws.String(hints.ContentType)
	}

	req, err := s.Presign.PresignGetObject(ctx, input, s3.WithPresignExpires(s.DownloadURLTTL))
	if err != nil {
		return "", fmt.Errorf("presign get %q: %w", key, err)
	}
	return req.URL, nil
}
