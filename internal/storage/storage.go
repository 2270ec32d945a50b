// Package storage reads and writes the named text blobs a scan folder is
// expected to contain.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/cosmescan/backend/internal/errs"
	"github.com/cosmescan/backend/internal/gcp"
	"github.com/cosmescan/backend/internal/logger"
)

// Fixed blob names within a scan folder. The pipeline assumes these and does
// not discover them dynamically.
const (
	ProfileBlob   = "profile.txt"
	SourceImage   = "ocr_source.jpg"
	OCRResultBlob = "ocr_result.txt"
)

// Blobs is the folder-scoped text blob store the pipeline depends on.
type Blobs interface {
	ReadText(ctx context.Context, folder, name string) (string, error)
	WriteText(ctx context.Context, folder, name, content string) error
	// ObjectURI returns the storage URI of a blob, usable as an OCR source.
	ObjectURI(folder, name string) string
	Close() error
}

type gcsBlobs struct {
	log    *logger.Logger
	client *gcs.Client
	bucket string
}

// NewGCSBlobs opens the bucket-backed blob store.
func NewGCSBlobs(ctx context.Context, bucket, credentialsFile string, log *logger.Logger) (Blobs, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is not configured")
	}
	client, err := gcs.NewClient(ctx, gcp.ClientOptions(credentialsFile)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &gcsBlobs{
		log:    log.With("service", "storage.Blobs"),
		client: client,
		bucket: bucket,
	}, nil
}

func (b *gcsBlobs) objectKey(folder, name string) string {
	return strings.Trim(folder, "/") + "/" + name
}

func (b *gcsBlobs) ObjectURI(folder, name string) string {
	return fmt.Sprintf("gs://%s/%s", b.bucket, b.objectKey(folder, name))
}

func (b *gcsBlobs) ReadText(ctx context.Context, folder, name string) (string, error) {
	key := b.objectKey(folder, name)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return "", fmt.Errorf("%w: blob %s", errs.ErrNotFound, key)
		}
		return "", fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return string(content), nil
}

func (b *gcsBlobs) WriteText(ctx context.Context, folder, name, content string) error {
	key := b.objectKey(folder, name)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "text/plain"
	if _, err := io.Copy(w, strings.NewReader(content)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer for blob %s: %w", key, err)
	}
	b.log.Debug("blob written", "key", key, "bytes", len(content))
	return nil
}

func (b *gcsBlobs) Close() error {
	return b.client.Close()
}
