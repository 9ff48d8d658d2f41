package transcriptstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore is a Google Cloud Storage-backed Store, grounded on the
// teacher's `core/pkg/artifacts/gcs_store.go` (same client-per-bucket
// shape), adapted to key objects by intent_id rather than content hash.
// Write overwrites the object without checking whether it exists.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig configures a GCSStore.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore builds a GCSStore using application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("transcriptstore: gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) object(intentID string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + intentID + ".json")
}

func (s *GCSStore) Write(ctx context.Context, intentID string, data []byte) (string, error) {
	w := s.object(intentID).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("transcriptstore: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("transcriptstore: gcs close: %w", err)
	}
	return contentHash(data), nil
}

func (s *GCSStore) Read(ctx context.Context, intentID string) ([]byte, error) {
	r, err := s.object(intentID).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("transcriptstore: gcs read for intent %q: %w", intentID, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSStore) Exists(ctx context.Context, intentID string) (bool, error) {
	_, err := s.object(intentID).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("transcriptstore: gcs attrs: %w", err)
}

func (s *GCSStore) Delete(ctx context.Context, intentID string) error {
	err := s.object(intentID).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("transcriptstore: gcs delete: %w", err)
	}
	return nil
}

// Close releases the underlying GCS client.
func (s *GCSStore) Close() error { return s.client.Close() }
