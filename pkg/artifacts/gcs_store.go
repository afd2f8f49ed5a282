//go:build gcp

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore keeps reports in a Cloud Storage bucket, keyed by digest.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore uses application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) object(digest string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + digest + ".json")
}

func (s *GCSStore) Put(ctx context.Context, data []byte) (string, error) {
	hash, digest := contentHash(data)
	obj := s.object(digest)

	_, err := obj.Attrs(ctx)
	if err == nil {
		return hash, nil
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("gcs attrs error: %w", err)
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return hash, nil
}

func (s *GCSStore) Get(ctx context.Context, hash string) ([]byte, error) {
	digest, err := parseHash(hash)
	if err != nil {
		return nil, err
	}
	r, err := s.object(digest).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs get failed for %s: %w", hash, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (s *GCSStore) Exists(ctx context.Context, hash string) (bool, error) {
	digest, err := parseHash(hash)
	if err != nil {
		return false, err
	}
	_, err = s.object(digest).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs attrs error: %w", err)
	}
	return true, nil
}

func (s *GCSStore) Delete(ctx context.Context, hash string) error {
	digest, err := parseHash(hash)
	if err != nil {
		return err
	}
	if err := s.object(digest).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete failed for %s: %w", hash, err)
	}
	return nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
