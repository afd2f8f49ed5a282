// Package artifacts stores simulation reports by content hash on the local
// filesystem, S3 or GCS.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const hashPrefix = "sha256:"

var (
	ErrInvalidHash = errors.New("invalid artifact hash")
	ErrNotFound    = errors.New("artifact not found")
)

// Store is a content-addressed blob store. Put is idempotent: storing the
// same bytes twice returns the same hash and writes once.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	Exists(ctx context.Context, hash string) (bool, error)
	Delete(ctx context.Context, hash string) error
}

// contentHash returns the prefixed hash of data and its bare hex digest.
func contentHash(data []byte) (hash, digest string) {
	sum := sha256.Sum256(data)
	digest = hex.EncodeToString(sum[:])
	return hashPrefix + digest, digest
}

// parseHash validates a "sha256:<hex>" hash and returns the hex digest.
func parseHash(hash string) (string, error) {
	digest, ok := strings.CutPrefix(hash, hashPrefix)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	raw, err := hex.DecodeString(digest)
	if err != nil || len(raw) != sha256.Size {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	return digest, nil
}

// FileStore keeps blobs under baseDir, sharded by the first byte of the
// digest.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates baseDir if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	//nolint:gosec // G301: shared artifact directory
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure artifact dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(digest string) string {
	return filepath.Join(s.baseDir, digest[:2], digest+".json")
}

func (s *FileStore) Put(_ context.Context, data []byte) (string, error) {
	hash, digest := contentHash(data)
	path := s.path(digest)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	//nolint:gosec // G301: shared artifact directory
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create shard dir: %w", err)
	}

	// Write to temp, then rename.
	tmp := path + ".tmp"
	//nolint:gosec // G306: reports are not secret
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return hash, nil
}

func (s *FileStore) Get(_ context.Context, hash string) ([]byte, error) {
	digest, err := parseHash(hash)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(digest)) //nolint:gosec // digest validated as hex
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) Exists(_ context.Context, hash string) (bool, error) {
	digest, err := parseHash(hash)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(s.path(digest))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat blob: %w", err)
	}
}

func (s *FileStore) Delete(_ context.Context, hash string) error {
	digest, err := parseHash(hash)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(digest)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}
