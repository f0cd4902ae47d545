package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore keeps media on the local filesystem under a base directory.
// Paths returned by Save are relative to that directory.
type LocalStore struct {
	baseDir string
}

// NewLocalStore ensures the base directory exists and returns a store
// rooted at it.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", baseDir, err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) Save(ctx context.Context, data []byte, filename string) (string, error) {
	full := filepath.Join(s.baseDir, filename)
	if err := os.WriteFile(full, data, 0o660); err != nil {
		return "", fmt.Errorf("write %s: %w", full, err)
	}
	return filename, nil
}

func (s *LocalStore) Delete(ctx context.Context, path string) error {
	err := os.Remove(filepath.Join(s.baseDir, path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.baseDir, path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
