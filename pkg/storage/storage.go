package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound indicates the requested object does not exist in the store.
var ErrNotFound = errors.New("storage: object not found")

// Store persists uploaded document bytes keyed by a relative path.
type Store interface {
	Write(ctx context.Context, path string, content io.Reader) (int64, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// LocalStore keeps objects on the local filesystem under a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore constructs a LocalStore rooted at the provided directory.
func NewLocalStore(root string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Write stores the content at path, creating parent directories as needed.
func (s *LocalStore) Write(ctx context.Context, path string, content io.Reader) (int64, error) {
	full, err := s.resolve(path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, fmt.Errorf("storage: create directory: %w", err)
	}

	file, err := os.Create(full)
	if err != nil {
		return 0, fmt.Errorf("storage: create object: %w", err)
	}

	written, err := io.Copy(file, content)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(full)
		return 0, fmt.Errorf("storage: write object: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(full)
		return 0, fmt.Errorf("storage: close object: %w", err)
	}

	return written, nil
}

// Open returns a reader for the object at path.
func (s *LocalStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: open object: %w", err)
	}
	return file, nil
}

// Delete removes the object at path. Missing objects are not an error.
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete object: %w", err)
	}
	return nil
}

// resolve joins path onto the root and rejects traversal outside it.
func (s *LocalStore) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + strings.TrimSpace(path))
	if cleaned == "/" {
		return "", errors.New("storage: object path is required")
	}
	return filepath.Join(s.root, cleaned), nil
}
