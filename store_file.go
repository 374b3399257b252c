package coursesync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore implements ChangeStore using the local filesystem. Each key maps
// to one file under the base directory.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a new file-based change store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Store the cleaned absolute path for consistent path traversal checks.
	absDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	return &FileStore{baseDir: filepath.Clean(absDir)}, nil
}

// safePath validates and returns a safe path within the base directory,
// rejecting keys that would escape it.
func (f *FileStore) safePath(key string) (string, error) {
	cleanKey := filepath.Clean(key)
	resolved := filepath.Clean(filepath.Join(f.baseDir, cleanKey))
	if resolved != f.baseDir && !strings.HasPrefix(resolved, f.baseDir+string(os.PathSeparator)) {
		return "", errors.New("invalid key: path traversal attempt detected")
	}
	return resolved, nil
}

func (f *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	path, err := f.safePath(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (f *FileStore) Write(ctx context.Context, key string, data []byte) error {
	path, err := f.safePath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Write through a temp file so a reload never observes a torn write.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	path, err := f.safePath(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (f *FileStore) Close() error {
	return nil
}
