package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// FileStore keeps one JSON file per key under a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
	log *zap.Logger
}

// NewFileStore creates the directory (expanding a leading ~) if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand store dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store dir %q: %w", expanded, err)
	}
	return &FileStore{dir: expanded, log: logger.Named("store.file")}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("%w: invalid key %q", ErrPersistence, key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Load reads and decodes the document stored under key.
func (s *FileStore) Load(ctx context.Context, key string, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("%w: read %q: %v", ErrPersistence, key, err)
	}
	return decode(key, data, v)
}

// Save writes the document to a temp file and renames it over the old one.
func (s *FileStore) Save(ctx context.Context, key string, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	data, err := encode(key, v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp for %q: %v", ErrPersistence, key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %q: %v", ErrPersistence, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %q: %v", ErrPersistence, key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("%w: rename %q: %v", ErrPersistence, key, err)
	}
	s.log.Debug("Document saved.", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }
