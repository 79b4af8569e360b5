package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/aussiebroadwan/todo/internal/storage"
)

// Store is a single JSON document on disk, rewritten on every change.
// Values are []byte so encoding/json stores them as base64.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string][]byte
}

var _ storage.Store = (*Store)(nil)

// NewStore loads path if it exists. The parent directory is created 0700.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("file: create dir: %w", err)
	}

	s := &Store{path: path, data: make(map[string][]byte)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("file: read %s: %w", path, err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("file: decode %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(v), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[key]
	s.data[key] = slices.Clone(value)
	if err := s.flush(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[key]
	if !had {
		return nil
	}
	delete(s.data, key)
	if err := s.flush(); err != nil {
		s.data[key] = prev
		return err
	}
	return nil
}

func (s *Store) Ping(context.Context) error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

func (s *Store) Close() error { return nil }

// flush writes to a temp file and renames it over the old one, so a crash
// mid-write never leaves half a document behind.
func (s *Store) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".storage-*")
	if err != nil {
		return fmt.Errorf("file: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file: chmod: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: close: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("file: rename: %w", err)
	}
	return nil
}
