// Package memory stores blob content in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/JakeFAU/linkcheck/internal/storage"
)

// ErrNotFound is returned by GetObject for unknown paths.
var ErrNotFound = storage.ErrNotFound

// BlobStore stores artifacts in-memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	puts map[string]int
	// failPut makes PutObject fail for the given path.
	failPut map[string]error
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data:    make(map[string][]byte),
		puts:    make(map[string]int),
		failPut: make(map[string]error),
	}
}

// PutObject persists a copy of the content and returns a URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failPut[path]; err != nil {
		return "", err
	}
	s.data[path] = append([]byte(nil), byteData...)
	s.puts[path]++
	return fmt.Sprintf("memory://%s", path), nil
}

// GetObject returns a copy of the stored content.
func (s *BlobStore) GetObject(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// DeleteObject drops path if present.
func (s *BlobStore) DeleteObject(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, path)
	return nil
}

// FailPut makes subsequent writes to path return err. A nil err clears it.
func (s *BlobStore) FailPut(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failPut, path)
		return
	}
	s.failPut[path] = err
}

// Puts reports how many successful writes path has received.
func (s *BlobStore) Puts(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts[path]
}

// Paths lists stored object paths in sorted order.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
