// Package memory stores assets in-memory for tests and dry runs.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// BlobStore implements harvest.ResettableStore in memory.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	puts int
}

// NewBlobStore creates a new in-memory asset store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Exists reports whether name is stored.
func (s *BlobStore) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[name]
	return ok, nil
}

// Put reads r fully and stores it under name. Nothing is stored on error.
func (s *BlobStore) Put(_ context.Context, name string, r io.Reader) (int64, error) {
	byteData, err := io.ReadAll(r)
	if err != nil {
		return int64(len(byteData)), fmt.Errorf("failed to read data from reader: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = byteData
	s.puts++
	return int64(len(byteData)), nil
}

// Open returns a reader over a copy of the stored bytes.
func (s *BlobStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	if !ok {
		return nil, fmt.Errorf("open %s: not found", name)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// List returns stored names in lexical order.
func (s *BlobStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Clear drops every asset.
func (s *BlobStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}

// Bytes returns a copy of the stored content for name.
func (s *BlobStore) Bytes(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	return append([]byte(nil), data...), ok
}

// Puts reports how many successful writes happened.
func (s *BlobStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
