// Package manifest keeps the completed-asset index as an append-only text
// file, one filename per line.
package manifest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Index is a file-backed harvest.CompletedIndex.
type Index struct {
	mu   sync.Mutex
	file *os.File
	done map[string]struct{}
}

// Open loads path (creating it if needed) and keeps it open for appends.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}
	done := make(map[string]struct{})
	existing, err := os.Open(path) // #nosec G304 -- path comes from configuration.
	switch {
	case err == nil:
		scanner := bufio.NewScanner(existing)
		for scanner.Scan() {
			if name := strings.TrimSpace(scanner.Text()); name != "" {
				done[name] = struct{}{}
			}
		}
		scanErr := scanner.Err()
		_ = existing.Close()
		if scanErr != nil {
			return nil, fmt.Errorf("read manifest: %w", scanErr)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("open manifest: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path comes from configuration.
	if err != nil {
		return nil, fmt.Errorf("open manifest for append: %w", err)
	}
	return &Index{file: f, done: done}, nil
}

// Has reports whether name was marked complete.
func (i *Index) Has(_ context.Context, name string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.done[name]
	return ok, nil
}

// Mark records name as complete. Marking twice is a no-op.
func (i *Index) Mark(_ context.Context, name string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.done[name]; ok {
		return nil
	}
	if _, err := i.file.WriteString(name + "\n"); err != nil {
		return fmt.Errorf("append manifest: %w", err)
	}
	i.done[name] = struct{}{}
	return nil
}

// Len returns the number of completed names.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.done)
}

// Close releases the manifest file.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.file.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	return nil
}
