package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"CorpusAgent/pkg/engine/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// FileThreadStore
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// threadWrapper wraps Thread with a version for future migration.
type threadWrapper struct {
	Version int         `json:"version"`
	Thread  *api.Thread `json:"thread"`
}

// FileThreadStore implements ThreadStore using one JSON file per thread.
type FileThreadStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileThreadStore creates a new file-based thread store under stateDir.
func NewFileThreadStore(stateDir string) (*FileThreadStore, error) {
	baseDir := filepath.Join(stateDir, "threads")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create threads directory: %w", err)
	}
	return &FileThreadStore{baseDir: baseDir}, nil
}

func (s *FileThreadStore) path(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

// validatePath ensures the path stays within baseDir; thread ids come over
// the wire and must not traverse out.
func (s *FileThreadStore) validatePath(p string) error {
	absPath, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return ErrInvalidPath
	}
	return nil
}

func (s *FileThreadStore) Get(ctx context.Context, id string) (*api.Thread, error) {
	p := s.path(id)
	if err := s.validatePath(p); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read thread: %w", err)
	}

	var wrapper threadWrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thread: %w", err)
	}
	if wrapper.Thread == nil {
		return nil, fmt.Errorf("thread data is nil for id: %s", id)
	}
	return wrapper.Thread, nil
}

func (s *FileThreadStore) Put(ctx context.Context, id string, thread *api.Thread) error {
	p := s.path(id)
	if err := s.validatePath(p); err != nil {
		return err
	}

	wrapper := threadWrapper{Version: 1, Thread: thread}
	data, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Atomic write: temp file + rename
	tmpPath := p + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (s *FileThreadStore) Del(ctx context.Context, id string) error {
	p := s.path(id)
	if err := s.validatePath(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); os.IsNotExist(err) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

func (s *FileThreadStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".tmp") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	return ids, nil
}
