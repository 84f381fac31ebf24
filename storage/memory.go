package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryStorage is an in-process store used by tests. The hooks let tests
// inject transient failures or interleave concurrent commits.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte

	// ReadHook, when set, runs before every Read; returning an error aborts
	// the read with it.
	ReadHook func(filepath string) error
	// PutHook, when set, runs before every PutIfAbsent.
	PutHook func(filepath string) error
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func (s *MemoryStorage) Write(ctx context.Context, filepath string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("copying data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[filepath] = b
	return nil
}

func (s *MemoryStorage) PutIfAbsent(ctx context.Context, filepath string, data io.Reader) error {
	if s.PutHook != nil {
		if err := s.PutHook(filepath); err != nil {
			return err
		}
	}

	b, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("copying data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[filepath]; exists {
		return fmt.Errorf("creating object %s: %w", filepath, ErrAlreadyExists)
	}
	s.objects[filepath] = b
	return nil
}

func (s *MemoryStorage) Read(ctx context.Context, filepath string) (io.ReadCloser, error) {
	if s.ReadHook != nil {
		if err := s.ReadHook(filepath); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	b, exists := s.objects[filepath]
	s.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("getting object %s: %w", filepath, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *MemoryStorage) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var files []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			files = append(files, k)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, filepath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, filepath)
	return nil
}

// Len reports the number of stored objects.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
