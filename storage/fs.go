package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FSStorage keeps objects as plain files under a root directory. Creation
// with O_EXCL provides the put-if-absent primitive on any POSIX filesystem.
type FSStorage struct {
	root string
}

func NewFSStorage(root string) *FSStorage {
	return &FSStorage{root: root}
}

func (s *FSStorage) Write(ctx context.Context, fp string, data io.Reader) error {
	fullPath := filepath.Join(s.root, filepath.FromSlash(fp))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	// Write to a temp file and rename so readers never observe a partial
	// object.
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming object: %w", err)
	}

	return nil
}

func (s *FSStorage) PutIfAbsent(ctx context.Context, fp string, data io.Reader) error {
	fullPath := filepath.Join(s.root, filepath.FromSlash(fp))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("creating object %s: %w", fp, ErrAlreadyExists)
		}
		return fmt.Errorf("creating object: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(fullPath)
		return fmt.Errorf("writing object: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing object: %w", err)
	}

	return nil
}

func (s *FSStorage) Read(ctx context.Context, fp string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(fp)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("opening object %s: %w", fp, ErrNotFound)
		}
		return nil, fmt.Errorf("opening object: %w", err)
	}
	return f, nil
}

func (s *FSStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if prefix == "" || len(rel) >= len(prefix) && rel[:len(prefix)] == prefix {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}

	return files, nil
}

func (s *FSStorage) Delete(ctx context.Context, fp string) error {
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(fp)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing object: %w", err)
	}
	return nil
}
