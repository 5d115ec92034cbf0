package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DiskStore stores files on the local filesystem. Each file is written next
// to a JSON metadata file so a restarted process can still claim it.
type DiskStore struct {
	dir     string
	maxSize int64

	mu    sync.RWMutex
	files map[string]*Meta
}

// NewDiskStore creates a new DiskStore.
//
// Parameters:
//   - dir: Directory to store files
//   - maxSize: Maximum file size in bytes (0 = no limit)
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DiskStore{
		dir:     dir,
		maxSize: maxSize,
		files:   make(map[string]*Meta),
	}, nil
}

// Put stores the file.
func (s *DiskStore) Put(ctx context.Context, id string, meta Meta, r io.Reader) error {
	if err := checkID(id); err != nil {
		return err
	}
	if s.maxSize > 0 && meta.Size > s.maxSize {
		return ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.path(id)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	written, err := io.Copy(f, limit(r, s.maxSize))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}

	meta.Size = written
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.files[id] = &meta
	s.mu.Unlock()

	return s.saveMeta(id, &meta)
}

// Claim opens a stored file. The file and its metadata are deleted when the
// returned reader is closed.
func (s *DiskStore) Claim(ctx context.Context, id string) (*File, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	meta, ok := s.files[id]
	delete(s.files, id)
	s.mu.Unlock()

	if !ok {
		var err error
		if meta, err = s.loadMeta(id); err != nil {
			return nil, ErrNotFound
		}
	}

	path := s.path(id)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &File{
		ID:     id,
		Meta:   *meta,
		Path:   path,
		Reader: &deleteOnCloseReader{File: f, path: path, metaPath: s.metaPath(id)},
	}, nil
}

// Cleanup removes files older than maxAge, including files from earlier runs.
func (s *DiskStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	for id, meta := range s.files {
		if meta.CreatedAt.Before(cutoff) {
			delete(s.files, id)
		}
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			id := strings.TrimSuffix(entry.Name(), ".meta")
			s.mu.RLock()
			_, live := s.files[id]
			s.mu.RUnlock()
			if !live {
				os.Remove(filepath.Join(s.dir, entry.Name()))
			}
		}
	}
	return nil
}

func (s *DiskStore) path(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *DiskStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+".meta")
}

func (s *DiskStore) saveMeta(id string, meta *Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(id), data, 0644)
}

func (s *DiskStore) loadMeta(id string) (*Meta, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// deleteOnCloseReader wraps a file and deletes it when closed.
type deleteOnCloseReader struct {
	*os.File
	path     string
	metaPath string
}

func (r *deleteOnCloseReader) Close() error {
	err := r.File.Close()
	os.Remove(r.path)
	os.Remove(r.metaPath)
	return err
}
