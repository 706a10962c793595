package wayback

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Storage abstracts reading archived documents and writing their rewritten
// copies. Logical paths are forward-slash relative paths as returned by
// URLToLocalPath (e.g. "example.com/page/index.html").
type Storage interface {
	// Exists reports whether the logical path already has content.
	Exists(path string) bool
	// Put writes the content of r to path. The write is atomic:
	// no partial file is visible to concurrent readers.
	Put(path string, r io.Reader) error
	// Get returns the full content of path.
	Get(path string) ([]byte, error)
	// PutBytes writes data to path (convenience wrapper around Put).
	PutBytes(path string, data []byte) error
}

// LocalStorage mirrors the logical layout into a root directory on the OS
// filesystem.
type LocalStorage struct {
	rootDir string
}

// NewLocalStorage returns a LocalStorage rooted at dir.
// The root directory is created lazily by Put/PutBytes.
func NewLocalStorage(dir string) *LocalStorage {
	return &LocalStorage{rootDir: dir}
}

func (s *LocalStorage) abs(path string) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(path))
}

// Exists reports whether path exists and is a regular file.
func (s *LocalStorage) Exists(path string) bool {
	fi, err := os.Stat(s.abs(path))
	return err == nil && fi.Mode().IsRegular()
}

// Put streams r into path atomically via a temp file + rename.
func (s *LocalStorage) Put(path string, r io.Reader) error {
	fullPath := s.abs(path)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, ".wbrw-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpName) // no-op if already renamed
	}()
	if _, err := io.Copy(tmpFile, r); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, fullPath) //nolint:gosec // G703: fullPath is sanitized by URLToLocalPath
}

// Get returns the full content of path.
func (s *LocalStorage) Get(path string) ([]byte, error) {
	return os.ReadFile(s.abs(path)) //nolint:gosec // G304: path comes from the snapshot index
}

// PutBytes writes data to path atomically.
func (s *LocalStorage) PutBytes(path string, data []byte) error {
	return s.Put(path, bytes.NewReader(data))
}

// MemoryStorage keeps documents in memory. It backs dry runs, where the
// rewritten output is digested and reported but never written to disk.
type MemoryStorage struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{files: make(map[string][]byte)}
}

func (m *MemoryStorage) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[path]
	return ok
}

func (m *MemoryStorage) Put(path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return m.PutBytes(path, data)
}

func (m *MemoryStorage) Get(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return data, nil
}

func (m *MemoryStorage) PutBytes(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
	return nil
}

// Len returns the number of stored documents.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
