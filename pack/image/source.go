package image

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Source supplies raw image bytes by path.
type Source interface {
	// Fetch returns the bytes stored at path.
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// ErrOutsideRoot is returned for paths escaping the source root.
var ErrOutsideRoot = errors.New("image: path escapes source root")

// FSSource reads images from a directory tree.
type FSSource struct {
	root string
}

// NewFSSource creates a source rooted at dir.
func NewFSSource(dir string) *FSSource {
	return &FSSource{root: dir}
}

// Fetch reads the file at path, relative to the root.
func (s *FSSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := filepath.Join(s.root, filepath.Clean("/"+path))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return os.ReadFile(full)
}

// MockSource is an in-memory source for tests.
type MockSource struct {
	mu sync.Mutex

	// Files maps paths to contents.
	Files map[string][]byte

	// Err, when set, fails every fetch.
	Err error

	// FetchCount counts fetches, including failed ones.
	FetchCount int
}

// NewMockSource creates a mock source with the given files.
func NewMockSource(files map[string][]byte) *MockSource {
	if files == nil {
		files = make(map[string][]byte)
	}
	return &MockSource{Files: files}
}

// Fetch returns the configured bytes for path.
func (s *MockSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.FetchCount++
	if s.Err != nil {
		return nil, s.Err
	}
	data, ok := s.Files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

// Fetches returns how many fetches have happened.
func (s *MockSource) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FetchCount
}
