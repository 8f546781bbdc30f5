// Package filesystem provides a file-based persistence backend: one
// JSON snapshot file per cache name.
package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/lode/domain/cache"
)

// ErrInvalidName is returned for cache names that cannot name a file.
var ErrInvalidName = errors.New("filesystem: invalid cache name")

// record is the on-disk form of one cache entry. The value is kept as
// raw bytes so the codec owns its encoding.
type record struct {
	Key            string          `json:"key"`
	Value          json.RawMessage `json:"value"`
	CreatedAt      time.Time       `json:"created_at"`
	TTL            time.Duration   `json:"ttl"`
	SizeBytes      int64           `json:"size_bytes"`
	AccessCount    int64           `json:"access_count"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	Tags           []string        `json:"tags,omitempty"`
}

// snapshot is the on-disk form of one cache's saved state.
type snapshot struct {
	Name    string    `json:"name"`
	SavedAt time.Time `json:"saved_at"`
	Entries []record  `json:"entries"`
}

// Backend persists cache snapshots as JSON files under a directory.
// Writes go through a temp file and rename, so a crash mid-save never
// corrupts the previous snapshot.
type Backend[V any] struct {
	dir   string
	codec cache.Codec[V]
}

// NewBackend creates a backend rooted at dir, creating it if needed.
// A nil codec defaults to JSON.
func NewBackend[V any](dir string, codec cache.Codec[V]) (*Backend[V], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	if codec == nil {
		codec = cache.JSONCodec[V]{}
	}
	return &Backend[V]{dir: dir, codec: codec}, nil
}

// LoadAll reads the snapshot for the named cache. A missing snapshot
// is not an error; it yields no entries.
func (b *Backend[V]) LoadAll(ctx context.Context, name string) ([]cache.Entry[V], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", name, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", name, err)
	}

	entries := make([]cache.Entry[V], 0, len(snap.Entries))
	for _, rec := range snap.Entries {
		value, err := b.codec.Unmarshal(rec.Value)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot %s entry %q: %w", name, rec.Key, err)
		}
		entries = append(entries, cache.Entry[V]{
			Key:            rec.Key,
			Value:          value,
			CreatedAt:      rec.CreatedAt,
			TTL:            rec.TTL,
			SizeBytes:      rec.SizeBytes,
			AccessCount:    rec.AccessCount,
			LastAccessedAt: rec.LastAccessedAt,
			Tags:           rec.Tags,
		})
	}
	return entries, nil
}

// SaveAll atomically replaces the snapshot for the named cache.
func (b *Backend[V]) SaveAll(ctx context.Context, name string, entries []cache.Entry[V]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.path(name)
	if err != nil {
		return err
	}

	snap := snapshot{
		Name:    name,
		SavedAt: time.Now().UTC(),
		Entries: make([]record, 0, len(entries)),
	}
	for _, entry := range entries {
		value, err := b.codec.Marshal(entry.Value)
		if err != nil {
			return fmt.Errorf("encode snapshot %s entry %q: %w", name, entry.Key, err)
		}
		snap.Entries = append(snap.Entries, record{
			Key:            entry.Key,
			Value:          value,
			CreatedAt:      entry.CreatedAt,
			TTL:            entry.TTL,
			SizeBytes:      entry.SizeBytes,
			AccessCount:    entry.AccessCount,
			LastAccessedAt: entry.LastAccessedAt,
			Tags:           entry.Tags,
		})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(b.dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write snapshot %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace snapshot %s: %w", name, err)
	}
	return nil
}

// Remove deletes the snapshot for the named cache, if present.
func (b *Backend[V]) Remove(name string) error {
	path, err := b.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove snapshot %s: %w", name, err)
	}
	return nil
}

// Names lists the cache names with a saved snapshot.
func (b *Backend[V]) Names() ([]string, error) {
	glob, err := filepath.Glob(filepath.Join(b.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(glob))
	for _, path := range glob {
		names = append(names, strings.TrimSuffix(filepath.Base(path), ".json"))
	}
	return names, nil
}

// path maps a cache name to its snapshot file, rejecting names that
// would escape the directory.
func (b *Backend[V]) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(b.dir, name+".json"), nil
}
