package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/lode/domain/cache"
)

// record is the stored form of one cache entry. The value stays raw so
// the codec owns its encoding.
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

// Backend persists cache snapshots in BadgerDB. Each cache name maps
// to its own key range, so snapshots replace independently.
type Backend[V any] struct {
	db        *badger.DB
	keyPrefix string
	codec     cache.Codec[V]
	ownsDB    bool
}

// NewBackend opens a BadgerDB database and wraps it as a persistence
// backend. A nil codec defaults to JSON.
func NewBackend[V any](cfg Config, codec cache.Codec[V], opts ...Option) (*Backend[V], error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	b := NewBackendFromDB(db, cfg.KeyPrefix, codec)
	b.ownsDB = true
	return b, nil
}

// NewBackendFromDB wraps an existing BadgerDB database. The caller
// keeps ownership of the database.
func NewBackendFromDB[V any](db *badger.DB, keyPrefix string, codec cache.Codec[V]) *Backend[V] {
	if codec == nil {
		codec = cache.JSONCodec[V]{}
	}
	return &Backend[V]{
		db:        db,
		keyPrefix: keyPrefix,
		codec:     codec,
	}
}

// LoadAll returns all saved entries for the named cache.
func (b *Backend[V]) LoadAll(ctx context.Context, name string) ([]cache.Entry[V], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := b.snapshotPrefix(name)
	var entries []cache.Entry[V]

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode snapshot %s entry: %w", name, err)
			}
			value, err := b.codec.Unmarshal(rec.Value)
			if err != nil {
				return fmt.Errorf("decode snapshot %s entry %q: %w", name, rec.Key, err)
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
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveAll replaces the saved entries for the named cache.
func (b *Backend[V]) SaveAll(ctx context.Context, name string, entries []cache.Entry[V]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := b.db.DropPrefix(b.snapshotPrefix(name)); err != nil {
		return fmt.Errorf("clear snapshot %s: %w", name, err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, entry := range entries {
		value, err := b.codec.Marshal(entry.Value)
		if err != nil {
			return fmt.Errorf("encode snapshot %s entry %q: %w", name, entry.Key, err)
		}
		data, err := json.Marshal(record{
			Key:            entry.Key,
			Value:          value,
			CreatedAt:      entry.CreatedAt,
			TTL:            entry.TTL,
			SizeBytes:      entry.SizeBytes,
			AccessCount:    entry.AccessCount,
			LastAccessedAt: entry.LastAccessedAt,
			Tags:           entry.Tags,
		})
		if err != nil {
			return fmt.Errorf("encode snapshot %s entry %q: %w", name, entry.Key, err)
		}
		if err := wb.Set(b.entryKey(name, entry.Key), data); err != nil {
			return fmt.Errorf("write snapshot %s entry %q: %w", name, entry.Key, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush snapshot %s: %w", name, err)
	}
	return nil
}

// Close closes the database if this backend opened it.
func (b *Backend[V]) Close() error {
	if !b.ownsDB {
		return nil
	}
	return b.db.Close()
}

func (b *Backend[V]) snapshotPrefix(name string) []byte {
	return []byte(b.keyPrefix + "snapshot:" + name + ":")
}

func (b *Backend[V]) entryKey(name, key string) []byte {
	return append(b.snapshotPrefix(name), []byte(key)...)
}
