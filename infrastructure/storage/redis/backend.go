package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/lode/domain/cache"
)

// ErrConnectionFailed indicates the Redis server could not be reached.
var ErrConnectionFailed = errors.New("redis: connection failed")

// record is the stored form of one cache entry: one hash field per
// entry, JSON-encoded. The value stays raw so the codec owns its
// encoding.
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

// Backend persists cache snapshots in Redis, one hash per cache name.
type Backend[V any] struct {
	client    *redis.Client
	keyPrefix string
	codec     cache.Codec[V]
}

// NewBackend connects to Redis and wraps the connection as a
// persistence backend. A nil codec defaults to JSON.
func NewBackend[V any](cfg Config, codec cache.Codec[V], opts ...ConfigOption) (*Backend[V], error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	b := NewBackendFromClient(client, cfg.KeyPrefix, codec)
	return b, nil
}

// NewBackendFromClient wraps an existing Redis client. The caller keeps
// ownership of the client.
func NewBackendFromClient[V any](client *redis.Client, keyPrefix string, codec cache.Codec[V]) *Backend[V] {
	if codec == nil {
		codec = cache.JSONCodec[V]{}
	}
	return &Backend[V]{
		client:    client,
		keyPrefix: keyPrefix,
		codec:     codec,
	}
}

// LoadAll returns all saved entries for the named cache.
func (b *Backend[V]) LoadAll(ctx context.Context, name string) ([]cache.Entry[V], error) {
	fields, err := b.client.HGetAll(ctx, b.snapshotKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", name, err)
	}

	entries := make([]cache.Entry[V], 0, len(fields))
	for field, data := range fields {
		entry, err := b.decode([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("decode snapshot %s entry %q: %w", name, field, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SaveAll replaces the saved entries for the named cache. The delete
// and rewrite run in one pipeline.
func (b *Backend[V]) SaveAll(ctx context.Context, name string, entries []cache.Entry[V]) error {
	key := b.snapshotKey(name)

	fields := make(map[string]any, len(entries))
	for _, entry := range entries {
		data, err := b.encode(entry)
		if err != nil {
			return fmt.Errorf("encode snapshot %s entry %q: %w", name, entry.Key, err)
		}
		fields[entry.Key] = data
	}

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write snapshot %s: %w", name, err)
	}
	return nil
}

// Close closes the underlying client.
func (b *Backend[V]) Close() error {
	return b.client.Close()
}

// snapshotKey maps a cache name to its Redis hash key.
func (b *Backend[V]) snapshotKey(name string) string {
	return b.keyPrefix + "snapshot:" + name
}

// encode serializes one entry as a hash field value.
func (b *Backend[V]) encode(entry cache.Entry[V]) ([]byte, error) {
	value, err := b.codec.Marshal(entry.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(record{
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

// decode deserializes one hash field value back into an entry.
func (b *Backend[V]) decode(data []byte) (cache.Entry[V], error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return cache.Entry[V]{}, err
	}
	value, err := b.codec.Unmarshal(rec.Value)
	if err != nil {
		return cache.Entry[V]{}, err
	}
	return cache.Entry[V]{
		Key:            rec.Key,
		Value:          value,
		CreatedAt:      rec.CreatedAt,
		TTL:            rec.TTL,
		SizeBytes:      rec.SizeBytes,
		AccessCount:    rec.AccessCount,
		LastAccessedAt: rec.LastAccessedAt,
		Tags:           rec.Tags,
	}, nil
}
