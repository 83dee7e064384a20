package foxytools

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/weapp/foxytools/store"
)

// CacheBackend persists encoded responses by collection and key.
type CacheBackend interface {
	Get(ctx context.Context, collection, key string) ([]byte, bool, error)
	Put(ctx context.Context, collection, key string, value []byte) error
	Delete(ctx context.Context, collection, key string) error
	DeleteAll(ctx context.Context, collection string) error
}

// StoreBackend keeps each cache collection in its own store file as
// records of the form {key, value, created_at}.
type StoreBackend struct {
	opts []store.Option
}

// NewStoreBackend returns a backend writing under root with the given env
// suffix. An empty env falls back to the FOXY_ENV variable.
func NewStoreBackend(root, env string, logger Logger) *StoreBackend {
	opts := []store.Option{store.WithRoot(root)}
	if env != "" {
		opts = append(opts, store.WithEnv(env))
	}
	if logger != nil {
		opts = append(opts, store.WithLogger(logger))
	}
	return &StoreBackend{opts: opts}
}

// Collection opens the store behind a cache collection.
func (b *StoreBackend) Collection(name string) *store.Store {
	return store.New(name, b.opts...)
}

func (b *StoreBackend) Get(_ context.Context, collection, key string) ([]byte, bool, error) {
	rec, ok, err := b.Collection(collection).First(store.Record{"key": key})
	if err != nil || !ok {
		return nil, false, err
	}
	value, ok := rec["value"].(string)
	if !ok {
		return nil, false, &SerializationError{Codec: "store", Op: "decode", Err: fmt.Errorf("entry %q has no text value", key)}
	}
	return []byte(value), true, nil
}

func (b *StoreBackend) Put(_ context.Context, collection, key string, value []byte) error {
	_, err := b.Collection(collection).Upsert(store.Record{"key": key}, store.Record{
		"key":        key,
		"value":      string(value),
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
	return err
}

func (b *StoreBackend) Delete(_ context.Context, collection, key string) error {
	_, err := b.Collection(collection).Delete(store.Record{"key": key})
	return err
}

func (b *StoreBackend) DeleteAll(_ context.Context, collection string) error {
	return b.Collection(collection).DeleteAll()
}

// MemoryBackend is a sharded in-process backend. Entries live as long as
// the backend.
type MemoryBackend struct {
	shards    []*memoryShard
	numShards int
}

type memoryShard struct {
	mu    sync.RWMutex
	store map[string][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	numShards := 16
	shards := make([]*memoryShard, numShards)
	for i := range shards {
		shards[i] = &memoryShard{
			store: make(map[string][]byte),
		}
	}
	return &MemoryBackend{
		shards:    shards,
		numShards: numShards,
	}
}

func memoryKey(collection, key string) string {
	return collection + "\x00" + key
}

func (m *MemoryBackend) getShard(key string) *memoryShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return m.shards[hash.Sum32()%uint32(m.numShards)]
}

func (m *MemoryBackend) Get(_ context.Context, collection, key string) ([]byte, bool, error) {
	k := memoryKey(collection, key)
	shard := m.getShard(k)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	value, ok := shard.store[k]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (m *MemoryBackend) Put(_ context.Context, collection, key string, value []byte) error {
	k := memoryKey(collection, key)
	shard := m.getShard(k)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.store[k] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, collection, key string) error {
	k := memoryKey(collection, key)
	shard := m.getShard(k)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, k)
	return nil
}

func (m *MemoryBackend) DeleteAll(_ context.Context, collection string) error {
	prefix := collection + "\x00"
	for _, shard := range m.shards {
		shard.mu.Lock()
		for k := range shard.store {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
				delete(shard.store, k)
			}
		}
		shard.mu.Unlock()
	}
	return nil
}

// Len returns the number of entries across all collections.
func (m *MemoryBackend) Len() int {
	total := 0
	for _, shard := range m.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}
