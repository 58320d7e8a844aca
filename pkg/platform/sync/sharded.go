package sync

import (
	"sync"

	"github.com/zeebo/xxh3"
)

const shardCount = 32

// ShardedMap is a string-keyed map split into shards, each guarded by its own
// RWMutex. Operations on different shards never contend, and a value is only
// visible to readers once it has been fully stored.
type ShardedMap[V any] struct {
	shards [shardCount]mapShard[V]
}

type mapShard[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

// NewShardedMap creates an empty ShardedMap with 32 shards.
func NewShardedMap[V any]() *ShardedMap[V] {
	sm := &ShardedMap[V]{}
	for i := range sm.shards {
		sm.shards[i].m = make(map[string]V)
	}
	return sm
}

// Load returns the value stored under key.
func (sm *ShardedMap[V]) Load(key string) (V, bool) {
	shard := sm.shard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	v, ok := shard.m[key]
	return v, ok
}

// LoadOrStore returns the existing value for key if present. Otherwise it
// stores and returns value. loaded is true when the value already existed.
func (sm *ShardedMap[V]) LoadOrStore(key string, value V) (actual V, loaded bool) {
	shard := sm.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if existing, ok := shard.m[key]; ok {
		return existing, true
	}
	shard.m[key] = value
	return value, false
}

// DeleteFunc removes every entry for which fn returns true and reports how
// many were removed. Shards are locked one at a time.
func (sm *ShardedMap[V]) DeleteFunc(fn func(key string, value V) bool) int {
	removed := 0
	for i := range sm.shards {
		shard := &sm.shards[i]
		shard.mu.Lock()
		for k, v := range shard.m {
			if fn(k, v) {
				delete(shard.m, k)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Len returns the number of entries across all shards.
func (sm *ShardedMap[V]) Len() int {
	n := 0
	for i := range sm.shards {
		shard := &sm.shards[i]
		shard.mu.RLock()
		n += len(shard.m)
		shard.mu.RUnlock()
	}
	return n
}

func (sm *ShardedMap[V]) shard(key string) *mapShard[V] {
	return &sm.shards[shardFor(key)]
}

// shardFor returns the shard index for the given key.
// Empty keys default to shard 0.
func shardFor(key string) int {
	if key == "" {
		return 0
	}
	return int(xxh3.HashString(key) % shardCount)
}
