package sync

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardedMap_LoadOrStore(t *testing.T) {
	m := NewShardedMap[int]()

	v, loaded := m.LoadOrStore("cred_a", 1)
	assert.False(t, loaded)
	assert.Equal(t, 1, v)

	// Second store keeps the first value
	v, loaded = m.LoadOrStore("cred_a", 2)
	assert.True(t, loaded)
	assert.Equal(t, 1, v)

	got, ok := m.Load("cred_a")
	require.True(t, ok)
	assert.Equal(t, 1, got)
}

func TestShardedMap_LoadMissing(t *testing.T) {
	m := NewShardedMap[string]()
	_, ok := m.Load("missing")
	assert.False(t, ok)

	// Empty key should work (defaults to shard 0)
	m.LoadOrStore("", "empty")
	v, ok := m.Load("")
	assert.True(t, ok)
	assert.Equal(t, "empty", v)
}

func TestShardedMap_DeleteFunc(t *testing.T) {
	m := NewShardedMap[int]()
	for i := range 100 {
		m.LoadOrStore("key-"+strconv.Itoa(i), i)
	}

	removed := m.DeleteFunc(func(_ string, v int) bool { return v%2 == 0 })

	assert.Equal(t, 50, removed)
	assert.Equal(t, 50, m.Len())
	_, ok := m.Load("key-4")
	assert.False(t, ok)
	_, ok = m.Load("key-5")
	assert.True(t, ok)
}

func TestShardedMap_ConcurrentSameKeySingleWinner(t *testing.T) {
	m := NewShardedMap[int]()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := range 100 {
		wg.Go(func() {
			if _, loaded := m.LoadOrStore("same-key", i); !loaded {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, m.Len())
}

func TestShardedMap_ConcurrentReadersAndWriters(t *testing.T) {
	m := NewShardedMap[int]()
	var wg sync.WaitGroup
	for i := range 50 {
		key := "key-" + strconv.Itoa(i)
		wg.Go(func() { m.LoadOrStore(key, i) })
		wg.Go(func() { m.Load(key) })
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())
}

func TestShardDistribution(t *testing.T) {
	// Verify different keys map to different shards (probabilistically)
	shards := make(map[int]bool)
	keys := []string{"cred_123", "cred_456", "cred_abc", "cred_xyz", "cred_1", "cred_2"}

	for _, key := range keys {
		shards[shardFor(key)] = true
	}

	assert.GreaterOrEqual(t, len(shards), 3, "expected keys to distribute across multiple shards")
}

func TestShardFor(t *testing.T) {
	assert.Equal(t, shardFor("cred_test"), shardFor("cred_test"))
	assert.Equal(t, 0, shardFor(""))
	for _, key := range []string{"a", "cred_1", "cred_" + string(make([]byte, 64))} {
		idx := shardFor(key)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, shardCount)
	}
}
