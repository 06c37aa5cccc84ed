package internal

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/lychee-technology/eavcache"
	"github.com/viccon/sturdyc"
)

var _ eavcache.SecondaryCache = (*MemorySecondaryCache)(nil)

// MemorySecondaryCache keeps snapshots in a sharded sturdyc client shared by every
// MetadataCache of the process. Tags are tracked in a side index.
type MemorySecondaryCache struct {
	client *sturdyc.Client[[]byte]
	prefix string

	mu   sync.Mutex
	tags map[string]map[string]struct{}
}

// NewMemorySecondaryCache builds the sturdyc client from the memory settings.
func NewMemorySecondaryCache(cfg eavcache.MemoryConfig, prefix string, ttl time.Duration) *MemorySecondaryCache {
	return &MemorySecondaryCache{
		client: sturdyc.New[[]byte](cfg.Capacity, cfg.NumShards, ttl, cfg.EvictionPercentage),
		prefix: prefix,
		tags:   make(map[string]map[string]struct{}),
	}
}

func (m *MemorySecondaryCache) Enabled() bool { return true }

func (m *MemorySecondaryCache) Load(_ context.Context, key string) ([]byte, bool, error) {
	data, ok := m.client.Get(m.prefix + key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(data), true, nil
}

func (m *MemorySecondaryCache) Save(_ context.Context, key string, data []byte, tags []string) error {
	fullKey := m.prefix + key

	// The write and its tag registration are atomic with respect to Invalidate.
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client.Set(fullKey, slices.Clone(data))
	for _, tag := range tags {
		keys, ok := m.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			m.tags[tag] = keys
		}
		keys[fullKey] = struct{}{}
	}
	return nil
}

// Invalidate deletes every key saved under any of the tags.
func (m *MemorySecondaryCache) Invalidate(_ context.Context, tags ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tag := range tags {
		for key := range m.tags[tag] {
			m.client.Delete(key)
		}
		delete(m.tags, tag)
	}
	return nil
}

// Keys lists the stored keys, prefix included.
func (m *MemorySecondaryCache) Keys() []string {
	keys := m.client.ScanKeys()
	slices.Sort(keys)
	return keys
}
