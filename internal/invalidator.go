package internal

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lychee-technology/eavcache"
	"go.uber.org/zap"
)

var _ eavcache.Invalidator = (*CacheInvalidator)(nil)

// CacheInvalidator clears every registered cache instance and the attribute tag of the
// secondary cache when the schema changes.
type CacheInvalidator struct {
	secondary eavcache.SecondaryCache

	mu     sync.Mutex
	caches map[uuid.UUID]eavcache.Clearer
}

// NewCacheInvalidator creates an invalidator for the shared secondary cache. A nil secondary
// cache only clears in-process instances.
func NewCacheInvalidator(secondary eavcache.SecondaryCache) *CacheInvalidator {
	if secondary == nil {
		secondary = NewDisabledSecondaryCache()
	}
	return &CacheInvalidator{
		secondary: secondary,
		caches:    make(map[uuid.UUID]eavcache.Clearer),
	}
}

// Register tracks cache until the returned function is called.
func (i *CacheInvalidator) Register(cache eavcache.Clearer) func() {
	id := cache.ID()

	i.mu.Lock()
	i.caches[id] = cache
	i.mu.Unlock()

	return func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		delete(i.caches, id)
	}
}

// CleanEAVCache clears every registered instance, then invalidates the attribute tag so the next
// population rebuilds from the metadata source.
func (i *CacheInvalidator) CleanEAVCache(ctx context.Context) error {
	i.mu.Lock()
	caches := make([]eavcache.Clearer, 0, len(i.caches))
	for _, cache := range i.caches {
		caches = append(caches, cache)
	}
	i.mu.Unlock()

	for _, cache := range caches {
		cache.Clear()
	}

	if err := i.secondary.Invalidate(ctx, eavcache.AttributeCacheTag); err != nil {
		return eavcache.NewCacheError("failed to invalidate secondary cache", err).WithDetail("tag", eavcache.AttributeCacheTag)
	}
	zap.S().Infow("cleared EAV caches", "instances", len(caches), "tag", eavcache.AttributeCacheTag)
	return nil
}

// HandleSchemaEvent cleans the caches for attribute and attribute set mutations and ignores anything else.
func (i *CacheInvalidator) HandleSchemaEvent(ctx context.Context, event eavcache.SchemaEvent) error {
	switch event.Type {
	case eavcache.SchemaEventAttributeSetSaved,
		eavcache.SchemaEventAttributeSetDeleted,
		eavcache.SchemaEventAttributeSaved,
		eavcache.SchemaEventAttributeDeleted:
		zap.S().Debugw("schema event received", "type", event.Type, "entity_type_id", event.EntityTypeID, "object_id", event.ObjectID)
		return i.CleanEAVCache(ctx)
	default:
		return nil
	}
}
