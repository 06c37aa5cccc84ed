package eavcache

import (
	"context"

	"github.com/google/uuid"
)

// MetadataCache resolves entity types, attribute sets and attributes, populating
// its in-memory tables lazily on first use.
type MetadataCache interface {
	// ID identifies this cache instance, e.g. for invalidator registration.
	ID() uuid.UUID

	// GetEntityType resolves an entity type by code, numeric ID or passes a resolved one through.
	GetEntityType(ctx context.Context, ref EntityTypeRef) (*EntityType, error)
	// GetAttribute resolves an attribute of an entity type. Unknown codes yield a stand-in
	// attribute carrying only the code.
	GetAttribute(ctx context.Context, entityType EntityTypeRef, ref AttributeRef) (Attribute, error)
	// GetCollectionAttribute is kept for collection callers; it behaves like GetAttribute.
	GetCollectionAttribute(ctx context.Context, entityType EntityTypeRef, ref AttributeRef) (Attribute, error)
	// GetEntityAttributeCodes returns the codes of the scope's attribute set when it is known,
	// otherwise every attribute code of the entity type.
	GetEntityAttributeCodes(ctx context.Context, entityType EntityTypeRef, scope AttributeSetScope) ([]string, error)

	GetAttributeSet(ctx context.Context, id int32) (*AttributeSet, bool, error)
	GetEntityTypeAttributes(ctx context.Context, entityType EntityTypeRef) ([]Attribute, error)
	ListEntityTypes(ctx context.Context) ([]*EntityType, error)

	// Warm populates every table.
	Warm(ctx context.Context) error
	// Clear drops all in-memory tables and references. The secondary cache is untouched.
	Clear()
}

// MetadataSource supplies raw schema rows, usually from the relational EAV tables.
type MetadataSource interface {
	ListEntityTypes(ctx context.Context) ([]*EntityType, error)
	ListAttributeSets(ctx context.Context) ([]*AttributeSet, error)
	ListAttributes(ctx context.Context, entityType *EntityType) ([]AttributeRow, error)
}

// SecondaryCache is the cross-process serialized cache tier.
type SecondaryCache interface {
	// Enabled is checked before every read and write attempt.
	Enabled() bool
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte, tags []string) error
	Invalidate(ctx context.Context, tags ...string) error
}

// Clearer is anything the invalidator can reset.
type Clearer interface {
	ID() uuid.UUID
	Clear()
}

// SchemaEventType names schema mutations that invalidate cached metadata.
type SchemaEventType string

const (
	SchemaEventAttributeSetSaved   SchemaEventType = "attribute_set_save_after"
	SchemaEventAttributeSetDeleted SchemaEventType = "attribute_set_delete_after"
	SchemaEventAttributeSaved      SchemaEventType = "attribute_save_after"
	SchemaEventAttributeDeleted    SchemaEventType = "attribute_delete_after"
)

// SchemaEvent describes a schema mutation.
type SchemaEvent struct {
	Type         SchemaEventType `json:"type"`
	EntityTypeID int16           `json:"entity_type_id,omitempty"`
	ObjectID     int32           `json:"object_id,omitempty"`
}

// Invalidator clears in-process caches and the secondary cache when the schema changes.
type Invalidator interface {
	Register(cache Clearer) (unregister func())
	CleanEAVCache(ctx context.Context) error
	HandleSchemaEvent(ctx context.Context, event SchemaEvent) error
}
