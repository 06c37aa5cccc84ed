package internal

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/lychee-technology/eavcache"
)

var _ eavcache.MetadataCache = (*MetadataCache)(nil)

// MetadataCache resolves EAV schema metadata through three lazily populated tables:
// entity types, attribute sets and attributes grouped by entity type code.
// A nil table is unpopulated; tables are only ever replaced wholesale.
type MetadataCache struct {
	mu sync.Mutex

	id        uuid.UUID
	source    eavcache.MetadataSource
	secondary eavcache.SecondaryCache
	models    *AttributeModelRegistry
	refs      *referenceIndex

	entityTypes   map[string]*eavcache.EntityType
	attributeSets map[int32]*eavcache.AttributeSet
	attributes    map[string]map[string]eavcache.Attribute

	// entityTypesRestored is true when the entity type table came from the secondary cache.
	entityTypesRestored bool
}

// NewMetadataCache creates an unpopulated cache. A nil secondary cache disables the second tier
// and a nil registry only knows the base attribute model.
func NewMetadataCache(source eavcache.MetadataSource, secondary eavcache.SecondaryCache, models *AttributeModelRegistry) *MetadataCache {
	if secondary == nil {
		secondary = NewDisabledSecondaryCache()
	}
	if models == nil {
		models = DefaultAttributeModelRegistry()
	}
	return &MetadataCache{
		id:        uuid.New(),
		source:    source,
		secondary: secondary,
		models:    models,
		refs:      newReferenceIndex(),
	}
}

// ID identifies the instance for invalidator registration.
func (c *MetadataCache) ID() uuid.UUID {
	return c.id
}

// GetEntityType resolves an entity type by code or numeric ID. A resolved *EntityType is returned as is.
func (c *MetadataCache) GetEntityType(ctx context.Context, ref eavcache.EntityTypeRef) (*eavcache.EntityType, error) {
	if entityType, ok := ref.(*eavcache.EntityType); ok && entityType != nil {
		return entityType, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entityType(ctx, ref)
}

func (c *MetadataCache) entityType(ctx context.Context, ref eavcache.EntityTypeRef) (*eavcache.EntityType, error) {
	var code string
	switch r := ref.(type) {
	case *eavcache.EntityType:
		if r != nil {
			return r, nil
		}
		return nil, eavcache.NewInvalidReferenceError("entity type", ref)
	case eavcache.EntityTypeCode:
		code = string(r)
	case eavcache.EntityTypeID:
		code = strconv.Itoa(int(r))
	default:
		return nil, eavcache.NewInvalidReferenceError("entity type", ref)
	}

	if err := c.ensureEntityTypesLoaded(ctx); err != nil {
		return nil, err
	}

	if id, ok := ref.(eavcache.EntityTypeID); ok {
		if resolved, ok := c.refs.ResolveEntityTypeReference(int16(id)); ok {
			code = resolved
		}
	}

	entityType, ok := c.entityTypes[code]
	if !ok {
		return nil, eavcache.NewEntityTypeNotFoundError(code)
	}
	return entityType, nil
}

// GetAttribute resolves an attribute of an entity type by code or numeric ID. Codes missing from
// the attribute table yield a stand-in of the entity type's attribute model carrying only the code.
func (c *MetadataCache) GetAttribute(ctx context.Context, entityTypeRef eavcache.EntityTypeRef, ref eavcache.AttributeRef) (eavcache.Attribute, error) {
	if attribute, ok := ref.(eavcache.Attribute); ok && attribute != nil {
		return attribute, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureAttributesLoaded(ctx); err != nil {
		return nil, err
	}
	entityType, err := c.entityType(ctx, entityTypeRef)
	if err != nil {
		return nil, err
	}

	var code string
	switch r := ref.(type) {
	case eavcache.AttributeCode:
		code = string(r)
	case eavcache.AttributeID:
		code = strconv.Itoa(int(r))
		if resolved, ok := c.refs.ResolveAttributeReference(int32(r), entityType.Code); ok {
			code = resolved
		}
	default:
		return nil, eavcache.NewInvalidReferenceError("attribute", ref)
	}

	attribute, ok := c.attributes[entityType.Code][code]
	if !ok {
		return c.standInAttribute(entityType, code), nil
	}
	attribute.SetEntityType(entityType)
	return attribute, nil
}

// GetCollectionAttribute behaves like GetAttribute.
func (c *MetadataCache) GetCollectionAttribute(ctx context.Context, entityTypeRef eavcache.EntityTypeRef, ref eavcache.AttributeRef) (eavcache.Attribute, error) {
	return c.GetAttribute(ctx, entityTypeRef, ref)
}

func (c *MetadataCache) standInAttribute(entityType *eavcache.EntityType, code string) eavcache.Attribute {
	model := entityType.AttributeModel
	if model == "" {
		model = c.models.DefaultModel()
	}
	attribute := c.models.NewOrDefault(model)
	attribute.SetData(eavcache.AttributeData{Code: code})
	return attribute
}

// GetEntityAttributeCodes returns the attribute codes of the scope's attribute set when it names a
// known set, otherwise every attribute code of the entity type.
func (c *MetadataCache) GetEntityAttributeCodes(ctx context.Context, entityTypeRef eavcache.EntityTypeRef, scope eavcache.AttributeSetScope) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureAttributesLoaded(ctx); err != nil {
		return nil, err
	}
	if scope != nil {
		if setID := scope.AttributeSetID(); setID != 0 {
			if set, ok := c.attributeSets[setID]; ok {
				return slices.Clone(set.AttributeCodes), nil
			}
		}
	}

	entityType, err := c.entityType(ctx, entityTypeRef)
	if err != nil {
		return nil, err
	}
	return slices.Clone(entityType.AttributeCodes), nil
}

// GetAttributeSet returns the attribute set with the given ID.
func (c *MetadataCache) GetAttributeSet(ctx context.Context, id int32) (*eavcache.AttributeSet, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureAttributesLoaded(ctx); err != nil {
		return nil, false, err
	}
	set, ok := c.attributeSets[id]
	return set, ok, nil
}

// GetEntityTypeAttributes returns every attribute of an entity type ordered by code,
// each with its entity type attached.
func (c *MetadataCache) GetEntityTypeAttributes(ctx context.Context, entityTypeRef eavcache.EntityTypeRef) ([]eavcache.Attribute, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureAttributesLoaded(ctx); err != nil {
		return nil, err
	}
	entityType, err := c.entityType(ctx, entityTypeRef)
	if err != nil {
		return nil, err
	}

	byCode := c.attributes[entityType.Code]
	codes := make([]string, 0, len(byCode))
	for code := range byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	attributes := make([]eavcache.Attribute, 0, len(codes))
	for _, code := range codes {
		attribute := byCode[code]
		attribute.SetEntityType(entityType)
		attributes = append(attributes, attribute)
	}
	return attributes, nil
}

// ListEntityTypes returns every entity type ordered by code. Attribute codes are only
// filled in once attributes have been populated.
func (c *MetadataCache) ListEntityTypes(ctx context.Context) ([]*eavcache.EntityType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureEntityTypesLoaded(ctx); err != nil {
		return nil, err
	}
	entityTypes := make([]*eavcache.EntityType, 0, len(c.entityTypes))
	for _, code := range sortedEntityTypeCodes(c.entityTypes) {
		entityTypes = append(entityTypes, c.entityTypes[code])
	}
	return entityTypes, nil
}

// Warm populates every table.
func (c *MetadataCache) Warm(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureAttributesLoaded(ctx)
}

// Clear resets the reference index and every table to unpopulated. The secondary cache is untouched.
func (c *MetadataCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refs.Reset()
	c.entityTypes = nil
	c.attributeSets = nil
	c.attributes = nil
	c.entityTypesRestored = false
}

func sortedEntityTypeCodes(entityTypes map[string]*eavcache.EntityType) []string {
	codes := make([]string, 0, len(entityTypes))
	for code := range entityTypes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
