package internal

import (
	"context"
	"slices"
	"time"

	"github.com/lychee-technology/eavcache"
	"go.uber.org/zap"
)

const (
	populationTableEntityTypes = "entity_types"
	populationTableAttributes  = "attributes"

	populationOriginSource    = "source"
	populationOriginSecondary = "secondary_cache"
)

// snapshotTags are attached to every snapshot written to the secondary cache.
var snapshotTags = []string{eavcache.CacheTag, eavcache.AttributeCacheTag}

// ensureEntityTypesLoaded populates the entity type table and its references. Entity types are
// not written back here: their attribute codes are only known after attribute population.
// Callers must hold c.mu.
func (c *MetadataCache) ensureEntityTypesLoaded(ctx context.Context) error {
	if c.entityTypes != nil {
		return nil
	}
	start := time.Now()

	if data, ok := c.loadSnapshot(ctx, eavcache.EntityTypesCacheKey); ok {
		entityTypes, refs, err := decodeEntityTypes(data)
		if err == nil {
			c.entityTypes = entityTypes
			c.refs.adoptEntityTypeReferences(refs)
			c.entityTypesRestored = true
			EmitPopulation(ctx, populationTableEntityTypes, populationOriginSecondary, time.Since(start).Milliseconds())
			return nil
		}
		c.snapshotRejected(ctx, eavcache.EntityTypesCacheKey, err)
	}

	rows, err := c.source.ListEntityTypes(ctx)
	if err != nil {
		return eavcache.NewSourceError("failed to list entity types", err)
	}

	entityTypes := make(map[string]*eavcache.EntityType, len(rows))
	refs := newReferenceIndex()
	for _, row := range rows {
		if row == nil {
			continue
		}
		entityType := *row
		entityType.AttributeCodes = nil
		entityTypes[entityType.Code] = &entityType
		refs.AddEntityTypeReference(entityType.ID, entityType.Code)
	}

	c.entityTypes = entityTypes
	c.refs.adoptEntityTypeReferences(refs.entityTypeReferences())
	c.entityTypesRestored = false

	zap.S().Infow("loaded entity types from metadata source", "count", len(entityTypes))
	EmitPopulation(ctx, populationTableEntityTypes, populationOriginSource, time.Since(start).Milliseconds())
	return nil
}

// ensureAttributesLoaded populates the attribute set and attribute tables together with the
// attribute references, then writes both snapshots back. Work is staged locally and only
// committed once every entity type has been processed. Callers must hold c.mu.
func (c *MetadataCache) ensureAttributesLoaded(ctx context.Context) error {
	if c.attributes != nil {
		return nil
	}
	if err := c.ensureEntityTypesLoaded(ctx); err != nil {
		return err
	}
	start := time.Now()

	if data, ok := c.loadSnapshot(ctx, eavcache.AttributesCacheKey); ok {
		attributeSets, attributes, refs, err := decodeAttributes(data, c.models)
		if err == nil {
			if !c.entityTypesRestored {
				zap.S().Debugw("adopting attribute snapshot over entity types loaded from the metadata source",
					"entity_types", len(c.entityTypes))
			}
			c.attributeSets = attributeSets
			c.attributes = attributes
			c.refs.adoptAttributeReferences(refs)
			EmitPopulation(ctx, populationTableAttributes, populationOriginSecondary, time.Since(start).Milliseconds())
			return nil
		}
		c.snapshotRejected(ctx, eavcache.AttributesCacheKey, err)
	}

	setRows, err := c.source.ListAttributeSets(ctx)
	if err != nil {
		return eavcache.NewSourceError("failed to list attribute sets", err)
	}
	attributeSets := make(map[int32]*eavcache.AttributeSet, len(setRows))
	for _, row := range setRows {
		if row == nil {
			continue
		}
		set := *row
		set.AttributeCodes = nil
		attributeSets[set.ID] = &set
	}

	attributes := make(map[string]map[string]eavcache.Attribute, len(c.entityTypes))
	entityTypeCodes := make(map[string][]string, len(c.entityTypes))
	setCodes := make(map[int32][]string, len(attributeSets))
	refs := newReferenceIndex()

	for _, entityTypeCode := range sortedEntityTypeCodes(c.entityTypes) {
		entityType := c.entityTypes[entityTypeCode]

		rows, err := c.source.ListAttributes(ctx, entityType)
		if err != nil {
			return eavcache.NewSourceError("failed to list attributes", err).WithDetail("entity_type", entityTypeCode)
		}

		byCode := make(map[string]eavcache.Attribute, len(rows))
		codes := make([]string, 0, len(rows))
		for _, row := range rows {
			attribute, err := c.buildAttribute(entityType, row)
			if err != nil {
				return err
			}
			code := attribute.AttributeCode()
			if previous, exists := byCode[code]; exists {
				zap.S().Warnw("duplicate attribute code; last row wins", "entity_type", entityTypeCode, "attribute", code)
				refs.RemoveAttributeReference(previous.AttributeID(), code, entityTypeCode)
			} else {
				codes = append(codes, code)
			}

			byCode[code] = attribute
			refs.AddAttributeReference(attribute.AttributeID(), code, entityTypeCode)

			for _, setID := range row.AttributeSetIDs {
				if _, ok := attributeSets[setID]; !ok {
					continue
				}
				if !slices.Contains(setCodes[setID], code) {
					setCodes[setID] = append(setCodes[setID], code)
				}
			}
		}

		attributes[entityTypeCode] = byCode
		entityTypeCodes[entityTypeCode] = codes
	}

	for code, codes := range entityTypeCodes {
		c.entityTypes[code].AttributeCodes = codes
	}
	for id, set := range attributeSets {
		codes := setCodes[id]
		if codes == nil {
			codes = []string{}
		}
		set.AttributeCodes = codes
	}
	c.attributeSets = attributeSets
	c.attributes = attributes
	c.refs.adoptAttributeReferences(refs.attributeReferences())

	zap.S().Infow("loaded attributes from metadata source",
		"entity_types", len(attributes), "attribute_sets", len(attributeSets))
	EmitPopulation(ctx, populationTableAttributes, populationOriginSource, time.Since(start).Milliseconds())

	c.writeBack(ctx)
	return nil
}

// buildAttribute instantiates the row's model (the row override, else the entity type's model)
// and promotes the entity type's core attributes to static, global attributes.
func (c *MetadataCache) buildAttribute(entityType *eavcache.EntityType, row eavcache.AttributeRow) (eavcache.Attribute, error) {
	model := row.Data.Model
	if model == "" {
		model = entityType.AttributeModel
	}
	if model == "" {
		model = c.models.DefaultModel()
	}

	attribute, err := c.models.New(model)
	if err != nil {
		return nil, err
	}

	data := row.Data
	if data.EntityTypeID == 0 {
		data.EntityTypeID = entityType.ID
	}
	if entityType.IsDefaultAttribute(data.Code) {
		data.BackendType = eavcache.BackendTypeStatic
		data.IsGlobal = true
	}
	attribute.SetData(data)
	return attribute, nil
}

// writeBack saves the attribute snapshot and then the entity type snapshot.
func (c *MetadataCache) writeBack(ctx context.Context) {
	if !c.secondary.Enabled() {
		return
	}

	attributesData, err := encodeAttributes(c.attributeSets, c.attributes, c.refs.attributeReferences())
	if err != nil {
		zap.S().Warnw("failed to encode attribute snapshot", "error", err)
		return
	}
	c.saveSnapshot(ctx, eavcache.AttributesCacheKey, attributesData)

	entityTypesData, err := encodeEntityTypes(c.entityTypes, c.refs.entityTypeReferences())
	if err != nil {
		zap.S().Warnw("failed to encode entity type snapshot", "error", err)
		return
	}
	c.saveSnapshot(ctx, eavcache.EntityTypesCacheKey, entityTypesData)
}

// loadSnapshot reads key from the secondary cache. Failures are logged and count as a miss.
func (c *MetadataCache) loadSnapshot(ctx context.Context, key string) ([]byte, bool) {
	if !c.secondary.Enabled() {
		EmitSecondaryCacheResult(ctx, key, OutcomeDisabled)
		return nil, false
	}

	data, ok, err := c.secondary.Load(ctx, key)
	switch {
	case err != nil:
		zap.S().Warnw("secondary cache load failed; falling back to metadata source", "key", key, "error", err)
		EmitSecondaryCacheResult(ctx, key, OutcomeError)
		return nil, false
	case !ok:
		EmitSecondaryCacheResult(ctx, key, OutcomeMiss)
		return nil, false
	}

	EmitSecondaryCacheResult(ctx, key, OutcomeHit)
	return data, true
}

func (c *MetadataCache) saveSnapshot(ctx context.Context, key string, data []byte) {
	if !c.secondary.Enabled() {
		return
	}
	if err := c.secondary.Save(ctx, key, data, snapshotTags); err != nil {
		zap.S().Warnw("secondary cache save failed", "key", key, "error", err)
		EmitSecondaryCacheResult(ctx, key, OutcomeError)
		return
	}
	EmitSecondaryCacheResult(ctx, key, OutcomeSaved)
}

func (c *MetadataCache) snapshotRejected(ctx context.Context, key string, cause error) {
	zap.S().Warnw("discarding secondary cache snapshot",
		"error", eavcache.NewCacheCorruptedError(key, "snapshot cannot be adopted").WithCause(cause))
	EmitSecondaryCacheResult(ctx, key, OutcomeCorrupt)
}
