package internal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lychee-technology/eavcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type productAttribute struct {
	*eavcache.BaseAttribute
}

func TestMetadataCache_LookupsPopulateOnce(t *testing.T) {
	ctx := context.Background()
	source := newCatalogSource()
	cache := NewMetadataCache(source, nil, nil)

	_, err := cache.GetEntityType(ctx, eavcache.EntityTypeCode("catalog_product"))
	require.NoError(t, err)
	_, err = cache.GetEntityType(ctx, eavcache.EntityTypeCode("customer"))
	require.NoError(t, err)

	entityTypeCalls, setCalls, attributeCalls := source.calls()
	assert.Equal(t, 1, entityTypeCalls)
	assert.Equal(t, 0, setCalls, "entity type lookups must not populate attributes")
	assert.Equal(t, 0, attributeCalls)

	_, err = cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeCode("sku"))
	require.NoError(t, err)
	_, err = cache.GetAttribute(ctx, eavcache.EntityTypeCode("customer"), eavcache.AttributeCode("name"))
	require.NoError(t, err)

	entityTypeCalls, setCalls, attributeCalls = source.calls()
	assert.Equal(t, 1, entityTypeCalls)
	assert.Equal(t, 1, setCalls)
	assert.Equal(t, 2, attributeCalls, "one attribute query per entity type")
}

func TestMetadataCache_GetEntityType(t *testing.T) {
	ctx := context.Background()
	cache := NewMetadataCache(newCatalogSource(), nil, nil)

	byCode, err := cache.GetEntityType(ctx, eavcache.EntityTypeCode("catalog_product"))
	require.NoError(t, err)
	assert.Equal(t, int16(4), byCode.ID)

	byID, err := cache.GetEntityType(ctx, eavcache.EntityTypeID(4))
	require.NoError(t, err)
	assert.Same(t, byCode, byID)

	parsed, err := cache.GetEntityType(ctx, eavcache.ParseEntityTypeRef("1"))
	require.NoError(t, err)
	assert.Equal(t, "customer", parsed.Code)
}

func TestMetadataCache_GetEntityTypeNotFound(t *testing.T) {
	ctx := context.Background()
	cache := NewMetadataCache(newCatalogSource(), nil, nil)

	_, err := cache.GetEntityType(ctx, eavcache.EntityTypeCode("sales_order"))
	require.Error(t, err)
	assert.True(t, eavcache.IsNotFound(err))
	assert.Contains(t, err.Error(), "sales_order")

	_, err = cache.GetEntityType(ctx, eavcache.EntityTypeID(99))
	require.Error(t, err)
	assert.True(t, eavcache.IsNotFound(err))
	assert.Contains(t, err.Error(), "99")

	_, err = cache.GetAttribute(ctx, eavcache.EntityTypeCode("sales_order"), eavcache.AttributeCode("name"))
	assert.True(t, eavcache.IsNotFound(err), "an unknown entity type is never softened")

	_, err = cache.GetEntityType(ctx, nil)
	require.Error(t, err)
	assert.False(t, eavcache.IsNotFound(err))
}

func TestMetadataCache_PassthroughSkipsPopulation(t *testing.T) {
	ctx := context.Background()
	source := newCatalogSource()
	cache := NewMetadataCache(source, nil, nil)

	resolved := &eavcache.EntityType{ID: 42, Code: "detached"}
	got, err := cache.GetEntityType(ctx, resolved)
	require.NoError(t, err)
	assert.Same(t, resolved, got)

	attribute := eavcache.NewBaseAttribute(eavcache.DefaultAttributeModel)
	gotAttribute, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("unknown"), attribute)
	require.NoError(t, err)
	assert.Same(t, attribute, gotAttribute)

	entityTypeCalls, setCalls, attributeCalls := source.calls()
	assert.Zero(t, entityTypeCalls+setCalls+attributeCalls)
}

func TestMetadataCache_NumericAndCodeResolutionAgree(t *testing.T) {
	ctx := context.Background()
	source := newCatalogSource()
	cache := NewMetadataCache(source, nil, nil)

	for _, entityType := range source.entityTypes {
		for _, row := range source.attributes[entityType.ID] {
			byCode, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode(entityType.Code), eavcache.AttributeCode(row.Data.Code))
			require.NoError(t, err)
			byID, err := cache.GetAttribute(ctx, eavcache.EntityTypeID(entityType.ID), eavcache.AttributeID(row.Data.ID))
			require.NoError(t, err)

			assert.Equal(t, row.Data.Code, byID.AttributeCode())
			assert.Equal(t, byCode.AttributeCode(), byID.AttributeCode())
			require.NotNil(t, byID.EntityType())
			assert.Same(t, byCode.EntityType(), byID.EntityType())
			assert.Equal(t, entityType.Code, byID.EntityType().Code)
		}
	}
}

func TestMetadataCache_AttributeCodesArePerEntityType(t *testing.T) {
	ctx := context.Background()
	cache := NewMetadataCache(newCatalogSource(), nil, nil)

	product, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeCode("name"))
	require.NoError(t, err)
	customer, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("customer"), eavcache.AttributeCode("name"))
	require.NoError(t, err)

	assert.Equal(t, int32(71), product.AttributeID())
	assert.Equal(t, int32(5), customer.AttributeID())
	assert.Equal(t, "catalog_product", product.EntityType().Code)
	assert.Equal(t, "customer", customer.EntityType().Code)

	// attribute 5 only exists for customer
	missing, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeID(5))
	require.NoError(t, err)
	assert.Equal(t, "5", missing.AttributeCode())
	assert.Nil(t, missing.EntityType())
}

func TestMetadataCache_AttributeSetFanOut(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{
		entityTypes:   []*eavcache.EntityType{{ID: 1, Code: "thing"}},
		attributeSets: []*eavcache.AttributeSet{{ID: 1, EntityTypeID: 1}, {ID: 2, EntityTypeID: 1}},
		attributes: map[int16][]eavcache.AttributeRow{
			1: {
				{Data: eavcache.AttributeData{ID: 10, Code: "a1"}, AttributeSetIDs: []int32{1, 2}},
				{Data: eavcache.AttributeData{ID: 11, Code: "a2"}, AttributeSetIDs: []int32{2}},
			},
		},
	}
	cache := NewMetadataCache(source, nil, nil)

	set1, ok, err := cache.GetAttributeSet(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a1"}, set1.AttributeCodes)

	set2, ok, err := cache.GetAttributeSet(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a1", "a2"}, set2.AttributeCodes)

	_, ok, err = cache.GetAttributeSet(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetadataCache_GetEntityAttributeCodes(t *testing.T) {
	ctx := context.Background()
	cache := NewMetadataCache(newCatalogSource(), nil, nil)
	product := eavcache.EntityTypeCode("catalog_product")

	tests := []struct {
		name  string
		scope eavcache.AttributeSetScope
		want  []string
	}{
		{name: "default set", scope: eavcache.AttributeSetIDScope(4), want: []string{"name", "sku"}},
		{name: "apparel set", scope: eavcache.AttributeSetIDScope(9), want: []string{"name", "sku", "color"}},
		{name: "zero set falls back", scope: eavcache.AttributeSetIDScope(0), want: []string{"name", "sku", "color"}},
		{name: "unknown set falls back", scope: eavcache.AttributeSetIDScope(999), want: []string{"name", "sku", "color"}},
		{name: "no scope", scope: nil, want: []string{"name", "sku", "color"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := cache.GetEntityAttributeCodes(ctx, product, tt.scope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes)
		})
	}

	codes, err := cache.GetEntityAttributeCodes(ctx, product, nil)
	require.NoError(t, err)
	codes[0] = "mutated"
	again, err := cache.GetEntityAttributeCodes(ctx, product, nil)
	require.NoError(t, err)
	assert.Equal(t, "name", again[0], "callers receive copies")
}

func TestMetadataCache_GetEntityAttributeCodesKnownSetSkipsEntityType(t *testing.T) {
	ctx := context.Background()
	cache := NewMetadataCache(newCatalogSource(), nil, nil)
	unknown := eavcache.EntityTypeCode("legacy_entity")

	codes, err := cache.GetEntityAttributeCodes(ctx, unknown, eavcache.AttributeSetIDScope(9))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "sku", "color"}, codes)

	_, err = cache.GetEntityAttributeCodes(ctx, unknown, eavcache.AttributeSetIDScope(999))
	require.Error(t, err)
	assert.True(t, eavcache.IsNotFound(err), "an unknown set falls back to the entity type")
}

func TestMetadataCache_UnknownAttributeFallsBack(t *testing.T) {
	ctx := context.Background()
	cache := NewMetadataCache(newCatalogSource(), nil, nil)

	attribute, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeCode("legacy_flag"))
	require.NoError(t, err)
	require.NotNil(t, attribute)

	assert.Equal(t, "legacy_flag", attribute.AttributeCode())
	assert.Zero(t, attribute.AttributeID())
	assert.Nil(t, attribute.EntityType())
	assert.Equal(t, eavcache.AttributeData{Code: "legacy_flag"}, attribute.Data())
	assert.Equal(t, eavcache.DefaultAttributeModel, attribute.ModelName())

	unresolved, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeID(999))
	require.NoError(t, err)
	assert.Equal(t, "999", unresolved.AttributeCode())
}

func TestMetadataCache_ClearRepopulates(t *testing.T) {
	ctx := context.Background()
	source := newCatalogSource()
	cache := NewMetadataCache(source, nil, nil)

	require.NoError(t, cache.Warm(ctx))
	entityTypeCalls, setCalls, attributeCalls := source.calls()
	assert.Equal(t, []int{1, 1, 2}, []int{entityTypeCalls, setCalls, attributeCalls})

	cache.Clear()
	assert.Nil(t, cache.entityTypes)
	assert.Nil(t, cache.attributeSets)
	assert.Nil(t, cache.attributes)
	_, ok := cache.refs.ResolveEntityTypeReference(4)
	assert.False(t, ok)

	_, err := cache.GetEntityType(ctx, eavcache.EntityTypeID(4))
	require.NoError(t, err)
	entityTypeCalls, _, _ = source.calls()
	assert.Equal(t, 2, entityTypeCalls)

	_, err = cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeID(74))
	require.NoError(t, err)
	_, setCalls, attributeCalls = source.calls()
	assert.Equal(t, 2, setCalls)
	assert.Equal(t, 4, attributeCalls)
}

func TestMetadataCache_ClearLeavesSecondaryCache(t *testing.T) {
	ctx := context.Background()
	secondary := newFakeSecondaryCache()
	cache := NewMetadataCache(newCatalogSource(), secondary, nil)

	require.NoError(t, cache.Warm(ctx))
	cache.Clear()

	assert.Len(t, secondary.data, 2)
	assert.Empty(t, secondary.invalidations)
}

func TestMetadataCache_CoreAttributesArePromoted(t *testing.T) {
	ctx := context.Background()
	cache := NewMetadataCache(newCatalogSource(), nil, nil)

	sku, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeCode("sku"))
	require.NoError(t, err)
	assert.Equal(t, eavcache.BackendTypeStatic, sku.Data().BackendType)
	assert.True(t, sku.Data().IsGlobal)
	assert.True(t, sku.Data().IsStatic())

	name, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeCode("name"))
	require.NoError(t, err)
	assert.Equal(t, "varchar", name.Data().BackendType)
	assert.False(t, name.Data().IsGlobal)
}

func TestMetadataCache_SecondaryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	secondary := newFakeSecondaryCache()

	warm := NewMetadataCache(newCatalogSource(), secondary, nil)
	require.NoError(t, warm.Warm(ctx))

	assert.Equal(t, []string{eavcache.AttributesCacheKey, eavcache.EntityTypesCacheKey}, secondary.saves,
		"attributes are written before entity types")
	assert.ElementsMatch(t, []string{eavcache.CacheTag, eavcache.AttributeCacheTag}, secondary.tags[eavcache.EntityTypesCacheKey])
	assert.ElementsMatch(t, []string{eavcache.CacheTag, eavcache.AttributeCacheTag}, secondary.tags[eavcache.AttributesCacheKey])

	unavailable := newCatalogSource()
	unavailable.setFailures(true, true)
	cold := NewMetadataCache(unavailable, secondary, nil)
	require.NoError(t, cold.Warm(ctx))

	entityTypeCalls, setCalls, attributeCalls := unavailable.calls()
	assert.Zero(t, entityTypeCalls+setCalls+attributeCalls)

	assert.Equal(t, warm.entityTypes, cold.entityTypes)
	assert.Equal(t, warm.attributeSets, cold.attributeSets)
	assert.Equal(t, warm.refs.entityTypeReferences(), cold.refs.entityTypeReferences())
	assert.Equal(t, warm.refs.attributeReferences(), cold.refs.attributeReferences())

	require.Equal(t, len(warm.attributes), len(cold.attributes))
	for entityTypeCode, byCode := range warm.attributes {
		require.Len(t, cold.attributes[entityTypeCode], len(byCode))
		for code, attribute := range byCode {
			restored := cold.attributes[entityTypeCode][code]
			require.NotNil(t, restored, "%s/%s", entityTypeCode, code)
			assert.Equal(t, attribute.ModelName(), restored.ModelName())
			assert.Equal(t, attribute.Data(), restored.Data())
		}
	}

	for _, ref := range []eavcache.AttributeRef{eavcache.AttributeID(71), eavcache.AttributeID(74), eavcache.AttributeID(80)} {
		expected, err := warm.GetAttribute(ctx, eavcache.EntityTypeID(4), ref)
		require.NoError(t, err)
		actual, err := cold.GetAttribute(ctx, eavcache.EntityTypeID(4), ref)
		require.NoError(t, err)
		assert.Equal(t, expected.Data(), actual.Data())
		assert.Equal(t, expected.EntityType().Code, actual.EntityType().Code)
	}
}

func TestMetadataCache_DuplicateAttributeCodeSnapshotIsReused(t *testing.T) {
	ctx := context.Background()
	newSource := func() *fakeSource {
		source := newCatalogSource()
		source.attributes[1] = append(source.attributes[1], eavcache.AttributeRow{
			Data:            eavcache.AttributeData{ID: 6, Code: "name", EntityTypeID: 1, BackendType: "text"},
			AttributeSetIDs: []int32{1},
		})
		return source
	}
	secondary := newFakeSecondaryCache()

	warm := NewMetadataCache(newSource(), secondary, nil)
	require.NoError(t, warm.Warm(ctx))
	assert.Equal(t, map[int32]string{6: "name"}, warm.refs.attributeReferences()["customer"])

	source := newSource()
	cold := NewMetadataCache(source, secondary, nil)
	require.NoError(t, cold.Warm(ctx))

	_, _, attributeCalls := source.calls()
	assert.Zero(t, attributeCalls, "the attribute snapshot is adopted")

	attribute, err := cold.GetAttribute(ctx, eavcache.EntityTypeCode("customer"), eavcache.AttributeID(6))
	require.NoError(t, err)
	assert.Equal(t, "name", attribute.AttributeCode())
	assert.Equal(t, "text", attribute.Data().BackendType)

	stale, err := cold.GetAttribute(ctx, eavcache.EntityTypeCode("customer"), eavcache.AttributeID(5))
	require.NoError(t, err)
	assert.Equal(t, "5", stale.AttributeCode(), "the replaced row's id no longer resolves")
}

func TestMetadataCache_CustomAttributeModels(t *testing.T) {
	ctx := context.Background()
	models, err := NewAttributeModelRegistry(eavcache.DefaultAttributeModel, map[string]AttributeFactory{
		"catalog/product_attribute": func() eavcache.Attribute {
			return productAttribute{eavcache.NewBaseAttribute("catalog/product_attribute")}
		},
	})
	require.NoError(t, err)

	source := newCatalogSource()
	source.entityTypes[0].AttributeModel = "catalog/product_attribute"
	source.attributes[1][0].Data.Model = "catalog/product_attribute"

	secondary := newFakeSecondaryCache()
	cache := NewMetadataCache(source, secondary, models)

	sku, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeCode("sku"))
	require.NoError(t, err)
	assert.IsType(t, productAttribute{}, sku)

	customerName, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("customer"), eavcache.AttributeCode("name"))
	require.NoError(t, err)
	assert.IsType(t, productAttribute{}, customerName, "the row override wins over the entity type model")

	standIn, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeCode("legacy"))
	require.NoError(t, err)
	assert.IsType(t, productAttribute{}, standIn)

	restored := NewMetadataCache(source, secondary, models)
	restoredSku, err := restored.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeCode("sku"))
	require.NoError(t, err)
	assert.IsType(t, productAttribute{}, restoredSku)
}

func TestMetadataCache_UnknownModelFailsPopulation(t *testing.T) {
	ctx := context.Background()
	source := newCatalogSource()
	source.attributes[4][2].Data.Model = "missing/model"
	cache := NewMetadataCache(source, nil, nil)

	_, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeCode("color"))
	require.Error(t, err)
	assert.True(t, eavcache.IsConfigurationError(err))
	assert.Nil(t, cache.attributes)
	assert.Nil(t, cache.attributeSets)
}

func TestMetadataCache_SourceFailureLeavesTablesUnpopulated(t *testing.T) {
	ctx := context.Background()
	source := newCatalogSource()
	source.setFailures(true, false)
	cache := NewMetadataCache(source, nil, nil)

	_, err := cache.GetEntityType(ctx, eavcache.EntityTypeCode("customer"))
	require.Error(t, err)
	assert.True(t, eavcache.IsSourceError(err))
	assert.True(t, errors.Is(err, errSourceDown))
	assert.Nil(t, cache.entityTypes)

	source.setFailures(false, true)
	_, err = cache.GetAttribute(ctx, eavcache.EntityTypeCode("customer"), eavcache.AttributeCode("name"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errSourceDown))
	assert.NotNil(t, cache.entityTypes)
	assert.Nil(t, cache.attributes)
	assert.Nil(t, cache.attributeSets)
	for _, entityType := range cache.entityTypes {
		assert.Nil(t, entityType.AttributeCodes, "no partial attribute codes on %s", entityType.Code)
	}
	_, ok := cache.refs.ResolveAttributeReference(71, "catalog_product")
	assert.False(t, ok)

	source.setFailures(false, false)
	name, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("customer"), eavcache.AttributeCode("name"))
	require.NoError(t, err)
	assert.Equal(t, int32(5), name.AttributeID())
}

func TestMetadataCache_EmptySourceIsPopulated(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{}
	cache := NewMetadataCache(source, nil, nil)

	entityTypes, err := cache.ListEntityTypes(ctx)
	require.NoError(t, err)
	assert.Empty(t, entityTypes)
	assert.NotNil(t, cache.entityTypes)

	_, err = cache.GetEntityType(ctx, eavcache.EntityTypeCode("anything"))
	assert.True(t, eavcache.IsNotFound(err))

	require.NoError(t, cache.Warm(ctx))
	require.NoError(t, cache.Warm(ctx))

	entityTypeCalls, setCalls, attributeCalls := source.calls()
	assert.Equal(t, 1, entityTypeCalls)
	assert.Equal(t, 1, setCalls)
	assert.Zero(t, attributeCalls)
}

func TestMetadataCache_CorruptSnapshotsAreMisses(t *testing.T) {
	ctx := context.Background()
	secondary := newFakeSecondaryCache()
	secondary.data[eavcache.EntityTypesCacheKey] = []byte("not msgpack")
	secondary.data[eavcache.AttributesCacheKey] = []byte{0xc1}

	source := newCatalogSource()
	cache := NewMetadataCache(source, secondary, nil)
	require.NoError(t, cache.Warm(ctx))

	entityTypeCalls, _, attributeCalls := source.calls()
	assert.Equal(t, 1, entityTypeCalls)
	assert.Equal(t, 2, attributeCalls)

	_, _, _, err := decodeAttributes(secondary.data[eavcache.AttributesCacheKey], cache.models)
	assert.NoError(t, err, "the rebuilt snapshot replaces the corrupt one")
}

func TestMetadataCache_SecondaryLoadErrorIsMiss(t *testing.T) {
	ctx := context.Background()
	secondary := newFakeSecondaryCache()
	secondary.loadErr = errors.New("connection reset")
	secondary.saveErr = errors.New("connection reset")

	cache := NewMetadataCache(newCatalogSource(), secondary, nil)
	require.NoError(t, cache.Warm(ctx))

	assert.Equal(t, []string{eavcache.EntityTypesCacheKey, eavcache.AttributesCacheKey}, secondary.loads)
	assert.Len(t, secondary.saves, 2)
}

func TestMetadataCache_DisabledSecondaryCacheIsNotTouched(t *testing.T) {
	ctx := context.Background()
	secondary := newFakeSecondaryCache()
	secondary.enabled = false

	cache := NewMetadataCache(newCatalogSource(), secondary, nil)
	require.NoError(t, cache.Warm(ctx))

	assert.Empty(t, secondary.loads)
	assert.Empty(t, secondary.saves)
}

func TestMetadataCache_AttributeSnapshotAdoptedOverSourceEntityTypes(t *testing.T) {
	ctx := context.Background()
	secondary := newFakeSecondaryCache()
	require.NoError(t, NewMetadataCache(newCatalogSource(), secondary, nil).Warm(ctx))

	delete(secondary.data, eavcache.EntityTypesCacheKey)

	source := newCatalogSource()
	cache := NewMetadataCache(source, secondary, nil)
	attribute, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeID(80))
	require.NoError(t, err)
	assert.Equal(t, "color", attribute.AttributeCode())

	entityTypeCalls, setCalls, attributeCalls := source.calls()
	assert.Equal(t, 1, entityTypeCalls)
	assert.Zero(t, setCalls)
	assert.Zero(t, attributeCalls)
}

func TestMetadataCache_GetEntityTypeAttributes(t *testing.T) {
	ctx := context.Background()
	cache := NewMetadataCache(newCatalogSource(), nil, nil)

	attributes, err := cache.GetEntityTypeAttributes(ctx, eavcache.EntityTypeID(4))
	require.NoError(t, err)
	require.Len(t, attributes, 3)

	codes := make([]string, 0, len(attributes))
	for _, attribute := range attributes {
		codes = append(codes, attribute.AttributeCode())
		require.NotNil(t, attribute.EntityType())
		assert.Equal(t, "catalog_product", attribute.EntityType().Code)
	}
	assert.Equal(t, []string{"color", "name", "sku"}, codes)
}

func TestMetadataCache_ListEntityTypes(t *testing.T) {
	ctx := context.Background()
	cache := NewMetadataCache(newCatalogSource(), nil, nil)

	entityTypes, err := cache.ListEntityTypes(ctx)
	require.NoError(t, err)
	require.Len(t, entityTypes, 2)
	assert.Equal(t, "catalog_product", entityTypes[0].Code)
	assert.Equal(t, "customer", entityTypes[1].Code)
	assert.Nil(t, entityTypes[0].AttributeCodes)

	require.NoError(t, cache.Warm(ctx))
	assert.Equal(t, []string{"name", "sku", "color"}, entityTypes[0].AttributeCodes)
}

func TestMetadataCache_GetCollectionAttribute(t *testing.T) {
	ctx := context.Background()
	cache := NewMetadataCache(newCatalogSource(), nil, nil)

	attribute, err := cache.GetCollectionAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeCode("color"))
	require.NoError(t, err)
	assert.Equal(t, int32(80), attribute.AttributeID())
}

func TestMetadataCache_ConcurrentLookupsAndClear(t *testing.T) {
	ctx := context.Background()
	cache := NewMetadataCache(newCatalogSource(), newFakeSecondaryCache(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if i%4 == 0 && j%5 == 0 {
					cache.Clear()
					continue
				}
				attribute, err := cache.GetAttribute(ctx, eavcache.EntityTypeCode("catalog_product"), eavcache.AttributeID(74))
				assert.NoError(t, err)
				assert.Equal(t, "sku", attribute.AttributeCode())
			}
		}(i)
	}
	wg.Wait()
}

func TestMetadataCache_IDsAreUnique(t *testing.T) {
	a := NewMetadataCache(&fakeSource{}, nil, nil)
	b := NewMetadataCache(&fakeSource{}, nil, nil)
	assert.NotEqual(t, a.ID(), b.ID())
}
