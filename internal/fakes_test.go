package internal

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/lychee-technology/eavcache"
)

var errSourceDown = errors.New("metadata source unreachable")

// fakeSource serves fixed rows and counts every call.
type fakeSource struct {
	mu sync.Mutex

	entityTypes   []*eavcache.EntityType
	attributeSets []*eavcache.AttributeSet
	attributes    map[int16][]eavcache.AttributeRow

	entityTypeCalls   int
	attributeSetCalls int
	attributeCalls    int

	failEntityTypes bool
	failAttributes  bool
}

func (f *fakeSource) ListEntityTypes(ctx context.Context) ([]*eavcache.EntityType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entityTypeCalls++
	if f.failEntityTypes {
		return nil, errSourceDown
	}
	out := make([]*eavcache.EntityType, 0, len(f.entityTypes))
	for _, et := range f.entityTypes {
		clone := *et
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeSource) ListAttributeSets(ctx context.Context) ([]*eavcache.AttributeSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attributeSetCalls++
	out := make([]*eavcache.AttributeSet, 0, len(f.attributeSets))
	for _, set := range f.attributeSets {
		clone := *set
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeSource) ListAttributes(ctx context.Context, entityType *eavcache.EntityType) ([]eavcache.AttributeRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attributeCalls++
	if f.failAttributes {
		return nil, errSourceDown
	}
	rows := slices.Clone(f.attributes[entityType.ID])
	for i := range rows {
		rows[i].AttributeSetIDs = slices.Clone(rows[i].AttributeSetIDs)
	}
	return rows, nil
}

func (f *fakeSource) calls() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entityTypeCalls, f.attributeSetCalls, f.attributeCalls
}

func (f *fakeSource) setFailures(entityTypes, attributes bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failEntityTypes = entityTypes
	f.failAttributes = attributes
}

// newCatalogSource returns two entity types: "catalog_product" with core columns sku and
// name, and "customer" sharing the attribute code "name".
func newCatalogSource() *fakeSource {
	return &fakeSource{
		entityTypes: []*eavcache.EntityType{
			{
				ID:                    4,
				Code:                  "catalog_product",
				AttributeModel:        eavcache.DefaultAttributeModel,
				EntityTable:           "catalog_product_entity",
				DefaultAttributeSetID: 4,
				DefaultAttributeCodes: []string{"sku"},
			},
			{
				ID:             1,
				Code:           "customer",
				AttributeModel: eavcache.DefaultAttributeModel,
				EntityTable:    "customer_entity",
			},
		},
		attributeSets: []*eavcache.AttributeSet{
			{ID: 1, EntityTypeID: 1, Name: "Default"},
			{ID: 4, EntityTypeID: 4, Name: "Default"},
			{ID: 9, EntityTypeID: 4, Name: "Apparel"},
		},
		attributes: map[int16][]eavcache.AttributeRow{
			4: {
				{
					Data:            eavcache.AttributeData{ID: 71, Code: "name", EntityTypeID: 4, BackendType: "varchar", FrontendLabel: "Name", IsRequired: true},
					AttributeSetIDs: []int32{4, 9},
				},
				{
					Data:            eavcache.AttributeData{ID: 74, Code: "sku", EntityTypeID: 4, BackendType: "varchar", FrontendLabel: "SKU"},
					AttributeSetIDs: []int32{4, 9},
				},
				{
					Data:            eavcache.AttributeData{ID: 80, Code: "color", EntityTypeID: 4, BackendType: "int", FrontendInput: "select"},
					AttributeSetIDs: []int32{9},
				},
			},
			1: {
				{
					Data:            eavcache.AttributeData{ID: 5, Code: "name", EntityTypeID: 1, BackendType: "varchar"},
					AttributeSetIDs: []int32{1},
				},
			},
		},
	}
}

// fakeSecondaryCache is an in-memory SecondaryCache recording every call.
type fakeSecondaryCache struct {
	mu sync.Mutex

	enabled bool
	data    map[string][]byte
	tags    map[string][]string

	loads         []string
	saves         []string
	invalidations [][]string

	loadErr error
	saveErr error
}

func newFakeSecondaryCache() *fakeSecondaryCache {
	return &fakeSecondaryCache{
		enabled: true,
		data:    make(map[string][]byte),
		tags:    make(map[string][]string),
	}
}

func (f *fakeSecondaryCache) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeSecondaryCache) Load(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, key)
	if f.loadErr != nil {
		return nil, false, f.loadErr
	}
	data, ok := f.data[key]
	return data, ok, nil
}

func (f *fakeSecondaryCache) Save(ctx context.Context, key string, data []byte, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, key)
	if f.saveErr != nil {
		return f.saveErr
	}
	f.data[key] = slices.Clone(data)
	f.tags[key] = slices.Clone(tags)
	return nil
}

func (f *fakeSecondaryCache) Invalidate(ctx context.Context, tags ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations = append(f.invalidations, tags)
	for key, keyTags := range f.tags {
		for _, tag := range tags {
			if slices.Contains(keyTags, tag) {
				delete(f.data, key)
				delete(f.tags, key)
				break
			}
		}
	}
	return nil
}
