package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReferenceIndex_EntityTypes(t *testing.T) {
	refs := newReferenceIndex()

	_, ok := refs.ResolveEntityTypeReference(4)
	assert.False(t, ok, "empty index resolves nothing")

	refs.AddEntityTypeReference(4, "catalog_product")
	refs.AddEntityTypeReference(1, "customer")

	code, ok := refs.ResolveEntityTypeReference(4)
	assert.True(t, ok)
	assert.Equal(t, "catalog_product", code)

	code, ok = refs.ResolveEntityTypeReference(1)
	assert.True(t, ok)
	assert.Equal(t, "customer", code)
}

func TestReferenceIndex_AttributesAreScopedPerEntityType(t *testing.T) {
	refs := newReferenceIndex()
	refs.AddAttributeReference(71, "name", "catalog_product")
	refs.AddAttributeReference(71, "firstname", "customer")

	code, ok := refs.ResolveAttributeReference(71, "catalog_product")
	assert.True(t, ok)
	assert.Equal(t, "name", code)

	code, ok = refs.ResolveAttributeReference(71, "customer")
	assert.True(t, ok)
	assert.Equal(t, "firstname", code)

	_, ok = refs.ResolveAttributeReference(71, "sales_order")
	assert.False(t, ok)
	_, ok = refs.ResolveAttributeReference(72, "customer")
	assert.False(t, ok)
}

func TestReferenceIndex_Reset(t *testing.T) {
	refs := newReferenceIndex()
	refs.AddEntityTypeReference(4, "catalog_product")
	refs.AddAttributeReference(71, "name", "catalog_product")

	refs.Reset()

	_, ok := refs.ResolveEntityTypeReference(4)
	assert.False(t, ok)
	_, ok = refs.ResolveAttributeReference(71, "catalog_product")
	assert.False(t, ok)
	assert.Nil(t, refs.entityTypeReferences())
	assert.Nil(t, refs.attributeReferences())

	refs.AddEntityTypeReference(2, "catalog_category")
	code, ok := refs.ResolveEntityTypeReference(2)
	assert.True(t, ok)
	assert.Equal(t, "catalog_category", code)
}

func TestReferenceIndex_Adopt(t *testing.T) {
	refs := newReferenceIndex()
	refs.adoptEntityTypeReferences(map[int16]string{3: "catalog_category"})
	refs.adoptAttributeReferences(map[string]map[int32]string{"catalog_category": {45: "name"}})

	code, ok := refs.ResolveEntityTypeReference(3)
	assert.True(t, ok)
	assert.Equal(t, "catalog_category", code)

	code, ok = refs.ResolveAttributeReference(45, "catalog_category")
	assert.True(t, ok)
	assert.Equal(t, "name", code)
}
