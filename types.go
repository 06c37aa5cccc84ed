package eavcache

import (
	"slices"
	"strconv"
	"strings"
)

// BackendTypeStatic marks attributes stored as columns of the entity table.
const BackendTypeStatic = "static"

// Secondary cache keys and tags.
const (
	EntityTypesCacheKey = "EAV_ENTITY_TYPES"
	AttributesCacheKey  = "EAV_ENTITY_ATTRIBUTES"

	// CacheTag groups every EAV schema entry.
	CacheTag = "EAV"
	// AttributeCacheTag is the tag cleaned when attributes or attribute sets change.
	AttributeCacheTag = "EAV_ATTRIBUTE"
)

// EntityType is a named category of entity with its own attribute schema.
type EntityType struct {
	ID                    int16             `json:"entity_type_id" msgpack:"id"`
	Code                  string            `json:"entity_type_code" msgpack:"code"`
	EntityModel           string            `json:"entity_model,omitempty" msgpack:"entity_model"`
	AttributeModel        string            `json:"attribute_model,omitempty" msgpack:"attribute_model"`
	EntityTable           string            `json:"entity_table,omitempty" msgpack:"entity_table"`
	AttributeCollection   string            `json:"additional_attribute_table,omitempty" msgpack:"attribute_collection"`
	DefaultAttributeSetID int32             `json:"default_attribute_set_id,omitempty" msgpack:"default_attribute_set_id"`
	DefaultAttributeCodes []string          `json:"default_attribute_codes,omitempty" msgpack:"default_attribute_codes"`
	AttributeCodes        []string          `json:"attribute_codes,omitempty" msgpack:"attribute_codes"`
	Extra                 map[string]string `json:"extra,omitempty" msgpack:"extra"`
}

// IsDefaultAttribute reports whether code is one of the core columns declared by the entity type.
func (e *EntityType) IsDefaultAttribute(code string) bool {
	return slices.Contains(e.DefaultAttributeCodes, code)
}

func (*EntityType) isEntityTypeRef() {}

// AttributeSet groups the attributes presented for entities of one entity type.
type AttributeSet struct {
	ID             int32    `json:"attribute_set_id" msgpack:"id"`
	EntityTypeID   int16    `json:"entity_type_id" msgpack:"entity_type_id"`
	Name           string   `json:"attribute_set_name" msgpack:"name"`
	SortOrder      int      `json:"sort_order,omitempty" msgpack:"sort_order"`
	AttributeCodes []string `json:"attribute_codes,omitempty" msgpack:"attribute_codes"`
}

// AttributeData carries the schema properties of one attribute as supplied by a metadata source.
type AttributeData struct {
	ID            int32             `json:"attribute_id" msgpack:"id"`
	Code          string            `json:"attribute_code" msgpack:"code"`
	EntityTypeID  int16             `json:"entity_type_id" msgpack:"entity_type_id"`
	Model         string            `json:"attribute_model,omitempty" msgpack:"model"`
	BackendType   string            `json:"backend_type,omitempty" msgpack:"backend_type"`
	BackendTable  string            `json:"backend_table,omitempty" msgpack:"backend_table"`
	FrontendInput string            `json:"frontend_input,omitempty" msgpack:"frontend_input"`
	FrontendLabel string            `json:"frontend_label,omitempty" msgpack:"frontend_label"`
	DefaultValue  string            `json:"default_value,omitempty" msgpack:"default_value"`
	Note          string            `json:"note,omitempty" msgpack:"note"`
	ValidateRules string            `json:"validate_rules,omitempty" msgpack:"validate_rules"`
	IsGlobal      bool              `json:"is_global,omitempty" msgpack:"is_global"`
	IsRequired    bool              `json:"is_required,omitempty" msgpack:"is_required"`
	IsUserDefined bool              `json:"is_user_defined,omitempty" msgpack:"is_user_defined"`
	IsUnique      bool              `json:"is_unique,omitempty" msgpack:"is_unique"`
	Extra         map[string]string `json:"extra,omitempty" msgpack:"extra"`
}

// IsStatic reports whether the attribute lives in the entity table rather than a value table.
func (d AttributeData) IsStatic() bool {
	return d.BackendType == BackendTypeStatic
}

// AttributeRow is one attribute as returned by a MetadataSource, joined with its
// attribute-set membership.
type AttributeRow struct {
	Data            AttributeData `json:"attribute"`
	AttributeSetIDs []int32       `json:"attribute_set_ids,omitempty"`
}

// Attribute is the behaviour an attribute model exposes to the metadata cache.
// Concrete models embed *BaseAttribute.
type Attribute interface {
	AttributeRef
	AttributeCode() string
	AttributeID() int32
	ModelName() string
	Data() AttributeData
	SetData(data AttributeData)
	EntityType() *EntityType
	SetEntityType(entityType *EntityType)
}

// BaseAttribute is the default Attribute implementation.
type BaseAttribute struct {
	model      string
	data       AttributeData
	entityType *EntityType
}

// NewBaseAttribute returns an empty attribute bound to the given model identifier.
func NewBaseAttribute(model string) *BaseAttribute {
	return &BaseAttribute{model: model}
}

func (a *BaseAttribute) AttributeCode() string { return a.data.Code }
func (a *BaseAttribute) AttributeID() int32    { return a.data.ID }
func (a *BaseAttribute) ModelName() string     { return a.model }
func (a *BaseAttribute) Data() AttributeData   { return a.data }

func (a *BaseAttribute) SetData(data AttributeData) { a.data = data }

func (a *BaseAttribute) EntityType() *EntityType { return a.entityType }

func (a *BaseAttribute) SetEntityType(entityType *EntityType) { a.entityType = entityType }

func (*BaseAttribute) isAttributeRef() {}

// EntityTypeRef identifies an entity type by code, numeric ID, or an already resolved *EntityType.
type EntityTypeRef interface {
	isEntityTypeRef()
}

// EntityTypeCode references an entity type by its stable code.
type EntityTypeCode string

// EntityTypeID references an entity type by its numeric surrogate ID.
type EntityTypeID int16

func (EntityTypeCode) isEntityTypeRef() {}
func (EntityTypeID) isEntityTypeRef()   {}

// AttributeRef identifies an attribute by code, numeric ID, or an already resolved Attribute.
type AttributeRef interface {
	isAttributeRef()
}

// AttributeCode references an attribute by its code within an entity type.
type AttributeCode string

// AttributeID references an attribute by its numeric ID within an entity type.
type AttributeID int32

func (AttributeCode) isAttributeRef() {}
func (AttributeID) isAttributeRef()   {}

// ParseEntityTypeRef turns user input into a reference: numeric text becomes an ID, anything else a code.
func ParseEntityTypeRef(s string) EntityTypeRef {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 16); err == nil {
		return EntityTypeID(id)
	}
	return EntityTypeCode(s)
}

// ParseAttributeRef turns user input into a reference: numeric text becomes an ID, anything else a code.
func ParseAttributeRef(s string) AttributeRef {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 32); err == nil {
		return AttributeID(id)
	}
	return AttributeCode(s)
}

// AttributeSetScope is implemented by objects that carry an attribute set, typically entity records.
type AttributeSetScope interface {
	AttributeSetID() int32
}

// AttributeSetIDScope is a bare attribute set ID usable as an AttributeSetScope.
type AttributeSetIDScope int32

func (s AttributeSetIDScope) AttributeSetID() int32 { return int32(s) }
