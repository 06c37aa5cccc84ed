package internal

// referenceIndex maps numeric surrogate IDs to stable codes: entity type ID -> entity type code,
// and (entity type code, attribute ID) -> attribute code. It never performs I/O.
type referenceIndex struct {
	entityTypes map[int16]string
	attributes  map[string]map[int32]string
}

func newReferenceIndex() *referenceIndex {
	return &referenceIndex{}
}

func (r *referenceIndex) AddEntityTypeReference(id int16, code string) {
	if r.entityTypes == nil {
		r.entityTypes = make(map[int16]string)
	}
	r.entityTypes[id] = code
}

func (r *referenceIndex) ResolveEntityTypeReference(id int16) (string, bool) {
	code, ok := r.entityTypes[id]
	return code, ok
}

func (r *referenceIndex) AddAttributeReference(id int32, code, entityTypeCode string) {
	if r.attributes == nil {
		r.attributes = make(map[string]map[int32]string)
	}
	byID, ok := r.attributes[entityTypeCode]
	if !ok {
		byID = make(map[int32]string)
		r.attributes[entityTypeCode] = byID
	}
	byID[id] = code
}

// RemoveAttributeReference drops id only while it still maps to code.
func (r *referenceIndex) RemoveAttributeReference(id int32, code, entityTypeCode string) {
	if byID, ok := r.attributes[entityTypeCode]; ok && byID[id] == code {
		delete(byID, id)
	}
}

func (r *referenceIndex) ResolveAttributeReference(id int32, entityTypeCode string) (string, bool) {
	code, ok := r.attributes[entityTypeCode][id]
	return code, ok
}

// entityTypeReferences exposes the entity type map for snapshots.
func (r *referenceIndex) entityTypeReferences() map[int16]string {
	return r.entityTypes
}

// attributeReferences exposes the attribute map for snapshots.
func (r *referenceIndex) attributeReferences() map[string]map[int32]string {
	return r.attributes
}

func (r *referenceIndex) adoptEntityTypeReferences(refs map[int16]string) {
	r.entityTypes = refs
}

func (r *referenceIndex) adoptAttributeReferences(refs map[string]map[int32]string) {
	r.attributes = refs
}

// Reset drops both maps.
func (r *referenceIndex) Reset() {
	r.entityTypes = nil
	r.attributes = nil
}
