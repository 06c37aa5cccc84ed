package internal

import (
	"fmt"

	"github.com/lychee-technology/eavcache"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	entityTypesSnapshotFormat = "eavcache.entity_types"
	attributesSnapshotFormat  = "eavcache.attributes"

	// snapshotVersion must be bumped whenever a snapshot shape changes; older payloads become misses.
	snapshotVersion uint16 = 1
)

type snapshotEnvelope struct {
	Format  string `msgpack:"format"`
	Version uint16 `msgpack:"version"`
	Payload []byte `msgpack:"payload"`
}

type entityTypesSnapshot struct {
	EntityTypes map[string]*eavcache.EntityType `msgpack:"entity_types"`
	References  map[int16]string                `msgpack:"references"`
}

// attributeRecord keeps the model identifier next to the data so restore can
// rebuild the concrete attribute through the registry.
type attributeRecord struct {
	Model string                 `msgpack:"model"`
	Data  eavcache.AttributeData `msgpack:"data"`
}

type attributesSnapshot struct {
	AttributeSets map[int32]*eavcache.AttributeSet      `msgpack:"attribute_sets"`
	Attributes    map[string]map[string]attributeRecord `msgpack:"attributes"`
	References    map[string]map[int32]string           `msgpack:"references"`
}

func encodeSnapshot(format string, payload any) ([]byte, error) {
	body, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", format, err)
	}
	data, err := msgpack.Marshal(&snapshotEnvelope{Format: format, Version: snapshotVersion, Payload: body})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", format, err)
	}
	return data, nil
}

func decodeSnapshot(format string, data []byte, payload any) error {
	var envelope snapshotEnvelope
	if err := msgpack.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	if envelope.Format != format {
		return fmt.Errorf("unexpected snapshot format %q", envelope.Format)
	}
	if envelope.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", envelope.Version)
	}
	if err := msgpack.Unmarshal(envelope.Payload, payload); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

func encodeEntityTypes(entityTypes map[string]*eavcache.EntityType, refs map[int16]string) ([]byte, error) {
	return encodeSnapshot(entityTypesSnapshotFormat, &entityTypesSnapshot{
		EntityTypes: entityTypes,
		References:  refs,
	})
}

// decodeEntityTypes restores the entity type table and its references, rejecting any
// snapshot whose references do not resolve.
func decodeEntityTypes(data []byte) (map[string]*eavcache.EntityType, map[int16]string, error) {
	var snapshot entityTypesSnapshot
	if err := decodeSnapshot(entityTypesSnapshotFormat, data, &snapshot); err != nil {
		return nil, nil, err
	}

	entityTypes := snapshot.EntityTypes
	if entityTypes == nil {
		entityTypes = make(map[string]*eavcache.EntityType)
	}
	for code, entityType := range entityTypes {
		if entityType == nil || entityType.Code != code {
			return nil, nil, fmt.Errorf("entity type %q does not match its key", code)
		}
	}
	for id, code := range snapshot.References {
		if entityType, ok := entityTypes[code]; !ok || entityType.ID != id {
			return nil, nil, fmt.Errorf("entity type reference %d -> %q does not resolve", id, code)
		}
	}

	return entityTypes, snapshot.References, nil
}

func encodeAttributes(
	attributeSets map[int32]*eavcache.AttributeSet,
	attributes map[string]map[string]eavcache.Attribute,
	refs map[string]map[int32]string,
) ([]byte, error) {
	records := make(map[string]map[string]attributeRecord, len(attributes))
	for entityTypeCode, byCode := range attributes {
		entries := make(map[string]attributeRecord, len(byCode))
		for code, attribute := range byCode {
			entries[code] = attributeRecord{Model: attribute.ModelName(), Data: attribute.Data()}
		}
		records[entityTypeCode] = entries
	}

	return encodeSnapshot(attributesSnapshotFormat, &attributesSnapshot{
		AttributeSets: attributeSets,
		Attributes:    records,
		References:    refs,
	})
}

// decodeAttributes restores the attribute set table, the attributes (rebuilt through the model
// registry) and the attribute references.
func decodeAttributes(data []byte, models *AttributeModelRegistry) (
	map[int32]*eavcache.AttributeSet,
	map[string]map[string]eavcache.Attribute,
	map[string]map[int32]string,
	error,
) {
	var snapshot attributesSnapshot
	if err := decodeSnapshot(attributesSnapshotFormat, data, &snapshot); err != nil {
		return nil, nil, nil, err
	}

	attributeSets := snapshot.AttributeSets
	if attributeSets == nil {
		attributeSets = make(map[int32]*eavcache.AttributeSet)
	}
	for id, set := range attributeSets {
		if set == nil || set.ID != id {
			return nil, nil, nil, fmt.Errorf("attribute set %d does not match its key", id)
		}
	}

	attributes := make(map[string]map[string]eavcache.Attribute, len(snapshot.Attributes))
	for entityTypeCode, records := range snapshot.Attributes {
		byCode := make(map[string]eavcache.Attribute, len(records))
		for code, record := range records {
			if record.Data.Code != code {
				return nil, nil, nil, fmt.Errorf("attribute %q of %q does not match its key", code, entityTypeCode)
			}
			attribute, err := models.New(record.Model)
			if err != nil {
				return nil, nil, nil, err
			}
			attribute.SetData(record.Data)
			byCode[code] = attribute
		}
		attributes[entityTypeCode] = byCode
	}

	for entityTypeCode, byID := range snapshot.References {
		for id, code := range byID {
			attribute, ok := attributes[entityTypeCode][code]
			if !ok || attribute.AttributeID() != id {
				return nil, nil, nil, fmt.Errorf("attribute reference %s/%d -> %q does not resolve", entityTypeCode, id, code)
			}
		}
	}

	return attributeSets, attributes, snapshot.References, nil
}
