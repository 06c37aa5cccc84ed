package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/eavcache"
	"go.uber.org/zap"
)

var _ eavcache.MetadataSource = (*PostgresMetadataSource)(nil)

// metadataPool is satisfied by *pgxpool.Pool and pgxmock pools.
type metadataPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresMetadataSource reads entity types, attribute sets and attributes from the relational EAV tables.
type PostgresMetadataSource struct {
	pool   metadataPool
	tables eavcache.TableNames
}

// NewPostgresMetadataSource creates a source over the given tables. Empty table names fall back to defaults.
func NewPostgresMetadataSource(pool metadataPool, tables eavcache.TableNames) *PostgresMetadataSource {
	defaults := eavcache.DefaultConfig().Database.TableNames
	if tables.EntityType == "" {
		tables.EntityType = defaults.EntityType
	}
	if tables.AttributeSet == "" {
		tables.AttributeSet = defaults.AttributeSet
	}
	if tables.Attribute == "" {
		tables.Attribute = defaults.Attribute
	}
	if tables.EntityAttribute == "" {
		tables.EntityAttribute = defaults.EntityAttribute
	}
	return &PostgresMetadataSource{pool: pool, tables: tables}
}

func (s *PostgresMetadataSource) ListEntityTypes(ctx context.Context) ([]*eavcache.EntityType, error) {
	query := fmt.Sprintf(`SELECT entity_type_id, entity_type_code,
	COALESCE(entity_model, ''), COALESCE(attribute_model, ''), COALESCE(entity_table, ''),
	COALESCE(additional_attribute_table, ''), COALESCE(default_attribute_set_id, 0),
	COALESCE(default_attribute_codes, '{}'::text[])
FROM %s
ORDER BY entity_type_id`, sanitizeIdentifier(s.tables.EntityType))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity types: %w", err)
	}
	defer rows.Close()

	var entityTypes []*eavcache.EntityType
	for rows.Next() {
		var et eavcache.EntityType
		if err := rows.Scan(
			&et.ID,
			&et.Code,
			&et.EntityModel,
			&et.AttributeModel,
			&et.EntityTable,
			&et.AttributeCollection,
			&et.DefaultAttributeSetID,
			&et.DefaultAttributeCodes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity type row: %w", err)
		}
		entityTypes = append(entityTypes, &et)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity type rows: %w", err)
	}

	zap.S().Debugw("queried entity types", "table", s.tables.EntityType, "count", len(entityTypes))
	return entityTypes, nil
}

func (s *PostgresMetadataSource) ListAttributeSets(ctx context.Context) ([]*eavcache.AttributeSet, error) {
	query := fmt.Sprintf(`SELECT attribute_set_id, entity_type_id, attribute_set_name, COALESCE(sort_order, 0)
FROM %s
ORDER BY attribute_set_id`, sanitizeIdentifier(s.tables.AttributeSet))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query attribute sets: %w", err)
	}
	defer rows.Close()

	var sets []*eavcache.AttributeSet
	for rows.Next() {
		var set eavcache.AttributeSet
		if err := rows.Scan(&set.ID, &set.EntityTypeID, &set.Name, &set.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan attribute set row: %w", err)
		}
		sets = append(sets, &set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attribute set rows: %w", err)
	}
	return sets, nil
}

// ListAttributes returns the entity type's attributes joined with their attribute set membership.
// Columns of the entity type's additional attribute table are merged into Extra.
func (s *PostgresMetadataSource) ListAttributes(ctx context.Context, entityType *eavcache.EntityType) ([]eavcache.AttributeRow, error) {
	query := fmt.Sprintf(`SELECT a.attribute_id, a.attribute_code, a.entity_type_id,
	COALESCE(a.attribute_model, ''), COALESCE(a.backend_type, ''), COALESCE(a.backend_table, ''),
	COALESCE(a.frontend_input, ''), COALESCE(a.frontend_label, ''), COALESCE(a.default_value, ''),
	COALESCE(a.note, ''), COALESCE(a.validate_rules, ''),
	a.is_global, a.is_required, a.is_user_defined, a.is_unique,
	COALESCE(array_agg(ea.attribute_set_id ORDER BY ea.attribute_set_id) FILTER (WHERE ea.attribute_set_id IS NOT NULL), '{}'::int[])
FROM %s a
LEFT JOIN %s ea ON ea.attribute_id = a.attribute_id
WHERE a.entity_type_id = $1
GROUP BY a.attribute_id
ORDER BY a.attribute_id`, sanitizeIdentifier(s.tables.Attribute), sanitizeIdentifier(s.tables.EntityAttribute))

	rows, err := s.pool.Query(ctx, query, entityType.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attributes of %s: %w", entityType.Code, err)
	}
	defer rows.Close()

	var result []eavcache.AttributeRow
	for rows.Next() {
		var row eavcache.AttributeRow
		d := &row.Data
		if err := rows.Scan(
			&d.ID, &d.Code, &d.EntityTypeID,
			&d.Model, &d.BackendType, &d.BackendTable,
			&d.FrontendInput, &d.FrontendLabel, &d.DefaultValue,
			&d.Note, &d.ValidateRules,
			&d.IsGlobal, &d.IsRequired, &d.IsUserDefined, &d.IsUnique,
			&row.AttributeSetIDs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attribute row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attribute rows: %w", err)
	}

	if entityType.AttributeCollection != "" && len(result) > 0 {
		if err := s.mergeAdditionalFields(ctx, entityType.AttributeCollection, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *PostgresMetadataSource) mergeAdditionalFields(ctx context.Context, table string, attributes []eavcache.AttributeRow) error {
	ids := make([]int32, len(attributes))
	index := make(map[int32]int, len(attributes))
	for i, row := range attributes {
		ids[i] = row.Data.ID
		index[row.Data.ID] = i
	}

	query := fmt.Sprintf(`SELECT t.attribute_id, to_jsonb(t) FROM %s t WHERE t.attribute_id = ANY($1)`, sanitizeIdentifier(table))
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to query additional attribute table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int32
		var fields map[string]any
		if err := rows.Scan(&id, &fields); err != nil {
			return fmt.Errorf("failed to scan additional attribute row: %w", err)
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		data := &attributes[i].Data
		for name, value := range fields {
			if name == "attribute_id" || value == nil {
				continue
			}
			if data.Extra == nil {
				data.Extra = make(map[string]string, len(fields))
			}
			data.Extra[name] = stringifyField(value)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating additional attribute rows: %w", err)
	}
	return nil
}

func stringifyField(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}
