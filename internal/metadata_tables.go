package internal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/eavcache"
	"go.uber.org/zap"
)

// metadataExecer is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type metadataExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// MetadataTableStatements returns the DDL for the tables read by PostgresMetadataSource.
func MetadataTableStatements(tables eavcache.TableNames) []string {
	entityType := sanitizeIdentifier(tables.EntityType)
	attributeSet := sanitizeIdentifier(tables.AttributeSet)
	attribute := sanitizeIdentifier(tables.Attribute)
	entityAttribute := sanitizeIdentifier(tables.EntityAttribute)

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  entity_type_id SMALLINT PRIMARY KEY,
  entity_type_code TEXT NOT NULL UNIQUE,
  entity_model TEXT,
  attribute_model TEXT,
  entity_table TEXT,
  additional_attribute_table TEXT,
  default_attribute_set_id INTEGER,
  default_attribute_codes TEXT[]
)`, entityType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  attribute_set_id INTEGER PRIMARY KEY,
  entity_type_id SMALLINT NOT NULL REFERENCES %s (entity_type_id) ON DELETE CASCADE,
  attribute_set_name TEXT NOT NULL,
  sort_order INTEGER NOT NULL DEFAULT 0,
  UNIQUE (entity_type_id, attribute_set_name)
)`, attributeSet, entityType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  attribute_id INTEGER PRIMARY KEY,
  entity_type_id SMALLINT NOT NULL REFERENCES %s (entity_type_id) ON DELETE CASCADE,
  attribute_code TEXT NOT NULL,
  attribute_model TEXT,
  backend_type TEXT NOT NULL DEFAULT 'static',
  backend_table TEXT,
  frontend_input TEXT,
  frontend_label TEXT,
  default_value TEXT,
  note TEXT,
  validate_rules TEXT,
  is_global BOOLEAN NOT NULL DEFAULT TRUE,
  is_required BOOLEAN NOT NULL DEFAULT FALSE,
  is_user_defined BOOLEAN NOT NULL DEFAULT FALSE,
  is_unique BOOLEAN NOT NULL DEFAULT FALSE,
  UNIQUE (entity_type_id, attribute_code)
)`, attribute, entityType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  attribute_set_id INTEGER NOT NULL REFERENCES %s (attribute_set_id) ON DELETE CASCADE,
  attribute_id INTEGER NOT NULL REFERENCES %s (attribute_id) ON DELETE CASCADE,
  sort_order INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (attribute_set_id, attribute_id)
)`, entityAttribute, attributeSet, attribute),
	}
}

// CreateMetadataTables creates the metadata tables if they do not exist.
func CreateMetadataTables(ctx context.Context, db metadataExecer, tables eavcache.TableNames) error {
	for _, stmt := range MetadataTableStatements(tables) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create metadata table: %w", err)
		}
	}
	zap.S().Infow("metadata tables ready",
		"entity_type", tables.EntityType,
		"attribute_set", tables.AttributeSet,
		"attribute", tables.Attribute,
		"entity_attribute", tables.EntityAttribute)
	return nil
}

// ImportMetadataDocument validates a JSON metadata document and upserts its rows into the
// metadata tables. Set membership of every imported attribute is replaced.
func ImportMetadataDocument(ctx context.Context, db metadataExecer, tables eavcache.TableNames, data []byte) error {
	doc, err := parseMetadataDocument(data)
	if err != nil {
		return err
	}

	entityType := sanitizeIdentifier(tables.EntityType)
	attributeSet := sanitizeIdentifier(tables.AttributeSet)
	attribute := sanitizeIdentifier(tables.Attribute)
	entityAttribute := sanitizeIdentifier(tables.EntityAttribute)

	upsertEntityType := fmt.Sprintf(`INSERT INTO %s (entity_type_id, entity_type_code, entity_model, attribute_model,
  entity_table, additional_attribute_table, default_attribute_set_id, default_attribute_codes)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, 0), $8)
ON CONFLICT (entity_type_id) DO UPDATE SET
  entity_type_code = EXCLUDED.entity_type_code,
  entity_model = EXCLUDED.entity_model,
  attribute_model = EXCLUDED.attribute_model,
  entity_table = EXCLUDED.entity_table,
  additional_attribute_table = EXCLUDED.additional_attribute_table,
  default_attribute_set_id = EXCLUDED.default_attribute_set_id,
  default_attribute_codes = EXCLUDED.default_attribute_codes`, entityType)
	for _, et := range doc.EntityTypes {
		codes := et.DefaultAttributeCodes
		if codes == nil {
			codes = []string{}
		}
		if _, err := db.Exec(ctx, upsertEntityType, et.ID, et.Code, et.EntityModel, et.AttributeModel,
			et.EntityTable, et.AttributeCollection, et.DefaultAttributeSetID, codes); err != nil {
			return fmt.Errorf("failed to import entity type %s: %w", et.Code, err)
		}
	}

	upsertSet := fmt.Sprintf(`INSERT INTO %s (attribute_set_id, entity_type_id, attribute_set_name, sort_order)
VALUES ($1, $2, $3, $4)
ON CONFLICT (attribute_set_id) DO UPDATE SET
  entity_type_id = EXCLUDED.entity_type_id,
  attribute_set_name = EXCLUDED.attribute_set_name,
  sort_order = EXCLUDED.sort_order`, attributeSet)
	for _, set := range doc.AttributeSets {
		if _, err := db.Exec(ctx, upsertSet, set.ID, set.EntityTypeID, set.Name, set.SortOrder); err != nil {
			return fmt.Errorf("failed to import attribute set %d: %w", set.ID, err)
		}
	}

	upsertAttribute := fmt.Sprintf(`INSERT INTO %s (attribute_id, entity_type_id, attribute_code, attribute_model,
  backend_type, backend_table, frontend_input, frontend_label, default_value, note, validate_rules,
  is_global, is_required, is_user_defined, is_unique)
VALUES ($1, $2, $3, NULLIF($4, ''), COALESCE(NULLIF($5, ''), 'static'), NULLIF($6, ''), NULLIF($7, ''),
  NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12, $13, $14, $15)
ON CONFLICT (attribute_id) DO UPDATE SET
  entity_type_id = EXCLUDED.entity_type_id,
  attribute_code = EXCLUDED.attribute_code,
  attribute_model = EXCLUDED.attribute_model,
  backend_type = EXCLUDED.backend_type,
  backend_table = EXCLUDED.backend_table,
  frontend_input = EXCLUDED.frontend_input,
  frontend_label = EXCLUDED.frontend_label,
  default_value = EXCLUDED.default_value,
  note = EXCLUDED.note,
  validate_rules = EXCLUDED.validate_rules,
  is_global = EXCLUDED.is_global,
  is_required = EXCLUDED.is_required,
  is_user_defined = EXCLUDED.is_user_defined,
  is_unique = EXCLUDED.is_unique`, attribute)
	clearMembership := fmt.Sprintf(`DELETE FROM %s WHERE attribute_id = $1`, entityAttribute)
	insertMembership := fmt.Sprintf(`INSERT INTO %s (attribute_set_id, attribute_id, sort_order) VALUES ($1, $2, $3)`, entityAttribute)

	for _, row := range doc.Attributes {
		d := row.Data
		if _, err := db.Exec(ctx, upsertAttribute, d.ID, d.EntityTypeID, d.Code, d.Model,
			d.BackendType, d.BackendTable, d.FrontendInput, d.FrontendLabel, d.DefaultValue, d.Note, d.ValidateRules,
			d.IsGlobal, d.IsRequired, d.IsUserDefined, d.IsUnique); err != nil {
			return fmt.Errorf("failed to import attribute %s: %w", d.Code, err)
		}
		if _, err := db.Exec(ctx, clearMembership, d.ID); err != nil {
			return fmt.Errorf("failed to reset set membership of %s: %w", d.Code, err)
		}
		for i, setID := range row.AttributeSetIDs {
			if _, err := db.Exec(ctx, insertMembership, setID, d.ID, i); err != nil {
				return fmt.Errorf("failed to add %s to attribute set %d: %w", d.Code, setID, err)
			}
		}
	}

	zap.S().Infow("imported metadata document",
		"entity_types", len(doc.EntityTypes),
		"attribute_sets", len(doc.AttributeSets),
		"attributes", len(doc.Attributes))
	return nil
}
