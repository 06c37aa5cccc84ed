package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/lychee-technology/eavcache"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataTableStatements(t *testing.T) {
	stmts := MetadataTableStatements(eavcache.DefaultConfig().Database.TableNames)
	require.Len(t, stmts, 4)

	assert.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "eav_entity_type"`)
	assert.Contains(t, stmts[1], `REFERENCES "eav_entity_type" (entity_type_id)`)
	assert.Contains(t, stmts[2], `UNIQUE (entity_type_id, attribute_code)`)
	assert.Contains(t, stmts[3], `REFERENCES "eav_attribute" (attribute_id)`)
}

func TestCreateMetadataTables(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tables := eavcache.TableNames{
		EntityType:      "meta.entity_type",
		AttributeSet:    "meta.attribute_set",
		Attribute:       "meta.attribute",
		EntityAttribute: "meta.entity_attribute",
	}
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "meta"\."entity_type"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "meta"\."attribute_set"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "meta"\."attribute"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "meta"\."entity_attribute"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, CreateMetadataTables(context.Background(), mock, tables))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMetadataTables_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))

	err = CreateMetadataTables(context.Background(), mock, eavcache.DefaultConfig().Database.TableNames)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestImportMetadataDocument(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	document := `{
  "entity_types": [{"entity_type_id": 4, "entity_type_code": "catalog_product", "default_attribute_codes": ["sku"]}],
  "attribute_sets": [{"attribute_set_id": 4, "entity_type_id": 4, "attribute_set_name": "Default"}],
  "attributes": [{"attribute": {"attribute_id": 74, "attribute_code": "sku", "entity_type_id": 4}, "attribute_set_ids": [4, 9]}]
}`
	result := pgxmock.NewResult("INSERT", 1)
	mock.ExpectExec(`INSERT INTO "eav_entity_type"`).
		WithArgs(int16(4), "catalog_product", "", "", "", "", int32(0), []string{"sku"}).
		WillReturnResult(result)
	mock.ExpectExec(`INSERT INTO "eav_attribute_set"`).
		WithArgs(int32(4), int16(4), "Default", 0).
		WillReturnResult(result)
	mock.ExpectExec(`INSERT INTO "eav_attribute" \(`).
		WithArgs(int32(74), int16(4), "sku", "", "", "", "", "", "", "", "", false, false, false, false).
		WillReturnResult(result)
	mock.ExpectExec(`DELETE FROM "eav_entity_attribute"`).WithArgs(int32(74)).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`INSERT INTO "eav_entity_attribute"`).WithArgs(int32(4), int32(74), 0).WillReturnResult(result)
	mock.ExpectExec(`INSERT INTO "eav_entity_attribute"`).WithArgs(int32(9), int32(74), 1).WillReturnResult(result)

	err = ImportMetadataDocument(context.Background(), mock, eavcache.DefaultConfig().Database.TableNames, []byte(document))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportMetadataDocument_InvalidDocument(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	err = ImportMetadataDocument(context.Background(), mock, eavcache.DefaultConfig().Database.TableNames, []byte(`{"attributes": []}`))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
