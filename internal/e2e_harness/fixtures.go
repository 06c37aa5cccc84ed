package e2e_harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/eavcache"
	"github.com/lychee-technology/eavcache/internal"
)

// CatalogDocument seeds two entity types, two attribute sets and three attributes.
const CatalogDocument = `{
  "entity_types": [
    {"entity_type_id": 1, "entity_type_code": "customer", "entity_table": "customer_entity"},
    {"entity_type_id": 4, "entity_type_code": "catalog_product", "entity_table": "catalog_product_entity",
     "additional_attribute_table": "catalog_eav_attribute", "default_attribute_set_id": 4,
     "default_attribute_codes": ["sku"]}
  ],
  "attribute_sets": [
    {"attribute_set_id": 4, "entity_type_id": 4, "attribute_set_name": "Default"},
    {"attribute_set_id": 9, "entity_type_id": 4, "attribute_set_name": "Bags", "sort_order": 1}
  ],
  "attributes": [
    {"attribute": {"attribute_id": 5, "attribute_code": "email", "entity_type_id": 1, "backend_type": "static", "is_required": true}},
    {"attribute": {"attribute_id": 71, "attribute_code": "name", "entity_type_id": 4, "backend_type": "varchar", "is_required": true}, "attribute_set_ids": [4, 9]},
    {"attribute": {"attribute_id": 74, "attribute_code": "sku", "entity_type_id": 4, "backend_type": "varchar"}, "attribute_set_ids": [4]},
    {"attribute": {"attribute_id": 80, "attribute_code": "strap", "entity_type_id": 4, "backend_type": "int"}, "attribute_set_ids": [9]}
  ]
}`

// SeedMetadata creates the metadata tables plus an additional attribute table and imports
// CatalogDocument in one transaction.
func SeedMetadata(ctx context.Context, pool *pgxpool.Pool, tables eavcache.TableNames) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := internal.CreateMetadataTables(ctx, tx, tables); err != nil {
			return err
		}
		if err := internal.ImportMetadataDocument(ctx, tx, tables, []byte(CatalogDocument)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS catalog_eav_attribute (
  attribute_id INTEGER PRIMARY KEY,
  is_searchable BOOLEAN NOT NULL DEFAULT FALSE,
  position INTEGER NOT NULL DEFAULT 0
)`); err != nil {
			return fmt.Errorf("create catalog_eav_attribute: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO catalog_eav_attribute (attribute_id, is_searchable, position)
VALUES (71, TRUE, 3), (74, TRUE, 1)
ON CONFLICT (attribute_id) DO NOTHING`); err != nil {
			return fmt.Errorf("insert catalog_eav_attribute: %w", err)
		}
		return nil
	})
}

// EnsureBucket creates bucket on the S3 endpoint unless it already exists.
func EnsureBucket(ctx context.Context, endpoint, accessKey, secretKey, bucket string) error {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithBaseEndpoint(endpoint),
	)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	if _, err := s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}
	if _, err := s3Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			code := apiErr.ErrorCode()
			if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
				return nil
			}
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}
