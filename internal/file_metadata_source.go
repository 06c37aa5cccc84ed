package internal

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/eavcache"
)

var _ eavcache.MetadataSource = (*FileMetadataSource)(nil)

//go:embed schemas/metadata_source.schema.json
var metadataDocumentSchema []byte

var (
	metadataSchemaOnce     sync.Once
	metadataSchemaResolved *jsonschema.Resolved
	metadataSchemaErr      error
)

// metadataDocument is the on-disk form of a static EAV schema.
type metadataDocument struct {
	EntityTypes   []*eavcache.EntityType   `json:"entity_types"`
	AttributeSets []*eavcache.AttributeSet `json:"attribute_sets"`
	Attributes    []eavcache.AttributeRow  `json:"attributes"`
}

// FileMetadataSource serves metadata from a JSON document. The document is re-read and
// validated on every entity type listing so a cleared cache picks up edits.
type FileMetadataSource struct {
	read func() ([]byte, error)

	mu  sync.Mutex
	doc *metadataDocument
}

// NewFileMetadataSource reads the document at path.
func NewFileMetadataSource(path string) *FileMetadataSource {
	return &FileMetadataSource{read: func() ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata file %s: %w", path, err)
		}
		return data, nil
	}}
}

// NewFileMetadataSourceFromBytes serves a fixed document.
func NewFileMetadataSourceFromBytes(data []byte) *FileMetadataSource {
	data = slices.Clone(data)
	return &FileMetadataSource{read: func() ([]byte, error) { return data, nil }}
}

func (s *FileMetadataSource) ListEntityTypes(ctx context.Context) ([]*eavcache.EntityType, error) {
	doc, err := s.reload()
	if err != nil {
		return nil, err
	}
	entityTypes := make([]*eavcache.EntityType, 0, len(doc.EntityTypes))
	for _, et := range doc.EntityTypes {
		clone := *et
		entityTypes = append(entityTypes, &clone)
	}
	return entityTypes, nil
}

func (s *FileMetadataSource) ListAttributeSets(ctx context.Context) ([]*eavcache.AttributeSet, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	sets := make([]*eavcache.AttributeSet, 0, len(doc.AttributeSets))
	for _, set := range doc.AttributeSets {
		clone := *set
		sets = append(sets, &clone)
	}
	return sets, nil
}

func (s *FileMetadataSource) ListAttributes(ctx context.Context, entityType *eavcache.EntityType) ([]eavcache.AttributeRow, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	var rows []eavcache.AttributeRow
	for _, row := range doc.Attributes {
		if row.Data.EntityTypeID != entityType.ID {
			continue
		}
		row.AttributeSetIDs = slices.Clone(row.AttributeSetIDs)
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *FileMetadataSource) document() (*metadataDocument, error) {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	if doc != nil {
		return doc, nil
	}
	return s.reload()
}

func (s *FileMetadataSource) reload() (*metadataDocument, error) {
	data, err := s.read()
	if err != nil {
		return nil, err
	}
	doc, err := parseMetadataDocument(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return doc, nil
}

// parseMetadataDocument validates data against the embedded JSON Schema before decoding it.
func parseMetadataDocument(data []byte) (*metadataDocument, error) {
	resolved, err := metadataSchema()
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse metadata document: %w", err)
	}
	if err := resolved.Validate(raw); err != nil {
		return nil, fmt.Errorf("metadata document validation failed: %w", err)
	}

	var doc metadataDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode metadata document: %w", err)
	}
	return &doc, nil
}

func metadataSchema() (*jsonschema.Resolved, error) {
	metadataSchemaOnce.Do(func() {
		var schema jsonschema.Schema
		if err := json.Unmarshal(metadataDocumentSchema, &schema); err != nil {
			metadataSchemaErr = fmt.Errorf("failed to unmarshal into jsonschema.Schema: %w", err)
			return
		}
		metadataSchemaResolved, metadataSchemaErr = schema.Resolve(&jsonschema.ResolveOptions{})
		if metadataSchemaErr != nil {
			metadataSchemaErr = fmt.Errorf("failed to resolve JSON schema: %w", metadataSchemaErr)
		}
	})
	return metadataSchemaResolved, metadataSchemaErr
}
