package main

import (
	"fmt"
	"net/http"

	"github.com/lychee-technology/eavcache"
)

// handleListEntityTypes handles GET /api/v1/entity-types
func (s *Server) handleListEntityTypes(w http.ResponseWriter, r *http.Request) {
	entityTypes, err := s.cache.ListEntityTypes(r.Context())
	if err != nil {
		writeCacheError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, entityTypes)
}

// handleGetEntityType handles GET /api/v1/entity-types/{entityType}
func (s *Server) handleGetEntityType(w http.ResponseWriter, r *http.Request) {
	entityType, err := s.cache.GetEntityType(r.Context(), eavcache.ParseEntityTypeRef(r.PathValue("entityType")))
	if err != nil {
		writeCacheError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, entityType)
}

// handleListAttributes handles GET /api/v1/entity-types/{entityType}/attributes
func (s *Server) handleListAttributes(w http.ResponseWriter, r *http.Request) {
	attributes, err := s.cache.GetEntityTypeAttributes(r.Context(), eavcache.ParseEntityTypeRef(r.PathValue("entityType")))
	if err != nil {
		writeCacheError(w, err)
		return
	}
	resp := make([]attributeResponse, 0, len(attributes))
	for _, attribute := range attributes {
		resp = append(resp, newAttributeResponse(attribute))
	}
	writeSuccess(w, http.StatusOK, resp)
}

// handleGetAttribute handles GET /api/v1/entity-types/{entityType}/attributes/{attribute}.
// Unknown attribute codes answer with the stand-in attribute.
func (s *Server) handleGetAttribute(w http.ResponseWriter, r *http.Request) {
	attribute, err := s.cache.GetAttribute(r.Context(),
		eavcache.ParseEntityTypeRef(r.PathValue("entityType")),
		eavcache.ParseAttributeRef(r.PathValue("attribute")))
	if err != nil {
		writeCacheError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, newAttributeResponse(attribute))
}

// handleAttributeCodes handles GET /api/v1/entity-types/{entityType}/attribute-codes?attribute_set_id=N
func (s *Server) handleAttributeCodes(w http.ResponseWriter, r *http.Request) {
	setID, err := parseAttributeSetID(r.URL.Query().Get("attribute_set_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var scope eavcache.AttributeSetScope
	if setID != 0 {
		scope = eavcache.AttributeSetIDScope(setID)
	}
	codes, err := s.cache.GetEntityAttributeCodes(r.Context(), eavcache.ParseEntityTypeRef(r.PathValue("entityType")), scope)
	if err != nil {
		writeCacheError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, codes)
}

// handleGetAttributeSet handles GET /api/v1/attribute-sets/{id}
func (s *Server) handleGetAttributeSet(w http.ResponseWriter, r *http.Request) {
	id, err := parseAttributeSetID(r.PathValue("id"))
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid attribute set id %q", r.PathValue("id")))
		return
	}

	set, ok, err := s.cache.GetAttributeSet(r.Context(), id)
	if err != nil {
		writeCacheError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("attribute set %d not found", id))
		return
	}
	writeSuccess(w, http.StatusOK, set)
}

// handleSchemaEvent handles POST /api/v1/schema-events
func (s *Server) handleSchemaEvent(w http.ResponseWriter, r *http.Request) {
	var event eavcache.SchemaEvent
	if err := readJSONBody(r, &event); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	if event.Type == "" {
		writeError(w, http.StatusBadRequest, "event type is required")
		return
	}

	if err := s.invalidator.HandleSchemaEvent(r.Context(), event); err != nil {
		writeCacheError(w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, event)
}

// handleInvalidate handles POST /api/v1/invalidate
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := s.invalidator.CleanEAVCache(r.Context()); err != nil {
		writeCacheError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"invalidated": eavcache.AttributeCacheTag})
}
