package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/lychee-technology/eavcache"
	"go.uber.org/zap"
)

// APIResponse is the standard response format
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// attributeResponse is the JSON form of an eavcache.Attribute.
type attributeResponse struct {
	Model          string                 `json:"attribute_model"`
	EntityTypeCode string                 `json:"entity_type_code,omitempty"`
	Attribute      eavcache.AttributeData `json:"attribute"`
}

func newAttributeResponse(attribute eavcache.Attribute) attributeResponse {
	resp := attributeResponse{
		Model:     attribute.ModelName(),
		Attribute: attribute.Data(),
	}
	if et := attribute.EntityType(); et != nil {
		resp.EntityTypeCode = et.Code
	}
	return resp
}

// parseAttributeSetID reads an optional positive attribute set ID.
func parseAttributeSetID(raw string) (int32, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid attribute set id %q", raw)
	}
	return int32(id), nil
}

// statusFor maps metadata cache errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case eavcache.IsNotFound(err):
		return http.StatusNotFound
	case eavcache.IsSourceError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeCacheError logs err and writes it with the status derived from its kind.
func writeCacheError(w http.ResponseWriter, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.S().Errorw("metadata cache lookup failed", "error", err)
	}
	return writeError(w, status, err.Error())
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: true,
		Data:    data,
	})
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
