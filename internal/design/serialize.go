package design

import (
	"encoding/json"
	"fmt"
)

// SchemaVersion tags persisted design documents so future attribute
// additions can be defaulted on load instead of silently dropped.
const SchemaVersion = 1

// Document is the persisted form of a canvas design.
type Document struct {
	SchemaVersion int       `json:"schema_version"`
	Elements      []Element `json:"elements"`
}

// Encode serializes elements as a versioned document.
func Encode(elements []Element) ([]byte, error) {
	return json.Marshal(Document{SchemaVersion: SchemaVersion, Elements: elements})
}

// Decode loads a persisted design. Legacy payloads (a bare element array
// with no version tag) are accepted as version 0; missing attributes default
// to their zero values either way.
func Decode(data []byte) ([]Element, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err == nil && doc.SchemaVersion > 0 {
		if doc.SchemaVersion > SchemaVersion {
			return nil, fmt.Errorf("design schema version %d is newer than supported version %d", doc.SchemaVersion, SchemaVersion)
		}
		return doc.Elements, nil
	}

	var legacy []Element
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("failed to decode design document: %w", err)
	}
	return legacy, nil
}
