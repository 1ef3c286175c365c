package models

import "encoding/json"

// Event is one raw operational event from an upstream collector. Severity
// is optional; when empty the per-type default applies.
type Event struct {
	Type     AlertType       `json:"type"`
	Severity Severity        `json:"severity,omitempty"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// MetadataMap decodes the event metadata into a map. A nil or malformed
// payload yields an empty map so matchers never see nil.
func (e *Event) MetadataMap() map[string]any {
	if len(e.Metadata) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(e.Metadata, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// DedupKey derives the duplicate-detection key for the event: type plus the
// host_id metadata field. Events without host_id return "" and always
// create a fresh alert.
func (e *Event) DedupKey() string {
	m := e.MetadataMap()
	host, ok := m["host_id"].(string)
	if !ok || host == "" {
		return ""
	}
	return string(e.Type) + ":" + host
}
