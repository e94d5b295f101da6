package client

import (
	"encoding/json"
	"fmt"
)

// Document is a decoded JSON object as returned by the service. Field names
// and shapes are defined by IS24, not by this package.
//
// Operations return a nil Document with a nil error when the service
// answered without data (any status other than 200 and 503).
type Document map[string]any

// Map returns the nested object stored under key, or nil.
func (d Document) Map(key string) Document {
	switch v := d[key].(type) {
	case map[string]any:
		return Document(v)
	case Document:
		return v
	default:
		return nil
	}
}

// String returns the string stored under key, or "".
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Decode converts the document into v through a JSON round trip.
func (d Document) Decode(v any) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// documentList converts a decoded JSON value into a list of documents.
// A single object becomes a one-element list; non-object items are skipped.
// A nil value yields nil.
func documentList(v any) []Document {
	switch items := v.(type) {
	case []any:
		docs := make([]Document, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				docs = append(docs, Document(m))
			}
		}
		return docs
	case map[string]any:
		return []Document{Document(items)}
	default:
		return nil
	}
}
