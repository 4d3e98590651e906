// Package models - jsonmap.go defines JSONMap, a JSON object stored in a JSONB column.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a JSON object persisted as JSONB. A nil map is stored as SQL NULL. Values are
// sent as text since lib/pq would encode a []byte parameter as bytea.
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]interface{}(m))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSONB value: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}

	if len(raw) == 0 || string(raw) == "null" {
		*m = nil
		return nil
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to unmarshal JSONB value: %w", err)
	}
	*m = out
	return nil
}
