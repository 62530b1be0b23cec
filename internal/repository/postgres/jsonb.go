package postgres

import (
	"encoding/json"
	"fmt"
)

// jsonArg marshals a value for a JSONB column parameter. Nil maps and
// slices become empty JSON objects/arrays so NOT NULL columns stay clean.
func jsonArg(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		if t == nil {
			return []byte("{}"), nil
		}
	case []string:
		if t == nil {
			return []byte("[]"), nil
		}
	case nil:
		return []byte("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return b, nil
}

// jsonNullArg marshals a map for a nullable JSONB column. A nil map
// becomes SQL NULL so "never set" stays distinguishable from an empty
// result.
func jsonNullArg(m map[string]interface{}) (interface{}, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return b, nil
}

// scanJSONMap unmarshals a JSONB column into a map. NULL and empty
// payloads yield nil.
func scanJSONMap(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return m, nil
}

// scanJSONInto unmarshals a JSONB column into a typed destination,
// leaving it zero-valued on NULL.
func scanJSONInto(raw []byte, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return nil
}
