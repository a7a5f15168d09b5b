package types

import (
	"bytes"
	"encoding/json"
)

// marshalMap encodes a JSON object without HTML escaping, matching what the
// backends store verbatim.
func marshalMap(obj map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// unmarshalMap decodes a JSON object into a generic map.
func unmarshalMap(data []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}
