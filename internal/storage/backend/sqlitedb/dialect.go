package sqlitedb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opencreds/badgestore/internal/idgen"
)

// Dialect is the SQLite type-conversion boundary: identifiers are TEXT, JSON
// is serialized TEXT, timestamps are epoch-millisecond INTEGERs, and booleans
// are 0/1 INTEGERs.
type Dialect struct{}

// Name identifies the engine.
func (Dialect) Name() string { return "sqlite" }

// Rebind is the identity; SQLite uses '?' placeholders natively.
func (Dialect) Rebind(query string) string { return query }

// JSONPathExpr extracts a top-level key from a JSON TEXT column.
func (Dialect) JSONPathExpr(column, key string) string {
	return fmt.Sprintf("json_extract(%s, '$.%s')", column, key)
}

// BindJSON serializes v to a JSON TEXT value. nil stays NULL.
func (Dialect) BindJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return string(data), nil
}

// ScanJSON parses a JSON TEXT column into dst. NULL leaves dst untouched.
func (Dialect) ScanJSON(src any, dst any) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("json column: unexpected type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}

// BindTime stores timestamps as epoch milliseconds.
func (Dialect) BindTime(t time.Time) any { return t.UTC().UnixMilli() }

// BindNullTime stores a nullable timestamp; nil stays NULL.
func (d Dialect) BindNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.BindTime(*t)
}

// ScanTime decodes an epoch-millisecond column. RFC 3339 text written by
// older schema versions is accepted on read.
func (Dialect) ScanTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case int64:
		return time.UnixMilli(v).UTC(), nil
	case time.Time:
		return v.UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp column: cannot parse %q", v)
		}
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("timestamp column: unexpected type %T", src)
	}
}

// ScanNullTime decodes a nullable timestamp column.
func (d Dialect) ScanNullTime(src any) (*time.Time, error) {
	if src == nil {
		return nil, nil
	}
	t, err := d.ScanTime(src)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// BindBool stores booleans as 0/1.
func (Dialect) BindBool(b bool) any {
	if b {
		return int64(1)
	}
	return int64(0)
}

// ScanBool decodes a 0/1 INTEGER column. Legacy rows that stored the JSON
// wrapper {"status":true} in a TEXT column are accepted on read; anything
// else is a corruption error.
func (Dialect) ScanBool(src any) (bool, error) {
	switch v := src.(type) {
	case nil:
		return false, nil
	case int64:
		switch v {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, fmt.Errorf("boolean column: invalid integer %d", v)
	case bool:
		return v, nil
	case string, []byte:
		return scanLegacyBool(fmt.Sprintf("%s", v))
	default:
		return false, fmt.Errorf("boolean column: unexpected type %T", src)
	}
}

func scanLegacyBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	var wrapper struct {
		Status bool `json:"status"`
	}
	if err := json.Unmarshal([]byte(s), &wrapper); err == nil {
		return wrapper.Status, nil
	}
	return false, fmt.Errorf("boolean column: invalid value %q", s)
}

// BindID validates the IRI and stores it as TEXT.
func (Dialect) BindID(iri string) (any, error) {
	if iri == "" {
		return nil, fmt.Errorf("id column: empty identifier")
	}
	normalized, err := idgen.Normalize(iri)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// BindNullID prepares a nullable IRI reference.
func (d Dialect) BindNullID(iri *string) (any, error) {
	if iri == nil {
		return nil, nil
	}
	return d.BindID(*iri)
}

// ScanID decodes an identifier column.
func (Dialect) ScanID(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("id column: unexpected type %T", src)
	}
}
