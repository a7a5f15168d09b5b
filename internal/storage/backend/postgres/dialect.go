package postgres

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opencreds/badgestore/internal/idgen"
)

// Dialect is the PostgreSQL type-conversion boundary: identifiers are native
// UUIDs, JSON rides in JSONB columns, timestamps are TIMESTAMPTZ, booleans
// are BOOLEAN.
type Dialect struct{}

// Name identifies the engine.
func (Dialect) Name() string { return "postgresql" }

// Rebind translates '?' placeholders to PostgreSQL's $1, $2, ... form.
// Queries are written once in the repositories with '?' and rebound here.
func (Dialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// JSONPathExpr extracts a top-level key from a JSONB column as text.
func (Dialect) JSONPathExpr(column, key string) string {
	return fmt.Sprintf("%s->>'%s'", column, key)
}

// BindJSON serializes v for a JSONB column. The value is sent as text and
// coerced by the server; nil stays NULL.
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

// ScanJSON decodes a JSONB column into dst. NULL leaves dst untouched.
func (Dialect) ScanJSON(src any, dst any) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
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

// BindTime passes timestamps through as UTC time values.
func (Dialect) BindTime(t time.Time) any { return t.UTC() }

// BindNullTime prepares a nullable timestamp; nil stays NULL.
func (d Dialect) BindNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.BindTime(*t)
}

// ScanTime decodes a TIMESTAMPTZ column.
func (Dialect) ScanTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v.UTC(), nil
	case []byte:
		t, err := time.Parse(time.RFC3339Nano, string(v))
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

// BindBool passes booleans through natively.
func (Dialect) BindBool(b bool) any { return b }

// ScanBool decodes a BOOLEAN column.
func (Dialect) ScanBool(src any) (bool, error) {
	switch v := src.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case int64:
		switch v {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, fmt.Errorf("boolean column: invalid integer %d", v)
	default:
		return false, fmt.Errorf("boolean column: unexpected type %T", src)
	}
}

// BindID validates the IRI as UUID-shaped for the native UUID column.
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

// ScanID decodes a UUID column.
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
