package repo

import (
	"database/sql"

	"github.com/opencreds/badgestore/internal/storage/backend"
)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// bindJSON routes a possibly-nil JSON value through the dialect, keeping
// typed-nil pointers and empty maps as SQL NULL instead of the string "null".
func bindJSON[T any](d backend.Dialect, v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	return d.BindJSON(v)
}

func bindJSONMap(d backend.Dialect, m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	return d.BindJSON(m)
}

func bindJSONSlice[T any](d backend.Dialect, s []T) (any, error) {
	if s == nil {
		return nil, nil
	}
	return d.BindJSON(s)
}

// nullStr maps the empty string to SQL NULL.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func fromNullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
